// Package dto - представление выдачи и запросов на проводе: JSON для HTTP и google.protobuf.Struct для gRPC.
package dto

import (
	"time"

	"github.com/pribylovaa/comment-tree/internal/models"
)

// Comment - комментарий на проводе. Для надгробия тело пустое.
type Comment struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Edited    bool      `json:"edited,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	Spam      bool      `json:"spam,omitempty"`
	Ups       int64     `json:"ups"`
	Downs     int64     `json:"downs"`
	Score     int64     `json:"score"`
}

// More - маркер "загрузить ещё". У маркера верхнего уровня parent_id = null.
type More struct {
	ID           string   `json:"id"`
	ParentID     *string  `json:"parent_id"`
	OmittedIDs   []string `json:"omitted_ids"`
	OmittedCount int      `json:"omitted_count"`
	Depth        int      `json:"depth"`
}

// Item - элемент плоской выдачи: kind = "comment" | "more".
type Item struct {
	Kind    string   `json:"kind"`
	Depth   int      `json:"depth"`
	Comment *Comment `json:"comment,omitempty"`
	More    *More    `json:"more,omitempty"`
}

// Listing - ответ ListComments/MoreChildren.
type Listing struct {
	Items       []Item   `json:"items"`
	Comments    int      `json:"comments"`
	Skipped     []string `json:"skipped,omitempty"`
	Version     uint64   `json:"version"`
	AnchorFound bool     `json:"anchor_found"`
}

// ListCommentsRequest - запрос дерева обсуждения.
type ListCommentsRequest struct {
	LinkID   string   `json:"link_id"`
	Sort     string   `json:"sort,omitempty"`
	RootIDs  []string `json:"root_ids,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	ShowSpam bool     `json:"show_spam,omitempty"`
}

// MoreChildrenRequest - раскрытие маркера. Теги validate проверяет HTTP-слой.
type MoreChildrenRequest struct {
	LinkID   string   `json:"link_id"`
	Sort     string   `json:"sort,omitempty" validate:"omitempty,oneof=hot top new old controversial"`
	Children []string `json:"children" validate:"required,min=1,dive,required"`
	Depth    int      `json:"depth" validate:"gte=0"`
	Limit    int      `json:"limit,omitempty" validate:"gte=0"`
	AnchorID string   `json:"anchor_id,omitempty"`
	ShowSpam bool     `json:"show_spam,omitempty"`
}

// CreateCommentRequest - новый корень (parent_id пуст) или ответ.
type CreateCommentRequest struct {
	LinkID   string `json:"link_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

// IDRequest - операция над одним комментарием.
type IDRequest struct {
	ID string `json:"id"`
}

// EditCommentRequest - правка тела.
type EditCommentRequest struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// ApplyVoteRequest - итог голосования.
type ApplyVoteRequest struct {
	ID    string `json:"id"`
	Ups   int64  `json:"ups"`
	Downs int64  `json:"downs"`
}

// SetSpamRequest - решение модерации.
type SetSpamRequest struct {
	ID   string `json:"id"`
	Spam bool   `json:"spam"`
}

// InvalidateLinkRequest - сброс дерева обсуждения.
type InvalidateLinkRequest struct {
	LinkID string `json:"link_id"`
}

// CommentResponse - ответ пишущих операций.
type CommentResponse struct {
	Comment Comment `json:"comment"`
}

// Empty - пустой ответ.
type Empty struct{}

// FromComment конвертирует доменную модель.
func FromComment(c models.Comment) Comment {
	return Comment{
		ID:        c.ID,
		LinkID:    c.LinkID.String(),
		ParentID:  c.ParentID,
		AuthorID:  c.AuthorID.String(),
		Body:      c.Body,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
		Edited:    c.Edited,
		Deleted:   c.Deleted,
		Spam:      c.Spam,
		Ups:       c.Ups,
		Downs:     c.Downs,
		Score:     c.Score(),
	}
}

// FromListing конвертирует выдачу. Items никогда не nil.
func FromListing(l *models.Listing) Listing {
	out := Listing{
		Items:       make([]Item, 0, len(l.Items)),
		Comments:    l.Comments,
		Skipped:     l.Skipped,
		Version:     l.Version,
		AnchorFound: l.AnchorFound,
	}

	for _, it := range l.Items {
		item := Item{Kind: it.Kind.String(), Depth: it.Depth}

		switch {
		case it.Kind == models.KindComment && it.Comment != nil:
			c := FromComment(*it.Comment)
			item.Comment = &c
		case it.Kind == models.KindMore && it.More != nil:
			more := &More{
				ID:           it.More.ID,
				OmittedIDs:   it.More.Children,
				OmittedCount: it.More.Count,
				Depth:        it.More.Depth,
			}
			if it.More.ParentID != "" {
				parent := it.More.ParentID
				more.ParentID = &parent
			}
			if more.OmittedIDs == nil {
				more.OmittedIDs = []string{}
			}
			item.More = more
		}

		out.Items = append(out.Items, item)
	}

	return out
}
