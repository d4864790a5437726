package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

var _ storage.Storage = (*Mongo)(nil)

// commentDoc - документ коллекции comments.
// UUID храним строками: так их видно в mongosh и по ним работает индекс.
type commentDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	LinkID    string             `bson:"link_id"`
	ParentID  string             `bson:"parent_id"`
	AuthorID  string             `bson:"author_id"`
	Body      string             `bson:"body"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
	Edited    bool               `bson:"edited"`
	Deleted   bool               `bson:"deleted"`
	Spam      bool               `bson:"spam"`
	Ups       int64              `bson:"ups"`
	Downs     int64              `bson:"downs"`
}

func (d commentDoc) toModel() (models.Comment, error) {
	link, err := uuid.Parse(d.LinkID)
	if err != nil {
		return models.Comment{}, fmt.Errorf("link_id %q: %w", d.LinkID, err)
	}

	// author_id необязателен (анонимные/импортированные записи).
	author, _ := uuid.Parse(d.AuthorID)

	return models.Comment{
		ID:        d.ID.Hex(),
		LinkID:    link,
		ParentID:  d.ParentID,
		AuthorID:  author,
		Body:      d.Body,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Edited:    d.Edited,
		Deleted:   d.Deleted,
		Spam:      d.Spam,
		Ups:       d.Ups,
		Downs:     d.Downs,
	}, nil
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

// CreateComment создаёт комментарий (корневой или ответ).
// Ответ наследует link_id родителя; отсутствие родителя - storage.ErrParentNotFound.
func (m *Mongo) CreateComment(ctx context.Context, comm models.Comment) (*models.Comment, error) {
	const op = "storage/mongo/CreateComment"

	now := toMS(time.Now())
	comm.ParentID = strings.TrimSpace(comm.ParentID)

	if comm.ParentID != "" {
		parentOID, err := primitive.ObjectIDFromHex(comm.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
		}

		var parent commentDoc
		if err := m.comments.FindOne(ctx, bson.D{{Key: "_id", Value: parentOID}}).Decode(&parent); err != nil {
			if errors.Is(err, mongodriver.ErrNoDocuments) {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
			}

			return nil, fmt.Errorf("%s: find parent: %w", op, err)
		}

		// Ответ всегда в обсуждении родителя (защита от рассинхрона).
		link, err := uuid.Parse(parent.LinkID)
		if err != nil {
			return nil, fmt.Errorf("%s: parent link_id: %w", op, err)
		}
		comm.LinkID = link
	}

	doc := commentDoc{
		LinkID:    comm.LinkID.String(),
		ParentID:  comm.ParentID,
		AuthorID:  comm.AuthorID.String(),
		Body:      comm.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := m.comments.InsertOne(ctx, doc)
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}

		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("%s: inserted id type", op)
	}

	doc.ID = oid
	out, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// DeleteComment помечает комментарий как удалённый (мягкое удаление) и возвращает надгробие.
func (m *Mongo) DeleteComment(ctx context.Context, id string) (*models.Comment, error) {
	return m.update(ctx, "storage/mongo/DeleteComment", id, bson.D{
		{Key: "deleted", Value: true},
		{Key: "body", Value: ""},
	})
}

// EditComment меняет тело комментария.
func (m *Mongo) EditComment(ctx context.Context, id, body string) (*models.Comment, error) {
	return m.update(ctx, "storage/mongo/EditComment", id, bson.D{
		{Key: "body", Value: body},
		{Key: "edited", Value: true},
	})
}

// SetScore записывает итог голосования.
func (m *Mongo) SetScore(ctx context.Context, id string, ups, downs int64) (*models.Comment, error) {
	return m.update(ctx, "storage/mongo/SetScore", id, bson.D{
		{Key: "ups", Value: ups},
		{Key: "downs", Value: downs},
	})
}

// SetSpam выставляет или снимает признак спама.
func (m *Mongo) SetSpam(ctx context.Context, id string, spam bool) (*models.Comment, error) {
	return m.update(ctx, "storage/mongo/SetSpam", id, bson.D{
		{Key: "spam", Value: spam},
	})
}

// update применяет $set к одному документу и возвращает его состояние после записи.
// Некорректный формат id трактуется как «нет такой записи».
func (m *Mongo) update(ctx context.Context, op, id string, set bson.D) (*models.Comment, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	set = append(set, bson.E{Key: "updated_at", Value: toMS(time.Now())})

	var doc commentDoc
	err = m.comments.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// CommentByID возвращает комментарий по идентификатору.
// Если запись не найдена — storage.ErrNotFound.
func (m *Mongo) CommentByID(ctx context.Context, id string) (*models.Comment, error) {
	const op = "storage/mongo/CommentByID"

	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	var doc commentDoc
	if err := m.comments.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// LoadComments возвращает все комментарии обсуждения, включая надгробия.
// Сортировка: created_at ASC, _id ASC - родитель всегда раньше ответа.
func (m *Mongo) LoadComments(ctx context.Context, linkID uuid.UUID) ([]models.Comment, error) {
	const op = "storage/mongo/LoadComments"

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	out, err := m.find(ctx, bson.D{{Key: "link_id", Value: linkID.String()}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// CommentsByID возвращает найденные комментарии; некорректные и неизвестные id пропускаются.
func (m *Mongo) CommentsByID(ctx context.Context, ids []string) ([]models.Comment, error) {
	const op = "storage/mongo/CommentsByID"

	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}

	if len(oids) == 0 {
		return nil, nil
	}

	out, err := m.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (m *Mongo) find(ctx context.Context, filter bson.D, opts ...*options.FindOptions) ([]models.Comment, error) {
	cur, err := m.comments.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cur.Close(ctx)

	var items []models.Comment
	for cur.Next(ctx) {
		var doc commentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}

		c, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		items = append(items, c)
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	return items, nil
}
