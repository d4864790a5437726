package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/pkg/log"
)

// Входные структуры сервисного слоя.

// CreateCommentInput — создание корневого комментария или ответа.
// Правила:
//   - если ParentID пуст, создаётся корень и обязателен LinkID;
//   - если ParentID не пуст, создаётся ответ; LinkID наследуется от родителя;
//   - всегда обязательны: AuthorID, Body.
type CreateCommentInput struct {
	LinkID   uuid.UUID
	ParentID string
	AuthorID uuid.UUID
	Body     string
}

// CreateComment — создание комментария: запись в хранилище, затем вставка в кэш.
//
// Поведение/ошибки:
//   - ErrInvalidArgument — пустой автор/тело, корень без LinkID;
//   - ErrParentNotFound — указан ParentID, но родитель отсутствует;
//   - ErrConflict — конфликт уникальности;
//   - ErrInternal — прочие ошибки стораджа.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	const op = "service/comments/CreateComment"

	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Body = strings.TrimSpace(in.Body)

	lg := log.From(ctx).With(
		"op", op,
		"author_id", in.AuthorID.String(),
		"link_id", in.LinkID.String(),
		"parent_id", in.ParentID,
	)

	if in.AuthorID == uuid.Nil {
		lg.Warn("invalid argument: empty author_id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if in.Body == "" {
		lg.Warn("invalid argument: empty body")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if in.ParentID == "" && in.LinkID == uuid.Nil {
		lg.Warn("invalid argument: empty link_id for root comment")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	res, err := s.storage.CreateComment(ctx, models.Comment{
		LinkID:   in.LinkID,
		ParentID: in.ParentID,
		AuthorID: in.AuthorID,
		Body:     in.Body,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrParentNotFound):
			lg.Warn("parent not found")
			return nil, fmt.Errorf("%s: %w", op, ErrParentNotFound)
		case errors.Is(err, storage.ErrConflict):
			lg.Warn("conflict")
			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		default:
			lg.Error("storage error on CreateComment", "err", err)
			return nil, fmt.Errorf("%s: %w", op, ErrInternal)
		}
	}

	s.afterWrite(ctx, lg, res.LinkID, func(stamp int64) error {
		return s.cache.Insert(*res, stamp)
	})

	return res, nil
}

// DeleteComment — мягкое удаление: надгробие в хранилище и в кэше.
// Узел остаётся в дереве ради детей.
func (s *Service) DeleteComment(ctx context.Context, id string) (*models.Comment, error) {
	const op = "service/comments/DeleteComment"

	id = strings.TrimSpace(id)
	lg := log.From(ctx).With("op", op, "id", id)

	if id == "" {
		lg.Warn("invalid argument: empty id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	res, err := s.storage.DeleteComment(ctx, id)
	if err != nil {
		return nil, mapWriteErr(lg, op, err)
	}

	s.afterWrite(ctx, lg, res.LinkID, func(stamp int64) error {
		return s.cache.MarkDeleted(res.LinkID, res.ID, stamp)
	})

	return res, nil
}

// EditComment — правка тела комментария.
func (s *Service) EditComment(ctx context.Context, id, body string) (*models.Comment, error) {
	const op = "service/comments/EditComment"

	id = strings.TrimSpace(id)
	body = strings.TrimSpace(body)
	lg := log.From(ctx).With("op", op, "id", id)

	if id == "" || body == "" {
		lg.Warn("invalid argument: empty id or body")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	res, err := s.storage.EditComment(ctx, id, body)
	if err != nil {
		return nil, mapWriteErr(lg, op, err)
	}

	s.afterWrite(ctx, lg, res.LinkID, func(stamp int64) error {
		return s.cache.SetBody(res.LinkID, res.ID, res.Body, stamp)
	})

	return res, nil
}

// ApplyVote — итог голосования от внешней системы голосов.
func (s *Service) ApplyVote(ctx context.Context, id string, ups, downs int64) (*models.Comment, error) {
	const op = "service/comments/ApplyVote"

	id = strings.TrimSpace(id)
	lg := log.From(ctx).With("op", op, "id", id, "ups", ups, "downs", downs)

	if id == "" || ups < 0 || downs < 0 {
		lg.Warn("invalid argument: empty id or negative tally")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	res, err := s.storage.SetScore(ctx, id, ups, downs)
	if err != nil {
		return nil, mapWriteErr(lg, op, err)
	}

	s.afterWrite(ctx, lg, res.LinkID, func(stamp int64) error {
		return s.cache.SetScore(res.LinkID, res.ID, res.Ups, res.Downs, stamp)
	})

	return res, nil
}

// SetSpam — решение модерации: скрыть или вернуть комментарий.
func (s *Service) SetSpam(ctx context.Context, id string, spam bool) (*models.Comment, error) {
	const op = "service/comments/SetSpam"

	id = strings.TrimSpace(id)
	lg := log.From(ctx).With("op", op, "id", id, "spam", spam)

	if id == "" {
		lg.Warn("invalid argument: empty id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	res, err := s.storage.SetSpam(ctx, id, spam)
	if err != nil {
		return nil, mapWriteErr(lg, op, err)
	}

	s.afterWrite(ctx, lg, res.LinkID, func(stamp int64) error {
		return s.cache.SetSpam(res.LinkID, res.ID, res.Spam, stamp)
	})

	return res, nil
}

// InvalidateLink — сброс дерева обсуждения (массовая модерация в обход сервиса).
// Двигает общую версию, чтобы другие экземпляры пересобрали дерево при раскрытии.
func (s *Service) InvalidateLink(ctx context.Context, linkID uuid.UUID) error {
	const op = "service/comments/InvalidateLink"

	lg := log.From(ctx).With("op", op, "link_id", linkID.String())

	if linkID == uuid.Nil {
		lg.Warn("invalid argument: empty link_id")
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	s.afterWrite(ctx, lg, linkID, func(int64) error {
		s.cache.Invalidate(linkID)
		return nil
	})

	lg.Info("tree_invalidated")
	return nil
}

func mapWriteErr(lg *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		lg.Warn("comment not found")
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		lg.Error("storage error", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}
