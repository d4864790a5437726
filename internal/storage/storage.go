// Package storage описывает контракт хранилища комментариев (источник истины).
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/models"
)

var (
	// ErrNotFound - сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrConflict - конфликт уникальности.
	ErrConflict = errors.New("conflict")
	// ErrParentNotFound - указан parent_id, но родитель не найден.
	ErrParentNotFound = errors.New("parent not found")
)

// Storage описывает операции над комментариями.
type Storage interface {
	// CreateComment создаёт корневой комментарий или ответ.
	// Для ответа LinkID наследуется от родителя; ID, CreatedAt, UpdatedAt проставляет хранилище.
	// Возможные ошибки: ErrParentNotFound, ErrConflict.
	CreateComment(ctx context.Context, comment models.Comment) (*models.Comment, error)

	// DeleteComment выполняет мягкое удаление (deleted=true, тело очищается)
	// и возвращает запись-надгробие. Если записи нет - ErrNotFound.
	DeleteComment(ctx context.Context, id string) (*models.Comment, error)

	// EditComment меняет тело и выставляет edited=true. Если записи нет - ErrNotFound.
	EditComment(ctx context.Context, id, body string) (*models.Comment, error)

	// SetScore записывает итог голосования. Если записи нет - ErrNotFound.
	SetScore(ctx context.Context, id string, ups, downs int64) (*models.Comment, error)

	// SetSpam выставляет или снимает признак спама. Если записи нет - ErrNotFound.
	SetSpam(ctx context.Context, id string, spam bool) (*models.Comment, error)

	// CommentByID возвращает комментарий по идентификатору. Если записи нет - ErrNotFound.
	CommentByID(ctx context.Context, id string) (*models.Comment, error)

	// LoadComments возвращает все комментарии обсуждения, включая надгробия,
	// в порядке created_at ASC, id ASC.
	LoadComments(ctx context.Context, linkID uuid.UUID) ([]models.Comment, error)

	// CommentsByID возвращает найденные комментарии по списку id.
	// Неизвестные и некорректные id молча пропускаются.
	CommentsByID(ctx context.Context, ids []string) ([]models.Comment, error)

	// Close закрывает соединения/ресурсы хранилища.
	Close(ctx context.Context) error
}
