package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// columns - общий список колонок; UUID отдаём текстом, parent_id NULL -> "".
const columns = `id::text, link_id::text, COALESCE(parent_id::text, ''), author_id::text,
	body, created_at, updated_at, edited, deleted, spam, ups, downs`

func scanComment(row pgx.Row) (models.Comment, error) {
	var (
		c            models.Comment
		link, author string
	)

	if err := row.Scan(
		&c.ID,
		&link,
		&c.ParentID,
		&author,
		&c.Body,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Edited,
		&c.Deleted,
		&c.Spam,
		&c.Ups,
		&c.Downs,
	); err != nil {
		return models.Comment{}, err
	}

	var err error
	if c.LinkID, err = uuid.Parse(link); err != nil {
		return models.Comment{}, fmt.Errorf("link_id: %w", err)
	}
	if c.AuthorID, err = uuid.Parse(author); err != nil {
		return models.Comment{}, fmt.Errorf("author_id: %w", err)
	}

	// Нормализация в UTC.
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	return c, nil
}

// CreateComment создаёт комментарий. Идентификатор - UUIDv7 (монотонен по времени).
// Ответ наследует link_id родителя.
func (s *Storage) CreateComment(ctx context.Context, comm models.Comment) (*models.Comment, error) {
	const op = "storage/postgres/CreateComment"

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%s: new id: %w", op, err)
	}

	var parent *string
	if p := strings.TrimSpace(comm.ParentID); p != "" {
		if _, err := uuid.Parse(p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
		}

		var link string
		err := s.db.QueryRow(ctx, `SELECT link_id::text FROM comments WHERE id = $1::uuid`, p).Scan(&link)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
			}

			return nil, fmt.Errorf("%s: find parent: %w", op, err)
		}

		if comm.LinkID, err = uuid.Parse(link); err != nil {
			return nil, fmt.Errorf("%s: parent link_id: %w", op, err)
		}
		parent = &p
	}

	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
	INSERT INTO comments (id, link_id, parent_id, author_id, body, created_at, updated_at)
	VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, $6, $6)
	RETURNING `+columns,
		id.String(), comm.LinkID.String(), parent, comm.AuthorID.String(), comm.Body, now)

	out, err := scanComment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
			case pgerrcode.ForeignKeyViolation:
				// родителя удалили физически между проверкой и вставкой
				return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
			}
		}

		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}

	return &out, nil
}

// DeleteComment помечает комментарий как удалённый (мягкое удаление) и возвращает надгробие.
func (s *Storage) DeleteComment(ctx context.Context, id string) (*models.Comment, error) {
	return s.update(ctx, "storage/postgres/DeleteComment", id,
		`deleted = TRUE, body = ''`)
}

// EditComment меняет тело комментария.
func (s *Storage) EditComment(ctx context.Context, id, body string) (*models.Comment, error) {
	return s.update(ctx, "storage/postgres/EditComment", id,
		`body = $2, edited = TRUE`, body)
}

// SetScore записывает итог голосования.
func (s *Storage) SetScore(ctx context.Context, id string, ups, downs int64) (*models.Comment, error) {
	return s.update(ctx, "storage/postgres/SetScore", id,
		`ups = $2, downs = $3`, ups, downs)
}

// SetSpam выставляет или снимает признак спама.
func (s *Storage) SetSpam(ctx context.Context, id string, spam bool) (*models.Comment, error) {
	return s.update(ctx, "storage/postgres/SetSpam", id,
		`spam = $2`, spam)
}

// update выполняет UPDATE одной строки; $1 - id, дальше args.
// Некорректный формат id трактуется как «нет такой записи».
func (s *Storage) update(ctx context.Context, op, id, set string, args ...any) (*models.Comment, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	row := s.db.QueryRow(ctx,
		`UPDATE comments SET `+set+`, updated_at = now() WHERE id = $1::uuid RETURNING `+columns,
		append([]any{id}, args...)...)

	out, err := scanComment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// CommentByID возвращает комментарий по идентификатору.
func (s *Storage) CommentByID(ctx context.Context, id string) (*models.Comment, error) {
	const op = "storage/postgres/CommentByID"

	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	out, err := scanComment(s.db.QueryRow(ctx, `SELECT `+columns+` FROM comments WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// LoadComments возвращает все комментарии обсуждения, включая надгробия.
// Сортировка: created_at ASC, id ASC.
func (s *Storage) LoadComments(ctx context.Context, linkID uuid.UUID) ([]models.Comment, error) {
	const op = "storage/postgres/LoadComments"

	out, err := s.query(ctx, `
	SELECT `+columns+`
	FROM comments
	WHERE link_id = $1::uuid
	ORDER BY created_at ASC, id ASC
	`, linkID.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// CommentsByID возвращает найденные комментарии; некорректные и неизвестные id пропускаются.
func (s *Storage) CommentsByID(ctx context.Context, ids []string) ([]models.Comment, error) {
	const op = "storage/postgres/CommentsByID"

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}

	if len(valid) == 0 {
		return nil, nil
	}

	out, err := s.query(ctx, `SELECT `+columns+` FROM comments WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Storage) query(ctx context.Context, sql string, args ...any) ([]models.Comment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		items = append(items, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return items, nil
}
