// Package models содержит доменные сущности comment-tree.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment - каноническая запись комментария, как её отдаёт хранилище.
// Важно:
//   - ID - строковый идентификатор (формат зависит от хранилища: ObjectID или UUID);
//   - LinkID - обсуждение, к которому относится комментарий;
//   - ParentID - пустая строка означает комментарий верхнего уровня;
//   - Deleted - надгробие: тело скрыто, но узел остаётся в дереве ради детей;
//   - Spam - скрыт от публичной выдачи, но виден модераторам;
//   - Ups/Downs - итог голосования, считается внешней системой.
type Comment struct {
	ID        string
	LinkID    uuid.UUID
	ParentID  string
	AuthorID  uuid.UUID
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Edited    bool
	Deleted   bool
	Spam      bool
	Ups       int64
	Downs     int64
}

// Score возвращает итоговый рейтинг (ups - downs).
func (c Comment) Score() int64 {
	return c.Ups - c.Downs
}

// IsRoot сообщает, что комментарий верхнего уровня.
func (c Comment) IsRoot() bool {
	return c.ParentID == ""
}
