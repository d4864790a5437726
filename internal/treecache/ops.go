package treecache

import "github.com/pribylovaa/comment-tree/internal/models"

type opKind uint8

const (
	opInsert opKind = iota + 1
	opDelete
	opEdit
	opScore
	opSpam
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opDelete:
		return "delete"
	case opEdit:
		return "edit"
	case opScore:
		return "score"
	case opSpam:
		return "spam"
	default:
		return "unknown"
	}
}

// change - одна инкрементальная запись. Все операции идемпотентны,
// поэтому журнал можно проигрывать поверх снапшота, который уже их видел.
type change struct {
	kind    opKind
	comment models.Comment
	id      string
	body    string
	ups     int64
	downs   int64
	spam    bool
	stamp   int64
}

func (s *Snapshot) apply(o change) (bool, error) {
	switch o.kind {
	case opInsert:
		return s.insert(o.comment, o.stamp)
	case opDelete:
		return s.patch(o.id, o.stamp, func(c *models.Comment) bool {
			if c.Deleted {
				return false
			}
			c.Deleted = true
			c.Body = ""
			return true
		})
	case opEdit:
		return s.patch(o.id, o.stamp, func(c *models.Comment) bool {
			if c.Body == o.body && c.Edited {
				return false
			}
			c.Body = o.body
			c.Edited = true
			return true
		})
	case opScore:
		return s.patch(o.id, o.stamp, func(c *models.Comment) bool {
			if c.Ups == o.ups && c.Downs == o.downs {
				return false
			}
			c.Ups, c.Downs = o.ups, o.downs
			return true
		})
	case opSpam:
		return s.patch(o.id, o.stamp, func(c *models.Comment) bool {
			if c.Spam == o.spam {
				return false
			}
			c.Spam = o.spam
			return true
		})
	default:
		return false, nil
	}
}
