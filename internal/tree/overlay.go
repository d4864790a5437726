package tree

import "github.com/pribylovaa/comment-tree/internal/models"

// overlay подменяет записи свежими данными из хранилища, структура берётся из снапшота.
type overlay struct {
	Reader
	fresh map[string]*models.Comment
}

// WithFresh возвращает Reader, у которого Comment отдаёт записи из fresh,
// если id есть и в снапшоте, и в fresh. Поддерево и глубины остаются снапшотными.
func WithFresh(r Reader, fresh []models.Comment) Reader {
	if len(fresh) == 0 {
		return r
	}

	m := make(map[string]*models.Comment, len(fresh))
	for i := range fresh {
		m[fresh[i].ID] = &fresh[i]
	}

	return overlay{Reader: r, fresh: m}
}

func (o overlay) Comment(id string) (*models.Comment, bool) {
	c, ok := o.Reader.Comment(id)
	if !ok {
		return nil, false
	}

	if f, ok := o.fresh[id]; ok && f.ParentID == c.ParentID && f.LinkID == c.LinkID {
		return f, true
	}

	return c, true
}
