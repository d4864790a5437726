package tree

import (
	"context"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/sorting"
)

type walker struct {
	ctx context.Context
	r   Reader
	p   Params

	// memo: id -> число видимых комментариев в поддереве (без самого узла).
	memo map[string]int
	out  models.Listing
}

// level - открытый уровень обхода: отсортированные дети parent и позиция в них.
type level struct {
	parent string
	ids    []string
	next   int
	depth  int
}

func newWalker(ctx context.Context, r Reader, p Params) *walker {
	return &walker{
		ctx:  ctx,
		r:    r,
		p:    p,
		memo: make(map[string]int),
		out: models.Listing{
			Items:   make([]models.Item, 0, p.MaxNodes+4),
			Version: r.Version(),
		},
	}
}

func (w *walker) hidden(c *models.Comment) bool {
	return c.Deleted || (c.Spam && !w.p.ShowSpam)
}

func (w *walker) listable(id string) bool {
	c, ok := w.r.Comment(id)
	if !ok {
		return false
	}

	return !w.hidden(c) || w.descendants(id) > 0
}

// descendants считает видимые комментарии в поддереве id обходом в обратном порядке.
func (w *walker) descendants(id string) int {
	if n, ok := w.memo[id]; ok {
		return n
	}

	type frame struct {
		id   string
		next int
	}

	stack := []frame{{id: id}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		kids := w.r.Children(f.id)

		if f.next < len(kids) {
			kid := kids[f.next]
			f.next++
			if _, ok := w.memo[kid]; !ok {
				stack = append(stack, frame{id: kid})
			}
			continue
		}

		n := 0
		for _, kid := range kids {
			c, ok := w.r.Comment(kid)
			if !ok {
				continue
			}

			sub := w.memo[kid]
			if !w.hidden(c) || sub > 0 {
				n += 1 + sub
			}
		}

		w.memo[f.id] = n
		stack = stack[:len(stack)-1]
	}

	return w.memo[id]
}

// kids возвращает видимых детей узла в порядке сортировки. Срез новый.
func (w *walker) kids(id string) []string {
	raw := w.r.Children(id)
	if len(raw) == 0 {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, kid := range raw {
		if w.listable(kid) {
			out = append(out, kid)
		}
	}

	sorting.SortIDs(out, w.r.Comment, w.p.Mode)
	return out
}

// group - корни обхода с общим родителем и окно глубин для них.
type group struct {
	parent   string
	ids      []string
	depth    int
	maxDepth int
}

// roots определяет корни обхода, сгруппированные по родителю.
// Группы идут в порядке первого корня в сортировке, так что у каждого
// маркера родитель свой, а не родитель первого корня.
func (w *walker) roots() []group {
	if w.p.RootIDs == nil {
		return []group{{ids: w.kids(""), depth: w.p.StartDepth, maxDepth: w.p.MaxDepth}}
	}

	seen := make(map[string]struct{}, len(w.p.RootIDs))
	ids := make([]string, 0, len(w.p.RootIDs))

	for _, id := range w.p.RootIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := w.r.Comment(id); !ok {
			w.out.Skipped = append(w.out.Skipped, id)
			continue
		}

		if w.listable(id) {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil
	}

	sorting.SortIDs(ids, w.r.Comment, w.p.Mode)

	span := w.p.MaxDepth - w.p.StartDepth
	byParent := make(map[string]int, 1)
	var groups []group

	for _, id := range ids {
		c, _ := w.r.Comment(id)

		i, ok := byParent[c.ParentID]
		if !ok {
			g := group{parent: c.ParentID, depth: w.p.StartDepth, maxDepth: w.p.MaxDepth}
			if w.p.trueDepth {
				// Глубина родителя и детей в снапшоте неизменна: у братьев она общая.
				if d, ok := w.r.Depth(id); ok {
					g.depth, g.maxDepth = d, d+span
				}
			}

			i = len(groups)
			byParent[c.ParentID] = i
			groups = append(groups, g)
		}

		groups[i].ids = append(groups[i].ids, id)
	}

	return groups
}

func (w *walker) walk(g group) error {
	if len(g.ids) == 0 {
		return nil
	}

	if g.depth > g.maxDepth {
		w.more(g.parent, g.ids, g.depth)
		return nil
	}

	stack := []level{{parent: g.parent, ids: g.ids, depth: g.depth}}
	for step := 0; len(stack) > 0; step++ {
		if step%cancelCheckEvery == 0 {
			if err := w.ctx.Err(); err != nil {
				return err
			}
		}

		top := &stack[len(stack)-1]
		if top.next >= len(top.ids) {
			stack = stack[:len(stack)-1]
			continue
		}

		if w.out.Comments >= w.p.MaxNodes {
			w.more(top.parent, top.ids[top.next:], top.depth)
			stack = stack[:len(stack)-1]
			continue
		}

		id := top.ids[top.next]
		top.next++
		d := top.depth

		c, _ := w.r.Comment(id)
		w.emit(c, d)

		kids := w.kids(id)
		if len(kids) == 0 {
			continue
		}

		if d+1 > g.maxDepth {
			w.more(id, kids, d+1)
			continue
		}

		stack = append(stack, level{parent: id, ids: kids, depth: d + 1})
	}

	return nil
}

func (w *walker) emit(c *models.Comment, depth int) {
	w.out.Items = append(w.out.Items, models.Item{
		Kind:    models.KindComment,
		Depth:   depth,
		Comment: c,
	})
	w.out.Comments++
}

func (w *walker) more(parent string, ids []string, depth int) {
	count := 0
	for _, id := range ids {
		count += 1 + w.descendants(id)
	}

	children := append([]string(nil), ids...)
	w.out.Items = append(w.out.Items, models.Item{
		Kind:  models.KindMore,
		Depth: depth,
		More: &models.More{
			ID:       MoreID(parent, children),
			ParentID: parent,
			Children: children,
			Count:    count,
			Depth:    depth,
		},
	})
}
