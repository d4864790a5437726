package treecache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/models"
)

// NoStamp - снапшот построен без общей версии (хранилище штампов недоступно).
const NoStamp int64 = -1

// maxAhead - сколько своих версий с пропуском перед ними снапшот помнит.
const maxAhead = 64

// Snapshot - закэшированный лес комментариев одного обсуждения.
//
// Структура:
//   - children: parent id -> id детей в порядке добавления ("" - корни).
//     Списки только дописываются, существующие элементы не меняются;
//   - depth: id -> глубина (корень = 0);
//   - comments: id -> запись. Запись неизменяема: патч кладёт новую копию,
//     поэтому указатели, выданные читателям, остаются согласованными.
//
// Читатели работают через Read (под RLock), писатели - через операции Cache.
type Snapshot struct {
	linkID  uuid.UUID
	builtAt time.Time

	mu       sync.RWMutex
	children map[string][]string
	depth    map[string]int
	comments map[string]*models.Comment
	version  uint64
	stamp    int64
	// ahead - применённые версии старше stamp+1: свои записи, чьи патчи
	// обогнали предыдущую.
	ahead map[int64]struct{}
}

func newSnapshot(linkID uuid.UUID, stamp int64, size int) *Snapshot {
	return &Snapshot{
		linkID:   linkID,
		builtAt:  time.Now(),
		children: make(map[string][]string, size/2+1),
		depth:    make(map[string]int, size),
		comments: make(map[string]*models.Comment, size),
		stamp:    stamp,
	}
}

// buildSnapshot группирует комментарии по родителю и раздаёт глубину обходом в ширину от корней.
// Дубликаты, чужие link_id, сироты и циклы в снапшот не попадают и возвращаются списком dropped.
func buildSnapshot(linkID uuid.UUID, list []models.Comment, stamp int64) (*Snapshot, []string) {
	byID := make(map[string]*models.Comment, len(list))
	byParent := make(map[string][]string, len(list)/2+1)
	var dropped []string

	for i := range list {
		c := list[i]
		if c.ID == "" || c.LinkID != linkID {
			dropped = append(dropped, c.ID)
			continue
		}

		if _, dup := byID[c.ID]; dup {
			dropped = append(dropped, c.ID)
			continue
		}

		byID[c.ID] = &c
		byParent[c.ParentID] = append(byParent[c.ParentID], c.ID)
	}

	s := newSnapshot(linkID, stamp, len(byID))

	queue := append([]string(nil), byParent[""]...)
	for _, id := range queue {
		s.depth[id] = 0
	}
	if len(queue) > 0 {
		s.children[""] = append([]string(nil), queue...)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		s.comments[id] = byID[id]

		kids := byParent[id]
		if len(kids) == 0 {
			continue
		}

		s.children[id] = append([]string(nil), kids...)
		for _, kid := range kids {
			s.depth[kid] = s.depth[id] + 1
			queue = append(queue, kid)
		}
	}

	if len(s.comments) != len(byID) {
		for id := range byID {
			if _, ok := s.comments[id]; !ok {
				dropped = append(dropped, id)
			}
		}
	}

	return s, dropped
}

// LinkID возвращает идентификатор обсуждения.
func (s *Snapshot) LinkID() uuid.UUID { return s.linkID }

// BuiltAt - момент полного построения.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Version - локальная монотонная версия, растёт на каждом изменении.
func (s *Snapshot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Stamp - общая версия обсуждения, с которой согласован снапшот (NoStamp, если неизвестна).
func (s *Snapshot) Stamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stamp
}

// Len - число комментариев в снапшоте.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.comments)
}

// Read выполняет fn под блокировкой чтения. View действителен только внутри fn.
func (s *Snapshot) Read(fn func(v View)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn(View{s: s})
}

// Validate проверяет инварианты леса: у каждого узла есть родитель в снапшоте
// с тем же link_id, глубина согласована, id встречается в списках детей ровно один раз.
func (s *Snapshot) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]string, len(s.comments))
	for parent, kids := range s.children {
		if parent != "" {
			if _, ok := s.comments[parent]; !ok {
				return fmt.Errorf("children of unknown parent %q", parent)
			}
		}

		for _, id := range kids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("comment %q listed under %q and %q", id, prev, parent)
			}
			seen[id] = parent
		}
	}

	for id, c := range s.comments {
		if c.LinkID != s.linkID {
			return fmt.Errorf("comment %q belongs to link %s", id, c.LinkID)
		}

		parent, ok := seen[id]
		if !ok {
			return fmt.Errorf("comment %q is not linked", id)
		}
		if parent != c.ParentID {
			return fmt.Errorf("comment %q linked under %q, parent is %q", id, parent, c.ParentID)
		}

		want := 0
		if parent != "" {
			want = s.depth[parent] + 1
		}
		if got := s.depth[id]; got != want {
			return fmt.Errorf("comment %q depth %d, want %d", id, got, want)
		}
	}

	if len(seen) != len(s.comments) {
		return fmt.Errorf("linked %d ids, have %d comments", len(seen), len(s.comments))
	}

	return nil
}

// advance двигает общую версию, если запись идёт сразу за известной.
// Версия с пропуском запоминается: если пропуск - своя запись, чей патч
// пришёл позже, он закроет разрыв. Чужую запись снапшот не видел, версия
// остаётся, и раскрытие увидит устаревание. Вызывается под s.mu.
func (s *Snapshot) advance(stamp int64) {
	if stamp <= 0 || s.stamp == NoStamp || stamp <= s.stamp {
		return
	}

	if stamp != s.stamp+1 {
		if s.ahead == nil {
			s.ahead = make(map[int64]struct{})
		}
		if len(s.ahead) < maxAhead {
			s.ahead[stamp] = struct{}{}
		}
		return
	}

	s.stamp = stamp
	for {
		if _, ok := s.ahead[s.stamp+1]; !ok {
			break
		}
		delete(s.ahead, s.stamp+1)
		s.stamp++
	}
}

// insert дописывает новый комментарий в лог детей родителя.
// Повторная вставка существующего id ничего не меняет.
func (s *Snapshot) insert(c models.Comment, stamp int64) (bool, error) {
	if c.LinkID != s.linkID {
		return false, ErrLinkMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[c.ID]; ok {
		s.advance(stamp)
		return false, nil
	}

	depth := 0
	if c.ParentID != "" {
		pd, ok := s.depth[c.ParentID]
		if !ok {
			return false, ErrParentMissing
		}
		depth = pd + 1
	}

	s.comments[c.ID] = &c
	s.depth[c.ID] = depth
	s.children[c.ParentID] = append(s.children[c.ParentID], c.ID)
	s.version++
	s.advance(stamp)

	return true, nil
}

// patch заменяет запись копией, изменённой fn. fn сообщает, было ли изменение.
func (s *Snapshot) patch(id string, stamp int64, fn func(c *models.Comment) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.comments[id]
	if !ok {
		return false, ErrCommentMissing
	}

	next := *cur
	changed := fn(&next)
	if changed {
		s.comments[id] = &next
		s.version++
	}
	s.advance(stamp)

	return changed, nil
}

// View - доступ на чтение к снапшоту внутри Snapshot.Read.
type View struct {
	s *Snapshot
}

// LinkID возвращает идентификатор обсуждения.
func (v View) LinkID() uuid.UUID { return v.s.linkID }

// Version - версия снапшота на момент чтения.
func (v View) Version() uint64 { return v.s.version }

// Children возвращает детей в порядке добавления ("" - корни). Срез только для чтения.
func (v View) Children(id string) []string { return v.s.children[id] }

// Comment возвращает запись по id.
func (v View) Comment(id string) (*models.Comment, bool) {
	c, ok := v.s.comments[id]
	return c, ok
}

// Depth возвращает глубину узла.
func (v View) Depth(id string) (int, bool) {
	d, ok := v.s.depth[id]
	return d, ok
}
