// Package treecache хранит для каждого обсуждения лес комментариев и поддерживает
// его в актуальном состоянии инкрементальными патчами.
//
// Снапшот строится лениво при первом чтении, патчится на каждой записи
// (вставка, надгробие, правка, голосование, спам) и выбрасывается при простое
// или явной инвалидации. Полная пересборка подменяет снапшот атомарно:
// читатель видит либо старый лес целиком, либо новый.
package treecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/pkg/log"
)

var (
	// ErrStoreUnavailable - хранилище комментариев недоступно, снапшот не построен.
	ErrStoreUnavailable = errors.New("comment store unavailable")
	// ErrParentMissing - родителя вставляемого комментария нет в снапшоте.
	ErrParentMissing = errors.New("parent missing from snapshot")
	// ErrCommentMissing - патчимого комментария нет в снапшоте.
	ErrCommentMissing = errors.New("comment missing from snapshot")
	// ErrLinkMismatch - комментарий относится к другому обсуждению.
	ErrLinkMismatch = errors.New("comment belongs to another link")
)

// Loader - источник полного списка комментариев обсуждения (включая надгробия).
type Loader interface {
	LoadComments(ctx context.Context, linkID uuid.UUID) ([]models.Comment, error)
}

// StampReader отдаёт общую версию обсуждения.
type StampReader interface {
	Current(ctx context.Context, linkID uuid.UUID) (int64, error)
}

// Recorder - приёмник метрик кэша.
type Recorder interface {
	Hit()
	Miss()
	Rebuilt(d time.Duration, err error)
	Dropped(reason string)
	Size(n int)
}

// Причины выброса снапшота (для метрик и логов).
const (
	ReasonIdle       = "idle"
	ReasonInvalidate = "invalidate"
	ReasonBroken     = "broken"
	ReasonEvicted    = "evicted"
)

// Options - параметры кэша.
type Options struct {
	// Size - максимум снапшотов в памяти (LRU).
	Size int
	// IdleTTL - снапшот без обращений дольше этого срока выбрасывается. 0 - без ограничения.
	IdleTTL time.Duration
	// BuildTimeout - дедлайн одной пересборки (не зависит от отмены запроса).
	BuildTimeout time.Duration
	Stamps       StampReader
	Recorder     Recorder
	Logger       *slog.Logger
}

type entry struct {
	snap       *Snapshot
	lastAccess atomic.Int64
}

// journal копит записи, пришедшие во время пересборки, чтобы проиграть их поверх нового снапшота.
type journal struct {
	ops         []change
	invalidated bool
}

// Cache - хранилище снапшотов: link id -> Snapshot.
type Cache struct {
	loader Loader
	opts   Options
	lg     *slog.Logger

	lru    *lru.Cache[uuid.UUID, *entry]
	flight singleflight.Group

	// mu упорядочивает журнал пересборки и установку снапшота.
	mu       sync.Mutex
	journals map[uuid.UUID]*journal
	dropping atomic.Value
}

// New создаёт кэш поверх loader.
func New(loader Loader, opts Options) (*Cache, error) {
	if loader == nil {
		return nil, fmt.Errorf("treecache: nil loader")
	}

	if opts.Size <= 0 {
		opts.Size = 1024
	}

	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = 10 * time.Second
	}

	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		loader:   loader,
		opts:     opts,
		lg:       opts.Logger,
		journals: make(map[uuid.UUID]*journal),
	}
	c.dropping.Store(ReasonEvicted)

	l, err := lru.NewWithEvict(opts.Size, func(_ uuid.UUID, _ *entry) {
		reason, _ := c.dropping.Load().(string)
		c.opts.Recorder.Dropped(reason)
	})
	if err != nil {
		return nil, fmt.Errorf("treecache: %w", err)
	}
	c.lru = l

	return c, nil
}

// GetOrBuild возвращает снапшот обсуждения, при промахе строит его из хранилища.
// Параллельные промахи по одному обсуждению делят одну пересборку.
// Ошибка хранилища оборачивается в ErrStoreUnavailable; частичный снапшот не ставится.
func (c *Cache) GetOrBuild(ctx context.Context, linkID uuid.UUID) (*Snapshot, error) {
	const op = "treecache/GetOrBuild"

	if snap, ok := c.lookup(linkID); ok {
		c.opts.Recorder.Hit()
		return snap, nil
	}
	c.opts.Recorder.Miss()

	ch := c.flight.DoChan(linkID.String(), func() (any, error) {
		if snap, ok := c.lookup(linkID); ok {
			return snap, nil
		}

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.BuildTimeout)
		defer cancel()

		return c.rebuild(bctx, linkID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(*Snapshot), nil
	}
}

// Peek возвращает снапшот без построения и без продления срока жизни.
func (c *Cache) Peek(linkID uuid.UUID) (*Snapshot, bool) {
	e, ok := c.lru.Peek(linkID)
	if !ok {
		return nil, false
	}

	return e.snap, true
}

// Len - число снапшотов в кэше.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats - срез состояния кэша.
type Stats struct {
	Snapshots  int
	Comments   int
	Rebuilding int
}

// Stats считает снапшоты, комментарии в них и идущие пересборки.
func (c *Cache) Stats() Stats {
	st := Stats{}
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok {
			st.Snapshots++
			st.Comments += e.snap.Len()
		}
	}

	c.mu.Lock()
	st.Rebuilding = len(c.journals)
	c.mu.Unlock()

	return st
}

// Insert добавляет новый комментарий ребёнком родителя (или новым корнем).
// stamp - общая версия после записи в хранилище (0, если неизвестна).
// Если родителя нет в снапшоте, снапшот выбрасывается и возвращается ErrParentMissing.
func (c *Cache) Insert(comment models.Comment, stamp int64) error {
	return c.dispatch(comment.LinkID, change{kind: opInsert, comment: comment, stamp: stamp})
}

// MarkDeleted выставляет надгробие. Структура дерева не меняется, повторный вызов ничего не делает.
func (c *Cache) MarkDeleted(linkID uuid.UUID, id string, stamp int64) error {
	return c.dispatch(linkID, change{kind: opDelete, id: id, stamp: stamp})
}

// SetBody применяет правку тела комментария (edited=true).
func (c *Cache) SetBody(linkID uuid.UUID, id, body string, stamp int64) error {
	return c.dispatch(linkID, change{kind: opEdit, id: id, body: body, stamp: stamp})
}

// SetScore применяет итог голосования.
func (c *Cache) SetScore(linkID uuid.UUID, id string, ups, downs int64, stamp int64) error {
	return c.dispatch(linkID, change{kind: opScore, id: id, ups: ups, downs: downs, stamp: stamp})
}

// SetSpam выставляет или снимает признак спама.
func (c *Cache) SetSpam(linkID uuid.UUID, id string, spam bool, stamp int64) error {
	return c.dispatch(linkID, change{kind: opSpam, id: id, spam: spam, stamp: stamp})
}

// Invalidate выбрасывает снапшот; следующее чтение пересоберёт его.
// Пересборка, идущая в этот момент, отдаст результат своим ожидающим, но не закэширует его.
func (c *Cache) Invalidate(linkID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.journals[linkID]; ok {
		j.invalidated = true
	}

	c.removeLocked(linkID, ReasonInvalidate)
}

// Sweep выбрасывает снапшоты, простаивающие дольше IdleTTL. Возвращает число выброшенных.
func (c *Cache) Sweep() int {
	if c.opts.IdleTTL <= 0 {
		return 0
	}

	n := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && c.idle(e) && c.drop(key, e.snap, ReasonIdle) {
			n++
		}
	}

	c.opts.Recorder.Size(c.lru.Len())
	return n
}

// RunJanitor периодически вызывает Sweep до отмены ctx.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || c.opts.IdleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.lg.Debug("tree_cache_swept", slog.Int("dropped", n))
			}
		}
	}
}

func (c *Cache) lookup(linkID uuid.UUID) (*Snapshot, bool) {
	e, ok := c.lru.Get(linkID)
	if !ok {
		return nil, false
	}

	if c.idle(e) {
		c.drop(linkID, e.snap, ReasonIdle)
		return nil, false
	}

	e.lastAccess.Store(time.Now().UnixNano())
	return e.snap, true
}

func (c *Cache) idle(e *entry) bool {
	if c.opts.IdleTTL <= 0 {
		return false
	}

	last := time.Unix(0, e.lastAccess.Load())
	return time.Since(last) > c.opts.IdleTTL
}

// rebuild строит снапшот из хранилища, проигрывает журнал и ставит результат в кэш.
func (c *Cache) rebuild(ctx context.Context, linkID uuid.UUID) (*Snapshot, error) {
	const op = "treecache/rebuild"

	start := time.Now()
	lg := log.From(ctx).With(slog.String("op", op), slog.String("link_id", linkID.String()))

	j := &journal{}
	c.mu.Lock()
	c.journals[linkID] = j
	c.mu.Unlock()

	fail := func(err error) (*Snapshot, error) {
		c.mu.Lock()
		if c.journals[linkID] == j {
			delete(c.journals, linkID)
		}
		c.mu.Unlock()

		c.opts.Recorder.Rebuilt(time.Since(start), err)
		return nil, err
	}

	// Версию читаем до загрузки: всё, что запишут позже, получит версию больше.
	stamp := NoStamp
	if c.opts.Stamps != nil {
		v, err := c.opts.Stamps.Current(ctx, linkID)
		if err != nil {
			lg.Warn("tree_stamp_unavailable", slog.String("err", err.Error()))
		} else {
			stamp = v
		}
	}

	list, err := c.loader.LoadComments(ctx, linkID)
	if err != nil {
		lg.Error("tree_rebuild_failed", slog.String("err", err.Error()))
		return fail(fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err))
	}

	snap, dropped := buildSnapshot(linkID, list, stamp)
	if len(dropped) > 0 {
		lg.Warn("tree_rebuild_dropped", slog.Int("count", len(dropped)), slog.Any("ids", dropped))
	}

	c.mu.Lock()
	for _, o := range j.ops {
		if _, err := snap.apply(o); err != nil {
			lg.Warn("tree_journal_replay_failed", slog.String("kind", o.kind.String()), slog.String("err", err.Error()))
		}
	}

	if c.journals[linkID] == j {
		delete(c.journals, linkID)
	}

	if !j.invalidated {
		e := &entry{snap: snap}
		e.lastAccess.Store(time.Now().UnixNano())
		c.lru.Add(linkID, e)
	}
	c.mu.Unlock()

	c.opts.Recorder.Rebuilt(time.Since(start), nil)
	c.opts.Recorder.Size(c.lru.Len())

	lg.Debug("tree_rebuilt",
		slog.Int("comments", snap.Len()),
		slog.Int("replayed", len(j.ops)),
		slog.Int64("stamp", stamp),
		slog.Duration("dur", time.Since(start)),
	)

	return snap, nil
}

// dispatch пишет операцию в журнал идущей пересборки и применяет её к текущему снапшоту.
func (c *Cache) dispatch(linkID uuid.UUID, o change) error {
	c.mu.Lock()
	if j, ok := c.journals[linkID]; ok {
		j.ops = append(j.ops, o)
	}
	e, ok := c.lru.Peek(linkID)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if _, err := e.snap.apply(o); err != nil {
		// Снапшот не может принять патч без нарушения леса: пусть следующее чтение пересоберёт.
		if !errors.Is(err, ErrLinkMismatch) {
			c.drop(linkID, e.snap, ReasonBroken)
		}
		return err
	}

	return nil
}

// drop удаляет снапшот, только если в кэше всё ещё именно он.
func (c *Cache) drop(linkID uuid.UUID, snap *Snapshot, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(linkID)
	if !ok || e.snap != snap {
		return false
	}

	c.removeLocked(linkID, reason)
	return true
}

func (c *Cache) removeLocked(linkID uuid.UUID, reason string) {
	c.dropping.Store(reason)
	c.lru.Remove(linkID)
	c.dropping.Store(ReasonEvicted)
}

type nopRecorder struct{}

func (nopRecorder) Hit()                         {}
func (nopRecorder) Miss()                        {}
func (nopRecorder) Rebuilt(time.Duration, error) {}
func (nopRecorder) Dropped(string)               {}
func (nopRecorder) Size(int)                     {}
