// service содержит бизнес-логику comment-tree: запись через хранилище с патчем кэша
// и чтение деревьев из кэша.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/stamps"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/treecache"
)

var (
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrConflict — конфликт уникальности.
	ErrConflict = errors.New("conflict")
	// ErrParentNotFound — родитель не найден.
	ErrParentNotFound = errors.New("parent not found")
	// ErrInvalidArgument — неверные входные параметры запроса к сервису.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreUnavailable — хранилище недоступно, дерево не построено.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInternal — внутренняя ошибка (стораж/БД/и т.д.).
	ErrInternal = errors.New("internal")
)

// Recorder - приёмник метрик сервиса.
type Recorder interface {
	// StaleRebuild - снапшот признан устаревшим при раскрытии и пересобран.
	StaleRebuild(reason string)
}

// Причины пересборки при раскрытии.
const (
	StaleStamp   = "stamp"
	StaleMissing = "missing"
)

// Service — бизнес-логика comment-tree.
type Service struct {
	storage storage.Storage
	cache   *treecache.Cache
	stamps  stamps.Stamps
	limits  config.LimitsConfig
	rec     Recorder
}

// Option настраивает Service.
type Option func(*Service)

// WithRecorder подключает метрики.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

// New создает новый экземпляр Service.
// stamps == nil - общие версии не ведутся (один экземпляр без Redis).
func New(st storage.Storage, cache *treecache.Cache, stamps stamps.Stamps, limits config.LimitsConfig, opts ...Option) *Service {
	s := &Service{
		storage: st,
		cache:   cache,
		stamps:  stamps,
		limits:  limits,
		rec:     nopRecorder{},
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// afterWrite двигает общую версию и патчит кэш. Ошибки не всплывают:
// запись в хранилище уже прошла, а отставший снапшот лечится инвалидацией.
func (s *Service) afterWrite(ctx context.Context, lg *slog.Logger, linkID uuid.UUID, patch func(stamp int64) error) {
	// запись уже в хранилище - отмена запроса не должна оставить кэш без патча.
	ctx = context.WithoutCancel(ctx)

	var stamp int64
	if s.stamps != nil {
		v, err := s.stamps.Bump(ctx, linkID)
		if err != nil {
			lg.Warn("stamp_bump_failed", slog.String("err", err.Error()))
			s.cache.Invalidate(linkID)
			return
		}
		stamp = v
	}

	if err := patch(stamp); err != nil {
		lg.Warn("tree_patch_failed", slog.String("err", err.Error()))
		s.cache.Invalidate(linkID)
	}
}

type nopRecorder struct{}

func (nopRecorder) StaleRebuild(string) {}
