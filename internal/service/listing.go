package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/sorting"
	"github.com/pribylovaa/comment-tree/internal/tree"
	"github.com/pribylovaa/comment-tree/internal/treecache"
	"github.com/pribylovaa/comment-tree/pkg/log"
)

// ListInput — выдача дерева обсуждения.
//   - Sort: hot | top | new | old | controversial (пусто - hot);
//   - RootIDs: пусто - все корни, иначе только эти ветки (permalink);
//   - Depth: максимальная глубина (корень = 0); <= 0 - limits.default_depth;
//   - Limit: максимум комментариев; <= 0 - limits.default_items;
//   - ShowSpam: режим модератора.
type ListInput struct {
	LinkID   uuid.UUID
	Sort     string
	RootIDs  []string
	Depth    int
	Limit    int
	ShowSpam bool
}

// MoreChildrenInput — раскрытие маркера "загрузить ещё".
//   - Children: id из маркера (порядок не важен, сортирует сервис);
//   - Depth: глубина маркера у клиента; подписи берутся из снапшота, окно
//     раскрытия - limits.default_depth уровней от истинной глубины детей;
//   - AnchorID: id исходного маркера, см. models.Listing.AnchorFound.
type MoreChildrenInput struct {
	LinkID   uuid.UUID
	Sort     string
	Children []string
	Depth    int
	Limit    int
	AnchorID string
	ShowSpam bool
}

// ListComments строит выдачу дерева обсуждения из кэша.
//
// Поведение/ошибки:
//   - ErrInvalidArgument — пустой LinkID, неизвестная сортировка, слишком много корней;
//   - ErrStoreUnavailable — дерево не в кэше и хранилище недоступно;
//   - ErrInternal — прочие ошибки.
func (s *Service) ListComments(ctx context.Context, in ListInput) (*models.Listing, error) {
	const op = "service/listing/ListComments"

	ctx, lg := log.With(ctx, "op", op, "link_id", in.LinkID.String(), "sort", in.Sort)

	mode, err := s.checkLink(lg, in.LinkID, in.Sort)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var roots []string
	if len(in.RootIDs) > 0 {
		roots = cleanIDs(in.RootIDs)
		if len(roots) == 0 || len(roots) > s.limits.MaxChildren {
			lg.Warn("invalid argument: bad root ids", "count", len(in.RootIDs))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
		}
	}

	snap, err := s.cache.GetOrBuild(ctx, in.LinkID)
	if err != nil {
		return nil, mapCacheErr(lg, op, err)
	}

	depth := s.depth(in.Depth)
	params := tree.Params{
		Mode:     mode,
		RootIDs:  roots,
		MaxDepth: depth,
		MaxNodes: s.limit(in.Limit),
		ShowSpam: in.ShowSpam,
	}

	var out models.Listing
	snap.Read(func(v treecache.View) {
		out, err = tree.Build(ctx, v, params)
	})
	if err != nil {
		return nil, mapBuildErr(lg, op, err)
	}

	if len(out.Skipped) > 0 {
		lg.Debug("tree_roots_skipped", slog.Any("ids", out.Skipped))
	}

	return &out, nil
}

// MoreChildren раскрывает маркер в плоскую последовательность.
//
// Снапшот сверяется с хранилищем: более новая общая версия или id обсуждения,
// которого нет в снапшоте, приводят к одной прозрачной пересборке.
// Записи из хранилища подменяют закэшированные в выдаче.
func (s *Service) MoreChildren(ctx context.Context, in MoreChildrenInput) (*models.Listing, error) {
	const op = "service/listing/MoreChildren"

	ctx, lg := log.With(ctx, "op", op, "link_id", in.LinkID.String(), "sort", in.Sort)

	mode, err := s.checkLink(lg, in.LinkID, in.Sort)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	children := cleanIDs(in.Children)
	if len(children) == 0 || len(children) > s.limits.MaxChildren {
		lg.Warn("invalid argument: bad children", "count", len(in.Children))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if in.Depth < 0 || in.Depth > s.limits.MaxStartDepth {
		lg.Warn("invalid argument: depth out of range", "depth", in.Depth)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	snap, err := s.cache.GetOrBuild(ctx, in.LinkID)
	if err != nil {
		return nil, mapCacheErr(lg, op, err)
	}

	rebuilt := false
	if s.stampAhead(ctx, lg, snap) {
		if snap, err = s.rebuild(ctx, in.LinkID, StaleStamp); err != nil {
			return nil, mapCacheErr(lg, op, err)
		}
		rebuilt = true
	}

	fresh, err := s.storage.CommentsByID(ctx, children)
	if err != nil {
		lg.Error("storage error on CommentsByID", "err", err)
		return nil, fmt.Errorf("%s: %w", op, ErrStoreUnavailable)
	}

	own := fresh[:0:0]
	for _, c := range fresh {
		if c.LinkID == in.LinkID {
			own = append(own, c)
		}
	}

	if !rebuilt && missingFrom(snap, own) {
		if snap, err = s.rebuild(ctx, in.LinkID, StaleMissing); err != nil {
			return nil, mapCacheErr(lg, op, err)
		}
	}

	params := tree.Params{
		Mode:       mode,
		RootIDs:    children,
		StartDepth: in.Depth,
		MaxDepth:   in.Depth + s.limits.DefaultDepth,
		MaxNodes:   s.limit(in.Limit),
		ShowSpam:   in.ShowSpam,
		AnchorID:   strings.TrimSpace(in.AnchorID),
	}

	var out models.Listing
	snap.Read(func(v treecache.View) {
		out, err = tree.Expand(ctx, tree.WithFresh(v, own), params)
	})
	if err != nil {
		return nil, mapBuildErr(lg, op, err)
	}

	if len(out.Skipped) > 0 {
		lg.Debug("tree_children_skipped", slog.Any("ids", out.Skipped))
	}

	return &out, nil
}

func (s *Service) checkLink(lg *slog.Logger, linkID uuid.UUID, sort string) (sorting.Mode, error) {
	if linkID == uuid.Nil {
		lg.Warn("invalid argument: empty link_id")
		return 0, ErrInvalidArgument
	}

	mode, err := sorting.ParseMode(sort)
	if err != nil {
		lg.Warn("invalid argument: unknown sort")
		return 0, ErrInvalidArgument
	}

	return mode, nil
}

// stampAhead сообщает, что общая версия ушла вперёд снапшота.
// Снапшот без версии и недоступное хранилище версий проверку пропускают.
func (s *Service) stampAhead(ctx context.Context, lg *slog.Logger, snap *treecache.Snapshot) bool {
	if s.stamps == nil {
		return false
	}

	have := snap.Stamp()
	if have == treecache.NoStamp {
		return false
	}

	cur, err := s.stamps.Current(ctx, snap.LinkID())
	if err != nil {
		lg.Warn("stamp_read_failed", slog.String("err", err.Error()))
		return false
	}

	return cur > have
}

func (s *Service) rebuild(ctx context.Context, linkID uuid.UUID, reason string) (*treecache.Snapshot, error) {
	log.From(ctx).Info("tree_stale_rebuild", slog.String("reason", reason))
	s.rec.StaleRebuild(reason)

	s.cache.Invalidate(linkID)
	return s.cache.GetOrBuild(ctx, linkID)
}

// missingFrom - есть ли среди записей хранилища id, которых нет в снапшоте.
func missingFrom(snap *treecache.Snapshot, list []models.Comment) bool {
	missing := false
	snap.Read(func(v treecache.View) {
		for _, c := range list {
			if _, ok := v.Comment(c.ID); !ok {
				missing = true
				return
			}
		}
	})

	return missing
}

func (s *Service) depth(d int) int {
	if d <= 0 {
		return s.limits.DefaultDepth
	}

	return min(d, s.limits.MaxDepth)
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		return s.limits.DefaultItems
	}

	return min(n, s.limits.MaxItems)
}

// cleanIDs убирает пробелы, пустые id и повторы, сохраняя порядок.
func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

func mapCacheErr(lg *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, treecache.ErrStoreUnavailable):
		lg.Error("tree unavailable", "err", err)
		return fmt.Errorf("%s: %w", op, ErrStoreUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		lg.Warn("request ended before tree was ready", "err", err)
		return fmt.Errorf("%s: %w", op, err)
	default:
		lg.Error("tree cache error", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}

func mapBuildErr(lg *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, tree.ErrInvalidParams):
		lg.Warn("invalid argument", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		lg.Error("tree build error", "err", err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}
