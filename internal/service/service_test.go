package service

// Тесты сервисного слоя comment-tree (internal/service).
//
//  Проверяем:
//  - валидацию входов;
//  - маппинг ошибок storage/treecache -> service;
//  - что запись патчит кэш без повторной загрузки обсуждения;
//  - раскрытие маркеров: пересборку по общей версии и по отсутствующему id,
//    пропуск чужих id, подмену записей свежими данными.
//
// Подготовка окружения:
//   # 1) Сгенерировать моки интерфейса хранилища:
//   mockgen -source=./internal/storage/storage.go -destination=./mocks/storage.go -package=mocks
//
//   # 2) Запустить тесты:
//   go test ./internal/service -v -race -count=1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/stamps"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/treecache"
	"github.com/pribylovaa/comment-tree/mocks"
)

var testLimits = config.LimitsConfig{
	DefaultDepth:  8,
	MaxDepth:      10,
	MaxStartDepth: 32,
	DefaultItems:  100,
	MaxItems:      500,
	MaxChildren:   20,
}

type env struct {
	svc    *Service
	store  *mocks.MockStorage
	cache  *treecache.Cache
	stamps *stamps.Local
	rec    *staleCounter
}

type staleCounter struct{ reasons []string }

func (s *staleCounter) StaleRebuild(reason string) { s.reasons = append(s.reasons, reason) }

// newEnv — сервис с моком стораджа, настоящим кэшем и версиями в памяти.
func newEnv(t *testing.T) *env {
	t.Helper()

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockStorage(ctrl)
	st := stamps.NewLocal()

	cache, err := treecache.New(ms, treecache.Options{Size: 16, Stamps: st})
	require.NoError(t, err)

	rec := &staleCounter{}
	return &env{
		svc:    New(ms, cache, st, testLimits, WithRecorder(rec)),
		store:  ms,
		cache:  cache,
		stamps: st,
		rec:    rec,
	}
}

// mkComment — быстрый хелпер для сборки комментария.
func mkComment(link uuid.UUID, id, parent string, ups int64) models.Comment {
	return models.Comment{
		ID:        id,
		LinkID:    link,
		ParentID:  parent,
		AuthorID:  uuid.New(),
		Body:      "body " + id,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Ups:       ups,
	}
}

func ids(l *models.Listing) []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		if it.Kind == models.KindComment {
			out = append(out, it.Comment.ID)
		} else {
			out = append(out, it.More.ID)
		}
	}
	return out
}

func TestService_CreateComment_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateComment(ctx, CreateCommentInput{LinkID: uuid.New(), Body: "x"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.svc.CreateComment(ctx, CreateCommentInput{LinkID: uuid.New(), AuthorID: uuid.New(), Body: "   "})
	require.ErrorIs(t, err, ErrInvalidArgument)

	// корень без обсуждения
	_, err = e.svc.CreateComment(ctx, CreateCommentInput{AuthorID: uuid.New(), Body: "x"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_CreateComment_StorageErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"parent", storage.ErrParentNotFound, ErrParentNotFound},
		{"conflict", storage.ErrConflict, ErrConflict},
		{"other", errors.New("boom"), ErrInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.store.EXPECT().CreateComment(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			_, err := e.svc.CreateComment(context.Background(), CreateCommentInput{
				ParentID: "p", AuthorID: uuid.New(), Body: "x",
			})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

// Созданный комментарий виден в выдаче без повторной загрузки обсуждения.
func TestService_CreateComment_PatchesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()
	author := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).
		Return([]models.Comment{mkComment(link, "A", "", 1)}, nil).Times(1)

	_, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	created := mkComment(link, "B", "A", 0)
	e.store.EXPECT().CreateComment(gomock.Any(), models.Comment{
		ParentID: "A", AuthorID: author, Body: "hi",
	}).Return(&created, nil)

	got, err := e.svc.CreateComment(ctx, CreateCommentInput{ParentID: " A ", AuthorID: author, Body: "  hi "})
	require.NoError(t, err)
	require.Equal(t, "B", got.ID)

	out, err := e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "old"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(out))

	v, _ := e.stamps.Current(ctx, link)
	require.Equal(t, int64(1), v)
	snap, ok := e.cache.Peek(link)
	require.True(t, ok)
	require.Equal(t, int64(1), snap.Stamp())
}

// Вставка с неизвестным кэшу родителем: снапшот сбрасывается, следующее чтение пересобирает.
func TestService_CreateComment_ParentMissingInCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	gomock.InOrder(
		e.store.EXPECT().LoadComments(gomock.Any(), link).
			Return([]models.Comment{mkComment(link, "A", "", 1)}, nil),
		e.store.EXPECT().LoadComments(gomock.Any(), link).
			Return([]models.Comment{
				mkComment(link, "A", "", 1),
				mkComment(link, "X", "A", 1),
				mkComment(link, "Y", "X", 1),
			}, nil),
	)

	_, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	created := mkComment(link, "Y", "X", 1)
	e.store.EXPECT().CreateComment(gomock.Any(), gomock.Any()).Return(&created, nil)

	_, err = e.svc.CreateComment(ctx, CreateCommentInput{ParentID: "X", AuthorID: uuid.New(), Body: "y"})
	require.NoError(t, err)

	_, ok := e.cache.Peek(link)
	require.False(t, ok)

	out, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "X", "Y"}, ids(out))
}

func TestService_DeleteComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "A", "", 1),
		mkComment(link, "B", "A", 1),
		mkComment(link, "C", "", 1),
	}, nil).Times(1)

	_, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	tombA := mkComment(link, "A", "", 1)
	tombA.Deleted, tombA.Body = true, ""
	tombC := mkComment(link, "C", "", 1)
	tombC.Deleted, tombC.Body = true, ""

	e.store.EXPECT().DeleteComment(gomock.Any(), "A").Return(&tombA, nil)
	e.store.EXPECT().DeleteComment(gomock.Any(), "C").Return(&tombC, nil)

	_, err = e.svc.DeleteComment(ctx, "A")
	require.NoError(t, err)
	_, err = e.svc.DeleteComment(ctx, "C")
	require.NoError(t, err)

	// A остаётся надгробием ради B, C исчезает.
	out, err := e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "old"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(out))
	require.True(t, out.Items[0].Comment.Deleted)
}

func TestService_WriteErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.DeleteComment(ctx, " ")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.svc.EditComment(ctx, "id", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.svc.ApplyVote(ctx, "id", -1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.svc.SetSpam(ctx, "", true)
	require.ErrorIs(t, err, ErrInvalidArgument)

	e.store.EXPECT().DeleteComment(gomock.Any(), "x").Return(nil, storage.ErrNotFound)
	_, err = e.svc.DeleteComment(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)

	e.store.EXPECT().EditComment(gomock.Any(), "x", "body").Return(nil, errors.New("db down"))
	_, err = e.svc.EditComment(ctx, "x", "body")
	require.ErrorIs(t, err, ErrInternal)
}

// Голоса и спам меняют выдачу без перезагрузки.
func TestService_VoteAndSpam(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "A", "", 10),
		mkComment(link, "B", "", 5),
	}, nil).Times(1)

	out, err := e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "top"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(out))

	voted := mkComment(link, "B", "", 50)
	e.store.EXPECT().SetScore(gomock.Any(), "B", int64(50), int64(0)).Return(&voted, nil)
	_, err = e.svc.ApplyVote(ctx, "B", 50, 0)
	require.NoError(t, err)

	out, err = e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "top"})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, ids(out))

	spam := voted
	spam.Spam = true
	e.store.EXPECT().SetSpam(gomock.Any(), "B", true).Return(&spam, nil)
	_, err = e.svc.SetSpam(ctx, "B", true)
	require.NoError(t, err)

	out, err = e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "top"})
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, ids(out))

	out, err = e.svc.ListComments(ctx, ListInput{LinkID: link, Sort: "top", ShowSpam: true})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, ids(out))

	edited := mkComment(link, "A", "", 10)
	edited.Body, edited.Edited = "new", true
	e.store.EXPECT().EditComment(gomock.Any(), "A", "new").Return(&edited, nil)
	_, err = e.svc.EditComment(ctx, "A", "new")
	require.NoError(t, err)

	out, err = e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)
	require.Equal(t, "new", out.Items[0].Comment.Body)
	require.True(t, out.Items[0].Comment.Edited)
}

// Сбой хранилища версий не роняет запись, но сбрасывает снапшот.
func TestService_StampFailureInvalidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockStorage(ctrl)
	cache, err := treecache.New(ms, treecache.Options{})
	require.NoError(t, err)

	svc := New(ms, cache, failingStamps{}, testLimits)
	ctx := context.Background()
	link := uuid.New()

	ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{mkComment(link, "A", "", 1)}, nil)
	_, err = svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	voted := mkComment(link, "A", "", 3)
	ms.EXPECT().SetScore(gomock.Any(), "A", int64(3), int64(0)).Return(&voted, nil)
	_, err = svc.ApplyVote(ctx, "A", 3, 0)
	require.NoError(t, err)

	_, ok := cache.Peek(link)
	require.False(t, ok)
}

type failingStamps struct{}

func (failingStamps) Current(context.Context, uuid.UUID) (int64, error) {
	return 0, errors.New("redis down")
}
func (failingStamps) Bump(context.Context, uuid.UUID) (int64, error) {
	return 0, errors.New("redis down")
}
func (failingStamps) Close() error { return nil }

func TestService_ListComments_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.ListComments(ctx, ListInput{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.svc.ListComments(ctx, ListInput{LinkID: uuid.New(), Sort: "random"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	many := make([]string, testLimits.MaxChildren+1)
	for i := range many {
		many[i] = uuid.NewString()
	}
	_, err = e.svc.ListComments(ctx, ListInput{LinkID: uuid.New(), RootIDs: many})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_ListComments_StoreUnavailable(t *testing.T) {
	e := newEnv(t)
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return(nil, errors.New("connection refused"))

	_, err := e.svc.ListComments(context.Background(), ListInput{LinkID: link})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

// A(10), B(5), top, бюджет 1 -> [A, маркер{root, [B], 1}].
func TestService_ListComments_Budget(t *testing.T) {
	e := newEnv(t)
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "B", "", 5),
		mkComment(link, "A", "", 10),
	}, nil)

	out, err := e.svc.ListComments(context.Background(), ListInput{LinkID: link, Sort: "top", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "more_root_B"}, ids(out))
	require.Equal(t, 1, out.Items[1].More.Count)
}

// Лимиты клампятся в границы конфигурации.
func TestService_Clamps(t *testing.T) {
	e := newEnv(t)

	require.Equal(t, testLimits.DefaultDepth, e.svc.depth(0))
	require.Equal(t, testLimits.MaxDepth, e.svc.depth(1000))
	require.Equal(t, 3, e.svc.depth(3))
	require.Equal(t, testLimits.DefaultItems, e.svc.limit(-5))
	require.Equal(t, testLimits.MaxItems, e.svc.limit(1_000_000))
	require.Equal(t, []string{"a", "b"}, cleanIDs([]string{" a", "", "b", "a "}))
}

func TestService_MoreChildren_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	_, err := e.svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link, Children: []string{"a"}, Depth: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link, Children: []string{"a"}, Depth: testLimits.MaxStartDepth + 1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.svc.MoreChildren(ctx, MoreChildrenInput{Children: []string{"a"}})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// Раскрытие [B, D] у родителя P: свежие записи подменяют кэш, чужие id пропускаются.
func TestService_MoreChildren(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "P", "", 1),
		mkComment(link, "B", "P", 10),
		mkComment(link, "D", "P", 5),
		mkComment(link, "D1", "D", 1),
	}, nil).Times(1)

	freshD := mkComment(link, "D", "P", 20)
	foreign := mkComment(uuid.New(), "F", "", 1)
	e.store.EXPECT().CommentsByID(gomock.Any(), []string{"B", "D", "F"}).Return([]models.Comment{
		mkComment(link, "B", "P", 10), freshD, foreign,
	}, nil)

	out, err := e.svc.MoreChildren(ctx, MoreChildrenInput{
		LinkID:   link,
		Sort:     "top",
		Children: []string{"B", "D", "F", "B"},
		Depth:    1,
		AnchorID: "more_P_B",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"D", "D1", "B"}, ids(out))
	require.Equal(t, 1, out.Items[0].Depth)
	require.Equal(t, 2, out.Items[1].Depth)
	require.Equal(t, int64(20), out.Items[0].Comment.Ups)
	require.Equal(t, []string{"F"}, out.Skipped)
	require.False(t, out.AnchorFound)
	require.Empty(t, e.rec.reasons)
}

// Глубина из запроса не совпадает с истинной: выдача подписана глубинами снапшота.
func TestService_MoreChildren_DepthFromSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "A", "", 1),
		mkComment(link, "B", "A", 1),
		mkComment(link, "C", "B", 1),
	}, nil)
	e.store.EXPECT().CommentsByID(gomock.Any(), []string{"B"}).Return([]models.Comment{
		mkComment(link, "B", "A", 1),
	}, nil)

	out, err := e.svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link, Children: []string{"B"}, Depth: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, ids(out))
	require.Equal(t, 1, out.Items[0].Depth)
	require.Equal(t, 2, out.Items[1].Depth)
}

// Более новая общая версия (запись через другой экземпляр) -> одна пересборка.
func TestService_MoreChildren_StaleStamp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	gomock.InOrder(
		e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
			mkComment(link, "P", "", 1),
			mkComment(link, "B", "P", 1),
		}, nil),
		e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
			mkComment(link, "P", "", 1),
			mkComment(link, "B", "P", 1),
			mkComment(link, "B1", "B", 1),
		}, nil),
	)

	_, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	// другой экземпляр записал B1
	_, err = e.stamps.Bump(ctx, link)
	require.NoError(t, err)

	e.store.EXPECT().CommentsByID(gomock.Any(), []string{"B"}).Return([]models.Comment{mkComment(link, "B", "P", 1)}, nil)

	out, err := e.svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link, Children: []string{"B"}, Depth: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "B1"}, ids(out))
	require.Equal(t, []string{StaleStamp}, e.rec.reasons)
}

// id обсуждения есть в хранилище, но нет в снапшоте -> одна пересборка.
func TestService_MoreChildren_MissingID(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockStorage(ctrl)
	cache, err := treecache.New(ms, treecache.Options{})
	require.NoError(t, err)
	rec := &staleCounter{}
	svc := New(ms, cache, nil, testLimits, WithRecorder(rec))

	ctx := context.Background()
	link := uuid.New()

	gomock.InOrder(
		ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
			mkComment(link, "P", "", 1),
		}, nil),
		ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
			mkComment(link, "P", "", 1),
			mkComment(link, "N", "P", 1),
		}, nil),
	)

	_, err = svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	ms.EXPECT().CommentsByID(gomock.Any(), []string{"N"}).Return([]models.Comment{mkComment(link, "N", "P", 1)}, nil)

	out, err := svc.MoreChildren(ctx, MoreChildrenInput{LinkID: link, Children: []string{"N"}, Depth: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"N"}, ids(out))
	require.Equal(t, []string{StaleMissing}, rec.reasons)
}

func TestService_MoreChildren_StoreError(t *testing.T) {
	e := newEnv(t)
	link := uuid.New()

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{mkComment(link, "A", "", 1)}, nil)
	e.store.EXPECT().CommentsByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := e.svc.MoreChildren(context.Background(), MoreChildrenInput{LinkID: link, Children: []string{"A"}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_InvalidateLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	link := uuid.New()

	require.ErrorIs(t, e.svc.InvalidateLink(ctx, uuid.Nil), ErrInvalidArgument)

	e.store.EXPECT().LoadComments(gomock.Any(), link).Return(nil, nil).Times(2)

	_, err := e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)

	require.NoError(t, e.svc.InvalidateLink(ctx, link))
	_, ok := e.cache.Peek(link)
	require.False(t, ok)

	v, _ := e.stamps.Current(ctx, link)
	require.Equal(t, int64(1), v)

	_, err = e.svc.ListComments(ctx, ListInput{LinkID: link})
	require.NoError(t, err)
}
