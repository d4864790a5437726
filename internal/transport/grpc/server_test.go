package grpc

// Тесты транспортного слоя (gRPC) для CommentTreeService:
//  - gomock для storage ниже сервиса, настоящие service.Service и treecache.Cache;
//  - bufconn-сервер с теми же интерсепторами, что в main (сообщения - google.protobuf.Struct);
//  - проверяем валидацию UUID, маппинг ошибок сервиса -> gRPC codes и конвертацию выдачи.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/stamps"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/transport/dto"
	"github.com/pribylovaa/comment-tree/internal/treecache"
	"github.com/pribylovaa/comment-tree/mocks"
	"github.com/pribylovaa/comment-tree/pkg/interceptors"
)

var testLimits = config.LimitsConfig{
	DefaultDepth:  8,
	MaxDepth:      10,
	MaxStartDepth: 32,
	DefaultItems:  100,
	MaxItems:      500,
	MaxChildren:   20,
}

// startGRPC поднимает bufconn-сервер поверх мок-хранилища и возвращает клиент.
func startGRPC(t *testing.T) (*Client, *mocks.MockStorage) {
	t.Helper()

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockStorage(ctrl)

	st := stamps.NewLocal()
	cache, err := treecache.New(ms, treecache.Options{Stamps: st})
	require.NoError(t, err)

	svc := service.New(ms, cache, st, testLimits)

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		interceptors.Recover(lg),
		interceptors.UnaryLoggingInterceptor(lg),
		interceptors.WithTimeout(time.Second),
	))
	RegisterCommentTreeServer(s, NewServer(svc))

	go func() { _ = s.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cc.Close()
		s.Stop()
	})

	return NewClient(cc), ms
}

func mkComment(link uuid.UUID, id, parent string, ups int64) models.Comment {
	ts := time.Unix(1710000000, 0).UTC()
	return models.Comment{
		ID:        id,
		LinkID:    link,
		ParentID:  parent,
		AuthorID:  uuid.New(),
		Body:      "body " + id,
		CreatedAt: ts,
		UpdatedAt: ts,
		Ups:       ups,
	}
}

func TestGRPC_ListComments(t *testing.T) {
	client, ms := startGRPC(t)
	link := uuid.New()

	ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "A", "", 10),
		mkComment(link, "B", "", 5),
		mkComment(link, "A1", "A", 1),
	}, nil)

	var header metadata.MD
	out, err := client.ListComments(context.Background(), &dto.ListCommentsRequest{
		LinkID: link.String(),
		Sort:   "top",
		Limit:  2,
	}, grpc.Header(&header))
	require.NoError(t, err)

	require.Len(t, out.Items, 3)
	require.Equal(t, "A", out.Items[0].Comment.ID)
	require.Equal(t, "A1", out.Items[1].Comment.ID)
	require.Equal(t, 1, out.Items[1].Depth)
	require.Equal(t, "more", out.Items[2].Kind)
	require.Equal(t, []string{"B"}, out.Items[2].More.OmittedIDs)
	require.Nil(t, out.Items[2].More.ParentID)
	require.Equal(t, 2, out.Comments)

	require.NotEmpty(t, header.Get(interceptors.RequestIDKey))
}

func TestGRPC_InvalidUUIDs(t *testing.T) {
	client, _ := startGRPC(t)
	ctx := context.Background()

	_, err := client.ListComments(ctx, &dto.ListCommentsRequest{LinkID: "nope"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.MoreChildren(ctx, &dto.MoreChildrenRequest{LinkID: "", Children: []string{"a"}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.CreateComment(ctx, &dto.CreateCommentRequest{AuthorID: "x", Body: "b"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	// корень без link_id
	_, err = client.CreateComment(ctx, &dto.CreateCommentRequest{AuthorID: uuid.NewString(), Body: "b"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.InvalidateLink(ctx, &dto.InvalidateLinkRequest{LinkID: "x"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_CreateComment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"parent", storage.ErrParentNotFound, codes.NotFound},
		{"conflict", storage.ErrConflict, codes.AlreadyExists},
		{"internal", errors.New("db"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, ms := startGRPC(t)
			ms.EXPECT().CreateComment(gomock.Any(), gomock.AssignableToTypeOf(models.Comment{})).Return(nil, tc.err)

			_, err := client.CreateComment(context.Background(), &dto.CreateCommentRequest{
				ParentID: "p1",
				AuthorID: uuid.NewString(),
				Body:     "hello",
			})
			require.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestGRPC_StoreUnavailable(t *testing.T) {
	client, ms := startGRPC(t)
	link := uuid.New()

	ms.EXPECT().LoadComments(gomock.Any(), link).Return(nil, errors.New("connection refused"))

	_, err := client.ListComments(context.Background(), &dto.ListCommentsRequest{LinkID: link.String()})
	require.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGRPC_MoreChildren(t *testing.T) {
	client, ms := startGRPC(t)
	link := uuid.New()

	ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "P", "", 1),
		mkComment(link, "B", "P", 3),
		mkComment(link, "C", "P", 2),
	}, nil)
	ms.EXPECT().CommentsByID(gomock.Any(), []string{"C", "B"}).Return([]models.Comment{
		mkComment(link, "B", "P", 3),
		mkComment(link, "C", "P", 2),
	}, nil)

	out, err := client.MoreChildren(context.Background(), &dto.MoreChildrenRequest{
		LinkID:   link.String(),
		Sort:     "top",
		Children: []string{"C", "B"},
		Depth:    1,
		Limit:    1,
		AnchorID: "more_P_B",
	})
	require.NoError(t, err)

	require.Len(t, out.Items, 2)
	require.Equal(t, "B", out.Items[0].Comment.ID)
	require.Equal(t, 1, out.Items[0].Depth)
	require.Equal(t, "more_P_C", out.Items[1].More.ID)
	require.False(t, out.AnchorFound)
}

// Запись патчит кэш: вторая выдача видит правку без новой загрузки.
func TestGRPC_Writes(t *testing.T) {
	client, ms := startGRPC(t)
	ctx := context.Background()
	link := uuid.New()

	ms.EXPECT().LoadComments(gomock.Any(), link).Return([]models.Comment{
		mkComment(link, "A", "", 1),
	}, nil).Times(1)

	_, err := client.ListComments(ctx, &dto.ListCommentsRequest{LinkID: link.String()})
	require.NoError(t, err)

	edited := mkComment(link, "A", "", 1)
	edited.Body, edited.Edited = "fixed", true
	ms.EXPECT().EditComment(gomock.Any(), "A", "fixed").Return(&edited, nil)

	resp, err := client.EditComment(ctx, &dto.EditCommentRequest{ID: "A", Body: "fixed"})
	require.NoError(t, err)
	require.True(t, resp.Comment.Edited)

	voted := edited
	voted.Ups, voted.Downs = 7, 2
	ms.EXPECT().SetScore(gomock.Any(), "A", int64(7), int64(2)).Return(&voted, nil)

	resp, err = client.ApplyVote(ctx, &dto.ApplyVoteRequest{ID: "A", Ups: 7, Downs: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), resp.Comment.Score)

	out, err := client.ListComments(ctx, &dto.ListCommentsRequest{LinkID: link.String()})
	require.NoError(t, err)
	require.Equal(t, "fixed", out.Items[0].Comment.Body)
	require.Equal(t, int64(5), out.Items[0].Comment.Score)

	ms.EXPECT().SetSpam(gomock.Any(), "missing", true).Return(nil, storage.ErrNotFound)
	_, err = client.SetSpam(ctx, &dto.SetSpamRequest{ID: "missing", Spam: true})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteComment(ctx, &dto.IDRequest{ID: " "})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.InvalidateLink(ctx, &dto.InvalidateLinkRequest{LinkID: link.String()})
	require.NoError(t, err)
}

func TestWire_StructRoundTrip(t *testing.T) {
	parent := "A"
	in := dto.Listing{
		Items: []dto.Item{
			{Kind: "more", Depth: 1, More: &dto.More{
				ID: "more_A_B", ParentID: &parent, OmittedIDs: []string{"B"}, OmittedCount: 3, Depth: 1,
			}},
			{Kind: "more", More: &dto.More{ID: "more_root_C", OmittedIDs: []string{"C"}, OmittedCount: 1}},
		},
		Comments: 0,
		Version:  42,
	}

	msg, err := toStruct(&in)
	require.NoError(t, err)
	require.Equal(t, float64(42), msg.GetFields()["version"].GetNumberValue())

	// Struct проходит через стандартный proto-кодек.
	raw, err := proto.Marshal(msg)
	require.NoError(t, err)
	back := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(raw, back))

	var out dto.Listing
	require.NoError(t, fromStruct(back, &out))
	require.Equal(t, in, out)

	// пустое сообщение - нулевой запрос
	var empty dto.IDRequest
	require.NoError(t, fromStruct(&structpb.Struct{}, &empty))
	require.Empty(t, empty.ID)

	// тип поля не совпадает с dto
	bad, err := structpb.NewStruct(map[string]any{"id": 5})
	require.NoError(t, err)
	require.Error(t, fromStruct(bad, &empty))
}

func TestGRPC_MalformedRequest(t *testing.T) {
	client, _ := startGRPC(t)

	bad, err := structpb.NewStruct(map[string]any{"link_id": []any{"x"}})
	require.NoError(t, err)

	err = client.cc.Invoke(context.Background(), fullMethod("ListComments"), bad, &structpb.Struct{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}
