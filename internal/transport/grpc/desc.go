package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pribylovaa/comment-tree/internal/transport/dto"
)

// ServiceName - полное имя gRPC-сервиса.
const ServiceName = "commenttree.v1.CommentTreeService"

// CommentTreeServer - контракт commenttree.v1.CommentTreeService.
type CommentTreeServer interface {
	ListComments(ctx context.Context, req *dto.ListCommentsRequest) (*dto.Listing, error)
	MoreChildren(ctx context.Context, req *dto.MoreChildrenRequest) (*dto.Listing, error)
	CreateComment(ctx context.Context, req *dto.CreateCommentRequest) (*dto.CommentResponse, error)
	DeleteComment(ctx context.Context, req *dto.IDRequest) (*dto.CommentResponse, error)
	EditComment(ctx context.Context, req *dto.EditCommentRequest) (*dto.CommentResponse, error)
	ApplyVote(ctx context.Context, req *dto.ApplyVoteRequest) (*dto.CommentResponse, error)
	SetSpam(ctx context.Context, req *dto.SetSpamRequest) (*dto.CommentResponse, error)
	InvalidateLink(ctx context.Context, req *dto.InvalidateLinkRequest) (*dto.Empty, error)
}

// ServiceDesc описывает сервис для grpc.Server без сгенерированного кода.
// Запрос и ответ каждого метода - google.protobuf.Struct, см. wire.go.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommentTreeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListComments", CommentTreeServer.ListComments),
		unary("MoreChildren", CommentTreeServer.MoreChildren),
		unary("CreateComment", CommentTreeServer.CreateComment),
		unary("DeleteComment", CommentTreeServer.DeleteComment),
		unary("EditComment", CommentTreeServer.EditComment),
		unary("ApplyVote", CommentTreeServer.ApplyVote),
		unary("SetSpam", CommentTreeServer.SetSpam),
		unary("InvalidateLink", CommentTreeServer.InvalidateLink),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterCommentTreeServer регистрирует реализацию на сервере.
func RegisterCommentTreeServer(s grpc.ServiceRegistrar, srv CommentTreeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary строит MethodDesc: распаковывает Struct в dto запроса, пропускает вызов
// через цепочку интерсепторов и упаковывает ответ обратно в Struct.
func unary[Req, Resp any](name string, call func(CommentTreeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			msg := &structpb.Struct{}
			if err := dec(msg); err != nil {
				return nil, err
			}

			in := new(Req)
			if err := fromStruct(msg, in); err != nil {
				return nil, status.Error(codes.InvalidArgument, "malformed request")
			}

			s := srv.(CommentTreeServer)
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(s, ctx, req.(*Req))
				if err != nil {
					return nil, err
				}

				out, err := toStruct(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, "internal error")
				}

				return out, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}
