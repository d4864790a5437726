package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pribylovaa/comment-tree/internal/transport/dto"
)

// Client - клиент commenttree.v1.CommentTreeService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	msg, err := toStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reply := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(method), msg, reply, opts...); err != nil {
		return nil, err
	}

	out := new(Resp)
	if err := fromStruct(reply, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return out, nil
}

func (c *Client) ListComments(ctx context.Context, in *dto.ListCommentsRequest, opts ...grpc.CallOption) (*dto.Listing, error) {
	return invoke[dto.Listing](ctx, c, "ListComments", in, opts)
}

func (c *Client) MoreChildren(ctx context.Context, in *dto.MoreChildrenRequest, opts ...grpc.CallOption) (*dto.Listing, error) {
	return invoke[dto.Listing](ctx, c, "MoreChildren", in, opts)
}

func (c *Client) CreateComment(ctx context.Context, in *dto.CreateCommentRequest, opts ...grpc.CallOption) (*dto.CommentResponse, error) {
	return invoke[dto.CommentResponse](ctx, c, "CreateComment", in, opts)
}

func (c *Client) DeleteComment(ctx context.Context, in *dto.IDRequest, opts ...grpc.CallOption) (*dto.CommentResponse, error) {
	return invoke[dto.CommentResponse](ctx, c, "DeleteComment", in, opts)
}

func (c *Client) EditComment(ctx context.Context, in *dto.EditCommentRequest, opts ...grpc.CallOption) (*dto.CommentResponse, error) {
	return invoke[dto.CommentResponse](ctx, c, "EditComment", in, opts)
}

func (c *Client) ApplyVote(ctx context.Context, in *dto.ApplyVoteRequest, opts ...grpc.CallOption) (*dto.CommentResponse, error) {
	return invoke[dto.CommentResponse](ctx, c, "ApplyVote", in, opts)
}

func (c *Client) SetSpam(ctx context.Context, in *dto.SetSpamRequest, opts ...grpc.CallOption) (*dto.CommentResponse, error) {
	return invoke[dto.CommentResponse](ctx, c, "SetSpam", in, opts)
}

func (c *Client) InvalidateLink(ctx context.Context, in *dto.InvalidateLinkRequest, opts ...grpc.CallOption) (*dto.Empty, error) {
	return invoke[dto.Empty](ctx, c, "InvalidateLink", in, opts)
}
