// Реализация gRPC-эндпоинтов commenttree.v1.CommentTreeService.
//
// Маппинг ошибок сервиса в коды gRPC:
//
//	ErrInvalidArgument        -> codes.InvalidArgument
//	ErrNotFound               -> codes.NotFound
//	ErrParentNotFound         -> codes.NotFound
//	ErrConflict               -> codes.AlreadyExists
//	ErrStoreUnavailable       -> codes.Unavailable
//	context.DeadlineExceeded  -> codes.DeadlineExceeded
//	context.Canceled          -> codes.Canceled
//	прочее                    -> codes.Internal
package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/transport/dto"
)

// Server - gRPC-сервер CommentTreeService.
type Server struct {
	service *service.Service
}

var _ CommentTreeServer = (*Server)(nil)

func NewServer(svc *service.Service) *Server {
	return &Server{service: svc}
}

// ListComments - дерево обсуждения (или выбранных веток) одной плоской выдачей.
func (s *Server) ListComments(ctx context.Context, req *dto.ListCommentsRequest) (*dto.Listing, error) {
	const op = "transport/grpc/ListComments"

	linkID, err := parseUUID(req.LinkID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: invalid link_id: %v", op, err)
	}

	res, err := s.service.ListComments(ctx, service.ListInput{
		LinkID:   linkID,
		Sort:     req.Sort,
		RootIDs:  req.RootIDs,
		Depth:    req.Depth,
		Limit:    req.Limit,
		ShowSpam: req.ShowSpam,
	})
	if err != nil {
		return nil, toStatus(op, err)
	}

	out := dto.FromListing(res)
	return &out, nil
}

// MoreChildren - раскрытие маркера "загрузить ещё".
func (s *Server) MoreChildren(ctx context.Context, req *dto.MoreChildrenRequest) (*dto.Listing, error) {
	const op = "transport/grpc/MoreChildren"

	linkID, err := parseUUID(req.LinkID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: invalid link_id: %v", op, err)
	}

	res, err := s.service.MoreChildren(ctx, service.MoreChildrenInput{
		LinkID:   linkID,
		Sort:     req.Sort,
		Children: req.Children,
		Depth:    req.Depth,
		Limit:    req.Limit,
		AnchorID: req.AnchorID,
		ShowSpam: req.ShowSpam,
	})
	if err != nil {
		return nil, toStatus(op, err)
	}

	out := dto.FromListing(res)
	return &out, nil
}

// CreateComment - корень (parent_id пуст, link_id обязателен) или ответ.
func (s *Server) CreateComment(ctx context.Context, req *dto.CreateCommentRequest) (*dto.CommentResponse, error) {
	const op = "transport/grpc/CreateComment"

	authorID, err := parseUUID(req.AuthorID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: invalid author_id: %v", op, err)
	}

	// у ответа link_id наследуется от родителя, присланное значение не проверяем.
	var linkID uuid.UUID
	parentID := strings.TrimSpace(req.ParentID)
	if parentID == "" {
		if linkID, err = parseUUID(req.LinkID); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%s: invalid link_id: %v", op, err)
		}
	}

	res, err := s.service.CreateComment(ctx, service.CreateCommentInput{
		LinkID:   linkID,
		ParentID: parentID,
		AuthorID: authorID,
		Body:     req.Body,
	})

	return commentResponse(op, res, err)
}

func (s *Server) DeleteComment(ctx context.Context, req *dto.IDRequest) (*dto.CommentResponse, error) {
	const op = "transport/grpc/DeleteComment"

	res, err := s.service.DeleteComment(ctx, req.ID)
	return commentResponse(op, res, err)
}

func (s *Server) EditComment(ctx context.Context, req *dto.EditCommentRequest) (*dto.CommentResponse, error) {
	const op = "transport/grpc/EditComment"

	res, err := s.service.EditComment(ctx, req.ID, req.Body)
	return commentResponse(op, res, err)
}

func (s *Server) ApplyVote(ctx context.Context, req *dto.ApplyVoteRequest) (*dto.CommentResponse, error) {
	const op = "transport/grpc/ApplyVote"

	res, err := s.service.ApplyVote(ctx, req.ID, req.Ups, req.Downs)
	return commentResponse(op, res, err)
}

func (s *Server) SetSpam(ctx context.Context, req *dto.SetSpamRequest) (*dto.CommentResponse, error) {
	const op = "transport/grpc/SetSpam"

	res, err := s.service.SetSpam(ctx, req.ID, req.Spam)
	return commentResponse(op, res, err)
}

// InvalidateLink - сброс дерева после массовой модерации в обход сервиса.
func (s *Server) InvalidateLink(ctx context.Context, req *dto.InvalidateLinkRequest) (*dto.Empty, error) {
	const op = "transport/grpc/InvalidateLink"

	linkID, err := parseUUID(req.LinkID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: invalid link_id: %v", op, err)
	}

	if err := s.service.InvalidateLink(ctx, linkID); err != nil {
		return nil, toStatus(op, err)
	}

	return &dto.Empty{}, nil
}

func commentResponse(op string, res *models.Comment, err error) (*dto.CommentResponse, error) {
	if err != nil {
		return nil, toStatus(op, err)
	}

	return &dto.CommentResponse{Comment: dto.FromComment(*res)}, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

// toStatus переводит ошибку сервиса в gRPC-статус. Детали внутренних ошибок не раскрываются.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrParentNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, service.ErrConflict):
		return status.Errorf(codes.AlreadyExists, "%s: %v", op, err)
	case errors.Is(err, service.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "comment store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
