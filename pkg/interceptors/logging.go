package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/comment-tree/pkg/log"
)

// RequestIDKey - ключ metadata с идентификатором запроса.
const RequestIDKey = "x-request-id"

// UnaryLoggingInterceptor логирует unary-вызовы и кладёт request-scoped логгер в context.
//
// Поведение:
//   - x-request-id берётся из входящего metadata, иначе генерируется UUID,
//     и возвращается клиенту в заголовке ответа;
//   - логгер с request_id/method/peer доступен в обработчике через log.From(ctx);
//   - после обработчика одна запись msg="grpc" с code и dur. Уровень зависит от кода:
//     Error для серверных сбоев, Warn для ошибок клиента, Info для OK.
func UnaryLoggingInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		var rid string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDKey); len(v) > 0 && v[0] != "" {
				rid = v[0]
			}
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		// вне настоящего стрима (unit-тесты) SetHeader вернёт ошибку - не критично.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, rid))

		peerStr := "-"
		if p, ok := peer.FromContext(ctx); ok && p != nil && p.Addr != nil {
			peerStr = p.Addr.String()
		}

		l := base.With(
			slog.String("request_id", rid),
			slog.String("method", info.FullMethod),
			slog.String("peer", peerStr),
		)
		ctx = log.Into(ctx, l)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		l.LogAttrs(ctx, levelFor(code), "grpc",
			slog.String("code", code.String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

func levelFor(c codes.Code) slog.Level {
	switch c {
	case codes.OK:
		return slog.LevelInfo
	case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
