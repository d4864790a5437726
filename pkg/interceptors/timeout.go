// Package interceptors - серверные unary-интерсепторы comment-tree:
// таймаут запроса, логирование с request_id и перехват паник.
package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// WithTimeout навешивает дедлайн d на запрос, у которого его нет.
//   - d <= 0 - handler вызывается с исходным контекстом;
//   - дедлайн клиента (grpc-timeout) не переопределяется, даже если он дальше d.
//
// Построение дерева проверяет отмену, поэтому по истечении d обработчик вернёт
// context.DeadlineExceeded, а рантайм ответит codes.DeadlineExceeded.
func WithTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}

		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
