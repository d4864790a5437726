// Package handlers - REST-эндпоинты чтения дерева комментариев и служебные ручки.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/transport/http/apierrors"
)

// Pinger - проверка доступности хранилища для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers агрегирует зависимости HTTP-ручек.
type Handlers struct {
	service  *service.Service
	pinger   Pinger
	validate *validator.Validate
}

// New создаёт ручки; pinger может быть nil (тогда /healthz проверяет только готовность).
func New(svc *service.Service, pinger Pinger) *Handlers {
	return &Handlers{
		service:  svc,
		pinger:   pinger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// writeJSON - ответ JSON с нужным Content-Type.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: неизвестные поля запрещены.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrBadRequest, err)
	}

	return nil
}

// Livez - процесс жив.
func (h *Handlers) Livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Healthz - хранилище отвечает. Кэш деревьев без хранилища не пересобирается.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
