// Package apierrors стандартизирует ответы об ошибках HTTP-слоя:
// ошибка сервиса -> HTTP-статус и короткий стабильный код без утечки деталей.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/comment-tree/internal/service"
)

// StatusClientClosedRequest - нестандартный код "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrBadRequest - запрос не разобран (битый JSON, query, path).
var ErrBadRequest = errors.New("bad request")

// APIError - единый формат ошибки для фронта.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект ответа.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP переводит ошибку в HTTP-статус и тело. nil считается программной ошибкой: 500.
//
//	ErrBadRequest, ErrInvalidArgument   -> 400 invalid_argument
//	ErrNotFound, ErrParentNotFound      -> 404 not_found
//	ErrConflict                         -> 409 already_exists
//	ErrStoreUnavailable                 -> 503 unavailable
//	context.DeadlineExceeded            -> 504 deadline_exceeded
//	context.Canceled                    -> 499 canceled
//	прочее                              -> 500 internal
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrParentNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// WriteError пишет статус и тело; request_id берётся из X-Request-Id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
