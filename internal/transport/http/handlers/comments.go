package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/transport/dto"
	"github.com/pribylovaa/comment-tree/internal/transport/http/apierrors"
	"github.com/pribylovaa/comment-tree/pkg/log"
)

// ListComments - GET /links/{link_id}/comments?sort&depth&limit&roots=a,b&show_spam=true.
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(chi.URLParam(r, "link_id"))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	q := r.URL.Query()
	in := service.ListInput{
		LinkID: linkID,
		Sort:   q.Get("sort"),
	}

	if in.Depth, err = intParam(q.Get("depth")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if in.Limit, err = intParam(q.Get("limit")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if v := q.Get("show_spam"); v != "" {
		if in.ShowSpam, err = strconv.ParseBool(v); err != nil {
			apierrors.WriteError(w, r, apierrors.ErrBadRequest)
			return
		}
	}
	if v := q.Get("roots"); v != "" {
		in.RootIDs = strings.Split(v, ",")
	}

	res, err := h.service.ListComments(r.Context(), in)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FromListing(res))
}

// MoreChildren - POST /links/{link_id}/morechildren, тело dto.MoreChildrenRequest.
// link_id берётся из пути; значение в теле, если есть, должно совпадать.
func (h *Handlers) MoreChildren(w http.ResponseWriter, r *http.Request) {
	pathID := chi.URLParam(r, "link_id")
	linkID, err := uuid.Parse(pathID)
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	var req dto.MoreChildrenRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if req.LinkID != "" && req.LinkID != pathID {
		apierrors.WriteError(w, r, fmt.Errorf("%w: link_id mismatch", apierrors.ErrBadRequest))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.From(r.Context()).Debug("morechildren_invalid", "fields", verrs.Error())
		}
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	res, err := h.service.MoreChildren(r.Context(), service.MoreChildrenInput{
		LinkID:   linkID,
		Sort:     req.Sort,
		Children: req.Children,
		Depth:    req.Depth,
		Limit:    req.Limit,
		AnchorID: req.AnchorID,
		ShowSpam: req.ShowSpam,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FromListing(res))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apierrors.ErrBadRequest
	}

	return n, nil
}
