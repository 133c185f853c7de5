package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/infrastructure/http/middleware"
	"github.com/fixora/secret-review/infrastructure/http/response"
	"github.com/fixora/secret-review/infrastructure/http/validator"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

const maxBodyBytes = 64 << 10

type ChangeHandler struct {
	workflow inbound.WorkflowUseCase
	logger   logger.Logger
}

func NewChangeHandler(workflow inbound.WorkflowUseCase, log logger.Logger) *ChangeHandler {
	return &ChangeHandler{
		workflow: workflow,
		logger:   log,
	}
}

// RegisterRoutes mounts the review endpoints on an authenticated router
func (h *ChangeHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/changes", h.Propose).Methods(http.MethodPost)
	r.HandleFunc("/changes", h.ListChanges).Methods(http.MethodGet)
	r.HandleFunc("/changes/{changeId}/approve", h.Approve).Methods(http.MethodPost)
	r.HandleFunc("/changes/{changeId}/reject", h.Reject).Methods(http.MethodPost)
	r.HandleFunc("/changes/{changeId}/diff", h.GetDiff).Methods(http.MethodGet)
	r.HandleFunc("/history/{project}/{env}", h.History).Methods(http.MethodGet)
	r.HandleFunc("/rollback", h.Rollback).Methods(http.MethodPost)
}

// Propose stages nothing itself: the caller has already written the staging record
func (h *ChangeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req inbound.ProposeRequest
	if !h.decodeAndValidate(w, r, &req, true) {
		return
	}
	req.ProposedBy = middleware.Identity(r.Context())

	resp, err := h.workflow.Propose(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	if resp.NoChange {
		response.Success(w, http.StatusOK, "No changes detected", resp)
		return
	}
	response.Success(w, http.StatusOK, "Change proposed", resp)
}

func (h *ChangeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reviewRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.workflow.Approve(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Change approved and applied", resp)
}

func (h *ChangeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reviewRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.workflow.Reject(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Change rejected", resp)
}

func (h *ChangeHandler) GetDiff(w http.ResponseWriter, r *http.Request) {
	view, err := h.workflow.GetDiff(r.Context(), mux.Vars(r)["changeId"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Change retrieved", view)
}

func (h *ChangeHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	resp, err := h.workflow.ListChanges(r.Context(), inbound.ListChangesRequest{
		Status:    entity.ChangeStatus(q.Get("status")),
		Limit:     limit,
		NextToken: q.Get("nextToken"),
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Changes retrieved", resp)
}

func (h *ChangeHandler) History(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}

	resp, err := h.workflow.History(r.Context(), inbound.HistoryRequest{
		Project:   vars["project"],
		Env:       vars["env"],
		Limit:     limit,
		NextToken: r.URL.Query().Get("nextToken"),
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "History retrieved", resp)
}

func (h *ChangeHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req inbound.RollbackRequest
	if !h.decodeAndValidate(w, r, &req, true) {
		return
	}
	req.Actor = middleware.Identity(r.Context())

	resp, err := h.workflow.Rollback(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Rollback applied", resp)
}

func (h *ChangeHandler) reviewRequest(w http.ResponseWriter, r *http.Request) (inbound.ReviewRequest, bool) {
	var req inbound.ReviewRequest
	if !h.decodeAndValidate(w, r, &req, false) {
		return req, false
	}
	req.ChangeID = mux.Vars(r)["changeId"]
	req.Reviewer = middleware.Identity(r.Context())
	return req, true
}

// decodeAndValidate reads a JSON body into dst. An empty body is accepted
// unless required is set.
func (h *ChangeHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, required bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && !required:
	case err != nil:
		h.logger.Debug(r.Context(), "Invalid request body", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		response.BadRequest(w, "Invalid request body")
		return false
	}

	if err := validator.ValidateStruct(dst); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		response.BadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
