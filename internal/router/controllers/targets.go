package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/router/middlewares"
	"github.com/castsync/go-castsync/internal/targets"
	serviceerr "github.com/castsync/go-castsync/pkg/errors"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	registry "github.com/castsync/go-castsync/pkg/targets"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// TargetsController defines the HTTP handlers for the admin API.
type TargetsController struct {
	service targets.TargetsService
}

// NewTargetsController creates a new TargetsController.
func NewTargetsController(svc targets.TargetsService) *TargetsController {
	return &TargetsController{svc}
}

type targetRequest struct {
	FID    castsync.FID `json:"fid"`
	IsRoot bool         `json:"is_root"`
}

// ListTargetsResponse is the body of the target listing endpoint.
type ListTargetsResponse struct {
	Targets []registry.TargetInfo `json:"targets"`
	Counts  sqlstore.TargetCounts `json:"counts"`
}

// AddTarget handles the POST /api/v1/targets call.
func (c *TargetsController) AddTarget(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FID == 0 {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Invalid request body"})
		return
	}

	if err := c.service.AddTarget(ctx, req.FID, req.IsRoot); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			rw.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Target already exists"})
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(req.FID)).Msg("adding target")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Adding target failed"})
		return
	}

	rw.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(rw).Encode(req)
}

// ListTargets handles the GET /api/v1/targets call.
func (c *TargetsController) ListTargets(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	params, err := listParamsFromQuery(r)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: err.Error()})
		return
	}

	list, counts, err := c.service.ListTargets(ctx, params)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Msg("listing targets")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Listing targets failed"})
		return
	}
	if list == nil {
		list = []registry.TargetInfo{}
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(ListTargetsResponse{Targets: list, Counts: counts})
}

// UpdateTarget handles the PATCH /api/v1/targets/{fid} call.
func (c *TargetsController) UpdateTarget(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	fid := ctx.Value(middlewares.ContextKeyFID).(castsync.FID)

	var req struct {
		IsRoot bool `json:"is_root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Invalid request body"})
		return
	}

	if err := c.service.UpdateTarget(ctx, fid, req.IsRoot); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Target not found"})
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(fid)).Msg("updating target")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Updating target failed"})
		return
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(targetRequest{FID: fid, IsRoot: req.IsRoot})
}

// RemoveTarget handles the DELETE /api/v1/targets/{fid} call.
func (c *TargetsController) RemoveTarget(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fid := ctx.Value(middlewares.ContextKeyFID).(castsync.FID)

	if err := c.service.RemoveTarget(ctx, fid); err != nil {
		rw.Header().Set("Content-Type", "application/json")
		if errors.Is(err, registry.ErrNotFound) {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Target not found"})
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(fid)).Msg("removing target")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Removing target failed"})
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

// TriggerBackfill handles the POST /api/v1/targets/{fid}/backfill call.
func (c *TargetsController) TriggerBackfill(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	fid := ctx.Value(middlewares.ContextKeyFID).(castsync.FID)

	err := c.service.TriggerBackfill(ctx, fid)
	switch {
	case err == nil, errors.Is(err, jobqueue.ErrAlreadyQueued):
		// An already queued backfill makes the trigger a no-op.
		rw.WriteHeader(http.StatusAccepted)
	case errors.Is(err, registry.ErrNotFound):
		rw.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Target not found"})
	default:
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(fid)).Msg("triggering backfill")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Triggering backfill failed"})
	}
}

// AddClientTarget handles the POST /api/v1/client-targets call.
func (c *TargetsController) AddClientTarget(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	var req struct {
		FID castsync.FID `json:"fid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FID == 0 {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Invalid request body"})
		return
	}

	if err := c.service.AddClientTarget(ctx, req.FID); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			rw.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Client target already exists"})
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(req.FID)).Msg("adding client target")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Adding client target failed"})
		return
	}

	rw.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(rw).Encode(req)
}

// RemoveClientTarget handles the DELETE /api/v1/client-targets/{fid} call.
func (c *TargetsController) RemoveClientTarget(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fid := ctx.Value(middlewares.ContextKeyFID).(castsync.FID)

	if err := c.service.RemoveClientTarget(ctx, fid); err != nil {
		rw.Header().Set("Content-Type", "application/json")
		if errors.Is(err, registry.ErrNotFound) {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Client target not found"})
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Uint64("fid", uint64(fid)).Msg("removing client target")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Removing client target failed"})
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

// ListClientTargets handles the GET /api/v1/client-targets call.
func (c *TargetsController) ListClientTargets(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	list, err := c.service.ClientTargets(ctx)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Msg("listing client targets")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Listing client targets failed"})
		return
	}
	if list == nil {
		list = []castsync.ClientTarget{}
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(list)
}

// QueueCounts handles the GET /api/v1/queues/{queue}/counts call.
func (c *TargetsController) QueueCounts(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	queue := mux.Vars(r)["queue"]

	counts, err := c.service.QueueCounts(ctx, queue)
	if err != nil {
		c.queueError(ctx, rw, err, queue, "getting queue counts")
		return
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(counts)
}

// QueueAction handles the POST /api/v1/queues/{queue}/{action} call for
// pause, resume, and clear.
func (c *TargetsController) QueueAction(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	vars := mux.Vars(r)
	queue := vars["queue"]

	var err error
	switch vars["action"] {
	case "pause":
		err = c.service.PauseQueue(ctx, queue)
	case "resume":
		err = c.service.ResumeQueue(ctx, queue)
	case "clear":
		err = c.service.ClearQueue(ctx, queue)
	default:
		rw.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Unknown queue action"})
		return
	}
	if err != nil {
		c.queueError(ctx, rw, err, queue, "applying queue action")
		return
	}

	rw.WriteHeader(http.StatusOK)
}

// Status handles the GET /api/v1/status call.
func (c *TargetsController) Status(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	status, err := c.service.Status(ctx)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		log.Ctx(ctx).Error().Err(err).Msg("building status")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Building status failed"})
		return
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(status)
}

// HubInfo handles the GET /api/v1/hub call.
func (c *TargetsController) HubInfo(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	info, err := c.service.HubInfo(ctx)
	if err != nil {
		rw.WriteHeader(http.StatusBadGateway)
		log.Ctx(ctx).Error().Err(err).Msg("fetching hub info")
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Fetching hub info failed"})
		return
	}

	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(info)
}

func (c *TargetsController) queueError(
	ctx context.Context,
	rw http.ResponseWriter,
	err error,
	queue string,
	msg string,
) {
	if errors.Is(err, targets.ErrUnknownQueue) {
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Unknown queue"})
		return
	}
	rw.WriteHeader(http.StatusInternalServerError)
	log.Ctx(ctx).Error().Err(err).Str("queue", queue).Msg(msg)
	_ = json.NewEncoder(rw).Encode(serviceerr.ServiceError{Message: "Queue operation failed"})
}

func listParamsFromQuery(r *http.Request) (sqlstore.ListTargetsParams, error) {
	params := sqlstore.ListTargetsParams{}
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return sqlstore.ListTargetsParams{}, errors.New("invalid limit")
		}
		params.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return sqlstore.ListTargetsParams{}, errors.New("invalid offset")
		}
		params.Offset = offset
	}
	params.Search = query.Get("search")
	if v := query.Get("is_root"); v != "" {
		isRoot, err := strconv.ParseBool(v)
		if err != nil {
			return sqlstore.ListTargetsParams{}, errors.New("invalid is_root")
		}
		params.IsRoot = &isRoot
	}
	if v := query.Get("sync_status"); v != "" {
		status := castsync.SyncStatus(v)
		switch status {
		case castsync.SyncStatusSynced, castsync.SyncStatusWaiting, castsync.SyncStatusUnsynced:
			params.SyncStatus = &status
		default:
			return sqlstore.ListTargetsParams{}, errors.New("invalid sync_status")
		}
	}
	if v := query.Get("date_from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return sqlstore.ListTargetsParams{}, errors.New("invalid date_from")
		}
		params.DateFrom = &from
	}
	if v := query.Get("date_to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return sqlstore.ListTargetsParams{}, errors.New("invalid date_to")
		}
		params.DateTo = &to
	}
	params.SortBy = query.Get("sort_by")
	params.SortOrder = query.Get("sort_order")

	return params, nil
}
