package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/router/middlewares"
	targetsimpl "github.com/castsync/go-castsync/internal/targets/impl"
	"github.com/castsync/go-castsync/pkg/database"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/jobqueue/jobqueuetest"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	storeimpl "github.com/castsync/go-castsync/pkg/sqlstore/impl"
	registryimpl "github.com/castsync/go-castsync/pkg/targets/impl"
	targetsetimpl "github.com/castsync/go-castsync/pkg/targetset/impl"
	"github.com/castsync/go-castsync/tests"
	"github.com/castsync/go-castsync/tests/fakehub"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router *mux.Router
	queue  *jobqueuetest.Queue
	hub    *fakehub.Hub
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	sqliteDB, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteDB.Close() })
	store := storeimpl.NewStore(sqliteDB)

	redisClient := redis.NewClient(tests.RedisOptions(t))
	t.Cleanup(func() { _ = redisClient.Close() })
	targetCache := targetsetimpl.NewRedisSet(redisClient, "targets")
	clientCache := targetsetimpl.NewRedisSet(redisClient, "client-targets")

	queue := jobqueuetest.New()
	registry := registryimpl.NewRegistry(store, targetCache, clientCache, queue, queue, registryimpl.Strategy{})
	fake := fakehub.New()
	sm := sharedmemory.NewSharedMemory()

	service := targetsimpl.NewTargetsService(registry, queue, fake, store, sm)
	ctrl := NewTargetsController(service)

	router := mux.NewRouter()
	router.HandleFunc("/targets", ctrl.AddTarget).Methods(http.MethodPost)
	router.HandleFunc("/targets", ctrl.ListTargets).Methods(http.MethodGet)
	fidRoutes := router.PathPrefix("/targets/{fid}").Subrouter()
	fidRoutes.Use(middlewares.RESTFID)
	fidRoutes.HandleFunc("", ctrl.UpdateTarget).Methods(http.MethodPatch)
	fidRoutes.HandleFunc("", ctrl.RemoveTarget).Methods(http.MethodDelete)
	fidRoutes.HandleFunc("/backfill", ctrl.TriggerBackfill).Methods(http.MethodPost)
	router.HandleFunc("/client-targets", ctrl.AddClientTarget).Methods(http.MethodPost)
	router.HandleFunc("/client-targets", ctrl.ListClientTargets).Methods(http.MethodGet)
	clientFIDRoutes := router.PathPrefix("/client-targets/{fid}").Subrouter()
	clientFIDRoutes.Use(middlewares.RESTFID)
	clientFIDRoutes.HandleFunc("", ctrl.RemoveClientTarget).Methods(http.MethodDelete)
	router.HandleFunc("/queues/{queue}/counts", ctrl.QueueCounts).Methods(http.MethodGet)
	router.HandleFunc("/queues/{queue}/{action}", ctrl.QueueAction).Methods(http.MethodPost)
	router.HandleFunc("/status", ctrl.Status).Methods(http.MethodGet)
	router.HandleFunc("/hub", ctrl.HubInfo).Methods(http.MethodGet)

	return fixture{router: router, queue: queue, hub: fake}
}

func (f fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestAddAndListTargets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "POST", "/targets", map[string]interface{}{"fid": 5, "is_root": true})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"fid":5,"is_root":true}`, rr.Body.String())

	// Adding a target enqueues its backfill.
	require.True(t, f.queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(5)))

	rr = f.do(t, "POST", "/targets", map[string]interface{}{"fid": 5, "is_root": true})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, "GET", "/targets?is_root=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listResp ListTargetsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	require.Len(t, listResp.Targets, 1)
	require.Equal(t, castsync.FID(5), listResp.Targets[0].FID)
	require.True(t, listResp.Targets[0].IsRoot)
	require.Equal(t, int64(1), listResp.Counts.Total)
}

func TestAddTargetInvalidBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "POST", "/targets", map[string]interface{}{"fid": 0})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest("POST", "/targets", bytes.NewReader([]byte("{")))
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateAndRemoveTarget(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "POST", "/targets", map[string]interface{}{"fid": 9})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, "PATCH", "/targets/9", map[string]interface{}{"is_root": true})
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"fid":9,"is_root":true}`, rr.Body.String())

	rr = f.do(t, "PATCH", "/targets/404", map[string]interface{}{"is_root": true})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, "PATCH", "/targets/zzz", map[string]interface{}{"is_root": true})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "DELETE", "/targets/9", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, "DELETE", "/targets/9", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTriggerBackfill(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "POST", "/targets", map[string]interface{}{"fid": 3})
	require.Equal(t, http.StatusCreated, rr.Code)

	// The backfill from the add is still queued, so the trigger is a no-op.
	rr = f.do(t, "POST", "/targets/3/backfill", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.NoError(t, f.queue.Clear(context.Background(), jobqueue.QueueBackfill))
	rr = f.do(t, "POST", "/targets/3/backfill", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.True(t, f.queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(3)))

	rr = f.do(t, "POST", "/targets/404/backfill", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClientTargets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "GET", "/client-targets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())

	rr = f.do(t, "POST", "/client-targets", map[string]interface{}{"fid": 7})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, "POST", "/client-targets", map[string]interface{}{"fid": 7})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, "GET", "/client-targets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []castsync.ClientTarget
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, castsync.FID(7), list[0].FID)

	rr = f.do(t, "DELETE", "/client-targets/7", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, "DELETE", "/client-targets/7", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := f.do(t, "POST", fmt.Sprintf("/queues/%s/pause", jobqueue.QueueBackfill), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "GET", fmt.Sprintf("/queues/%s/counts", jobqueue.QueueBackfill), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var counts jobqueue.Counts
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counts))
	require.True(t, counts.Paused)

	rr = f.do(t, "POST", fmt.Sprintf("/queues/%s/resume", jobqueue.QueueBackfill), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "POST", fmt.Sprintf("/queues/%s/clear", jobqueue.QueueBackfill), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "POST", "/queues/bogus/pause", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "GET", "/queues/bogus/counts", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", fmt.Sprintf("/queues/%s/explode", jobqueue.QueueBackfill), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListTargetsInvalidParams(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, query := range []string{
		"limit=0",
		"limit=abc",
		"offset=-1",
		"is_root=maybe",
		"sync_status=bogus",
		"date_from=yesterday",
	} {
		rr := f.do(t, "GET", "/targets?"+query, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestListTargetsSorted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, fid := range []int{3, 1, 2} {
		rr := f.do(t, "POST", "/targets", map[string]interface{}{"fid": fid})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := f.do(t, "GET", "/targets?sort_by=fid&sort_order=desc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listResp ListTargetsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	require.Len(t, listResp.Targets, 3)
	require.Equal(t, castsync.FID(3), listResp.Targets[0].FID)
	require.Equal(t, castsync.FID(1), listResp.Targets[2].FID)
}

func TestStatusAndHubInfo(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.hub.Info = hub.Info{Version: "1.19.1", Nickname: "hoyt"}

	rr := f.do(t, "GET", "/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Contains(t, status, "last_event_id")
	require.Contains(t, status, "invariants")

	rr = f.do(t, "GET", "/hub", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var info hub.Info
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	require.Equal(t, "hoyt", info.Nickname)

	f.hub.Err = &hub.AllHubsFailedError{}
	rr = f.do(t, "GET", "/hub", nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
}
