package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/router/controllers"
)

// ListTargetsQuery filters and paginates target listings.
type ListTargetsQuery struct {
	Limit      int
	Offset     int
	Search     string
	IsRoot     *bool
	SyncStatus string
	DateFrom   *time.Time
	DateTo     *time.Time
	SortBy     string
	SortOrder  string
}

func (q ListTargetsQuery) encode() string {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.IsRoot != nil {
		values.Set("is_root", strconv.FormatBool(*q.IsRoot))
	}
	if q.SyncStatus != "" {
		values.Set("sync_status", q.SyncStatus)
	}
	if q.DateFrom != nil {
		values.Set("date_from", q.DateFrom.Format(time.RFC3339))
	}
	if q.DateTo != nil {
		values.Set("date_to", q.DateTo.Format(time.RFC3339))
	}
	if q.SortBy != "" {
		values.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		values.Set("sort_order", q.SortOrder)
	}
	return values.Encode()
}

// AddTarget registers a new target in the node and schedules its backfill.
func (c *Client) AddTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	body := map[string]interface{}{"fid": fid, "is_root": isRoot}
	return c.call(ctx, "POST", "/api/v1/targets", body, nil)
}

// UpdateTarget changes the root flag of an existing target.
func (c *Client) UpdateTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	body := map[string]interface{}{"is_root": isRoot}
	return c.call(ctx, "PATCH", fmt.Sprintf("/api/v1/targets/%d", fid), body, nil)
}

// RemoveTarget deletes a target from the node.
func (c *Client) RemoveTarget(ctx context.Context, fid castsync.FID) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/api/v1/targets/%d", fid), nil, nil)
}

// ListTargets returns a page of targets with their sync status, plus counts.
func (c *Client) ListTargets(ctx context.Context, query ListTargetsQuery) (controllers.ListTargetsResponse, error) {
	path := "/api/v1/targets"
	if encoded := query.encode(); encoded != "" {
		path += "?" + encoded
	}
	var response controllers.ListTargetsResponse
	if err := c.call(ctx, "GET", path, nil, &response); err != nil {
		return controllers.ListTargetsResponse{}, err
	}
	return response, nil
}

// TriggerBackfill re-enqueues the backfill of an existing target.
func (c *Client) TriggerBackfill(ctx context.Context, fid castsync.FID) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/targets/%d/backfill", fid), nil, nil)
}

// AddClientTarget registers a client target for signer discovery.
func (c *Client) AddClientTarget(ctx context.Context, fid castsync.FID) error {
	body := map[string]interface{}{"fid": fid}
	return c.call(ctx, "POST", "/api/v1/client-targets", body, nil)
}

// RemoveClientTarget deletes a client target from the node.
func (c *Client) RemoveClientTarget(ctx context.Context, fid castsync.FID) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/api/v1/client-targets/%d", fid), nil, nil)
}

// ClientTargets returns all registered client targets.
func (c *Client) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	var list []castsync.ClientTarget
	if err := c.call(ctx, "GET", "/api/v1/client-targets", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}
