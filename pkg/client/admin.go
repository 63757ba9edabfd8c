package client

import (
	"context"
	"fmt"

	"github.com/castsync/go-castsync/buildinfo"
	"github.com/castsync/go-castsync/internal/targets"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
)

// QueueCounts returns the job counts of the given queue.
func (c *Client) QueueCounts(ctx context.Context, queue string) (jobqueue.Counts, error) {
	var counts jobqueue.Counts
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/queues/%s/counts", queue), nil, &counts); err != nil {
		return jobqueue.Counts{}, err
	}
	return counts, nil
}

// PauseQueue stops workers from picking up jobs of the given queue.
func (c *Client) PauseQueue(ctx context.Context, queue string) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/queues/%s/pause", queue), nil, nil)
}

// ResumeQueue re-enables a paused queue.
func (c *Client) ResumeQueue(ctx context.Context, queue string) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/queues/%s/resume", queue), nil, nil)
}

// ClearQueue drops all pending jobs of the given queue.
func (c *Client) ClearQueue(ctx context.Context, queue string) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/queues/%s/clear", queue), nil, nil)
}

// Status returns the sync status of the node.
func (c *Client) Status(ctx context.Context) (targets.Status, error) {
	var status targets.Status
	if err := c.call(ctx, "GET", "/api/v1/status", nil, &status); err != nil {
		return targets.Status{}, err
	}
	return status, nil
}

// HubInfo returns the info of the hub the node is connected to.
func (c *Client) HubInfo(ctx context.Context) (hub.Info, error) {
	var info hub.Info
	if err := c.call(ctx, "GET", "/api/v1/hub", nil, &info); err != nil {
		return hub.Info{}, err
	}
	return info, nil
}

// Version returns the build information of the node binary.
func (c *Client) Version(ctx context.Context) (buildinfo.Summary, error) {
	var summary buildinfo.Summary
	if err := c.call(ctx, "GET", "/version", nil, &summary); err != nil {
		return buildinfo.Summary{}, err
	}
	return summary, nil
}
