// Package fakehub has an in-memory hub.Client used by worker unit tests.
package fakehub

import (
	"context"
	"sync"

	"github.com/castsync/go-castsync/pkg/hub"
)

// Hub is an in-memory hub.Client serving canned per-fid messages and a
// canned event stream.
type Hub struct {
	mu sync.Mutex

	Info          hub.Info
	Casts         map[uint64][]hub.Message
	Reactions     map[uint64][]hub.Message
	Links         map[uint64][]hub.Message
	Verifications map[uint64][]hub.Message
	UserData      map[uint64][]hub.Message
	OnChainEvents map[uint64][]hub.OnChainEvent
	Events        []hub.Event

	// Err, when set, is returned by every call.
	Err error
}

var _ hub.Client = (*Hub)(nil)

// New creates an empty fake hub.
func New() *Hub {
	return &Hub{
		Casts:         map[uint64][]hub.Message{},
		Reactions:     map[uint64][]hub.Message{},
		Links:         map[uint64][]hub.Message{},
		Verifications: map[uint64][]hub.Message{},
		UserData:      map[uint64][]hub.Message{},
		OnChainEvents: map[uint64][]hub.OnChainEvent{},
	}
}

// AppendEvent adds an event to the canned stream.
func (h *Hub) AppendEvent(event hub.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, event)
}

// GetHubInfo implements hub.Client.
func (h *Hub) GetHubInfo(_ context.Context) (hub.Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Info, h.Err
}

// GetEvents implements hub.Client. Events with ID > FromEventID are returned
// in order, up to PageSize.
func (h *Hub) GetEvents(_ context.Context, req hub.GetEventsRequest) (hub.EventsPage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return hub.EventsPage{}, h.Err
	}

	var page hub.EventsPage
	for _, event := range h.Events {
		if event.ID <= req.FromEventID {
			continue
		}
		if req.PageSize > 0 && len(page.Events) == req.PageSize {
			break
		}
		page.Events = append(page.Events, event)
	}
	if len(page.Events) > 0 {
		page.NextPageEventID = page.Events[len(page.Events)-1].ID + 1
	} else {
		page.NextPageEventID = req.FromEventID
	}
	return page, nil
}

func (h *Hub) messagesPage(byFID map[uint64][]hub.Message, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return hub.MessagesPage{}, h.Err
	}
	// Single page; the pagination drivers are covered by the HTTP client tests.
	_ = req
	return hub.MessagesPage{Messages: byFID[fid]}, nil
}

// GetCastsByFID implements hub.Client.
func (h *Hub) GetCastsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return h.messagesPage(h.Casts, fid, req)
}

// GetReactionsByFID implements hub.Client.
func (h *Hub) GetReactionsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return h.messagesPage(h.Reactions, fid, req)
}

// GetLinksByFID implements hub.Client.
func (h *Hub) GetLinksByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return h.messagesPage(h.Links, fid, req)
}

// GetVerificationsByFID implements hub.Client.
func (h *Hub) GetVerificationsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return h.messagesPage(h.Verifications, fid, req)
}

// GetUserDataByFID implements hub.Client.
func (h *Hub) GetUserDataByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return h.messagesPage(h.UserData, fid, req)
}

// GetOnChainSignersByFID implements hub.Client.
func (h *Hub) GetOnChainSignersByFID(
	ctx context.Context,
	fid uint64,
	req hub.PageRequest,
) (hub.OnChainEventsPage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return hub.OnChainEventsPage{}, h.Err
	}
	return hub.OnChainEventsPage{Events: h.OnChainEvents[fid]}, nil
}

// GetAllCastsByFID implements hub.Client.
func (h *Hub) GetAllCastsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	page, err := h.GetCastsByFID(ctx, fid, hub.PageRequest{})
	return page.Messages, err
}

// GetAllReactionsByFID implements hub.Client.
func (h *Hub) GetAllReactionsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	page, err := h.GetReactionsByFID(ctx, fid, hub.PageRequest{})
	return page.Messages, err
}

// GetAllLinksByFID implements hub.Client.
func (h *Hub) GetAllLinksByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	page, err := h.GetLinksByFID(ctx, fid, hub.PageRequest{})
	return page.Messages, err
}

// GetAllVerificationsByFID implements hub.Client.
func (h *Hub) GetAllVerificationsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	page, err := h.GetVerificationsByFID(ctx, fid, hub.PageRequest{})
	return page.Messages, err
}

// GetAllUserDataByFID implements hub.Client.
func (h *Hub) GetAllUserDataByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	page, err := h.GetUserDataByFID(ctx, fid, hub.PageRequest{})
	return page.Messages, err
}

// GetAllOnChainSignersByFID implements hub.Client.
func (h *Hub) GetAllOnChainSignersByFID(ctx context.Context, fid uint64) ([]hub.OnChainEvent, error) {
	page, err := h.GetOnChainSignersByFID(ctx, fid, hub.PageRequest{})
	return page.Events, err
}
