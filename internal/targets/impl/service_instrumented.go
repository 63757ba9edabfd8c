package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/targets"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/metrics"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	registry "github.com/castsync/go-castsync/pkg/targets"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

// InstrumentedTargetsService implements an instrumented targets.TargetsService.
type InstrumentedTargetsService struct {
	service          targets.TargetsService
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ targets.TargetsService = (*InstrumentedTargetsService)(nil)

// NewInstrumentedTargetsService creates a new instrumented admin service.
func NewInstrumentedTargetsService(service targets.TargetsService) (*InstrumentedTargetsService, error) {
	meter := global.MeterProvider().Meter("castsync")
	callCount, err := meter.Int64Counter("castsync.targetsservice.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("castsync.targetsservice.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}

	return &InstrumentedTargetsService{
		service:          service,
		callCount:        callCount,
		latencyHistogram: latencyHistogram,
	}, nil
}

func (s *InstrumentedTargetsService) record(ctx context.Context, method string, start time.Time, err error) {
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
	}, metrics.BaseAttrs...)

	s.callCount.Add(ctx, 1, attributes...)
	s.latencyHistogram.Record(ctx, time.Since(start).Milliseconds(), attributes...)
}

// AddTarget implements targets.TargetsService.
func (s *InstrumentedTargetsService) AddTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	start := time.Now()
	err := s.service.AddTarget(ctx, fid, isRoot)
	s.record(ctx, "AddTarget", start, err)
	return err
}

// RemoveTarget implements targets.TargetsService.
func (s *InstrumentedTargetsService) RemoveTarget(ctx context.Context, fid castsync.FID) error {
	start := time.Now()
	err := s.service.RemoveTarget(ctx, fid)
	s.record(ctx, "RemoveTarget", start, err)
	return err
}

// UpdateTarget implements targets.TargetsService.
func (s *InstrumentedTargetsService) UpdateTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	start := time.Now()
	err := s.service.UpdateTarget(ctx, fid, isRoot)
	s.record(ctx, "UpdateTarget", start, err)
	return err
}

// ListTargets implements targets.TargetsService.
func (s *InstrumentedTargetsService) ListTargets(
	ctx context.Context,
	params sqlstore.ListTargetsParams,
) ([]registry.TargetInfo, sqlstore.TargetCounts, error) {
	start := time.Now()
	list, counts, err := s.service.ListTargets(ctx, params)
	s.record(ctx, "ListTargets", start, err)
	return list, counts, err
}

// TriggerBackfill implements targets.TargetsService.
func (s *InstrumentedTargetsService) TriggerBackfill(ctx context.Context, fid castsync.FID) error {
	start := time.Now()
	err := s.service.TriggerBackfill(ctx, fid)
	s.record(ctx, "TriggerBackfill", start, err)
	return err
}

// AddClientTarget implements targets.TargetsService.
func (s *InstrumentedTargetsService) AddClientTarget(ctx context.Context, fid castsync.FID) error {
	start := time.Now()
	err := s.service.AddClientTarget(ctx, fid)
	s.record(ctx, "AddClientTarget", start, err)
	return err
}

// RemoveClientTarget implements targets.TargetsService.
func (s *InstrumentedTargetsService) RemoveClientTarget(ctx context.Context, fid castsync.FID) error {
	start := time.Now()
	err := s.service.RemoveClientTarget(ctx, fid)
	s.record(ctx, "RemoveClientTarget", start, err)
	return err
}

// ClientTargets implements targets.TargetsService.
func (s *InstrumentedTargetsService) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	start := time.Now()
	list, err := s.service.ClientTargets(ctx)
	s.record(ctx, "ClientTargets", start, err)
	return list, err
}

// QueueCounts implements targets.TargetsService.
func (s *InstrumentedTargetsService) QueueCounts(ctx context.Context, queue string) (jobqueue.Counts, error) {
	start := time.Now()
	counts, err := s.service.QueueCounts(ctx, queue)
	s.record(ctx, "QueueCounts", start, err)
	return counts, err
}

// PauseQueue implements targets.TargetsService.
func (s *InstrumentedTargetsService) PauseQueue(ctx context.Context, queue string) error {
	start := time.Now()
	err := s.service.PauseQueue(ctx, queue)
	s.record(ctx, "PauseQueue", start, err)
	return err
}

// ResumeQueue implements targets.TargetsService.
func (s *InstrumentedTargetsService) ResumeQueue(ctx context.Context, queue string) error {
	start := time.Now()
	err := s.service.ResumeQueue(ctx, queue)
	s.record(ctx, "ResumeQueue", start, err)
	return err
}

// ClearQueue implements targets.TargetsService.
func (s *InstrumentedTargetsService) ClearQueue(ctx context.Context, queue string) error {
	start := time.Now()
	err := s.service.ClearQueue(ctx, queue)
	s.record(ctx, "ClearQueue", start, err)
	return err
}

// Status implements targets.TargetsService.
func (s *InstrumentedTargetsService) Status(ctx context.Context) (targets.Status, error) {
	start := time.Now()
	status, err := s.service.Status(ctx)
	s.record(ctx, "Status", start, err)
	return status, err
}

// HubInfo implements targets.TargetsService.
func (s *InstrumentedTargetsService) HubInfo(ctx context.Context) (hub.Info, error) {
	start := time.Now()
	info, err := s.service.HubInfo(ctx)
	s.record(ctx, "HubInfo", start, err)
	return info, err
}
