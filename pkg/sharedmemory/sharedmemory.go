// Package sharedmemory has the in-process state shared between the workers
// and the admin API.
package sharedmemory

import (
	"sync"
	"time"
)

// SharedMemory is an in-memory thread-safe data structure to exchange data
// between the workers and the admin API.
type SharedMemory struct {
	mu              sync.RWMutex
	lastSeenEventID uint64
	hasLastSeen     bool
	lastFlush       time.Time
	workerHeartbeat map[string]time.Time
}

// NewSharedMemory creates new SharedMemory object.
func NewSharedMemory() *SharedMemory {
	return &SharedMemory{
		workerHeartbeat: make(map[string]time.Time),
	}
}

// SetLastSeenEventID sets the last hub event id seen by the realtime worker.
func (sm *SharedMemory) SetLastSeenEventID(eventID uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastSeenEventID = eventID
	sm.hasLastSeen = true
}

// GetLastSeenEventID gets the last hub event id seen by the realtime worker.
func (sm *SharedMemory) GetLastSeenEventID() (uint64, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastSeenEventID, sm.hasLastSeen
}

// SetLastFlush sets the time of the event processor's last flush.
func (sm *SharedMemory) SetLastFlush(t time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastFlush = t
}

// GetLastFlush gets the time of the event processor's last flush.
func (sm *SharedMemory) GetLastFlush() (time.Time, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastFlush, !sm.lastFlush.IsZero()
}

// Heartbeat records that the named worker was alive at t.
func (sm *SharedMemory) Heartbeat(worker string, t time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.workerHeartbeat[worker] = t
}

// Heartbeats returns a copy of the per-worker liveness timestamps.
func (sm *SharedMemory) Heartbeats() map[string]time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	heartbeats := make(map[string]time.Time, len(sm.workerHeartbeat))
	for worker, t := range sm.workerHeartbeat {
		heartbeats[worker] = t
	}
	return heartbeats
}
