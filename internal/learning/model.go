package learning

import (
	"math"
	"sync"
)

// Backend is the active-model backend enum (§3 Learning model state).
type Backend string

const (
	BackendNone                Backend = "none"
	BackendNativeSGD           Backend = "native_sgd"
	BackendPlatformAccelerated Backend = "platform_accelerated"
)

// CycleStatus is the outcome of a completed training cycle.
type CycleStatus string

const (
	CycleSucceeded CycleStatus = "succeeded"
	CycleRejected  CycleStatus = "rejected"
)

// ModelState is the keyed state relation described in §3/§4.6: persisted
// across query-service restarts by whatever concrete store wraps it (see
// internal/store's learning_model_state_v1 table).
type ModelState struct {
	mu sync.Mutex

	activeVersion   int
	rollbackVersion int
	activeBackend   Backend
	lastCycleStatus CycleStatus
	lastCycleReason string

	weights map[string]float64

	recentCycles       []CycleRecord
	recentCyclesLimit  int
	nextCycleIndex     int
}

// NewModelState creates a model with no active model (serving falls back
// to base scores).
func NewModelState() *ModelState {
	return &ModelState{
		activeBackend:     BackendNone,
		recentCyclesLimit: 20,
	}
}

// Snapshot is the read-only view of persisted model state.
type Snapshot struct {
	ActiveVersion   int
	RollbackVersion int
	ActiveBackend   Backend
	LastCycleStatus CycleStatus
	LastCycleReason string
	ModelAvailable  bool
}

func (m *ModelState) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ActiveVersion:   m.activeVersion,
		RollbackVersion: m.rollbackVersion,
		ActiveBackend:   m.activeBackend,
		LastCycleStatus: m.lastCycleStatus,
		LastCycleReason: m.lastCycleReason,
		ModelAvailable:  m.activeBackend != BackendNone && m.weights != nil,
	}
}

// Promote persists newWeights as the active model: the version before this
// cycle becomes rollback_version, and the version after becomes
// active_version (§8 "Promotion persistence").
func (m *ModelState) Promote(newWeights map[string]float64, backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackVersion = m.activeVersion
	m.activeVersion++
	m.activeBackend = backend
	m.weights = newWeights
	m.lastCycleStatus = CycleSucceeded
	m.lastCycleReason = "promoted"
}

// RecordRejection persists a rejected cycle outcome without touching the
// active model.
func (m *ModelState) RecordRejection(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCycleStatus = CycleRejected
	m.lastCycleReason = reason
}

// Predict blends features with the active weights (a linear model, the
// simplest native_sgd shape); returns 0 if no model is active.
func (m *ModelState) Predict(features map[string]float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.weights == nil {
		return 0
	}
	var sum float64
	for k, v := range features {
		sum += m.weights[k] * v
	}
	return sigmoid(sum)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// CycleRecord is one entry in the ring-buffered recentLearningCycles,
// newest first, monotone non-increasing cycleIndex.
type CycleRecord struct {
	CycleIndex int
	Status     CycleStatus
	Reason     string
	Positives  int
	Negatives  int
}

// AppendCycle pushes a new record to the front of the ring buffer, bounded
// by recentCyclesLimit.
func (m *ModelState) AppendCycle(rec CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CycleIndex = m.nextCycleIndex
	m.nextCycleIndex++
	m.recentCycles = append([]CycleRecord{rec}, m.recentCycles...)
	if len(m.recentCycles) > m.recentCyclesLimit {
		m.recentCycles = m.recentCycles[:m.recentCyclesLimit]
	}
}

// RecentCycles returns a copy of the ring buffer, newest first.
func (m *ModelState) RecentCycles() []CycleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CycleRecord, len(m.recentCycles))
	copy(out, m.recentCycles)
	return out
}
