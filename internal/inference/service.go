package inference

import "sync"

// GlobalCaps bounds the service-wide Live/Rebuild admission pools shared
// across every worker (§4.7: "global cap").
type GlobalCaps struct {
	LiveCap    int64
	RebuildCap int64
}

// Service owns one Worker and one RoleSupervisor per role, plus the shared
// global depth counters every worker's Admit checks against.
type Service struct {
	mu sync.Mutex

	workers     map[Role]*Worker
	supervisors map[Role]*RoleSupervisor

	globalLiveCap      int64
	globalRebuildCap   int64
	globalLiveDepth    int64
	globalRebuildDepth int64
}

// WorkerCaps configures one role's per-worker Live/Rebuild admission caps.
type WorkerCaps struct {
	Live    int
	Rebuild int
}

// NewService builds a service with a worker per role in perRole, sharing
// the supplied global caps.
func NewService(perRole map[Role]WorkerCaps, global GlobalCaps) *Service {
	s := &Service{
		workers:          make(map[Role]*Worker),
		supervisors:      make(map[Role]*RoleSupervisor),
		globalLiveCap:    global.LiveCap,
		globalRebuildCap: global.RebuildCap,
	}
	for _, role := range AllRoles {
		caps, ok := perRole[role]
		if !ok {
			caps = WorkerCaps{Live: 64, Rebuild: 256}
		}
		s.workers[role] = NewWorker(role, caps.Live, caps.Rebuild,
			&s.globalLiveCap, &s.globalRebuildCap, &s.globalLiveDepth, &s.globalRebuildDepth)
		s.supervisors[role] = NewRoleSupervisor()
	}
	return s
}

// Worker returns the worker for role, or nil if role is unknown.
func (s *Service) Worker(role Role) *Worker { return s.workers[role] }

// Supervisor returns the role supervisor for role, or nil if unknown.
func (s *Service) Supervisor(role Role) *RoleSupervisor { return s.supervisors[role] }

// HealthSnapshot is the shape get_inference_health returns.
type HealthSnapshot struct {
	RoleStatusByModel          map[Role]RoleStatus
	QueueDepthByRole           map[Role]int
	TimeoutCountByRole         map[Role]int
	FailureCountByRole         map[Role]int
	RestartCountByRole         map[Role]int
	RestartBudgetExhaustedByRole map[Role]bool
}

// GetInferenceHealth aggregates per-role snapshots into the wire shape.
func (s *Service) GetInferenceHealth() HealthSnapshot {
	out := HealthSnapshot{
		RoleStatusByModel:          make(map[Role]RoleStatus),
		QueueDepthByRole:           make(map[Role]int),
		TimeoutCountByRole:         make(map[Role]int),
		FailureCountByRole:         make(map[Role]int),
		RestartCountByRole:         make(map[Role]int),
		RestartBudgetExhaustedByRole: make(map[Role]bool),
	}
	for _, role := range AllRoles {
		snap := s.supervisors[role].Snapshot()
		out.RoleStatusByModel[role] = snap.Status
		out.QueueDepthByRole[role] = s.workers[role].QueueDepth()
		out.TimeoutCountByRole[role] = snap.TimeoutCount
		out.FailureCountByRole[role] = snap.FailureCount
		out.RestartCountByRole[role] = snap.RestartCount
		out.RestartBudgetExhaustedByRole[role] = snap.RestartBudgetExhausted
	}
	return out
}

// ModelInvoker performs the actual model call for a role; services bind a
// concrete implementation (ONNX session, stub scorer, etc.) per
// SPEC_FULL.md's external-collaborator boundary. It returns the result
// payload and an error for RecordFailure bookkeeping.
type ModelInvoker func(role Role, payload any) (any, error)

// Invoke runs the full per-request lifecycle for role: envelope gating,
// lane admission, model invocation, and supervisor bookkeeping.
func (s *Service) Invoke(role Role, lane Lane, env Envelope, payload any, invoke ModelInvoker) Result {
	w := s.workers[role]
	sup := s.supervisors[role]
	if w == nil || sup == nil {
		return Result{Status: StatusRejected, ModelRole: role, FallbackReason: "unknown role"}
	}

	if status, reason := w.Evaluate(env); status != StatusOK {
		return Result{Status: status, ModelRole: role, FallbackReason: reason}
	}

	ok, reason := w.Admit(lane)
	if !ok {
		return Result{Status: StatusRejected, ModelRole: role, FallbackReason: string(reason)}
	}
	defer w.Release(lane)

	if sup.Status() == RoleGivingUp {
		return Result{Status: StatusRejected, ModelRole: role, FallbackReason: "role giving_up"}
	}

	_, err := invoke(role, payload)
	if err != nil {
		sup.RecordFailure()
		return Result{Status: StatusRejected, ModelRole: role, FallbackReason: err.Error()}
	}
	sup.RecordSuccess()
	return Result{Status: StatusOK, ModelRole: role}
}
