package inference

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdmitRejectsAtWorkerCap(t *testing.T) {
	w := NewWorker(RoleEmbedFast, 1, 1, nil, nil, nil, nil)
	ok, reason := w.Admit(LaneLive)
	require.True(t, ok)
	require.Equal(t, ReasonNone, reason)

	ok, reason = w.Admit(LaneLive)
	require.False(t, ok)
	require.Equal(t, ReasonWorkerQueueFull, reason)
}

func TestAdmitRejectsAtGlobalCap(t *testing.T) {
	globalCap := int64(1)
	globalDepth := int64(0)
	w1 := NewWorker(RoleEmbedFast, 5, 5, &globalCap, nil, &globalDepth, nil)
	w2 := NewWorker(RoleEmbedStrong, 5, 5, &globalCap, nil, &globalDepth, nil)

	ok, _ := w1.Admit(LaneLive)
	require.True(t, ok)

	ok, reason := w2.Admit(LaneLive)
	require.False(t, ok)
	require.Equal(t, ReasonGlobalLiveQueueFull, reason)
}

func TestEvaluateTimeoutOnExpiredDeadline(t *testing.T) {
	w := NewWorker(RoleQaExtractive, 5, 5, nil, nil, nil, nil)
	status, reason := w.Evaluate(Envelope{DeadlineMs: 1})
	require.Equal(t, StatusTimeout, status)
	require.NotEmpty(t, reason)
}

func TestCancelTokenObservedByLaterCall(t *testing.T) {
	w := NewWorker(RoleRerankFast, 5, 5, nil, nil, nil, nil)
	w.Cancel("tok-1")
	status, _ := w.Evaluate(Envelope{CancelToken: "tok-1"})
	require.Equal(t, StatusCancelled, status)
}

func TestRoleSupervisorRestartThresholdAndBudget(t *testing.T) {
	rs := NewRoleSupervisor()
	// Two failures: below threshold, no restart requested.
	wantsRestart, _ := rs.RecordFailure()
	require.False(t, wantsRestart)
	wantsRestart, _ = rs.RecordFailure()
	require.False(t, wantsRestart)

	// Third consecutive failure crosses restartThreshold (3).
	wantsRestart, backoff := rs.RecordFailure()
	require.True(t, wantsRestart)
	require.Greater(t, backoff, time.Duration(0))
	require.Equal(t, RoleDegraded, rs.Status())
}

func TestRoleSupervisorGivesUpAfterBudgetExhausted(t *testing.T) {
	rs := NewRoleSupervisor()
	for i := 0; i < 3*restartBudget; i++ {
		rs.RecordFailure()
	}
	require.Equal(t, RoleGivingUp, rs.Status())
	wantsRestart, _ := rs.RecordFailure()
	require.False(t, wantsRestart, "giving-up role must never request another restart")
}

func TestRoleSupervisorSuccessResetsState(t *testing.T) {
	rs := NewRoleSupervisor()
	rs.RecordFailure()
	rs.RecordFailure()
	rs.RecordSuccess()
	require.Equal(t, RoleReady, rs.Status())
}

func TestRoleSupervisorTimeoutResetsConsecutiveFailuresOnly(t *testing.T) {
	rs := NewRoleSupervisor()
	rs.RecordFailure()
	rs.RecordTimeout()
	snap := rs.Snapshot()
	require.Equal(t, 1, snap.FailureCount)
	require.Equal(t, RoleReady, snap.Status)
}

func TestServiceInvokeSuccessAndFailure(t *testing.T) {
	svc := NewService(nil, GlobalCaps{LiveCap: 100, RebuildCap: 100})

	res := svc.Invoke(RoleEmbedFast, LaneLive, Envelope{RequestID: "r1"}, nil, func(role Role, payload any) (any, error) {
		return "ok", nil
	})
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, RoleEmbedFast, res.ModelRole)

	res = svc.Invoke(RoleEmbedFast, LaneLive, Envelope{RequestID: "r2"}, nil, func(role Role, payload any) (any, error) {
		return nil, errors.New("boom")
	})
	require.Equal(t, StatusRejected, res.Status)
	require.Equal(t, "boom", res.FallbackReason)
}

func TestGetInferenceHealthCoversAllRoles(t *testing.T) {
	svc := NewService(nil, GlobalCaps{LiveCap: 10, RebuildCap: 10})
	health := svc.GetInferenceHealth()
	require.Len(t, health.RoleStatusByModel, len(AllRoles))
	for _, role := range AllRoles {
		require.Equal(t, RoleReady, health.RoleStatusByModel[role])
	}
}
