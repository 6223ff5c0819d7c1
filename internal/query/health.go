package query

// IndexQueueDepths mirrors the pipeline scheduler's queue-depth snapshot,
// kept narrow here to avoid importing internal/pipeline from this package.
type IndexQueueDepths struct {
	Live    int
	Rebuild int
}

// InferenceRoleHealth is one role's status line inside getHealth.
type InferenceRoleHealth struct {
	Role       string
	Status     string
	QueueDepth int
}

// RetrievalAdvisory is a non-fatal diagnostic surfaced alongside health,
// e.g. "semantic index stale" or "bsignore excludes N paths".
type RetrievalAdvisory struct {
	Code    string
	Message string
}

// HealthStatus is the overall traffic-light rollup.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// Health is the getHealth() response shape (§4.5.2).
type Health struct {
	Status              HealthStatus
	StatusReason        string
	QueueSource         string
	QueueDepths         IndexQueueDepths
	CriticalFailures    int
	ExpectedGapFailures int
	InferenceRoles      []InferenceRoleHealth
	Advisories          []RetrievalAdvisory
	MemoryBytesByService map[string]int64
}

// HealthInputs is everything getHealth needs from the rest of the running
// system, collected by the caller (internal/services/query) and passed in
// so this package stays free of cross-package runtime dependencies.
type HealthInputs struct {
	QueueSource         string
	QueueDepths         IndexQueueDepths
	CriticalFailures    int
	ExpectedGapFailures int
	InferenceRoles      []InferenceRoleHealth
	BsignoreExcludedPaths int
	MemoryBytesByService map[string]int64
}

// GetHealth derives the overall status from raw inputs: any critical
// failure or a giving_up inference role is critical; any expected-gap
// failure, degraded inference role, or nonzero rebuild backlog beyond the
// live cap is degraded; otherwise ok.
func GetHealth(in HealthInputs) Health {
	h := Health{
		QueueSource:          in.QueueSource,
		QueueDepths:          in.QueueDepths,
		CriticalFailures:     in.CriticalFailures,
		ExpectedGapFailures:  in.ExpectedGapFailures,
		InferenceRoles:       in.InferenceRoles,
		MemoryBytesByService: in.MemoryBytesByService,
		Status:               HealthOK,
		StatusReason:         "all_clear",
	}

	for _, r := range in.InferenceRoles {
		if r.Status == "giving_up" {
			h.Status = HealthCritical
			h.StatusReason = "inference_role_giving_up:" + r.Role
		}
	}
	if in.CriticalFailures > 0 && h.Status != HealthCritical {
		h.Status = HealthCritical
		h.StatusReason = "critical_failures_present"
	}

	if h.Status == HealthOK {
		for _, r := range in.InferenceRoles {
			if r.Status == "degraded" {
				h.Status = HealthDegraded
				h.StatusReason = "inference_role_degraded:" + r.Role
			}
		}
		if in.ExpectedGapFailures > 0 && h.Status == HealthOK {
			h.Status = HealthDegraded
			h.StatusReason = "expected_gap_failures_present"
		}
	}

	if in.BsignoreExcludedPaths > 0 {
		h.Advisories = append(h.Advisories, RetrievalAdvisory{
			Code:    "bsignore_excludes_paths",
			Message: "bsignore rules are excluding paths from indexing",
		})
	}

	return h
}

// FailureDetail is one row of the paginated getHealthDetails() listing.
type FailureDetail struct {
	ItemPath string
	Reason   string
	Severity string
	Expected bool
}

// HealthDetailsPage is a single page of getHealthDetails(limit, offset),
// the paginated failure listing behind the top-level health rollup.
type HealthDetailsPage struct {
	Items      []FailureDetail
	TotalCount int
	Limit      int
	Offset     int
	HasMore    bool
}

// GetHealthDetails pages through the full failure list.
func GetHealthDetails(all []FailureDetail, limit, offset int) HealthDetailsPage {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := append([]FailureDetail{}, all[offset:end]...)
	return HealthDetailsPage{
		Items:      page,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < total,
	}
}
