package learning

// ServingDecision is what the query core's personalization-blend stage
// (§4.5.1 step 10) consults for one query.
type ServingDecision struct {
	ServingAllowed bool
	Applied        bool
	FallbackMissingModel bool
}

// Decide reports whether online-ranker serving is allowed/applied for the
// current rollout mode and model availability, per §4.6 "Serving".
func (c *Core) Decide() ServingDecision {
	mode := c.RolloutMode()
	snap := c.model.Snapshot()

	if !snap.ModelAvailable {
		return ServingDecision{ServingAllowed: false, Applied: false, FallbackMissingModel: true}
	}
	if mode.rank() < RolloutBlendedRanking.rank() {
		return ServingDecision{ServingAllowed: false, Applied: false}
	}
	return ServingDecision{ServingAllowed: true, Applied: true}
}

// DefaultBlendAlpha is the default blend weight for the online ranker's
// contribution to a result's final score.
const DefaultBlendAlpha = 0.2

// Blend combines a base retrieval score with the online ranker's prediction
// for features, weighted by alpha. Returns the blended score and the delta
// applied (blended - base), for onlineRankerDeltaTop10 accounting.
func (c *Core) Blend(baseScore float64, features map[string]float64, alpha float64) (blended, delta float64) {
	decision := c.Decide()
	if !decision.Applied {
		return baseScore, 0
	}
	pred := c.model.Predict(features)
	blended = (1-alpha)*baseScore + alpha*pred
	return blended, blended - baseScore
}
