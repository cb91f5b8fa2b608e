package governance

/* Outcome is the result of evaluating a proposed action against the
   caller's effective settings */
type Outcome string

const (
	OutcomeAutoApproved Outcome = "auto_approved"
	OutcomePending      Outcome = "pending"
	OutcomeRejected     Outcome = "rejected"
)

/* Reason explains which rule produced the outcome so the UI can point
   the user at the right setting */
type Reason string

const (
	ReasonPolicyDisabled       Reason = "policy_disabled"
	ReasonPermissionDenied     Reason = "permission_denied"
	ReasonLowConfidence        Reason = "low_confidence"
	ReasonCriticalRisk         Reason = "critical_risk"
	ReasonConfirmationRequired Reason = "confirmation_required"
	ReasonAutoApproved         Reason = "auto_approved"
	ReasonDefaultHold          Reason = "default_hold"
)

/* Decision is the outcome plus the reason that produced it */
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason"`
}

/* Decide evaluates a proposed action. Checks run in a fixed order:
   rejections first, then the conditions that force a human check, and
   auto-approval eligibility last. A permissive auto-approve setting can
   never override an explicit confirmation requirement or a genuinely
   uncertain prediction.

     1. actions disabled            -> rejected
     2. channel not permitted       -> rejected
     3. confidence below threshold  -> pending (low_confidence)
     4. critical risk               -> pending (never auto-approved)
     5. channel needs confirmation  -> pending
     6. tier auto-approved          -> auto_approved
     7. otherwise                   -> pending
*/
func Decide(eff EffectiveSettings, actionType string, confidence float64) Decision {
	if !eff.ActionsEnabled {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonPolicyDisabled}
	}

	channel := ChannelFor(actionType)
	if !eff.ChannelPermission[channel] {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonPermissionDenied}
	}

	if confidence < eff.ConfidenceThreshold {
		return Decision{Outcome: OutcomePending, Reason: ReasonLowConfidence}
	}

	tier := Classify(actionType)
	if tier == RiskCritical {
		return Decision{Outcome: OutcomePending, Reason: ReasonCriticalRisk}
	}

	if eff.ConfirmationRequired[channel] {
		return Decision{Outcome: OutcomePending, Reason: ReasonConfirmationRequired}
	}

	if eff.AutoApprove[tier] {
		return Decision{Outcome: OutcomeAutoApproved, Reason: ReasonAutoApproved}
	}

	return Decision{Outcome: OutcomePending, Reason: ReasonDefaultHold}
}
