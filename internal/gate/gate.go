// Package gate decides whether a transition needs human sign-off. It is pure
// policy evaluation against the configuration snapshot active at evaluation
// time; changing configuration never reopens an already-applied transition.
package gate

import (
	"fmt"

	"leadline/internal/config"
	"leadline/internal/domain"
)

// Request describes the transition being evaluated.
type Request struct {
	Kind         string // deal kind: standard or custom_fulfillment
	Tier         string // deal tier, picks the dollar threshold
	MonthlyValue int
	Escalated    bool
}

// Decision is the gate outcome with the reason that tripped it.
type Decision struct {
	RequiresApproval bool
	Reason           string
}

// Evaluate applies the override policy. Custom-fulfillment deals always need
// sign-off, even under auto_approve; auto_approve waives only the dollar
// threshold and escalation checks.
func Evaluate(cfg config.Override, req Request) Decision {
	if req.Kind == domain.DealKindCustomFulfillment {
		return Decision{RequiresApproval: true, Reason: "custom fulfillment requires sign-off"}
	}
	if cfg.AutoApprove {
		return Decision{}
	}
	if threshold := cfg.ThresholdFor(req.Tier); req.MonthlyValue > threshold {
		return Decision{
			RequiresApproval: true,
			Reason:           fmt.Sprintf("monthly value %d above threshold %d", req.MonthlyValue, threshold),
		}
	}
	if req.Escalated {
		return Decision{RequiresApproval: true, Reason: "deal is escalated"}
	}
	return Decision{}
}
