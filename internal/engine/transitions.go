package engine

import "fmt"

// Entity kinds as recorded in events and approvals.
const (
	KindLead    = "lead"
	KindDeal    = "deal"
	KindClient  = "client"
	KindInvoice = "invoice"
)

// Legal successor tables, one per entity type. A transition absent from the
// table is rejected outright, it never mutates state.
var (
	leadSuccessors = map[string][]string{
		"new":            {"scored", "disqualified"},
		"scored":         {"contacted", "disqualified"},
		"contacted":      {"meeting_booked", "disqualified"},
		"meeting_booked": {"disqualified"},
		"disqualified":   {},
	}
	dealSuccessors = map[string][]string{
		"qualifying":  {"discovery"},
		"discovery":   {"proposal"},
		"proposal":    {"closed_won", "closed_lost"},
		"closed_won":  {},
		"closed_lost": {},
	}
	clientSuccessors = map[string][]string{
		"active":  {"churned"},
		"churned": {},
	}
	invoiceSuccessors = map[string][]string{
		"pending_manual": {"sent"},
		"sent":           {"paid"},
		"paid":           {},
	}
)

func successorTable(kind string) map[string][]string {
	switch kind {
	case KindLead:
		return leadSuccessors
	case KindDeal:
		return dealSuccessors
	case KindClient:
		return clientSuccessors
	case KindInvoice:
		return invoiceSuccessors
	}
	return nil
}

func legalTransition(kind, from, to string) bool {
	for _, next := range successorTable(kind)[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError rejects a target stage that is not a direct
// successor of the entity's current stage.
type IllegalTransitionError struct {
	EntityKind string
	From, To   string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.EntityKind, e.From, e.To)
}

// Outcome of an attempted transition. ApprovalPending is a first-class
// outcome, not an error.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeBlocked         Outcome = "blocked"
	OutcomePendingApproval Outcome = "pending_approval"
)

// Result reports what happened to an attempted transition.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	GateID    string  `json:"gate_id,omitempty"`
	AppliedAt string  `json:"applied_at,omitempty" format:"date-time"`
}

func applied(at string) Result { return Result{Outcome: OutcomeApplied, AppliedAt: at} }

func blocked(reason string) Result { return Result{Outcome: OutcomeBlocked, Reason: reason} }

func pendingApproval(gateID, reason string) Result {
	return Result{Outcome: OutcomePendingApproval, GateID: gateID, Reason: reason}
}
