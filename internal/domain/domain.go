package domain

// Lead stages.
const (
	LeadNew           = "new"
	LeadScored        = "scored"
	LeadContacted     = "contacted"
	LeadMeetingBooked = "meeting_booked"
	LeadDisqualified  = "disqualified"
)

// Lead tiers, a deterministic function of score via configured thresholds.
const (
	TierCold = "cold"
	TierWarm = "warm"
	TierHot  = "hot"
)

// Deal stages.
const (
	DealQualifying = "qualifying"
	DealDiscovery  = "discovery"
	DealProposal   = "proposal"
	DealClosedWon  = "closed_won"
	DealClosedLost = "closed_lost"
)

// Deal kinds.
const (
	DealKindStandard          = "standard"
	DealKindCustomFulfillment = "custom_fulfillment"
)

// Client statuses.
const (
	ClientActive  = "active"
	ClientChurned = "churned"
)

// Invoice statuses.
const (
	InvoicePendingManual = "pending_manual"
	InvoiceSent          = "sent"
	InvoicePaid          = "paid"
)

// Sequence reply statuses.
const (
	ReplyNone         = "none"
	ReplyReplied      = "replied"
	ReplyBounced      = "bounced"
	ReplyUnsubscribed = "unsubscribed"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

type Lead struct {
	ID             string   `json:"id"`
	DedupKey       string   `json:"dedup_key"`
	Source         string   `json:"source" enum:"job_board,twitter,reddit,website,referral"`
	RawSignal      string   `json:"raw_signal"`
	Company        string   `json:"company,omitempty"`
	Contact        string   `json:"contact,omitempty"`
	CompanySize    string   `json:"company_size,omitempty"`
	Industry       string   `json:"industry,omitempty"`
	Score          int      `json:"score"`
	Tier           string   `json:"tier" enum:"cold,warm,hot"`
	ScoreReasons   []string `json:"score_reasons,omitempty"`
	Stage          string   `json:"stage" enum:"new,scored,contacted,meeting_booked,disqualified"`
	Escalated      bool     `json:"escalated,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	StageChangedAt string   `json:"stage_changed_at" format:"date-time"`
}

// Sequence is the outreach cadence attached to a warm-or-better lead.
// It terminates when the prospect replies or unsubscribes.
type Sequence struct {
	LeadID        string `json:"lead_id"`
	SequenceStage int    `json:"sequence_stage"`
	LastSentAt    string `json:"last_sent_at,omitempty" format:"date-time"`
	ReplyStatus   string `json:"reply_status" enum:"none,replied,bounced,unsubscribed"`
	Done          bool   `json:"done,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type Deal struct {
	ID               string  `json:"id"`
	LeadID           string  `json:"lead_id"`
	Company          string  `json:"company,omitempty"`
	Tier             string  `json:"tier,omitempty" enum:"pilot,starter,growth,enterprise"`
	MonthlyValue     int     `json:"monthly_value"`
	Stage            string  `json:"stage" enum:"qualifying,discovery,proposal,closed_won,closed_lost"`
	Kind             string  `json:"kind,omitempty" enum:"standard,custom_fulfillment"`
	Escalated        bool    `json:"escalated,omitempty"`
	RequiresApproval bool    `json:"requires_approval"`
	ApprovedBy       *string `json:"approved_by,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
	StageChangedAt   string  `json:"stage_changed_at" format:"date-time"`
}

type Client struct {
	ID               string   `json:"id"`
	DealID           string   `json:"deal_id"`
	Company          string   `json:"company,omitempty"`
	Tier             string   `json:"tier" enum:"pilot,starter,growth,enterprise"`
	MonthlyValue     int      `json:"monthly_value"`
	Workflows        []string `json:"workflows,omitempty"`
	Status           string   `json:"status" enum:"active,churned"`
	MilestoneDone    bool     `json:"milestone_done,omitempty"`
	PilotExpiresAt   *string  `json:"pilot_expires_at,omitempty" format:"date-time"`
	PreviousClientID *string  `json:"previous_client_id,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
	StageChangedAt   string   `json:"stage_changed_at" format:"date-time"`
}

type Invoice struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	Amount      int    `json:"amount"`
	Period      string `json:"period,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date" format:"date"`
	Status      string `json:"status" enum:"pending_manual,sent,paid"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type CaseStudy struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	Narrative   string `json:"narrative"`
	PublishedAt string `json:"published_at" format:"date-time"`
}

// Approval is a pending human sign-off blocking a gated transition.
// The entity stays in its prior stage until the gate is resolved.
type Approval struct {
	GateID      string `json:"gate_id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	TargetStage string `json:"target_stage"`
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by"`
	RequestedAt string `json:"requested_at" format:"date-time"`
	Status      string `json:"status" enum:"pending,approved,rejected"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	ResolvedAt  string `json:"resolved_at,omitempty" format:"date-time"`
}

// Event is one line of the append-only transition log.
type Event struct {
	Seq        int64          `json:"seq"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}
