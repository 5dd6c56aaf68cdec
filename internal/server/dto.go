package server

import (
	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/pipeline"
	"leadline/internal/signal"
)

type submitSignalRequest struct {
	Signal signal.Raw `json:"signal"`
}

type runCycleRequest struct {
	Signals []signal.Raw `json:"signals"`
}

type transitionRequest struct {
	Target string `json:"target" minLength:"1" example:"contacted"`
}

type escalateRequest struct {
	Escalated bool `json:"escalated"`
}

type replyRequest struct {
	Status string `json:"status" enum:"replied,bounced,unsubscribed"`
}

type createDealRequest struct {
	LeadID       string `json:"lead_id" minLength:"1"`
	Tier         string `json:"tier,omitempty" enum:",pilot,starter,growth,enterprise"`
	MonthlyValue int    `json:"monthly_value,omitempty" minimum:"0"`
	Kind         string `json:"kind,omitempty" enum:",standard,custom_fulfillment"`
	Escalated    bool   `json:"escalated,omitempty"`
}

type resolveApprovalRequest struct {
	Decision string `json:"decision" enum:"approve,reject"`
}

type churnClientRequest struct {
	Reason string `json:"reason,omitempty"`
}

type milestoneRequest struct {
	Workflows []string `json:"workflows,omitempty"`
}

type caseStudyRequest struct {
	Narrative string `json:"narrative" minLength:"1"`
}

type generateInvoicesRequest struct {
	Period string `json:"period" pattern:"^\\d{4}-\\d{2}$" example:"2026-09"`
}

type leadOutcome struct {
	Lead   domain.Lead   `json:"lead"`
	Result engine.Result `json:"result"`
}

type sequenceOutcome struct {
	Sequence domain.Sequence `json:"sequence"`
	Result   engine.Result   `json:"result"`
}

type dealOutcome struct {
	Deal   domain.Deal   `json:"deal"`
	Result engine.Result `json:"result"`
}

type clientOutcome struct {
	Client domain.Client `json:"client"`
	Result engine.Result `json:"result"`
}

type invoiceOutcome struct {
	Invoice domain.Invoice `json:"invoice"`
	Result  engine.Result  `json:"result"`
}

type approvalOutcome struct {
	Approval domain.Approval `json:"approval"`
	Result   engine.Result   `json:"result"`
}

type cycleResponse struct {
	Report pipeline.CycleReport `json:"report"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}
