package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadline/internal/domain"
	"leadline/internal/gate"
	"leadline/internal/store"
)

// DealCreateOptions are parameters for opening a deal from a lead.
type DealCreateOptions struct {
	LeadID       string
	Tier         string // empty picks a tier from pricing config
	MonthlyValue int    // 0 takes the tier's configured monthly value
	Kind         string
	Escalated    bool
	ActorID      string
}

// CreateDeal opens a deal for a lead that has booked a meeting. The lead must
// exist; each lead carries at most one deal.
func (e Engine) CreateDeal(ctx context.Context, opts DealCreateOptions) (domain.Deal, error) {
	lead, err := e.Store.Leads().Get(ctx, opts.LeadID)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("lead %s: %w", opts.LeadID, err)
	}
	if lead.Stage != domain.LeadMeetingBooked {
		return domain.Deal{}, fmt.Errorf("lead %s is %s, needs %s before a deal opens", lead.ID, lead.Stage, domain.LeadMeetingBooked)
	}
	if existing, err := e.Store.Deals().Find(ctx, func(d domain.Deal) bool { return d.LeadID == opts.LeadID }); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Deal{}, err
	}

	tier := opts.Tier
	if tier == "" {
		tier = e.pickTier(lead)
	}
	value := opts.MonthlyValue
	if value == 0 {
		if pt, ok := e.Config.Pricing.Tiers[tier]; ok {
			value = pt.MonthlyValue
		}
	}
	kind := opts.Kind
	if kind == "" {
		kind = domain.DealKindStandard
	}
	now := e.nowStr()
	d := domain.Deal{
		ID:             newID("deal"),
		LeadID:         lead.ID,
		Company:        lead.Company,
		Tier:           tier,
		MonthlyValue:   value,
		Stage:          domain.DealQualifying,
		Kind:           kind,
		Escalated:      opts.Escalated || lead.Escalated,
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}
	d.RequiresApproval = gate.Evaluate(e.Config.Override, gate.Request{
		Kind:         d.Kind,
		Tier:         d.Tier,
		MonthlyValue: d.MonthlyValue,
		Escalated:    d.Escalated,
	}).RequiresApproval

	if err := e.Store.Deals().Upsert(ctx, d); err != nil {
		return domain.Deal{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "deal.created", KindDeal, d.ID, opts.ActorID, map[string]any{
		"lead_id": d.LeadID, "tier": d.Tier, "monthly_value": d.MonthlyValue,
	})
	return d, nil
}

// pickTier sizes a deal from lead context: enterprise-sized companies jump
// straight to the enterprise tier, everyone else starts on starter.
func (e Engine) pickTier(lead domain.Lead) string {
	if pt, ok := e.Config.Pricing.Tiers["enterprise"]; ok && pt.MinCompanySize > 0 {
		if sizeLowerBound(lead.CompanySize) >= pt.MinCompanySize {
			return "enterprise"
		}
	}
	if _, ok := e.Config.Pricing.Tiers["starter"]; ok {
		return "starter"
	}
	for name := range e.Config.Pricing.Tiers {
		return name
	}
	return "starter"
}

func sizeLowerBound(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			continue
		}
		break
	}
	return n
}

// AttemptDealTransition moves a deal toward close. A legal transition that
// trips the override gate returns PendingApproval and leaves the stage
// untouched until a human resolves the gate. closed_won activates a client.
func (e Engine) AttemptDealTransition(ctx context.Context, dealID, target, actor string) (domain.Deal, Result, error) {
	deal, err := e.Store.Deals().Get(ctx, dealID)
	if err != nil {
		return domain.Deal{}, Result{}, err
	}
	if deal.Stage == target {
		return deal, applied(deal.StageChangedAt), nil
	}
	if !legalTransition(KindDeal, deal.Stage, target) {
		return deal, Result{}, IllegalTransitionError{EntityKind: KindDeal, From: deal.Stage, To: target}
	}

	if target == domain.DealClosedWon {
		decision := gate.Evaluate(e.Config.Override, gate.Request{
			Kind:         deal.Kind,
			Tier:         deal.Tier,
			MonthlyValue: deal.MonthlyValue,
			Escalated:    deal.Escalated,
		})
		if decision.RequiresApproval {
			appr, err := e.enqueueApproval(ctx, KindDeal, deal.ID, target, decision.Reason, actor)
			if err != nil {
				return deal, Result{}, err
			}
			return deal, pendingApproval(appr.GateID, decision.Reason), nil
		}
	}
	return e.applyDealTransition(ctx, dealID, target, actor, nil)
}

// applyDealTransition performs the stage change after gating has passed (or
// been approved), recording who signed off when a human did.
func (e Engine) applyDealTransition(ctx context.Context, dealID, target, actor string, approvedBy *string) (domain.Deal, Result, error) {
	var (
		prior string
		res   Result
	)
	deal, err := e.Store.Deals().Update(ctx, dealID, func(d *domain.Deal) error {
		if d.Stage == target {
			res = applied(d.StageChangedAt)
			return errNoop
		}
		if !legalTransition(KindDeal, d.Stage, target) {
			return IllegalTransitionError{EntityKind: KindDeal, From: d.Stage, To: target}
		}
		prior = d.Stage
		now := e.nowStr()
		d.Stage = target
		d.StageChangedAt = now
		d.UpdatedAt = now
		if approvedBy != nil {
			d.ApprovedBy = approvedBy
		}
		res = applied(now)
		return nil
	})
	if errors.Is(err, errNoop) {
		deal, _ = e.Store.Deals().Get(ctx, dealID)
		return deal, res, nil
	}
	if err != nil {
		return domain.Deal{}, Result{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "deal.transitioned", KindDeal, dealID, actor, map[string]any{
		"from": prior, "to": target,
	})
	if target == domain.DealClosedWon {
		if _, err := e.activateClient(ctx, deal, actor); err != nil {
			return deal, res, err
		}
	}
	return deal, res, nil
}

// activateClient converts a won deal into an active client. Pilot-tier
// clients get an expiry stamp. Idempotent per deal.
func (e Engine) activateClient(ctx context.Context, deal domain.Deal, actor string) (domain.Client, error) {
	if existing, err := e.Store.Clients().Find(ctx, func(c domain.Client) bool { return c.DealID == deal.ID }); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, err
	}
	now := e.nowStr()
	c := domain.Client{
		ID:             newID("client"),
		DealID:         deal.ID,
		Company:        deal.Company,
		Tier:           deal.Tier,
		MonthlyValue:   deal.MonthlyValue,
		Status:         domain.ClientActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}
	if pt, ok := e.Config.Pricing.Tiers[deal.Tier]; ok && pt.PilotDays > 0 {
		exp := e.now().UTC().Add(time.Duration(pt.PilotDays) * 24 * time.Hour).Format(time.RFC3339)
		c.PilotExpiresAt = &exp
	}
	// A returning company links back to its churned record instead of
	// reactivating it.
	if prev, err := e.Store.Clients().Find(ctx, func(p domain.Client) bool {
		return p.Company != "" && p.Company == deal.Company && p.Status == domain.ClientChurned
	}); err == nil {
		id := prev.ID
		c.PreviousClientID = &id
	}
	if err := e.Store.Clients().Upsert(ctx, c); err != nil {
		return domain.Client{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "client.created", KindClient, c.ID, actor, map[string]any{
		"deal_id": deal.ID, "tier": c.Tier, "monthly_value": c.MonthlyValue,
	})
	return c, nil
}

// enqueueApproval records a pending gate, reusing an existing pending gate
// for the same entity and target so re-attempts stay idempotent.
func (e Engine) enqueueApproval(ctx context.Context, entityKind, entityID, target, reason, actor string) (domain.Approval, error) {
	created := false
	appr, err := e.Store.Approvals().MergeBy(ctx, func(a domain.Approval) bool {
		return a.EntityKind == entityKind && a.EntityID == entityID &&
			a.TargetStage == target && a.Status == domain.ApprovalPending
	}, func(existing *domain.Approval) (domain.Approval, error) {
		if existing != nil {
			return *existing, nil
		}
		created = true
		return domain.Approval{
			GateID:      "gate_" + uuid.New().String()[:8],
			EntityKind:  entityKind,
			EntityID:    entityID,
			TargetStage: target,
			Reason:      reason,
			RequestedBy: actor,
			RequestedAt: e.nowStr(),
			Status:      domain.ApprovalPending,
		}, nil
	})
	if err != nil {
		return domain.Approval{}, err
	}
	if created {
		_, _ = e.Store.AppendEvent(ctx, "approval.requested", entityKind, entityID, actor, map[string]any{
			"gate_id": appr.GateID, "target": target, "reason": reason,
		})
	}
	return appr, nil
}

// PendingApprovals lists gates awaiting a human decision.
func (e Engine) PendingApprovals(ctx context.Context) ([]domain.Approval, error) {
	all, err := e.Store.Approvals().List(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Approval
	for _, a := range all {
		if a.Status == domain.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, nil
}

// Approval decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ResolveApproval settles a gate. Approve applies the gated transition with
// the resolver recorded as sign-off; reject leaves the entity in its prior
// stage. Resolving an approved gate re-drives its transition, so a write
// that failed after the sign-off landed can complete without a second one;
// resolving a rejected gate stays a no-op.
func (e Engine) ResolveApproval(ctx context.Context, gateID, decision, actor string) (domain.Approval, Result, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return domain.Approval{}, Result{}, fmt.Errorf("invalid decision %q", decision)
	}
	appr, err := e.Store.Approvals().Update(ctx, gateID, func(a *domain.Approval) error {
		if a.Status != domain.ApprovalPending {
			return errNoop
		}
		now := e.nowStr()
		if decision == DecisionApprove {
			a.Status = domain.ApprovalApproved
		} else {
			a.Status = domain.ApprovalRejected
		}
		a.ResolvedBy = actor
		a.ResolvedAt = now
		return nil
	})
	if errors.Is(err, errNoop) {
		appr, _ = e.Store.Approvals().Get(ctx, gateID)
		if appr.Status != domain.ApprovalApproved {
			return appr, blocked("gate already rejected"), nil
		}
		if appr.EntityKind != KindDeal {
			return appr, applied(appr.ResolvedAt), nil
		}
		by := appr.ResolvedBy
		_, res, err := e.applyDealTransition(ctx, appr.EntityID, appr.TargetStage, actor, &by)
		return appr, res, err
	}
	if err != nil {
		return domain.Approval{}, Result{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "approval.resolved", appr.EntityKind, appr.EntityID, actor, map[string]any{
		"gate_id": gateID, "decision": decision,
	})
	if appr.Status == domain.ApprovalRejected {
		return appr, blocked("approval rejected"), nil
	}
	switch appr.EntityKind {
	case KindDeal:
		by := actor
		_, res, err := e.applyDealTransition(ctx, appr.EntityID, appr.TargetStage, actor, &by)
		return appr, res, err
	default:
		return appr, Result{}, fmt.Errorf("gate %s targets unsupported entity kind %s", gateID, appr.EntityKind)
	}
}
