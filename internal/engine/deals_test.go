package engine_test

import (
	"errors"
	"testing"
	"time"

	"leadline/internal/domain"
	"leadline/internal/engine"
)

func (env *testEnv) seedDealThrough(t *testing.T, stage string, opts engine.DealCreateOptions) domain.Deal {
	t.Helper()
	env.seedLead(t, opts.LeadID, "meeting_booked", "hot")
	deal, err := env.Engine.CreateDeal(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	path := map[string][]string{
		"qualifying": nil,
		"discovery":  {"discovery"},
		"proposal":   {"discovery", "proposal"},
	}[stage]
	for _, next := range path {
		if _, _, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, next, "tester"); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	deal, err = env.Engine.Store.Deals().Get(env.Ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	return deal
}

func TestCreateDealRequiresMeetingBooked(t *testing.T) {
	env := newTestEnv(t)
	env.seedLead(t, "lead_1", "contacted", "hot")
	if _, err := env.Engine.CreateDeal(env.Ctx, engine.DealCreateOptions{LeadID: "lead_1", ActorID: "tester"}); err == nil {
		t.Fatal("deal opened before meeting booked")
	}
}

func TestCreateDealIdempotentPerLead(t *testing.T) {
	env := newTestEnv(t)
	env.seedLead(t, "lead_1", "meeting_booked", "hot")
	first, err := env.Engine.CreateDeal(env.Ctx, engine.DealCreateOptions{LeadID: "lead_1", Tier: "starter", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.CreateDeal(env.Ctx, engine.DealCreateOptions{LeadID: "lead_1", Tier: "growth", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("second create minted a new deal: %s vs %s", second.ID, first.ID)
	}
	if second.Tier != "starter" {
		t.Fatalf("existing deal was rewritten: %+v", second)
	}
}

func TestCreateDealPicksTierFromCompanySize(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, "lead_1", "meeting_booked", "hot")
	lead.CompanySize = "200+"
	if err := env.Engine.Store.Leads().Upsert(env.Ctx, lead); err != nil {
		t.Fatal(err)
	}
	deal, err := env.Engine.CreateDeal(env.Ctx, engine.DealCreateOptions{LeadID: "lead_1", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if deal.Tier != "enterprise" || deal.MonthlyValue != 5000 {
		t.Fatalf("expected enterprise sizing, got %+v", deal)
	}
}

func TestDealTransitionIllegalSkip(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "qualifying", engine.DealCreateOptions{LeadID: "lead_1", Tier: "starter", ActorID: "tester"})
	_, _, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	var ite engine.IllegalTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("qualifying -> closed_won should be illegal, got %v", err)
	}
}

func TestCloseAboveThresholdPendsApproval(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "growth", MonthlyValue: 6000, ActorID: "tester",
	})

	got, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatalf("attempt close: %v", err)
	}
	if res.Outcome != engine.OutcomePendingApproval || res.GateID == "" {
		t.Fatalf("6000 over growth threshold 5000 must pend approval: %+v", res)
	}
	if got.Stage != "proposal" {
		t.Fatalf("stage moved while gated: %s", got.Stage)
	}

	pending, err := env.Engine.PendingApprovals(env.Ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending gate: %v %d", err, len(pending))
	}

	// Re-attempting reuses the same gate.
	_, res2, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res2.GateID != res.GateID {
		t.Fatalf("re-attempt opened a second gate: %s vs %s", res2.GateID, res.GateID)
	}
}

func TestApprovalApproveClosesAndActivatesClient(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "growth", MonthlyValue: 6000, ActorID: "tester",
	})
	_, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}

	appr, out, err := env.Engine.ResolveApproval(env.Ctx, res.GateID, engine.DecisionApprove, "boss")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if appr.Status != "approved" || out.Outcome != engine.OutcomeApplied {
		t.Fatalf("approve outcome: %+v %+v", appr, out)
	}

	got, _ := env.Engine.Store.Deals().Get(env.Ctx, deal.ID)
	if got.Stage != "closed_won" {
		t.Fatalf("deal not closed after approval: %s", got.Stage)
	}
	if got.ApprovedBy == nil || *got.ApprovedBy != "boss" {
		t.Fatalf("sign-off not recorded: %+v", got.ApprovedBy)
	}

	client, err := env.Engine.Store.Clients().Find(env.Ctx, func(c domain.Client) bool { return c.DealID == deal.ID })
	if err != nil {
		t.Fatalf("client not activated: %v", err)
	}
	if client.Status != "active" || client.MonthlyValue != 6000 {
		t.Fatalf("unexpected client: %+v", client)
	}

	// Re-resolving a settled gate reports applied without reapplying.
	_, again, err := env.Engine.ResolveApproval(env.Ctx, res.GateID, engine.DecisionApprove, "boss")
	if err != nil {
		t.Fatal(err)
	}
	if again.Outcome != engine.OutcomeApplied {
		t.Fatalf("settled gate re-resolve: %+v", again)
	}
}

func TestApprovedGateReDrivesUnappliedClose(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "growth", MonthlyValue: 6000, ActorID: "tester",
	})
	_, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != engine.OutcomePendingApproval {
		t.Fatalf("expected pending gate, got %+v", res)
	}

	// A failed write after the sign-off landed leaves the gate approved with
	// the deal still in proposal.
	if _, err := env.Engine.Store.Approvals().Update(env.Ctx, res.GateID, func(a *domain.Approval) error {
		a.Status = domain.ApprovalApproved
		a.ResolvedBy = "boss"
		a.ResolvedAt = env.Engine.Now().UTC().Format(time.RFC3339)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	_, out, err := env.Engine.ResolveApproval(env.Ctx, res.GateID, engine.DecisionApprove, "boss")
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != engine.OutcomeApplied {
		t.Fatalf("re-resolve did not close the deal: %+v", out)
	}
	got, err := env.Engine.Store.Deals().Get(env.Ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != "closed_won" {
		t.Fatalf("stage %s", got.Stage)
	}
	if got.ApprovedBy == nil || *got.ApprovedBy != "boss" {
		t.Fatalf("approved by %v", got.ApprovedBy)
	}
	pending, err := env.Engine.PendingApprovals(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("a fresh gate was opened: %+v", pending)
	}
}

func TestApprovalRejectLeavesStage(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "starter", MonthlyValue: 3000, ActorID: "tester",
	})
	_, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != engine.OutcomePendingApproval {
		t.Fatalf("3000 over starter threshold 2000 must gate: %+v", res)
	}

	appr, out, err := env.Engine.ResolveApproval(env.Ctx, res.GateID, engine.DecisionReject, "boss")
	if err != nil {
		t.Fatal(err)
	}
	if appr.Status != "rejected" || out.Outcome != engine.OutcomeBlocked {
		t.Fatalf("reject outcome: %+v %+v", appr, out)
	}
	got, _ := env.Engine.Store.Deals().Get(env.Ctx, deal.ID)
	if got.Stage != "proposal" {
		t.Fatalf("rejected deal moved: %s", got.Stage)
	}
	if _, err := env.Engine.Store.Clients().Find(env.Ctx, func(c domain.Client) bool { return c.DealID == deal.ID }); err == nil {
		t.Fatal("rejected deal activated a client")
	}
}

func TestCustomFulfillmentGatesUnderAutoApprove(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Override.AutoApprove = true
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "starter", Kind: "custom_fulfillment", ActorID: "tester",
	})
	_, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != engine.OutcomePendingApproval {
		t.Fatalf("custom fulfillment must gate even under auto_approve: %+v", res)
	}
}

func TestAutoApproveSkipsDollarGate(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Override.AutoApprove = true
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "growth", MonthlyValue: 9000, ActorID: "tester",
	})
	got, res, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != engine.OutcomeApplied || got.Stage != "closed_won" {
		t.Fatalf("auto_approve should close directly: %+v %s", res, got.Stage)
	}
}

func TestPilotClientGetsExpiry(t *testing.T) {
	env := newTestEnv(t)
	deal := env.seedDealThrough(t, "proposal", engine.DealCreateOptions{
		LeadID: "lead_1", Tier: "pilot", ActorID: "tester",
	})
	if _, _, err := env.Engine.AttemptDealTransition(env.Ctx, deal.ID, "closed_won", "tester"); err != nil {
		t.Fatal(err)
	}
	client, err := env.Engine.Store.Clients().Find(env.Ctx, func(c domain.Client) bool { return c.DealID == deal.ID })
	if err != nil {
		t.Fatal(err)
	}
	if client.PilotExpiresAt == nil {
		t.Fatal("pilot client missing expiry")
	}
	exp, err := time.Parse(time.RFC3339, *client.PilotExpiresAt)
	if err != nil {
		t.Fatal(err)
	}
	if want := env.Clock.UTC().Add(14 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("expiry %s, want %s", exp, want)
	}
}
