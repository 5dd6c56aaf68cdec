package engine_test

import (
	"testing"
	"time"

	"leadline/internal/domain"
	"leadline/internal/engine"
)

func (env *testEnv) seedClient(t *testing.T, id string, monthly int, status string) domain.Client {
	t.Helper()
	now := env.Clock.UTC().Format(time.RFC3339)
	c := domain.Client{
		ID:             id,
		DealID:         "deal_" + id,
		Company:        "Acme",
		Tier:           "growth",
		MonthlyValue:   monthly,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}
	if err := env.Engine.Store.Clients().Upsert(env.Ctx, c); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func TestChurnClientTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.seedClient(t, "client_1", 2000, "active")

	client, res, err := env.Engine.ChurnClient(env.Ctx, "client_1", "budget cut", "tester")
	if err != nil || res.Outcome != engine.OutcomeApplied {
		t.Fatalf("churn: %v %+v", err, res)
	}
	if client.Status != "churned" {
		t.Fatalf("status %s", client.Status)
	}
	// churn again: idempotent no-op, one event
	_, res, err = env.Engine.ChurnClient(env.Ctx, "client_1", "", "tester")
	if err != nil || res.Outcome != engine.OutcomeApplied {
		t.Fatalf("re-churn: %v %+v", err, res)
	}
	if evts := env.eventsOfType(t, "client.churned"); len(evts) != 1 {
		t.Fatalf("churn logged %d events", len(evts))
	}
}

func TestExpirePilots(t *testing.T) {
	env := newTestEnv(t)
	past := env.Clock.Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	future := env.Clock.Add(24 * time.Hour).UTC().Format(time.RFC3339)

	expired := env.seedClient(t, "client_1", 0, "active")
	expired.PilotExpiresAt = &past
	if err := env.Engine.Store.Clients().Upsert(env.Ctx, expired); err != nil {
		t.Fatal(err)
	}
	running := env.seedClient(t, "client_2", 0, "active")
	running.PilotExpiresAt = &future
	if err := env.Engine.Store.Clients().Upsert(env.Ctx, running); err != nil {
		t.Fatal(err)
	}
	env.seedClient(t, "client_3", 2000, "active")

	n, err := env.Engine.ExpirePilots(env.Ctx, "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d pilots, want 1", n)
	}
	got, _ := env.Engine.Store.Clients().Get(env.Ctx, "client_1")
	if got.Status != "churned" {
		t.Fatalf("expired pilot still %s", got.Status)
	}
	got, _ = env.Engine.Store.Clients().Get(env.Ctx, "client_2")
	if got.Status != "active" {
		t.Fatal("running pilot was churned")
	}
}

func TestMilestoneUnlocksCaseStudy(t *testing.T) {
	env := newTestEnv(t)
	env.seedClient(t, "client_1", 2000, "active")

	if _, err := env.Engine.PublishCaseStudy(env.Ctx, "client_1", "great results", "tester"); err == nil {
		t.Fatal("case study published before milestone")
	}

	client, err := env.Engine.MarkMilestone(env.Ctx, "client_1", []string{"invoicing", "reporting"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !client.MilestoneDone || len(client.Workflows) != 2 {
		t.Fatalf("milestone state: %+v", client)
	}
	// workflows merge without duplicates
	client, err = env.Engine.MarkMilestone(env.Ctx, "client_1", []string{"reporting", "alerts"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(client.Workflows) != 3 {
		t.Fatalf("workflows %v", client.Workflows)
	}

	cs, err := env.Engine.PublishCaseStudy(env.Ctx, "client_1", "great results", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if cs.ClientID != "client_1" || cs.Narrative != "great results" {
		t.Fatalf("case study %+v", cs)
	}
}

func TestGenerateInvoicesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedClient(t, "client_1", 2000, "active")
	env.seedClient(t, "client_2", 0, "active")     // pilot, nothing to bill
	env.seedClient(t, "client_3", 5000, "churned") // inactive

	first, err := env.Engine.GenerateInvoices(env.Ctx, "2026-09", "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("generated %d invoices, want 1", len(first))
	}
	inv := first[0]
	if inv.Amount != 2000 || inv.Period != "2026-09" || inv.Status != "pending_manual" {
		t.Fatalf("invoice %+v", inv)
	}

	second, err := env.Engine.GenerateInvoices(env.Ctx, "2026-09", "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("re-run created %d invoices", len(second))
	}
	next, err := env.Engine.GenerateInvoices(env.Ctx, "2026-10", "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if len(next) != 1 {
		t.Fatalf("new period created %d invoices", len(next))
	}
}

func TestMarkInvoicePath(t *testing.T) {
	env := newTestEnv(t)
	env.seedClient(t, "client_1", 2000, "active")
	invoices, err := env.Engine.GenerateInvoices(env.Ctx, "2026-09", "tester")
	if err != nil || len(invoices) != 1 {
		t.Fatalf("generate: %v", err)
	}
	id := invoices[0].ID

	if _, _, err := env.Engine.MarkInvoice(env.Ctx, id, "paid", "tester"); err == nil {
		t.Fatal("pending_manual -> paid should be illegal")
	}
	inv, _, err := env.Engine.MarkInvoice(env.Ctx, id, "sent", "tester")
	if err != nil || inv.Status != "sent" {
		t.Fatalf("mark sent: %v %+v", err, inv)
	}
	inv, _, err = env.Engine.MarkInvoice(env.Ctx, id, "paid", "tester")
	if err != nil || inv.Status != "paid" {
		t.Fatalf("mark paid: %v %+v", err, inv)
	}
}

func TestBuildReport(t *testing.T) {
	env := newTestEnv(t)
	env.seedLead(t, "lead_1", "scored", "hot")
	env.seedLead(t, "lead_2", "contacted", "warm")
	env.seedLead(t, "lead_3", "disqualified", "cold")
	env.seedClient(t, "client_1", 2000, "active")
	env.seedClient(t, "client_2", 500, "active")
	env.seedClient(t, "client_3", 5000, "churned")

	r, err := env.Engine.BuildReport(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.HotLeads != 1 || r.WarmLeads != 1 {
		t.Fatalf("tiers: %+v", r)
	}
	if r.Leads["scored"] != 1 || r.Leads["disqualified"] != 1 {
		t.Fatalf("lead stages: %+v", r.Leads)
	}
	if r.Clients != 2 || r.Churned != 1 || r.MRR != 2500 {
		t.Fatalf("client rollup: %+v", r)
	}
}
