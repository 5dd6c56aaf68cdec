package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/pipeline"
	"leadline/internal/signal"
	"leadline/internal/store"
)

func newTestCoordinator(t *testing.T) (pipeline.Coordinator, context.Context) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	eng := engine.New(s, config.Default("test-pipeline"))
	eng.Now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return pipeline.New(eng), context.Background()
}

func TestSubmitSignalHotLeadGetsSequence(t *testing.T) {
	coord, ctx := newTestCoordinator(t)

	lead, err := coord.SubmitSignal(ctx, signal.Raw{
		Source:  "website",
		Text:    "we desperately need automation for invoicing",
		Company: "Acme Robotics",
		Contact: "Jane Doe",
	}, "tester")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lead.Tier != "hot" || lead.Score != 75 {
		t.Fatalf("expected hot/75, got %s/%d", lead.Tier, lead.Score)
	}
	if lead.Stage != "scored" {
		t.Fatalf("new lead should land on scored, got %s", lead.Stage)
	}
	seq, err := coord.Engine.Store.Sequences().Get(ctx, lead.ID)
	if err != nil {
		t.Fatalf("hot lead should have a sequence: %v", err)
	}
	if seq.SequenceStage != 0 {
		t.Fatalf("fresh sequence at stage %d", seq.SequenceStage)
	}
}

func TestSubmitSignalColdLeadNoSequence(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	lead, err := coord.SubmitSignal(ctx, signal.Raw{
		Source:  "twitter",
		Text:    "nice weather today",
		Company: "Sunny Co",
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if lead.Tier != "cold" {
		t.Fatalf("tier %s", lead.Tier)
	}
	if _, err := coord.Engine.Store.Sequences().Get(ctx, lead.ID); err == nil {
		t.Fatal("cold lead got an outreach sequence")
	}
}

func TestRunCycleIdempotent(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	batch := []signal.Raw{
		{Source: "job_board", ExternalID: "jb-1", Text: "hiring for manual data entry, 10 hours every week", Company: "Acme"},
		{Source: "reddit", Text: "drowning in spreadsheet reconciliation", Company: "Beta LLC", Contact: "Sam"},
	}

	first := coord.RunCycle(ctx, batch, "scraper")
	if first.Created != 2 || first.Failed != 0 {
		t.Fatalf("first cycle: %+v", first)
	}
	second := coord.RunCycle(ctx, batch, "scraper")
	if second.Created != 0 || second.Updated != 2 {
		t.Fatalf("second cycle should merge, not create: %+v", second)
	}
	leads, err := coord.Engine.Store.Leads().List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(leads) != 2 {
		t.Fatalf("duplicate leads after re-run: %d", len(leads))
	}

	created := 0
	events, err := coord.Engine.Store.EventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, evt := range events {
		if evt.Type == "lead.created" {
			created++
		}
	}
	if created != 2 {
		t.Fatalf("lead.created logged %d times", created)
	}
}

func TestRunCycleSkipsMalformed(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	report := coord.RunCycle(ctx, []signal.Raw{
		{Source: "fax", Text: "hello"},
		{Source: "twitter"},
		{Source: "website", Text: "manual invoicing is killing us", Company: "Gamma"},
	}, "scraper")
	if report.Skipped != 2 || report.Created != 1 {
		t.Fatalf("report %+v", report)
	}
}

func TestReScrapeRefreshesLead(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	lead, err := coord.SubmitSignal(ctx, signal.Raw{
		Source: "job_board", ExternalID: "jb-9",
		Text: "hiring someone for manual invoicing, 30 hours every week",
	}, "scraper")
	if err != nil {
		t.Fatal(err)
	}
	if lead.Tier != "hot" {
		t.Fatalf("initial tier %s", lead.Tier)
	}

	// Same prospect re-observed with a weaker signal: score drops, identity
	// stays, and the drop is logged.
	again, err := coord.SubmitSignal(ctx, signal.Raw{
		Source: "job_board", ExternalID: "jb-9",
		Text: "looking at invoicing options",
	}, "scraper")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != lead.ID {
		t.Fatalf("re-scrape minted a new lead: %s vs %s", again.ID, lead.ID)
	}
	if again.Score >= lead.Score {
		t.Fatalf("score did not drop: %d -> %d", lead.Score, again.Score)
	}
	events, err := coord.Engine.Store.EventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	rescored := 0
	for _, evt := range events {
		if evt.Type == "lead.rescored" {
			rescored++
		}
	}
	if rescored != 1 {
		t.Fatalf("lowered score logged %d times", rescored)
	}
}

func TestSubmitSignalSurfacesLockTimeout(t *testing.T) {
	dir := t.TempDir()
	holder, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	contended, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open contended: %v", err)
	}
	contended.LockWait = 50 * time.Millisecond
	coord := pipeline.New(engine.New(contended, config.Default("test-pipeline")))
	ctx := context.Background()

	if err := holder.Leads().Upsert(ctx, domain.Lead{ID: "lead_1", DedupKey: "k", Stage: domain.LeadNew}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	hold := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = holder.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	_, err = coord.SubmitSignal(ctx, signal.Raw{
		Source: "website", Text: "manual invoicing", Company: "Acme",
	}, "tester")
	close(release)
	<-done
	if !errors.Is(err, store.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestSubmitSignalSurfacesValidationError(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	_, err := coord.SubmitSignal(ctx, signal.Raw{Source: "fax", Text: "hello"}, "tester")
	var ve signal.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected typed validation error, got %v", err)
	}
	if ve.Field != "source" {
		t.Fatalf("field %q", ve.Field)
	}
}

func TestDeterministicLeadID(t *testing.T) {
	a, ctxA := newTestCoordinator(t)
	b, ctxB := newTestCoordinator(t)
	raw := signal.Raw{Source: "referral", Text: "intro", Company: "Acme Corp", Contact: "Jane"}

	la, err := a.SubmitSignal(ctxA, raw, "t")
	if err != nil {
		t.Fatal(err)
	}
	lb, err := b.SubmitSignal(ctxB, raw, "t")
	if err != nil {
		t.Fatal(err)
	}
	if la.ID != lb.ID {
		t.Fatalf("same dedup key produced different ids: %s vs %s", la.ID, lb.ID)
	}
}

func TestFullFunnel(t *testing.T) {
	coord, ctx := newTestCoordinator(t)
	e := coord.Engine

	lead, err := coord.SubmitSignal(ctx, signal.Raw{
		Source: "website", Text: "we desperately need automation for invoicing",
		Company: "Acme Robotics", CompanySize: "50",
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	for _, stage := range []string{domain.LeadContacted, domain.LeadMeetingBooked} {
		if lead, _, err = e.AttemptLeadTransition(ctx, lead.ID, stage, "tester"); err != nil {
			t.Fatalf("to %s: %v", stage, err)
		}
	}
	deal, err := e.CreateDeal(ctx, engine.DealCreateOptions{LeadID: lead.ID, Tier: "starter", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	for _, stage := range []string{"discovery", "proposal", "closed_won"} {
		if _, _, err = e.AttemptDealTransition(ctx, deal.ID, stage, "tester"); err != nil {
			t.Fatalf("to %s: %v", stage, err)
		}
	}

	client, err := e.Store.Clients().Find(ctx, func(c domain.Client) bool { return c.DealID == deal.ID })
	if err != nil {
		t.Fatalf("no client after close: %v", err)
	}
	invoices, err := e.GenerateInvoices(ctx, "2026-09", "tester")
	if err != nil || len(invoices) != 1 {
		t.Fatalf("invoices: %v %d", err, len(invoices))
	}
	if invoices[0].ClientID != client.ID || invoices[0].Amount != 500 {
		t.Fatalf("invoice %+v", invoices[0])
	}

	report, err := e.BuildReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Clients != 1 || report.MRR != 500 || report.Deals["closed_won"] != 1 {
		t.Fatalf("report %+v", report)
	}
}
