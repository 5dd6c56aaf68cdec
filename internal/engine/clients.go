package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadline/internal/domain"
)

// ChurnClient moves a client to churned. Churn is terminal: a returning
// company gets a fresh client record linking back via previous_client_id.
func (e Engine) ChurnClient(ctx context.Context, clientID, reason, actor string) (domain.Client, Result, error) {
	var res Result
	client, err := e.Store.Clients().Update(ctx, clientID, func(c *domain.Client) error {
		if c.Status == domain.ClientChurned {
			res = applied(c.StageChangedAt)
			return errNoop
		}
		if !legalTransition(KindClient, c.Status, domain.ClientChurned) {
			return IllegalTransitionError{EntityKind: KindClient, From: c.Status, To: domain.ClientChurned}
		}
		now := e.nowStr()
		c.Status = domain.ClientChurned
		c.StageChangedAt = now
		c.UpdatedAt = now
		res = applied(now)
		return nil
	})
	if errors.Is(err, errNoop) {
		client, _ = e.Store.Clients().Get(ctx, clientID)
		return client, res, nil
	}
	if err != nil {
		return domain.Client{}, Result{}, err
	}
	if reason == "" {
		reason = "manual churn"
	}
	_, _ = e.Store.AppendEvent(ctx, "client.churned", KindClient, clientID, actor, map[string]any{"reason": reason})
	return client, res, nil
}

// ExpirePilots churns active pilot clients whose pilot window has passed.
// Safe to run on every ops cycle.
func (e Engine) ExpirePilots(ctx context.Context, actor string) (int, error) {
	clients, err := e.Store.Clients().List(ctx)
	if err != nil {
		return 0, err
	}
	now := e.now().UTC()
	expired := 0
	for _, c := range clients {
		if c.Status != domain.ClientActive || c.PilotExpiresAt == nil {
			continue
		}
		exp, err := time.Parse(time.RFC3339, *c.PilotExpiresAt)
		if err != nil || now.Before(exp) {
			continue
		}
		if _, _, err := e.ChurnClient(ctx, c.ID, "pilot expired", actor); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// MarkMilestone records that a client's fulfillment milestone is complete,
// unlocking case-study publication.
func (e Engine) MarkMilestone(ctx context.Context, clientID string, workflows []string, actor string) (domain.Client, error) {
	client, err := e.Store.Clients().Update(ctx, clientID, func(c *domain.Client) error {
		c.MilestoneDone = true
		if len(workflows) > 0 {
			c.Workflows = mergeWorkflows(c.Workflows, workflows)
		}
		c.UpdatedAt = e.nowStr()
		return nil
	})
	if err != nil {
		return domain.Client{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "client.milestone", KindClient, clientID, actor, map[string]any{
		"workflows": client.Workflows,
	})
	return client, nil
}

func mergeWorkflows(have, add []string) []string {
	seen := map[string]bool{}
	for _, w := range have {
		seen[w] = true
	}
	for _, w := range add {
		if !seen[w] {
			have = append(have, w)
			seen[w] = true
		}
	}
	return have
}

// PublishCaseStudy creates a case study from a client whose fulfillment
// milestone is complete.
func (e Engine) PublishCaseStudy(ctx context.Context, clientID, narrative, actor string) (domain.CaseStudy, error) {
	client, err := e.Store.Clients().Get(ctx, clientID)
	if err != nil {
		return domain.CaseStudy{}, err
	}
	if !client.MilestoneDone {
		return domain.CaseStudy{}, fmt.Errorf("client %s has no completed fulfillment milestone", clientID)
	}
	cs := domain.CaseStudy{
		ID:          newID("case"),
		ClientID:    clientID,
		Narrative:   narrative,
		PublishedAt: e.nowStr(),
	}
	if err := e.Store.CaseStudies().Upsert(ctx, cs); err != nil {
		return domain.CaseStudy{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "case_study.published", KindClient, clientID, actor, map[string]any{
		"case_study_id": cs.ID,
	})
	return cs, nil
}

// GenerateInvoices creates the month's invoice for every active client with a
// recurring value. Idempotent per client and period.
func (e Engine) GenerateInvoices(ctx context.Context, period string, actor string) ([]domain.Invoice, error) {
	if period == "" {
		period = e.now().UTC().Format("2006-01")
	}
	clients, err := e.Store.Clients().List(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Invoice
	for _, c := range clients {
		if c.Status != domain.ClientActive || c.MonthlyValue <= 0 {
			continue
		}
		id := fmt.Sprintf("inv_%s_%s", c.ID, period)
		created := false
		inv, err := e.Store.Invoices().Merge(ctx, id, func(existing *domain.Invoice) (domain.Invoice, error) {
			if existing != nil {
				return *existing, nil
			}
			created = true
			now := e.nowStr()
			return domain.Invoice{
				ID:          id,
				ClientID:    c.ID,
				Amount:      c.MonthlyValue,
				Period:      period,
				Description: fmt.Sprintf("Leadline %s tier, %s", c.Tier, period),
				DueDate:     e.now().UTC().Add(7 * 24 * time.Hour).Format("2006-01-02"),
				Status:      domain.InvoicePendingManual,
				CreatedAt:   now,
				UpdatedAt:   now,
			}, nil
		})
		if err != nil {
			return out, err
		}
		if created {
			_, _ = e.Store.AppendEvent(ctx, "invoice.created", KindInvoice, inv.ID, actor, map[string]any{
				"client_id": c.ID, "amount": inv.Amount, "period": period,
			})
			out = append(out, inv)
		}
	}
	return out, nil
}

// MarkInvoice advances an invoice along pending_manual -> sent -> paid.
func (e Engine) MarkInvoice(ctx context.Context, invoiceID, target, actor string) (domain.Invoice, Result, error) {
	var (
		prior string
		res   Result
	)
	inv, err := e.Store.Invoices().Update(ctx, invoiceID, func(i *domain.Invoice) error {
		if i.Status == target {
			res = applied(i.UpdatedAt)
			return errNoop
		}
		if !legalTransition(KindInvoice, i.Status, target) {
			return IllegalTransitionError{EntityKind: KindInvoice, From: i.Status, To: target}
		}
		prior = i.Status
		i.Status = target
		i.UpdatedAt = e.nowStr()
		res = applied(i.UpdatedAt)
		return nil
	})
	if errors.Is(err, errNoop) {
		inv, _ = e.Store.Invoices().Get(ctx, invoiceID)
		return inv, res, nil
	}
	if err != nil {
		return domain.Invoice{}, Result{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "invoice.updated", KindInvoice, invoiceID, actor, map[string]any{
		"from": prior, "to": target,
	})
	return inv, res, nil
}

// Report summarizes the pipeline for dashboards and the CLI.
type Report struct {
	Leads       map[string]int `json:"leads"`
	HotLeads    int            `json:"hot_leads"`
	WarmLeads   int            `json:"warm_leads"`
	Deals       map[string]int `json:"deals"`
	MRR         int            `json:"mrr"`
	Clients     int            `json:"active_clients"`
	Churned     int            `json:"churned_clients"`
	Invoices    map[string]int `json:"invoices"`
	CaseStudies int            `json:"case_studies"`
	Pending     int            `json:"pending_approvals"`
}

// BuildReport reads every partition outside the locks; the snapshot may be
// slightly stale, which reporting tolerates.
func (e Engine) BuildReport(ctx context.Context) (Report, error) {
	r := Report{
		Leads:    map[string]int{},
		Deals:    map[string]int{},
		Invoices: map[string]int{},
	}
	leads, err := e.Store.Leads().List(ctx)
	if err != nil {
		return r, err
	}
	for _, l := range leads {
		r.Leads[l.Stage]++
		switch l.Tier {
		case domain.TierHot:
			r.HotLeads++
		case domain.TierWarm:
			r.WarmLeads++
		}
	}
	deals, err := e.Store.Deals().List(ctx)
	if err != nil {
		return r, err
	}
	for _, d := range deals {
		r.Deals[d.Stage]++
	}
	clients, err := e.Store.Clients().List(ctx)
	if err != nil {
		return r, err
	}
	for _, c := range clients {
		if c.Status == domain.ClientActive {
			r.Clients++
			r.MRR += c.MonthlyValue
		} else {
			r.Churned++
		}
	}
	invoices, err := e.Store.Invoices().List(ctx)
	if err != nil {
		return r, err
	}
	for _, i := range invoices {
		r.Invoices[i.Status]++
	}
	studies, err := e.Store.CaseStudies().List(ctx)
	if err != nil {
		return r, err
	}
	r.CaseStudies = len(studies)
	pending, err := e.PendingApprovals(ctx)
	if err != nil {
		return r, err
	}
	r.Pending = len(pending)
	return r, nil
}
