package store

import (
	"context"

	"leadline/internal/domain"
)

// Partition names, one durable file per entity type.
const (
	PartLeads       = "leads"
	PartSequences   = "sequences"
	PartDeals       = "deals"
	PartClients     = "clients"
	PartInvoices    = "invoices"
	PartCaseStudies = "case_studies"
	PartApprovals   = "approvals"
)

func (s *Store) Leads() Partition[domain.Lead] {
	return NewPartition(s, PartLeads, func(l domain.Lead) string { return l.ID })
}

// Sequences are keyed by lead id: one cadence per lead.
func (s *Store) Sequences() Partition[domain.Sequence] {
	return NewPartition(s, PartSequences, func(q domain.Sequence) string { return q.LeadID })
}

func (s *Store) Deals() Partition[domain.Deal] {
	return NewPartition(s, PartDeals, func(d domain.Deal) string { return d.ID })
}

func (s *Store) Clients() Partition[domain.Client] {
	return NewPartition(s, PartClients, func(c domain.Client) string { return c.ID })
}

func (s *Store) Invoices() Partition[domain.Invoice] {
	return NewPartition(s, PartInvoices, func(i domain.Invoice) string { return i.ID })
}

func (s *Store) CaseStudies() Partition[domain.CaseStudy] {
	return NewPartition(s, PartCaseStudies, func(c domain.CaseStudy) string { return c.ID })
}

func (s *Store) Approvals() Partition[domain.Approval] {
	return NewPartition(s, PartApprovals, func(a domain.Approval) string { return a.GateID })
}

// LeadByDedupKey returns the lead owning a dedup key, if any.
func (s *Store) LeadByDedupKey(ctx context.Context, key string) (domain.Lead, error) {
	return s.Leads().Find(ctx, func(l domain.Lead) bool { return l.DedupKey == key })
}
