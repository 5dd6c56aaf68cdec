package server

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"

	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/pipeline"
)

func registerSignals(api huma.API, coord pipeline.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-signal",
		Method:        http.MethodPost,
		Path:          "/signals",
		Summary:       "Submit one raw signal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body submitSignalRequest
	}) (*struct{ Body domain.Lead }, error) {
		lead, err := coord.SubmitSignal(ctx, input.Body.Signal, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Lead }{Body: lead}, nil
	})
}

func registerCycles(api huma.API, coord pipeline.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "run-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles",
		Summary:     "Run a scraping cycle over a batch of signals",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body runCycleRequest
	}) (*struct{ Body cycleResponse }, error) {
		report := coord.RunCycle(ctx, input.Body.Signals, actorIDFromContext(ctx))
		return &struct{ Body cycleResponse }{Body: cycleResponse{Report: report}}, nil
	})
}

func registerLeads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-leads",
		Method:      http.MethodGet,
		Path:        "/leads",
		Summary:     "List leads",
	}, func(ctx context.Context, input *struct {
		Stage string `query:"stage" enum:",new,scored,contacted,meeting_booked,disqualified"`
		Tier  string `query:"tier" enum:",cold,warm,hot"`
	}) (*struct {
		Body listResponse[domain.Lead]
	}, error) {
		leads, err := e.Store.Leads().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		filtered := leads[:0:0]
		for _, l := range leads {
			if input.Stage != "" && l.Stage != input.Stage {
				continue
			}
			if input.Tier != "" && l.Tier != input.Tier {
				continue
			}
			filtered = append(filtered, l)
		}
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
		return &struct {
			Body listResponse[domain.Lead]
		}{Body: listResponse[domain.Lead]{Items: filtered, Count: len(filtered)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-lead",
		Method:      http.MethodGet,
		Path:        "/leads/{lead_id}",
		Summary:     "Get a lead",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
	}) (*struct{ Body domain.Lead }, error) {
		lead, err := e.Store.Leads().Get(ctx, input.LeadID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Lead }{Body: lead}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-lead",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/transitions",
		Summary:     "Attempt a lead stage transition",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
		Body   transitionRequest
	}) (*struct{ Body leadOutcome }, error) {
		lead, res, err := e.AttemptLeadTransition(ctx, input.LeadID, input.Body.Target, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body leadOutcome }{Body: leadOutcome{Lead: lead, Result: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "escalate-lead",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/escalate",
		Summary:     "Flag or unflag a lead for human attention",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
		Body   escalateRequest
	}) (*struct{ Body domain.Lead }, error) {
		lead, err := e.SetLeadEscalated(ctx, input.LeadID, input.Body.Escalated, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Lead }{Body: lead}, nil
	})
}

func registerSequences(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "advance-sequence",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/sequence/advance",
		Summary:     "Send the next outreach step for a lead",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
	}) (*struct{ Body sequenceOutcome }, error) {
		seq, res, err := e.AdvanceSequence(ctx, input.LeadID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body sequenceOutcome }{Body: sequenceOutcome{Sequence: seq, Result: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-reply",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/sequence/reply",
		Summary:     "Record a prospect reply on an outreach sequence",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
		Body   replyRequest
	}) (*struct{ Body domain.Sequence }, error) {
		seq, err := e.RecordReply(ctx, input.LeadID, input.Body.Status, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Sequence }{Body: seq}, nil
	})
}

func registerDeals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-deal",
		Method:        http.MethodPost,
		Path:          "/deals",
		Summary:       "Open a deal from a meeting-booked lead",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body createDealRequest
	}) (*struct{ Body domain.Deal }, error) {
		deal, err := e.CreateDeal(ctx, engine.DealCreateOptions{
			LeadID:       input.Body.LeadID,
			Tier:         input.Body.Tier,
			MonthlyValue: input.Body.MonthlyValue,
			Kind:         input.Body.Kind,
			Escalated:    input.Body.Escalated,
			ActorID:      actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Deal }{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deals",
		Method:      http.MethodGet,
		Path:        "/deals",
		Summary:     "List deals",
	}, func(ctx context.Context, input *struct {
		Stage string `query:"stage" enum:",qualifying,discovery,proposal,closed_won,closed_lost"`
	}) (*struct {
		Body listResponse[domain.Deal]
	}, error) {
		deals, err := e.Store.Deals().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		filtered := deals[:0:0]
		for _, d := range deals {
			if input.Stage != "" && d.Stage != input.Stage {
				continue
			}
			filtered = append(filtered, d)
		}
		return &struct {
			Body listResponse[domain.Deal]
		}{Body: listResponse[domain.Deal]{Items: filtered, Count: len(filtered)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deal",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}",
		Summary:     "Get a deal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct{ Body domain.Deal }, error) {
		deal, err := e.Store.Deals().Get(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Deal }{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-deal",
		Method:      http.MethodPost,
		Path:        "/deals/{deal_id}/transitions",
		Summary:     "Attempt a deal stage transition",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
		Body   transitionRequest
	}) (*struct{ Body dealOutcome }, error) {
		deal, res, err := e.AttemptDealTransition(ctx, input.DealID, input.Body.Target, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body dealOutcome }{Body: dealOutcome{Deal: deal, Result: res}}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "List pending approval gates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listResponse[domain.Approval]
	}, error) {
		pending, err := e.PendingApprovals(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Approval]
		}{Body: listResponse[domain.Approval]{Items: pending, Count: len(pending)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{gate_id}/resolve",
		Summary:     "Approve or reject a pending gate",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		GateID string `path:"gate_id"`
		Body   resolveApprovalRequest
	}) (*struct{ Body approvalOutcome }, error) {
		appr, res, err := e.ResolveApproval(ctx, input.GateID, input.Body.Decision, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body approvalOutcome }{Body: approvalOutcome{Approval: appr, Result: res}}, nil
	})
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",active,churned"`
	}) (*struct {
		Body listResponse[domain.Client]
	}, error) {
		clients, err := e.Store.Clients().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		filtered := clients[:0:0]
		for _, c := range clients {
			if input.Status != "" && c.Status != input.Status {
				continue
			}
			filtered = append(filtered, c)
		}
		return &struct {
			Body listResponse[domain.Client]
		}{Body: listResponse[domain.Client]{Items: filtered, Count: len(filtered)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "churn-client",
		Method:      http.MethodPost,
		Path:        "/clients/{client_id}/churn",
		Summary:     "Churn a client",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
		Body     churnClientRequest
	}) (*struct{ Body clientOutcome }, error) {
		client, res, err := e.ChurnClient(ctx, input.ClientID, input.Body.Reason, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body clientOutcome }{Body: clientOutcome{Client: client, Result: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-milestone",
		Method:      http.MethodPost,
		Path:        "/clients/{client_id}/milestone",
		Summary:     "Mark the first-results milestone for a client",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
		Body     milestoneRequest
	}) (*struct{ Body domain.Client }, error) {
		client, err := e.MarkMilestone(ctx, input.ClientID, input.Body.Workflows, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Client }{Body: client}, nil
	})
}

func registerCaseStudies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "publish-case-study",
		Method:        http.MethodPost,
		Path:          "/clients/{client_id}/case-studies",
		Summary:       "Publish a case study for a milestone client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
		Body     caseStudyRequest
	}) (*struct{ Body domain.CaseStudy }, error) {
		cs, err := e.PublishCaseStudy(ctx, input.ClientID, input.Body.Narrative, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.CaseStudy }{Body: cs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-case-studies",
		Method:      http.MethodGet,
		Path:        "/case-studies",
		Summary:     "List published case studies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listResponse[domain.CaseStudy]
	}, error) {
		items, err := e.Store.CaseStudies().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.CaseStudy]
		}{Body: listResponse[domain.CaseStudy]{Items: items, Count: len(items)}}, nil
	})
}

func registerInvoices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-invoices",
		Method:        http.MethodPost,
		Path:          "/invoices/generate",
		Summary:       "Generate monthly invoices for active clients",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body generateInvoicesRequest
	}) (*struct {
		Body listResponse[domain.Invoice]
	}, error) {
		invoices, err := e.GenerateInvoices(ctx, input.Body.Period, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Invoice]
		}{Body: listResponse[domain.Invoice]{Items: invoices, Count: len(invoices)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "List invoices",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",pending_manual,sent,paid"`
	}) (*struct {
		Body listResponse[domain.Invoice]
	}, error) {
		invoices, err := e.Store.Invoices().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		filtered := invoices[:0:0]
		for _, inv := range invoices {
			if input.Status != "" && inv.Status != input.Status {
				continue
			}
			filtered = append(filtered, inv)
		}
		return &struct {
			Body listResponse[domain.Invoice]
		}{Body: listResponse[domain.Invoice]{Items: filtered, Count: len(filtered)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-invoice",
		Method:      http.MethodPost,
		Path:        "/invoices/{invoice_id}/transitions",
		Summary:     "Attempt an invoice status transition",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		InvoiceID string `path:"invoice_id"`
		Body      transitionRequest
	}) (*struct{ Body invoiceOutcome }, error) {
		inv, res, err := e.MarkInvoice(ctx, input.InvoiceID, input.Body.Target, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body invoiceOutcome }{Body: invoiceOutcome{Invoice: inv, Result: res}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Read the transition log",
	}, func(ctx context.Context, input *struct {
		After int64 `query:"after" minimum:"0"`
		Limit int   `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body listResponse[domain.Event]
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 100
		}
		events, err := e.Store.EventsAfter(ctx, input.After, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listResponse[domain.Event]
		}{Body: listResponse[domain.Event]{Items: events, Count: len(events)}}, nil
	})
}

func registerReport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "pipeline-report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Pipeline summary report",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body engine.Report }, error) {
		report, err := e.BuildReport(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body engine.Report }{Body: report}, nil
	})
}
