// Package pipeline drives one full coordinator cycle: normalize each raw
// signal, score it, merge it into the store by dedup key, and attempt the
// next legal stage transition. Candidates are processed independently; one
// bad record or contended lock never aborts the rest of the cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/scoring"
	"leadline/internal/signal"
	"leadline/internal/store"
)

type Coordinator struct {
	Engine engine.Engine
	Log    *log.Logger
}

func New(e engine.Engine) Coordinator {
	return Coordinator{Engine: e, Log: log.Default()}
}

func (c Coordinator) logf(format string, args ...any) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

// CandidateResult is the per-candidate line of a cycle report. err keeps the
// typed error chain for callers that need to match sentinels; Error is its
// string form for the report.
type CandidateResult struct {
	DedupKey string `json:"dedup_key,omitempty"`
	LeadID   string `json:"lead_id,omitempty"`
	Created  bool   `json:"created,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Score    int    `json:"score,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Retry    bool   `json:"retry,omitempty"`
	Error    string `json:"error,omitempty"`

	err error
}

// CycleReport summarizes one coordinator cycle.
type CycleReport struct {
	Processed int               `json:"processed"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Results   []CandidateResult `json:"results,omitempty"`
}

// RunCycle processes a batch of raw signals. Cycles are idempotent: the dedup
// key is the de-duplication authority, so running twice over the same signal
// set produces no duplicate leads and no duplicate transition events.
func (c Coordinator) RunCycle(ctx context.Context, raws []signal.Raw, actor string) CycleReport {
	var report CycleReport
	for _, raw := range raws {
		res := c.processOne(ctx, raw, actor)
		report.Processed++
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Error != "":
			report.Failed++
		case res.Created:
			report.Created++
		default:
			report.Updated++
		}
		report.Results = append(report.Results, res)
	}
	_, _ = c.Engine.Store.AppendEvent(ctx, "cycle.completed", "pipeline", "", actor, map[string]any{
		"processed": report.Processed,
		"created":   report.Created,
		"updated":   report.Updated,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})
	return report
}

// processOne runs a single candidate through normalize -> score -> merge ->
// transition. Failures are isolated: validation errors skip the record, lock
// timeouts mark it for retry on the next scheduled cycle.
func (c Coordinator) processOne(ctx context.Context, raw signal.Raw, actor string) CandidateResult {
	cand, err := signal.Normalize(raw)
	if err != nil {
		var ve signal.ValidationError
		if errors.As(err, &ve) {
			c.logf("pipeline: skipping malformed signal: %v", err)
			return CandidateResult{Skipped: true, Error: err.Error(), err: err}
		}
		return CandidateResult{Error: err.Error(), err: err}
	}

	scored := scoring.Score(cand, c.Engine.Config.Scoring)
	lead, created, err := c.mergeLead(ctx, cand, scored, actor)
	if err != nil {
		if errors.Is(err, store.ErrLockTimeout) {
			c.logf("pipeline: lock contention on %s, retrying next cycle", cand.DedupKey)
			return CandidateResult{DedupKey: cand.DedupKey, Retry: true, Error: err.Error(), err: err}
		}
		return CandidateResult{DedupKey: cand.DedupKey, Error: err.Error(), err: err}
	}

	if !created {
		// Re-observed prospect: recompute score against the fresh signal.
		// The engine logs any lowered score with its reason.
		if lead, err = c.Engine.ApplyScore(ctx, lead.ID, scored, "re-scrape", actor); err != nil {
			return CandidateResult{DedupKey: cand.DedupKey, LeadID: lead.ID, Error: err.Error(), err: err}
		}
	}

	if lead.Stage == domain.LeadNew {
		if lead, _, err = c.Engine.AttemptLeadTransition(ctx, lead.ID, domain.LeadScored, actor); err != nil {
			return CandidateResult{DedupKey: cand.DedupKey, LeadID: lead.ID, Error: err.Error(), err: err}
		}
	}

	if scoring.TierRank(lead.Tier) >= scoring.TierRank(c.minOutreachTier()) {
		if _, _, err := c.Engine.EnsureSequence(ctx, lead.ID, actor); err != nil {
			return CandidateResult{DedupKey: cand.DedupKey, LeadID: lead.ID, Error: err.Error(), err: err}
		}
	}

	return CandidateResult{
		DedupKey: cand.DedupKey,
		LeadID:   lead.ID,
		Created:  created,
		Tier:     lead.Tier,
		Score:    lead.Score,
	}
}

func (c Coordinator) minOutreachTier() string {
	if t := c.Engine.Config.Outreach.MinTier; t != "" {
		return t
	}
	return domain.TierWarm
}

// mergeLead creates or refreshes the lead owning a dedup key. The lookup and
// the write happen under the leads partition lock so two concurrent cycles
// observing the same signal converge on one record.
func (c Coordinator) mergeLead(ctx context.Context, cand signal.Candidate, scored scoring.Result, actor string) (domain.Lead, bool, error) {
	created := false
	nowFn := c.Engine.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().UTC().Format(time.RFC3339)
	lead, err := c.Engine.Store.Leads().MergeBy(ctx, func(l domain.Lead) bool {
		return l.DedupKey == cand.DedupKey
	}, func(existing *domain.Lead) (domain.Lead, error) {
		if existing != nil {
			l := *existing
			l.RawSignal = cand.Text
			if cand.Company != "" {
				l.Company = cand.Company
			}
			if cand.Contact != "" {
				l.Contact = cand.Contact
			}
			if cand.CompanySize != "" {
				l.CompanySize = cand.CompanySize
			}
			if cand.Industry != "" {
				l.Industry = cand.Industry
			}
			l.UpdatedAt = now
			return l, nil
		}
		created = true
		// Deterministic id per dedup key keeps re-runs from minting new
		// identities even if an event is replayed.
		return domain.Lead{
			ID:             "lead_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(cand.DedupKey)).String()[:8],
			DedupKey:       cand.DedupKey,
			Source:         cand.Source,
			RawSignal:      cand.Text,
			Company:        cand.Company,
			Contact:        cand.Contact,
			CompanySize:    cand.CompanySize,
			Industry:       cand.Industry,
			Score:          scored.Score,
			Tier:           scored.Tier,
			ScoreReasons:   scored.Reasons,
			Stage:          domain.LeadNew,
			CreatedAt:      now,
			UpdatedAt:      now,
			StageChangedAt: now,
		}, nil
	})
	if err != nil {
		return domain.Lead{}, false, err
	}
	if created {
		_, _ = c.Engine.Store.AppendEvent(ctx, "lead.created", engine.KindLead, lead.ID, actor, map[string]any{
			"dedup_key": cand.DedupKey, "source": cand.Source, "score": lead.Score, "tier": lead.Tier,
		})
	}
	return lead, created, nil
}

// SubmitSignal runs one raw signal through the pipeline and returns the lead
// it created or merged into. The underlying error is wrapped so callers can
// still match sentinels like store.ErrLockTimeout.
func (c Coordinator) SubmitSignal(ctx context.Context, raw signal.Raw, actor string) (domain.Lead, error) {
	res := c.processOne(ctx, raw, actor)
	if res.err != nil {
		return domain.Lead{}, fmt.Errorf("submit signal: %w", res.err)
	}
	return c.Engine.Store.Leads().Get(ctx, res.LeadID)
}
