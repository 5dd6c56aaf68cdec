// Package engine enforces the pipeline state machines. All entity mutation
// flows through here: legal-successor checks, override gates, approval
// resolution, and the side effects of conversion transitions (deal creation,
// client activation). Every applied, blocked, or rejected transition lands in
// the append-only event log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/scoring"
	"leadline/internal/store"
)

type Engine struct {
	Store  *store.Store
	Config *config.Config
	Now    func() time.Time
}

func New(s *store.Store, cfg *config.Config) Engine {
	return Engine{Store: s, Config: cfg, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// errNoop aborts a store update without writing; used for idempotent
// re-attempts of an already-applied transition.
var errNoop = errors.New("noop")

// AttemptLeadTransition moves a lead to target if target is a legal
// successor. Re-attempting an already-applied transition is a no-op that
// returns Applied with the existing timestamp.
func (e Engine) AttemptLeadTransition(ctx context.Context, leadID, target, actor string) (domain.Lead, Result, error) {
	var (
		prior string
		res   Result
	)
	lead, err := e.Store.Leads().Update(ctx, leadID, func(l *domain.Lead) error {
		if l.Stage == target {
			res = applied(l.StageChangedAt)
			return errNoop
		}
		if !legalTransition(KindLead, l.Stage, target) {
			return IllegalTransitionError{EntityKind: KindLead, From: l.Stage, To: target}
		}
		prior = l.Stage
		now := e.nowStr()
		l.Stage = target
		l.StageChangedAt = now
		l.UpdatedAt = now
		res = applied(now)
		return nil
	})
	if errors.Is(err, errNoop) {
		lead, _ = e.Store.Leads().Get(ctx, leadID)
		return lead, res, nil
	}
	if err != nil {
		return domain.Lead{}, Result{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "lead.transitioned", KindLead, leadID, actor, map[string]any{
		"from": prior, "to": target,
	})
	return lead, res, nil
}

// ApplyScore records a recomputed score on a lead. The tier is re-derived
// from the configured thresholds every time. A lowered score is applied but
// never silently: it is logged with a reason.
func (e Engine) ApplyScore(ctx context.Context, leadID string, r scoring.Result, reason, actor string) (domain.Lead, error) {
	var oldScore int
	lowered := false
	lead, err := e.Store.Leads().Update(ctx, leadID, func(l *domain.Lead) error {
		oldScore = l.Score
		lowered = r.Score < l.Score
		l.Score = r.Score
		l.Tier = scoring.TierFor(r.Score, e.Config.Scoring)
		l.ScoreReasons = r.Reasons
		l.UpdatedAt = e.nowStr()
		return nil
	})
	if err != nil {
		return domain.Lead{}, err
	}
	if lowered {
		if reason == "" {
			reason = "rescore"
		}
		_, _ = e.Store.AppendEvent(ctx, "lead.rescored", KindLead, leadID, actor, map[string]any{
			"old_score": oldScore, "new_score": r.Score, "reason": reason,
		})
	}
	return lead, nil
}

// SetLeadEscalated flags a lead for mandatory human review downstream.
func (e Engine) SetLeadEscalated(ctx context.Context, leadID string, escalated bool, actor string) (domain.Lead, error) {
	lead, err := e.Store.Leads().Update(ctx, leadID, func(l *domain.Lead) error {
		l.Escalated = escalated
		l.UpdatedAt = e.nowStr()
		return nil
	})
	if err != nil {
		return domain.Lead{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "lead.escalated", KindLead, leadID, actor, map[string]any{"escalated": escalated})
	return lead, nil
}

// EnsureSequence creates the outreach sequence for a lead at stage 0 if none
// exists. The lead must exist and be at or above the configured minimum tier.
func (e Engine) EnsureSequence(ctx context.Context, leadID, actor string) (domain.Sequence, Result, error) {
	lead, err := e.Store.Leads().Get(ctx, leadID)
	if err != nil {
		return domain.Sequence{}, Result{}, err
	}
	minTier := e.Config.Outreach.MinTier
	if minTier == "" {
		minTier = domain.TierWarm
	}
	if scoring.TierRank(lead.Tier) < scoring.TierRank(minTier) {
		reason := fmt.Sprintf("lead tier %s below outreach minimum %s", lead.Tier, minTier)
		_, _ = e.Store.AppendEvent(ctx, "sequence.blocked", KindLead, leadID, actor, map[string]any{"reason": reason})
		return domain.Sequence{}, blocked(reason), nil
	}
	created := false
	seq, err := e.Store.Sequences().Merge(ctx, leadID, func(existing *domain.Sequence) (domain.Sequence, error) {
		if existing != nil {
			return *existing, nil
		}
		created = true
		now := e.nowStr()
		return domain.Sequence{
			LeadID:        leadID,
			SequenceStage: 0,
			ReplyStatus:   domain.ReplyNone,
			CreatedAt:     now,
			UpdatedAt:     now,
		}, nil
	})
	if err != nil {
		return domain.Sequence{}, Result{}, err
	}
	if created {
		_, _ = e.Store.AppendEvent(ctx, "sequence.created", KindLead, leadID, actor, map[string]any{"stage": 0})
	}
	return seq, applied(seq.UpdatedAt), nil
}

// AdvanceSequence moves a sequence to its next step and stamps the send time.
// Terminated or exhausted sequences are left alone.
func (e Engine) AdvanceSequence(ctx context.Context, leadID, actor string) (domain.Sequence, Result, error) {
	var res Result
	seq, err := e.Store.Sequences().Update(ctx, leadID, func(q *domain.Sequence) error {
		if q.Done {
			res = blocked("sequence terminated")
			return errNoop
		}
		if e.Config.Outreach.Steps > 0 && q.SequenceStage >= e.Config.Outreach.Steps-1 {
			res = blocked("sequence exhausted")
			return errNoop
		}
		now := e.nowStr()
		q.SequenceStage++
		q.LastSentAt = now
		q.UpdatedAt = now
		res = applied(now)
		return nil
	})
	if errors.Is(err, errNoop) {
		seq, _ = e.Store.Sequences().Get(ctx, leadID)
		_, _ = e.Store.AppendEvent(ctx, "sequence.blocked", KindLead, leadID, actor, map[string]any{"reason": res.Reason})
		return seq, res, nil
	}
	if err != nil {
		return domain.Sequence{}, Result{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "sequence.advanced", KindLead, leadID, actor, map[string]any{"stage": seq.SequenceStage})
	return seq, res, nil
}

// RecordReply stores the prospect's reply status. Replied and unsubscribed
// terminate the sequence.
func (e Engine) RecordReply(ctx context.Context, leadID, status, actor string) (domain.Sequence, error) {
	switch status {
	case domain.ReplyNone, domain.ReplyReplied, domain.ReplyBounced, domain.ReplyUnsubscribed:
	default:
		return domain.Sequence{}, fmt.Errorf("invalid reply status %q", status)
	}
	seq, err := e.Store.Sequences().Update(ctx, leadID, func(q *domain.Sequence) error {
		q.ReplyStatus = status
		if status == domain.ReplyReplied || status == domain.ReplyUnsubscribed {
			q.Done = true
		}
		q.UpdatedAt = e.nowStr()
		return nil
	})
	if err != nil {
		return domain.Sequence{}, err
	}
	_, _ = e.Store.AppendEvent(ctx, "sequence.reply", KindLead, leadID, actor, map[string]any{
		"status": status, "done": seq.Done,
	})
	return seq, nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
