// Package scoring assigns a pain/fit score and tier to normalized candidates.
// It is a pure function over candidate + config: same input and snapshot,
// same result. Malformed input never errors, it scores cold with a reason.
package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/signal"
)

// Result is the scoring outcome for one candidate.
type Result struct {
	Score   int
	Tier    string
	Reasons []string
}

var hoursPattern = regexp.MustCompile(`(\d+)\+?\s*(hours?|hrs?)`)

// Score evaluates the configured weighted rules against a candidate and clips
// the sum to [0,100]. Reasons are returned in rule order.
func Score(c signal.Candidate, cfg config.Scoring) Result {
	text := strings.ToLower(c.Text)
	if text == "" && c.Company == "" && c.Contact == "" {
		return Result{Score: 0, Tier: TierFor(0, cfg), Reasons: []string{"empty signal"}}
	}

	total := 0
	var reasons []string
	hours, hasHours := extractHours(text)
	size := parseCompanySize(c.CompanySize)

	for _, r := range cfg.Rules {
		matched := false
		switch r.Kind {
		case "keyword":
			for _, kw := range r.Any {
				if strings.Contains(text, strings.ToLower(kw)) {
					matched = true
					break
				}
			}
		case "regex":
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				continue
			}
			matched = re.MatchString(text)
		case "time_cost":
			matched = hasHours && hours >= r.MinHours && (r.MaxHours == 0 || hours < r.MaxHours)
		case "company_size":
			matched = size > 0 && size >= r.MinSize && (r.MaxSize == 0 || size <= r.MaxSize)
		}
		if matched {
			total += r.Weight
			reasons = append(reasons, r.Reason)
		}
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return Result{Score: total, Tier: TierFor(total, cfg), Reasons: reasons}
}

// TierFor maps a score onto a tier via the configured thresholds. It is
// re-evaluated whenever a score changes, never cached.
func TierFor(score int, cfg config.Scoring) string {
	switch {
	case score >= cfg.Thresholds.Hot:
		return domain.TierHot
	case score >= cfg.Thresholds.Warm:
		return domain.TierWarm
	default:
		return domain.TierCold
	}
}

// TierRank orders tiers for minimum-tier comparisons.
func TierRank(tier string) int {
	switch tier {
	case domain.TierHot:
		return 2
	case domain.TierWarm:
		return 1
	default:
		return 0
	}
}

func extractHours(text string) (int, bool) {
	m := hoursPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseCompanySize reads bands like "25-50", "200+" or plain numbers and
// returns the lower bound, or 0 when unknown.
func parseCompanySize(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "+")
	if i := strings.IndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
