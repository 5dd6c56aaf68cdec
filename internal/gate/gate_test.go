package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadline/internal/config"
	"leadline/internal/gate"
)

func overrides() config.Override {
	return config.Override{
		Threshold: 5000,
		ThresholdByTier: map[string]int{
			"starter":    2000,
			"growth":     5000,
			"enterprise": 10000,
		},
	}
}

func TestEvaluateDollarThreshold(t *testing.T) {
	cases := []struct {
		name     string
		cfg      config.Override
		req      gate.Request
		requires bool
	}{
		{"under flat threshold", overrides(), gate.Request{Tier: "pilot", MonthlyValue: 4000}, false},
		{"over flat threshold", overrides(), gate.Request{Tier: "pilot", MonthlyValue: 6000}, true},
		{"at tier threshold", overrides(), gate.Request{Tier: "growth", MonthlyValue: 5000}, false},
		{"over tier threshold", overrides(), gate.Request{Tier: "growth", MonthlyValue: 5001}, true},
		{"enterprise headroom", overrides(), gate.Request{Tier: "enterprise", MonthlyValue: 6000}, false},
		{"starter tight gate", overrides(), gate.Request{Tier: "starter", MonthlyValue: 2500}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Evaluate(tc.cfg, tc.req)
			assert.Equal(t, tc.requires, d.RequiresApproval)
			if tc.requires {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestEvaluateAutoApprove(t *testing.T) {
	cfg := overrides()
	cfg.AutoApprove = true
	d := gate.Evaluate(cfg, gate.Request{Tier: "growth", MonthlyValue: 6000, Escalated: true})
	assert.False(t, d.RequiresApproval)
}

func TestEvaluateCustomFulfillmentAlwaysGates(t *testing.T) {
	cfg := overrides()
	cfg.AutoApprove = true
	d := gate.Evaluate(cfg, gate.Request{Kind: "custom_fulfillment", Tier: "starter", MonthlyValue: 100})
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, "custom fulfillment requires sign-off", d.Reason)
}

func TestEvaluateEscalated(t *testing.T) {
	d := gate.Evaluate(overrides(), gate.Request{Tier: "starter", MonthlyValue: 500, Escalated: true})
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, "deal is escalated", d.Reason)
}
