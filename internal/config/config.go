package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config models leadline.yml. It is a value object: scoring and gating read
// the snapshot they were handed, never ambient state.
type Config struct {
	Pipeline struct {
		ID string `yaml:"id"`
	} `yaml:"pipeline"`
	Scoring  Scoring  `yaml:"scoring"`
	Override Override `yaml:"override"`
	Pricing  Pricing  `yaml:"pricing"`
	Outreach Outreach `yaml:"outreach"`
	Server   Server   `yaml:"server"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Scoring struct {
	Rules      []Rule `yaml:"rules"`
	Thresholds struct {
		Hot  int `yaml:"hot"`
		Warm int `yaml:"warm"`
	} `yaml:"thresholds"`
}

// Rule is one weighted predicate of the scoring engine.
//
// Kinds:
//   - keyword: matches when any of Any appears in the signal text
//   - regex: matches when Pattern matches the signal text
//   - time_cost: extracts "<n> hours" from the text and matches when
//     MinHours <= n (< MaxHours when MaxHours > 0)
//   - company_size: matches when the candidate's company size band overlaps
//     [MinSize, MaxSize]
type Rule struct {
	ID       string   `yaml:"id"`
	Kind     string   `yaml:"kind"`
	Any      []string `yaml:"any,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
	MinHours int      `yaml:"min_hours,omitempty"`
	MaxHours int      `yaml:"max_hours,omitempty"`
	MinSize  int      `yaml:"min_size,omitempty"`
	MaxSize  int      `yaml:"max_size,omitempty"`
	Weight   int      `yaml:"weight"`
	Reason   string   `yaml:"reason"`
}

type Override struct {
	AutoApprove     bool           `yaml:"auto_approve"`
	Threshold       int            `yaml:"threshold"`
	ThresholdByTier map[string]int `yaml:"threshold_by_tier,omitempty"`
}

// ThresholdFor returns the dollar gate for a deal tier, falling back to the
// flat threshold when the tier has no dedicated entry.
func (o Override) ThresholdFor(tier string) int {
	if v, ok := o.ThresholdByTier[tier]; ok {
		return v
	}
	return o.Threshold
}

type Pricing struct {
	Tiers map[string]PricingTier `yaml:"tiers"`
}

type PricingTier struct {
	MonthlyValue   int `yaml:"monthly_value"`
	PilotDays      int `yaml:"pilot_days,omitempty"`
	MinCompanySize int `yaml:"min_company_size,omitempty"`
}

type Outreach struct {
	MinTier    string `yaml:"min_tier"`
	Steps      int    `yaml:"steps"`
	DelayHours []int  `yaml:"delay_hours,omitempty"`
}

type Server struct {
	Addr      string `yaml:"addr,omitempty"`
	JWTSecret string `yaml:"jwt_secret,omitempty"`
}

type Webhook struct {
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

var validRuleKinds = map[string]bool{
	"keyword":      true,
	"regex":        true,
	"time_cost":    true,
	"company_size": true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Pipeline.ID == "" {
		return fmt.Errorf("config.pipeline.id is required")
	}
	if len(c.Scoring.Rules) == 0 {
		return fmt.Errorf("config.scoring.rules is required")
	}
	for i, r := range c.Scoring.Rules {
		if r.ID == "" {
			return fmt.Errorf("scoring rule %d has empty id", i)
		}
		if !validRuleKinds[r.Kind] {
			return fmt.Errorf("scoring rule %s has unknown kind %q", r.ID, r.Kind)
		}
		if r.Kind == "keyword" && len(r.Any) == 0 {
			return fmt.Errorf("scoring rule %s needs at least one keyword", r.ID)
		}
		if r.Kind == "regex" {
			if r.Pattern == "" {
				return fmt.Errorf("scoring rule %s needs a pattern", r.ID)
			}
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("scoring rule %s pattern: %w", r.ID, err)
			}
		}
		if r.Weight == 0 {
			return fmt.Errorf("scoring rule %s has zero weight", r.ID)
		}
	}
	th := c.Scoring.Thresholds
	if th.Hot <= 0 || th.Warm <= 0 {
		return fmt.Errorf("config.scoring.thresholds.hot and .warm are required")
	}
	if th.Warm >= th.Hot {
		return fmt.Errorf("warm threshold %d must be below hot threshold %d", th.Warm, th.Hot)
	}
	if c.Override.Threshold <= 0 {
		return fmt.Errorf("config.override.threshold is required")
	}
	for tier, v := range c.Override.ThresholdByTier {
		if v <= 0 {
			return fmt.Errorf("override threshold for tier %s must be positive", tier)
		}
	}
	if len(c.Pricing.Tiers) == 0 {
		return fmt.Errorf("config.pricing.tiers is required")
	}
	for name, t := range c.Pricing.Tiers {
		if t.MonthlyValue < 0 {
			return fmt.Errorf("pricing tier %s has negative monthly value", name)
		}
	}
	switch c.Outreach.MinTier {
	case "", "warm", "hot":
	default:
		return fmt.Errorf("outreach.min_tier must be warm or hot")
	}
	if c.Outreach.Steps < 0 {
		return fmt.Errorf("outreach.steps must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "leadline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with ll config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a pipeline.
func Default(pipelineID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, pipelineID))).Decode(&cfg)
	cfg.Pipeline.ID = pipelineID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(pipelineID string) string {
	return fmt.Sprintf(defaultTemplate, pipelineID)
}

const defaultTemplate = `pipeline:
  id: %s

scoring:
  rules:
    - id: time.high
      kind: time_cost
      min_hours: 20
      weight: 35
      reason: "High time cost (20+ hours)"
    - id: time.moderate
      kind: time_cost
      min_hours: 5
      max_hours: 20
      weight: 25
      reason: "Moderate time cost"
    - id: time.low
      kind: time_cost
      min_hours: 1
      max_hours: 5
      weight: 15
      reason: "Time cost mentioned"
    - id: recurring
      kind: regex
      pattern: '(every|each)\s+(day|morning|week)'
      weight: 20
      reason: "Daily recurring pain"
    - id: pain.keywords
      kind: keyword
      any: [data entry, manual, manually, spreadsheet, excel, copying, pasting, reconciliation, reconciling, inventory]
      weight: 15
      reason: "Operational pain keyword"
    - id: pain.emotion
      kind: keyword
      any: [killing, insane, brutal, nightmare, drowning, desperately]
      weight: 30
      reason: "Emotional intensity high"
    - id: budget.hiring
      kind: keyword
      any: [hiring, hire, headcount]
      weight: 25
      reason: "Budget confirmed: hiring"
    - id: process.billing
      kind: keyword
      any: [invoicing, invoice, billing, payroll]
      weight: 25
      reason: "Billing or invoicing process"
    - id: automation.intent
      kind: keyword
      any: [need automation, automate, automation]
      weight: 20
      reason: "Automation intent stated"
    - id: company.fit
      kind: company_size
      min_size: 10
      max_size: 200
      weight: 15
      reason: "Company size 10-200"
  thresholds:
    hot: 70
    warm: 40

override:
  auto_approve: false
  threshold: 5000
  threshold_by_tier:
    pilot: 1000
    starter: 2000
    growth: 5000
    enterprise: 10000

pricing:
  tiers:
    pilot:
      monthly_value: 0
      pilot_days: 14
    starter:
      monthly_value: 500
    growth:
      monthly_value: 2000
    enterprise:
      monthly_value: 5000
      min_company_size: 100

outreach:
  min_tier: warm
  steps: 3
  delay_hours: [0, 72, 168]
`
