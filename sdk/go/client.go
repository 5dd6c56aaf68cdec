package leadlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Leadline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Signal is a raw observation submitted for scoring.
type Signal struct {
	Source      string `json:"source"`
	ExternalID  string `json:"external_id,omitempty"`
	Text        string `json:"text"`
	Company     string `json:"company,omitempty"`
	Contact     string `json:"contact,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	ObservedAt  string `json:"observed_at,omitempty"`
}

// Lead represents the API lead model.
type Lead struct {
	ID           string   `json:"id"`
	DedupKey     string   `json:"dedup_key"`
	Source       string   `json:"source"`
	Company      string   `json:"company,omitempty"`
	Contact      string   `json:"contact,omitempty"`
	Score        int      `json:"score"`
	Tier         string   `json:"tier"`
	ScoreReasons []string `json:"score_reasons,omitempty"`
	Stage        string   `json:"stage"`
}

// Deal represents the API deal model.
type Deal struct {
	ID               string `json:"id"`
	LeadID           string `json:"lead_id"`
	Company          string `json:"company,omitempty"`
	Tier             string `json:"tier,omitempty"`
	MonthlyValue     int    `json:"monthly_value"`
	Stage            string `json:"stage"`
	RequiresApproval bool   `json:"requires_approval"`
}

// Approval is a pending gate blocking a transition.
type Approval struct {
	GateID      string `json:"gate_id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	TargetStage string `json:"target_stage"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status"`
}

// TransitionResult reports what an attempted transition did.
type TransitionResult struct {
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	GateID    string `json:"gate_id,omitempty"`
	AppliedAt string `json:"applied_at,omitempty"`
}

// Event is one line of the transition log.
type Event struct {
	Seq        int64          `json:"seq"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type list[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type dealAndResult struct {
	Deal   Deal             `json:"deal"`
	Result TransitionResult `json:"result"`
}

type leadAndResult struct {
	Lead   Lead             `json:"lead"`
	Result TransitionResult `json:"result"`
}

// SubmitSignal submits one raw signal and returns the lead it produced.
func (c *Client) SubmitSignal(ctx context.Context, sig Signal) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodPost, "v0/signals", map[string]any{"signal": sig}, &resp)
	return resp, err
}

// RunCycle submits a batch of signals for one coordinator cycle.
func (c *Client) RunCycle(ctx context.Context, sigs []Signal) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v0/cycles", map[string]any{"signals": sigs}, &resp)
	return resp, err
}

// ListLeads lists leads, optionally filtered by stage and tier.
func (c *Client) ListLeads(ctx context.Context, stage, tier string) ([]Lead, error) {
	q := url.Values{}
	if stage != "" {
		q.Set("stage", stage)
	}
	if tier != "" {
		q.Set("tier", tier)
	}
	endpoint := "v0/leads"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp list[Lead]
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetLead fetches one lead.
func (c *Client) GetLead(ctx context.Context, id string) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodGet, "v0/leads/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TransitionLead attempts a lead stage transition.
func (c *Client) TransitionLead(ctx context.Context, id, target string) (Lead, TransitionResult, error) {
	var resp leadAndResult
	err := c.do(ctx, http.MethodPost, "v0/leads/"+url.PathEscape(id)+"/transitions", map[string]any{"target": target}, &resp)
	return resp.Lead, resp.Result, err
}

// CreateDeal opens a deal from a meeting-booked lead.
func (c *Client) CreateDeal(ctx context.Context, leadID, tier, kind string, monthlyValue int) (Deal, error) {
	body := map[string]any{"lead_id": leadID}
	if tier != "" {
		body["tier"] = tier
	}
	if kind != "" {
		body["kind"] = kind
	}
	if monthlyValue > 0 {
		body["monthly_value"] = monthlyValue
	}
	var resp Deal
	err := c.do(ctx, http.MethodPost, "v0/deals", body, &resp)
	return resp, err
}

// TransitionDeal attempts a deal stage transition. A pending_approval outcome
// means the move is parked on the approval queue, not applied.
func (c *Client) TransitionDeal(ctx context.Context, id, target string) (Deal, TransitionResult, error) {
	var resp dealAndResult
	err := c.do(ctx, http.MethodPost, "v0/deals/"+url.PathEscape(id)+"/transitions", map[string]any{"target": target}, &resp)
	return resp.Deal, resp.Result, err
}

// ListApprovals lists pending approval gates.
func (c *Client) ListApprovals(ctx context.Context) ([]Approval, error) {
	var resp list[Approval]
	err := c.do(ctx, http.MethodGet, "v0/approvals", nil, &resp)
	return resp.Items, err
}

// ResolveApproval approves or rejects a pending gate.
func (c *Client) ResolveApproval(ctx context.Context, gateID, decision string) (Approval, TransitionResult, error) {
	var resp struct {
		Approval Approval         `json:"approval"`
		Result   TransitionResult `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "v0/approvals/"+url.PathEscape(gateID)+"/resolve", map[string]any{"decision": decision}, &resp)
	return resp.Approval, resp.Result, err
}

// Events reads the transition log after the given sequence number.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprintf("%d", after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp list[Event]
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
