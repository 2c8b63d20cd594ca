package chartlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Chartline HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Classification is the heuristic reading of a prompt.
type Classification struct {
	Prompt     string   `json:"prompt"`
	Shape      string   `json:"shape"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// Definition represents a chart definition (partial).
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Shape       string         `json:"shape"`
	Category    string         `json:"category"`
	Config      map[string]any `json:"config"`
	Data        map[string]any `json:"data"`
}

// Artifact represents a saved organization artifact (partial).
type Artifact struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	Definition Definition `json:"definition"`
	Visibility string     `json:"visibility"`
	Approval   struct {
		State           string `json:"state"`
		RejectionReason string `json:"rejection_reason,omitempty"`
		ApprovedBy      string `json:"approved_by,omitempty"`
	} `json:"approval"`
	Usage struct {
		TotalInstalls int `json:"total_installs"`
		UniqueUsers   int `json:"unique_users"`
	} `json:"usage"`
}

// GenerateOptions mirrors the generation request body.
type GenerateOptions struct {
	IncludeAlternatives bool   `json:"include_alternatives,omitempty"`
	SaveToOrganization  bool   `json:"save_to_organization,omitempty"`
	Visibility          string `json:"visibility,omitempty"`
	RequestApproval     bool   `json:"request_approval,omitempty"`
}

// Generation is the result of a generate call.
type Generation struct {
	OK             bool           `json:"ok"`
	Classification Classification `json:"classification"`
	Definition     Definition     `json:"definition"`
	Alternatives   []Definition   `json:"alternatives"`
	Artifact       *Artifact      `json:"artifact,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Classify runs the classifier on prompt.
func (c *Client) Classify(ctx context.Context, prompt string) (Classification, error) {
	var resp Classification
	err := c.do(ctx, http.MethodPost, "v0/classify", map[string]any{"prompt": prompt}, &resp)
	return resp, err
}

// Generate synthesizes a chart and optionally saves it.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error) {
	body := struct {
		Prompt string `json:"prompt"`
		GenerateOptions
	}{Prompt: prompt, GenerateOptions: opts}
	var resp Generation
	err := c.do(ctx, http.MethodPost, c.orgPath("artifacts"), body, &resp)
	return resp, err
}

// Artifact fetches one artifact.
func (c *Client) Artifact(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodGet, c.orgPath("artifacts/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Approve applies an approval action (approve, reject or request_changes).
func (c *Client) Approve(ctx context.Context, id, action, reason string) (Artifact, error) {
	body := map[string]any{"action": action}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, c.orgPath("artifacts/"+url.PathEscape(id)+"/approval"), body, &resp)
	return resp, err
}

// Install records an install of the artifact by the caller.
func (c *Client) Install(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodPost, c.orgPath("artifacts/"+url.PathEscape(id)+"/install"), nil, &resp)
	return resp, err
}

// Pending lists artifacts awaiting the caller's decision.
func (c *Client) Pending(ctx context.Context) ([]Artifact, error) {
	var resp struct {
		Items []Artifact `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.orgPath("pending"), nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.orgPath("events")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) orgPath(p string) string {
	org := url.PathEscape(c.OrgID)
	return fmt.Sprintf("v0/orgs/%s/%s", org, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
