// Package agshttp is the HTTP client side of LTI Assignment and Grade
// Services, authenticated with OAuth2 client credentials.
package agshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mindengage-grading/internal/gradebook"
)

const (
	mediaLineItem  = "application/vnd.ims.lis.v2.lineitem+json"
	mediaLineItems = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaScore     = "application/vnd.ims.lis.v1.score+json"
)

// Scopes requested when Config.Scopes is empty.
var DefaultScopes = []string{
	"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
	"https://purl.imsglobal.org/spec/lti-ags/scope/score",
}

var _ gradebook.AGSClient = (*Client)(nil)

type Client struct {
	http *http.Client
}

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func New(cfg Config) *Client {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       scopes,
	}
	h := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

type lineItemJSON struct {
	ID             string  `json:"id,omitempty"`
	Label          string  `json:"label"`
	ScoreMaximum   float64 `json:"scoreMaximum"`
	ResourceID     string  `json:"resourceId,omitempty"`
	ResourceLinkID string  `json:"resourceLinkId,omitempty"`
}

func (j lineItemJSON) toLineItem() gradebook.LineItem {
	return gradebook.LineItem{
		ID: j.ID, Label: j.Label, ScoreMaximum: j.ScoreMaximum,
		ResourceID: j.ResourceID, ResourceLinkID: j.ResourceLinkID,
	}
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]gradebook.LineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, fmt.Errorf("line items url: %w", err)
	}
	p := u.Query()
	for k, v := range q {
		if v != "" {
			p.Set(k, v)
		}
	}
	u.RawQuery = p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaLineItems)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("list line items: %s", res.Status)
	}
	var items []lineItemJSON
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	out := make([]gradebook.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toLineItem())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, in gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	body, err := json.Marshal(lineItemJSON{
		Label: in.Label, ScoreMaximum: in.ScoreMaximum,
		ResourceID: in.ResourceID, ResourceLinkID: in.ResourceLinkID,
	})
	if err != nil {
		return gradebook.LineItem{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lineItemsURL, bytes.NewReader(body))
	if err != nil {
		return gradebook.LineItem{}, err
	}
	req.Header.Set("Content-Type", mediaLineItem)
	req.Header.Set("Accept", mediaLineItem)
	res, err := c.http.Do(req)
	if err != nil {
		return gradebook.LineItem{}, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return gradebook.LineItem{}, fmt.Errorf("create line item: %s", res.Status)
	}
	var it lineItemJSON
	if err := json.NewDecoder(res.Body).Decode(&it); err != nil {
		return gradebook.LineItem{}, fmt.Errorf("decode line item: %w", err)
	}
	return it.toLineItem(), nil
}

// PostScore sends s to {lineItemURL}/scores, keeping any query string on
// the line item URL.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, s gradebook.Score) error {
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return fmt.Errorf("line item url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"

	body, err := json.Marshal(map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"timestamp": s.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mediaScore)
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("post score: %s", res.Status)
	}
	return nil
}
