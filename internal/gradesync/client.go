package gradesync

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
)

// HTTPClient talks to an AGS-style gradebook with an OAuth2 client
// credentials token.
type HTTPClient struct {
	http *http.Client
}

type ClientConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	h := cc.Client(context.Background())
	h.Timeout = cfg.Timeout
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	return &HTTPClient{http: h}
}

type remoteItem struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	ScoreMaximum float64 `json:"scoreMaximum"`
	ResourceID   string  `json:"resourceId"`
}

func (it remoteItem) toLineItem() RemoteLineItem {
	return RemoteLineItem{ID: it.ID, Label: it.Label, ScoreMaximum: it.ScoreMaximum, ResourceID: it.ResourceID}
}

func (c *HTTPClient) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]RemoteLineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, err
	}
	p := u.Query()
	for k, v := range q {
		p.Set(k, v)
	}
	u.RawQuery = p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitemcontainer+json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("list line items: %s", res.Status)
	}
	var items []remoteItem
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return nil, err
	}
	out := make([]RemoteLineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toLineItem())
	}
	return out, nil
}

func (c *HTTPClient) CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (RemoteLineItem, error) {
	body, err := json.Marshal(map[string]any{
		"label": req.Label, "scoreMaximum": req.ScoreMaximum, "resourceId": req.ResourceID,
	})
	if err != nil {
		return RemoteLineItem{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lineItemsURL, bytes.NewReader(body))
	if err != nil {
		return RemoteLineItem{}, err
	}
	httpReq.Header.Set("Content-Type", "application/vnd.ims.lis.v2.lineitem+json")
	httpReq.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitem+json")
	res, err := c.http.Do(httpReq)
	if err != nil {
		return RemoteLineItem{}, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return RemoteLineItem{}, fmt.Errorf("create line item: %s", res.Status)
	}
	var it remoteItem
	if err := json.NewDecoder(res.Body).Decode(&it); err != nil {
		return RemoteLineItem{}, err
	}
	return it.toLineItem(), nil
}

func (c *HTTPClient) PostScore(ctx context.Context, lineItemURL string, s Score) error {
	body, err := json.Marshal(map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"timestamp": s.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	// POST {lineItemURL}/scores, keeping any query string in place
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/vnd.ims.lis.v1.score+json")
	res, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("post score: %s", res.Status)
	}
	return nil
}
