package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	zoomTokenURL = "https://zoom.us/oauth/token"
	zoomAPIBase  = "https://api.zoom.us/v2"
)

// ZoomConfig holds server-to-server OAuth app credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
}

// Zoom provisions meetings through the Zoom REST API using the
// account_credentials grant. Access tokens are cached until shortly before
// expiry.
type Zoom struct {
	cfg      ZoomConfig
	client   *http.Client
	tokenURL string
	apiBase  string

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewZoom(cfg ZoomConfig, timeout time.Duration) *Zoom {
	return &Zoom{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		tokenURL: zoomTokenURL,
		apiBase:  zoomAPIBase,
	}
}

func (z *Zoom) Name() string { return "zoom" }

func (z *Zoom) Provision(ctx context.Context, req Request) (*Details, error) {
	token, err := z.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"topic":      req.Topic,
		"type":       2, // scheduled meeting
		"start_time": req.StartAt.UTC().Format("2006-01-02T15:04:05Z"),
		"duration":   int(req.Duration.Minutes()),
		"timezone":   "UTC",
		"settings": map[string]interface{}{
			"join_before_host": false,
			"waiting_room":     true,
		},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.apiBase+"/users/me/meetings", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create zoom meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create zoom meeting: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID       int64  `json:"id"`
		JoinURL  string `json:"join_url"`
		StartURL string `json:"start_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode zoom response: %w", err)
	}

	return &Details{
		ExternalID: strconv.FormatInt(out.ID, 10),
		JoinURL:    out.JoinURL,
		StartURL:   out.StartURL,
		Provider:   z.Name(),
	}, nil
}

// accessToken returns a cached token or fetches a fresh one via the
// account_credentials grant.
func (z *Zoom) accessToken(ctx context.Context) (string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.token != "" && time.Now().Before(z.expires) {
		return z.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", z.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(z.cfg.ClientID, z.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := z.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoom token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("zoom token request: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode zoom token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("zoom token response missing access_token")
	}

	z.token = out.AccessToken
	// Refresh a minute early to avoid using a token at the edge of expiry.
	z.expires = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return z.token, nil
}
