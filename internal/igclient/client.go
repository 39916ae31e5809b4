package igclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"igreply/internal/errs"
	"igreply/internal/metrics"
	"igreply/internal/model"
)

// Client defines the Graph API calls the responder issues.
type Client interface {
	SendText(ctx context.Context, recipientID, text string) error
	FetchProfile(ctx context.Context, userID string) (model.Profile, error)
	Refresh(ctx context.Context, currentToken string) (newToken string, expiresIn int64, err error)
}

// TokenSource supplies the access token for send/profile calls. It must
// fail fast (credential missing or expired) before any network call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPClient talks to the Instagram Graph API.
type HTTPClient struct {
	graphBase   string
	refreshBase string
	tokens      TokenSource
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(tokens TokenSource) *HTTPClient {
	return &HTTPClient{
		graphBase:   "https://graph.facebook.com/v21.0",
		refreshBase: "https://graph.instagram.com",
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("IG_API_MAX_ATTEMPTS", 3),
		baseBackoff: time.Duration(getEnvInt("IG_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

// SendText delivers a text DM to recipientID.
func (c *HTTPClient) SendText(ctx context.Context, recipientID, text string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
	u := fmt.Sprintf("%s/me/messages?access_token=%s", c.graphBase, url.QueryEscape(token))
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.doWithRetry(ctx, req, "/me/messages")
	if err != nil {
		return errs.NewSend(recipientID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errs.NewSend(recipientID, fmt.Errorf("graph api status %d", resp.StatusCode))
	}
	return nil
}

// FetchProfile returns profile fields for userID.
func (c *HTTPClient) FetchProfile(ctx context.Context, userID string) (model.Profile, error) {
	var out model.Profile
	if userID == "" {
		return out, errors.New("empty user id")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return out, err
	}
	u := fmt.Sprintf("%s/%s?fields=name,username,profile_pic&access_token=%s",
		c.graphBase, url.PathEscape(userID), url.QueryEscape(token))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := c.doWithRetry(ctx, req, "/profile")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("graph api status %d", resp.StatusCode)
	}
	var raw struct {
		Name       string `json:"name"`
		Username   string `json:"username"`
		ProfilePic string `json:"profile_pic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	out = model.Profile{UserID: userID, Username: raw.Username, FullName: raw.Name, ProfilePic: raw.ProfilePic}
	return out, nil
}

// Refresh exchanges the current long-lived token for a new one. The caller
// owns reading and rewriting the credential store.
func (c *HTTPClient) Refresh(ctx context.Context, currentToken string) (string, int64, error) {
	if currentToken == "" {
		return "", 0, errs.NewRefresh(errors.New("empty token"))
	}
	u := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		c.refreshBase, url.QueryEscape(currentToken))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := c.doWithRetry(ctx, req, "/refresh_access_token")
	if err != nil {
		return "", 0, errs.NewRefresh(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, errs.NewRefresh(fmt.Errorf("graph api status %d", resp.StatusCode))
	}
	var raw struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", 0, errs.NewRefresh(err)
	}
	if raw.AccessToken == "" {
		return "", 0, errs.NewRefresh(errors.New("empty access_token in response"))
	}
	return raw.AccessToken, raw.ExpiresIn, nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			r.Body, _ = req.GetBody()
		}
		resp, err := c.httpClient.Do(r)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				metrics.IncAPIRetry(endpoint)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
