package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	feedFields  = "id,created_time,updated_time,from,full_picture,message,attachments,permalink_url"
	mediaFields = "id,caption,media_type,media_url,thumbnail_url,timestamp,username,permalink"

	maxResponseBytes = 8 << 20
)

// Config holds Graph API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues GET requests against the Graph API. It never retries: a failed
// call is terminal for the caller's current pass.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a new Graph API client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With("component", "graph"),
	}
}

// FeedURL builds the first-page URL of a page's feed.
func (c *Client) FeedURL(pageID, pageToken string) string {
	q := url.Values{}
	q.Set("fields", feedFields)
	q.Set("access_token", pageToken)
	return c.endpoint(pageID+"/feed", q)
}

// MediaURL builds the first-page URL of a business account's media listing.
func (c *Client) MediaURL(accountID, pageToken string) string {
	q := url.Values{}
	q.Set("fields", mediaFields)
	q.Set("access_token", pageToken)
	return c.endpoint(accountID+"/media", q)
}

// FetchPosts fetches one page of feed posts. rawURL is either FeedURL or a
// paging cursor returned by a previous page.
func (c *Client) FetchPosts(ctx context.Context, rawURL string) (*Page[Post], error) {
	return getJSON[Page[Post]](ctx, c, rawURL)
}

// FetchMedia fetches one page of media objects.
func (c *Client) FetchMedia(ctx context.Context, rawURL string) (*Page[Media], error) {
	return getJSON[Page[Media]](ctx, c, rawURL)
}

// ExchangeToken trades a short-lived user token for a long-lived one.
func (c *Client) ExchangeToken(ctx context.Context, appID, appSecret, shortToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("fb_exchange_token", shortToken)

	token, err := getJSON[Token](ctx, c, c.endpoint("oauth/access_token", q))
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("token exchange returned no access token")
	}
	return token, nil
}

// Accounts lists the pages the user manages, each with a page-scoped token.
func (c *Client) Accounts(ctx context.Context, userID, userToken string) ([]Account, error) {
	q := url.Values{}
	q.Set("access_token", userToken)

	page, err := getJSON[Page[Account]](ctx, c, c.endpoint(userID+"/accounts", q))
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// LinkedAccount resolves the Instagram business account linked to a page.
// It returns "" when the page has no linked account.
func (c *Client) LinkedAccount(ctx context.Context, pageID, pageToken string) (string, error) {
	q := url.Values{}
	q.Set("fields", "instagram_business_account")
	q.Set("access_token", pageToken)

	resp, err := getJSON[linkedAccountResponse](ctx, c, c.endpoint(pageID, q))
	if err != nil {
		return "", err
	}
	if resp.InstagramBusinessAccnt == nil {
		return "", nil
	}
	return resp.InstagramBusinessAccnt.ID, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
}

func getJSON[T any](ctx context.Context, c *Client, rawURL string) (*T, error) {
	start := time.Now()
	body, status, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("graph request completed",
		"url", redact(rawURL),
		"status", status,
		"duration", time.Since(start),
	)

	// The provider reports failures in the body, sometimes with a 200 status.
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.Status = status
		c.logger.Warn("graph rejected request",
			"url", redact(rawURL),
			"status", status,
			"error", envelope.Error.Message,
			"code", envelope.Error.Code,
		)
		return nil, envelope.Error
	}

	if status < 200 || status > 299 {
		return nil, &APIError{
			Message: fmt.Sprintf("unexpected status: %d", status),
			Status:  status,
		}
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SocialFeed/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return buf.Bytes(), resp.StatusCode, nil
}

var secretParams = []string{"access_token", "client_secret", "fb_exchange_token"}

// redact strips credentials from a URL before it is logged.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: redact(urlErr.URL), Err: urlErr.Err}
	}
	return err
}
