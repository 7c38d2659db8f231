// Package client is the Go client for the gleaner REST API, used by the
// terminal reader and the feed management commands.
package client

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

	"gleaner/models"
)

// APIError is a non-2xx response from the server. Detail carries the
// server's human-readable message and is shown to the user verbatim.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// Summary pages generate on demand, so allow slow responses
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) InitialConfig(ctx context.Context) (models.InitialConfig, error) {
	var config models.InitialConfig
	err := c.call(ctx, http.MethodGet, "/api/initial-config", nil, &config)
	return config, err
}

func (c *Client) SaveConfig(ctx context.Context, update models.SettingsUpdate) (models.Settings, error) {
	var settings models.Settings
	err := c.call(ctx, http.MethodPut, "/api/config", update, &settings)
	return settings, err
}

func (c *Client) Summaries(ctx context.Context, request models.SummariesRequest) (models.SummariesResponse, error) {
	var page models.SummariesResponse
	err := c.call(ctx, http.MethodPost, "/api/articles/summaries", request, &page)
	return page, err
}

// NewArticlesStatus polls for articles fetched after the watermark. An
// empty watermark bootstraps: the server reports the latest timestamp
// without flagging anything as new.
func (c *Client) NewArticlesStatus(ctx context.Context, since string) (models.NewArticlesStatus, error) {
	path := "/api/articles/status/new-articles"
	if since != "" {
		path += "?since_timestamp=" + url.QueryEscape(since)
	}

	var status models.NewArticlesStatus
	err := c.call(ctx, http.MethodGet, path, nil, &status)
	return status, err
}

func (c *Client) ToggleFavorite(ctx context.Context, id int64) (models.ProcessedArticle, error) {
	var article models.ProcessedArticle
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/articles/%d/favorite", id), nil, &article)
	return article, err
}

func (c *Client) RegenerateSummary(ctx context.Context, id int64, request models.RegenerateRequest) (models.ProcessedArticle, error) {
	var article models.ProcessedArticle
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/articles/%d/regenerate-summary", id), request, &article)
	return article, err
}

func (c *Client) ArticleContent(ctx context.Context, id int64) (models.ArticleContent, error) {
	var content models.ArticleContent
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/articles/%d/content", id), nil, &content)
	return content, err
}

func (c *Client) ChatHistory(ctx context.Context, id int64) (models.ChatHistory, error) {
	var history models.ChatHistory
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/article/%d/chat-history", id), nil, &history)
	return history, err
}

func (c *Client) Chat(ctx context.Context, request models.ChatRequest) (models.ChatResponse, error) {
	var response models.ChatResponse
	err := c.call(ctx, http.MethodPost, "/api/chat-with-article", request, &response)
	return response, err
}

func (c *Client) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	err := c.call(ctx, http.MethodGet, "/api/feeds", nil, &feeds)
	return feeds, err
}

func (c *Client) CreateFeed(ctx context.Context, input models.FeedInput) (models.Feed, error) {
	var feed models.Feed
	err := c.call(ctx, http.MethodPost, "/api/feeds", input, &feed)
	return feed, err
}

func (c *Client) UpdateFeed(ctx context.Context, id int64, update models.FeedUpdate) (models.Feed, error) {
	var feed models.Feed
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/feeds/%d", id), update, &feed)
	return feed, err
}

func (c *Client) DeleteFeed(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/feeds/%d", id), nil, nil)
}

func (c *Client) TriggerRefresh(ctx context.Context) (models.RefreshStatus, error) {
	var status models.RefreshStatus
	err := c.call(ctx, http.MethodPost, "/api/trigger-rss-refresh", nil, &status)
	return status, err
}

func (c *Client) CleanupOldData(ctx context.Context, daysOld int) (models.CleanupResult, error) {
	var result models.CleanupResult
	err := c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/cleanup-old-data?days_old=%d", daysOld), nil, &result)
	return result, err
}

func (c *Client) call(ctx context.Context, method string, path string, payload any, out any) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method string, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes the response into out when out is
// non-nil. Non-2xx responses become *APIError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError reads the capped response body and pulls out the server's
// detail message when there is one.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: resp.StatusCode, Detail: payload.Detail}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Detail:     fmt.Sprintf("request failed with status %d", resp.StatusCode),
	}
}
