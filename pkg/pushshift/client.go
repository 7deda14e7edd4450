package pushshift

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"redditcrawler/pkg/config"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/ratelimit"
)

// Client talks to the pushshift search API. Every call is a single attempt;
// retrying is left to the caller's retry.Policy.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a pushshift client. A nil limiter means unlimited.
func NewClient(cfg config.PushshiftConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	base := cfg.BaseURL
	if base == "" {
		base = BaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "redditcrawler/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		headers: map[string]string{
			"User-Agent": ua,
			"Accept":     "application/json",
		},
		baseURL: base,
		limiter: limiter,
		logger:  logger.ForComponent(log, "pushshift"),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// BaseURL returns the API root the client queries
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest waits on the limiter and performs one GET
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    url,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// getData performs a GET and decodes the data member of the envelope into target
func (c *Client) getData(ctx context.Context, url string, target interface{}) error {
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, url); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Cause:   err,
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.schemaError(url, resp.StatusCode, body, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return c.schemaError(url, resp.StatusCode, body, fmt.Errorf("response has no data member"))
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return c.schemaError(url, resp.StatusCode, body, err)
	}
	return nil
}

func (c *Client) schemaError(url string, status int, body []byte, cause error) error {
	bodyPreview := string(body)
	if len(bodyPreview) > 200 {
		bodyPreview = bodyPreview[:200] + "..."
	}
	c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
		"url":          url,
		"status":       status,
		"error":        cause.Error(),
		"body_preview": bodyPreview,
	})
	return &errs.Error{
		Type:    errs.ErrorTypeSchema,
		Message: "unexpected response shape",
		Code:    status,
		Cause:   cause,
	}
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	e := errs.FromStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    url,
		"type":   string(e.Type),
	}

	switch e.Type {
	case errs.ErrorTypeRateLimit:
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(c.logger, url, int(e.RetryAfter.Seconds()))
	case errs.ErrorTypeServerError:
		c.logger.ErrorWithFields("server error", fields)
	case errs.ErrorTypeAuth:
		c.logger.WarnWithFields("authentication error", fields)
	case errs.ErrorTypeNotFound:
		c.logger.DebugWithFields("resource not found", fields)
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// FetchPage returns up to limit submissions of subreddit created strictly
// after the given epoch second, ascending by created_utc.
func (c *Client) FetchPage(ctx context.Context, subreddit string, after int64, limit int) ([]Submission, error) {
	url := SubmissionSearchURL(c.baseURL, subreddit, after, limit)

	var page []Submission
	if err := c.getData(ctx, url, &page); err != nil {
		c.logger.WarnWithFields("failed to fetch page", map[string]interface{}{
			"subreddit": subreddit,
			"after":     after,
			"error":     err.Error(),
		})
		return nil, err
	}

	// the boundary record at exactly `after` must never be returned twice
	kept := page[:0]
	for _, s := range page {
		if s.CreatedUTC > after {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CreatedUTC < kept[j].CreatedUTC
	})

	c.logger.DebugWithFields("fetched page", map[string]interface{}{
		"subreddit": subreddit,
		"after":     after,
		"count":     len(kept),
		"dropped":   len(page) - len(kept),
	})
	return kept, nil
}

// FetchCommentIDs returns the ids of every comment of a submission. An
// unknown submission yields no ids.
func (c *Client) FetchCommentIDs(ctx context.Context, submissionID string) ([]string, error) {
	var ids []string
	err := c.getData(ctx, CommentIDsURL(c.baseURL, submissionID), &ids)
	if errs.Is(err, errs.ErrorTypeNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// FetchComments fetches comments by id, CommentChunkSize ids per request,
// concatenated in chunk order. A failing chunk fails the whole call.
func (c *Client) FetchComments(ctx context.Context, ids []string) ([]Comment, error) {
	comments := make([]Comment, 0, len(ids))
	chunks := Chunk(ids, CommentChunkSize)
	for i, chunk := range chunks {
		c.logger.DebugWithFields("processing comment chunk", map[string]interface{}{
			"chunk": i + 1,
			"of":    len(chunks),
			"size":  len(chunk),
		})
		var batch []Comment
		if err := c.getData(ctx, CommentSearchURL(c.baseURL, chunk), &batch); err != nil {
			return nil, fmt.Errorf("comment chunk %d/%d: %w", i+1, len(chunks), err)
		}
		comments = append(comments, batch...)
	}
	return comments, nil
}

// FetchSubmissionComments fetches every comment of a submission
func (c *Client) FetchSubmissionComments(ctx context.Context, submissionID string) ([]Comment, error) {
	ids, err := c.FetchCommentIDs(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Comment{}, nil
	}
	c.logger.DebugWithFields("fetching submission comments", map[string]interface{}{
		"submission_id": submissionID,
		"num_comments":  len(ids),
	})
	return c.FetchComments(ctx, ids)
}
