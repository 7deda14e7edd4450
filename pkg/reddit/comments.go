package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/ratelimit"
)

const (
	// BaseURL is the public reddit site serving .json thread pages
	BaseURL = "https://www.reddit.com"

	SortTop           = "top"
	SortControversial = "controversial"

	// DefaultSampleSize is how many comments are kept per sort
	DefaultSampleSize = 5

	defaultTimeout = 30 * time.Second
)

// CommentClient reads thread pages from the public JSON endpoints
type CommentClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewCommentClient creates a thread reader. A nil limiter means unlimited.
func NewCommentClient(baseURL, userAgent string, limiter ratelimit.Limiter, log logger.Logger) *CommentClient {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if baseURL == "" {
		baseURL = BaseURL
	}
	if userAgent == "" {
		userAgent = "redditcrawler/1.0"
	}
	return &CommentClient{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		limiter:   limiter,
		logger:    logger.ForComponent(log, "reddit_comments"),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *CommentClient) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// ThreadURL builds the thread page query for one sort
func ThreadURL(base, submissionID, sort string, limit int) string {
	params := url.Values{}
	params.Set("sort", sort)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	return strings.TrimRight(base, "/") + "/comments/" + url.PathEscape(submissionID) + ".json?" + params.Encode()
}

// Thread fetches a submission with its first n comments in the given sort.
// "more" placeholders are skipped.
func (c *CommentClient) Thread(ctx context.Context, submissionID, sort string, n int) (Thread, error) {
	if n <= 0 {
		n = DefaultSampleSize
	}
	target := ThreadURL(c.baseURL, submissionID, sort, n)

	body, err := c.get(ctx, target)
	if err != nil {
		return Thread{}, err
	}

	var pages []listing
	if err := json.Unmarshal(body, &pages); err != nil {
		return Thread{}, errs.Wrap(errs.ErrorTypeSchema, "unexpected thread shape", err)
	}
	if len(pages) < 1 || len(pages[0].Data.Children) == 0 {
		return Thread{}, errs.New(errs.ErrorTypeSchema, "thread has no submission")
	}

	thread := Thread{
		Post:     pages[0].Data.Children[0].Data.post(),
		Comments: []CommentSample{},
	}
	if len(pages) > 1 {
		for _, child := range pages[1].Data.Children {
			if child.Kind != "t1" {
				continue
			}
			thread.Comments = append(thread.Comments, child.Data.sample())
			if len(thread.Comments) == n {
				break
			}
		}
	}

	c.logger.DebugWithFields("fetched thread", map[string]interface{}{
		"submission_id": submissionID,
		"sort":          sort,
		"comments":      len(thread.Comments),
	})
	return thread, nil
}

func (c *CommentClient) get(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := errs.FromStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
		if e.Type == errs.ErrorTypeRateLimit {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
			logger.LogRateLimit(c.logger, target, int(e.RetryAfter.Seconds()))
		}
		return nil, e
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Cause:   err,
		}
	}
	return body, nil
}

// Samples fetches the top and controversial samples of a submission, two
// sequential requests. The post of the top request is returned as well.
func (c *CommentClient) Samples(ctx context.Context, submissionID string, n int) (Post, Samples, error) {
	top, err := c.Thread(ctx, submissionID, SortTop, n)
	if err != nil {
		return Post{}, Samples{}, fmt.Errorf("top comments of %s: %w", submissionID, err)
	}
	controversial, err := c.Thread(ctx, submissionID, SortControversial, n)
	if err != nil {
		return Post{}, Samples{}, fmt.Errorf("controversial comments of %s: %w", submissionID, err)
	}
	return top.Post, Samples{
		Top:           top.Comments,
		Controversial: controversial.Comments,
	}, nil
}
