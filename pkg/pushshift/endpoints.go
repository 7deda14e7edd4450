package pushshift

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the public pushshift API
	BaseURL = "https://api.pushshift.io"

	// SubmissionSearchEndpoint lists submissions of a subreddit
	SubmissionSearchEndpoint = "/reddit/search/submission/"

	// CommentIDsEndpoint lists the comment ids of one submission
	CommentIDsEndpoint = "/reddit/submission/comment_ids/"

	// CommentSearchEndpoint fetches comments by id
	CommentSearchEndpoint = "/reddit/comment/search"

	// DefaultPageLimit is the page size used when none is given
	DefaultPageLimit = 1000

	// CommentChunkSize is the maximum number of ids per comment request
	CommentChunkSize = 1000
)

// SubmissionSearchURL builds the ascending search query for submissions
// created strictly after the given epoch second.
func SubmissionSearchURL(base, subreddit string, after int64, limit int) string {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	params := url.Values{}
	params.Set("subreddit", subreddit)
	params.Set("after", strconv.FormatInt(after, 10))
	params.Set("sort", "asc")
	params.Set("limit", strconv.Itoa(limit))
	return strings.TrimRight(base, "/") + SubmissionSearchEndpoint + "?" + params.Encode()
}

// CommentIDsURL builds the comment id lookup for a submission
func CommentIDsURL(base, submissionID string) string {
	return strings.TrimRight(base, "/") + CommentIDsEndpoint + url.PathEscape(submissionID)
}

// CommentSearchURL builds a comment search for exactly the given ids.
func CommentSearchURL(base string, ids []string) string {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	return strings.TrimRight(base, "/") + CommentSearchEndpoint + "?" + params.Encode()
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = CommentChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
