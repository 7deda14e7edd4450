// Package testutil holds fixtures and shared test suites.
package testutil

import (
	"fmt"

	"redditcrawler/pkg/pushshift"
)

// NewTestSubmission creates a submission as the search API would return it
func NewTestSubmission(id string, createdUTC int64, numComments int) pushshift.Submission {
	return pushshift.Submission{
		ID:          id,
		CreatedUTC:  createdUTC,
		Title:       "title " + id,
		Score:       1,
		Permalink:   fmt.Sprintf("/r/test/comments/%s/", id),
		NumComments: numComments,
		Raw: map[string]interface{}{
			"author": "author_" + id,
			"domain": "self.test",
		},
	}
}

// NewTestPage creates n consecutive submissions starting one second after start
func NewTestPage(prefix string, start int64, n int) []pushshift.Submission {
	page := make([]pushshift.Submission, n)
	for i := range page {
		page[i] = NewTestSubmission(fmt.Sprintf("%s%d", prefix, i), start+int64(i)+1, i)
	}
	return page
}

// NewTestComment creates a comment with a body
func NewTestComment(id, body string) pushshift.Comment {
	return pushshift.Comment{ID: id, Raw: map[string]interface{}{"id": id, "body": body}}
}
