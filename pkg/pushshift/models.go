package pushshift

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Submission is one search result. The typed fields are the ones the
// crawler reads or writes; every other field returned by the API is kept
// in Raw and written back unchanged.
type Submission struct {
	ID          string
	CreatedUTC  int64
	Title       string
	SelfText    string
	Score       int
	UpvoteRatio float64
	Permalink   string
	NumComments int

	// Comments is nil until the submission has been backfilled.
	Comments         []Comment
	CommentsScrapped int

	Raw map[string]interface{}
}

// Created returns the submission creation time in UTC
func (s *Submission) Created() time.Time {
	return time.Unix(s.CreatedUTC, 0).UTC()
}

// Backfilled reports whether the comments of s have already been fetched
func (s *Submission) Backfilled() bool {
	return s.CommentsScrapped == 1 && s.Comments != nil
}

// WithComments returns a copy of s carrying comments and marked scrapped.
// A nil slice is stored as empty so the document always has the field.
func (s Submission) WithComments(comments []Comment) Submission {
	if comments == nil {
		comments = []Comment{}
	}
	s.Comments = comments
	s.CommentsScrapped = 1
	return s
}

type submissionFields struct {
	ID               string     `json:"id"`
	CreatedUTC       float64    `json:"created_utc"`
	Title            string     `json:"title"`
	SelfText         string     `json:"selftext"`
	Score            int        `json:"score"`
	UpvoteRatio      float64    `json:"upvote_ratio"`
	Permalink        string     `json:"permalink"`
	NumComments      int        `json:"num_comments"`
	Comments         *[]Comment `json:"comments,omitempty"`
	CommentsScrapped int        `json:"comments_scrapped"`
}

// UnmarshalJSON decodes the typed fields and keeps the full document in Raw.
// created_utc is accepted as an integer or a float.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var f submissionFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.ID == "" {
		return fmt.Errorf("submission without id")
	}
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Submission{
		ID:               f.ID,
		CreatedUTC:       int64(math.Floor(f.CreatedUTC)),
		Title:            f.Title,
		SelfText:         f.SelfText,
		Score:            f.Score,
		UpvoteRatio:      f.UpvoteRatio,
		Permalink:        f.Permalink,
		NumComments:      f.NumComments,
		CommentsScrapped: f.CommentsScrapped,
		Raw:              raw,
	}
	if f.Comments != nil {
		s.Comments = *f.Comments
	}
	return nil
}

// MarshalJSON writes Raw overlaid with the typed fields.
func (s Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// Document returns the storable form of s: the raw API document with the
// typed fields applied on top. comments is omitted until backfilled.
func (s Submission) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(s.Raw)+10)
	for k, v := range s.Raw {
		doc[k] = v
	}
	doc["id"] = s.ID
	doc["created_utc"] = s.CreatedUTC
	doc["title"] = s.Title
	doc["selftext"] = s.SelfText
	doc["score"] = s.Score
	doc["upvote_ratio"] = s.UpvoteRatio
	doc["permalink"] = s.Permalink
	doc["num_comments"] = s.NumComments
	doc["comments_scrapped"] = s.CommentsScrapped
	if s.Comments != nil {
		comments := make([]map[string]interface{}, len(s.Comments))
		for i, c := range s.Comments {
			comments[i] = c.Document()
		}
		doc["comments"] = comments
	} else {
		delete(doc, "comments")
	}
	return doc
}

// Comment is one comment returned by the comment search endpoint
type Comment struct {
	ID  string
	Raw map[string]interface{}
}

func (c *Comment) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, _ := raw["id"].(string)
	*c = Comment{ID: id, Raw: raw}
	return nil
}

func (c Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Document())
}

// Document returns the storable form of c
func (c Comment) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(c.Raw)+1)
	for k, v := range c.Raw {
		doc[k] = v
	}
	if c.ID != "" {
		doc["id"] = c.ID
	}
	return doc
}

// envelope is the {"data": [...]} wrapper every endpoint returns
type envelope struct {
	Data json.RawMessage `json:"data"`
}
