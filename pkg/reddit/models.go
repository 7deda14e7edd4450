package reddit

import (
	"encoding/json"
	"math"
)

// Post is one submission of a listing, reduced to the columns the live
// scraper writes.
type Post struct {
	ID          string
	CreatedUTC  int64
	Title       string
	SelfText    string
	Score       int
	UpvoteRatio float64
	Permalink   string
	NumComments int
}

// CommentSample is the summary kept for each sampled comment
type CommentSample struct {
	Created float64 `json:"created"`
	Score   int     `json:"score"`
	Body    string  `json:"body"`
	Replies int     `json:"replies"`
}

// Samples holds the two comment samples written to the comments column
type Samples struct {
	Top           []CommentSample `json:"top"`
	Controversial []CommentSample `json:"controversial"`
}

// Thread is a submission page fetched with one comment sort: the post as
// the thread endpoint reports it plus its first comments.
type Thread struct {
	Post     Post
	Comments []CommentSample
}

// listing is the {"kind": "Listing", "data": {"children": [...]}} wrapper
type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	SelfText    string          `json:"selftext"`
	Body        string          `json:"body"`
	Permalink   string          `json:"permalink"`
	Score       int             `json:"score"`
	UpvoteRatio float64         `json:"upvote_ratio"`
	NumComments int             `json:"num_comments"`
	Created     float64         `json:"created"`
	CreatedUTC  float64         `json:"created_utc"`
	Replies     json.RawMessage `json:"replies"`
}

func (d thingData) post() Post {
	return Post{
		ID:          d.ID,
		CreatedUTC:  int64(math.Floor(d.CreatedUTC)),
		Title:       d.Title,
		SelfText:    d.SelfText,
		Score:       d.Score,
		UpvoteRatio: d.UpvoteRatio,
		Permalink:   d.Permalink,
		NumComments: d.NumComments,
	}
}

func (d thingData) sample() CommentSample {
	created := d.Created
	if created == 0 {
		created = d.CreatedUTC
	}
	return CommentSample{
		Created: created,
		Score:   d.Score,
		Body:    d.Body,
		Replies: countReplies(d.Replies),
	}
}

// countReplies counts the direct children of a replies listing. Reddit
// sends an empty string when a comment has none.
func countReplies(raw json.RawMessage) int {
	if len(raw) == 0 || raw[0] != '{' {
		return 0
	}
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return 0
	}
	return len(l.Data.Children)
}
