// Package checkpoint tracks how far the historical crawl has walked each
// subreddit.
//
// A subreddit's State is NotStarted, InProgress(cursor) or
// Exhausted(cursor), where cursor is the created_utc of the last persisted
// submission. A Tracker moves one subreddit through those states and writes
// every transition through to a Store, so an interrupted crawl resumes from
// the last page that reached the document store.
//
// FileStore keeps one JSON file per subreddit and replaces it with an
// atomic rename. The document store drivers also implement Store, keeping
// cursors next to the submissions they describe.
package checkpoint
