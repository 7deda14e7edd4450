// Package crawler holds the two long-running loops over the pushshift
// archive.
//
// History pages forward through the submission search of each subreddit,
// upserting every page before advancing the subreddit's checkpoint, so an
// interrupted crawl resumes at the first page that was not persisted.
//
// Backfill walks the stored submissions of a subreddit and attaches their
// comments, flushing updates in batches. Submissions with few comments are
// marked done without a request.
//
// Both loops retry through a retry.Policy and stop between units of work
// when their context is cancelled.
package crawler
