// Package live scrapes the current hot listing of each subreddit into the
// flat files managed by package flatfile, sampling the top and the most
// controversial comments of every submission it has not written before.
package live
