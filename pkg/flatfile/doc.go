// Package flatfile manages the files the live scraper writes.
//
// Each subreddit gets a directory holding two pipe-delimited files:
//   - <sub>_submissions.csv with the nine submission columns
//   - <sub>_blacklist.csv with the ids already written
//
// The blacklist only grows. An id is appended after its row has been
// written, so a crash in between leads to a duplicate row rather than a
// lost one.
//
// Usage:
//
//	files, err := flatfile.NewManager("./data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := files.Prepare("ethtrader"); err != nil {
//	    log.Fatal(err)
//	}
//	seen, err := files.LoadBlacklist("ethtrader")
package flatfile
