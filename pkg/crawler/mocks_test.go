package crawler

import (
	"context"
	"sort"
	"sync"

	"redditcrawler/pkg/pushshift"
)

// fakeArchive serves pages from an in-memory archive the way the search API
// does: ascending, strictly after the cursor, at most limit records.
type fakeArchive struct {
	mu       sync.Mutex
	data     map[string][]pushshift.Submission
	comments map[string][]pushshift.Comment
	afters   []int64
	errs     []error
	fetches  []string
	failIDs  map[string]error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		data:     make(map[string][]pushshift.Submission),
		comments: make(map[string][]pushshift.Comment),
		failIDs:  make(map[string]error),
	}
}

func (f *fakeArchive) add(subreddit string, subs ...pushshift.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[subreddit] = append(f.data[subreddit], subs...)
	sort.Slice(f.data[subreddit], func(i, j int) bool {
		return f.data[subreddit][i].CreatedUTC < f.data[subreddit][j].CreatedUTC
	})
}

// failNext queues errors returned by the next FetchPage calls
func (f *fakeArchive) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeArchive) FetchPage(ctx context.Context, subreddit string, after int64, limit int) ([]pushshift.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, after)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	var page []pushshift.Submission
	for _, s := range f.data[subreddit] {
		if s.CreatedUTC > after {
			page = append(page, s)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

func (f *fakeArchive) FetchSubmissionComments(ctx context.Context, submissionID string) ([]pushshift.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, submissionID)
	if err, ok := f.failIDs[submissionID]; ok {
		return nil, err
	}
	return f.comments[submissionID], nil
}

func (f *fakeArchive) pageCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.afters...)
}

func (f *fakeArchive) commentCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// failingWriter fails every upsert after the first `ok` succeed
type failingWriter struct {
	SubmissionWriter
	ok    int
	calls int
	err   error
}

func (w *failingWriter) UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error {
	w.calls++
	if w.calls > w.ok {
		return w.err
	}
	return w.SubmissionWriter.UpsertSubmissions(ctx, subreddit, subs)
}
