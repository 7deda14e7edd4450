package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// CrawlProgress prints a one-line status per subreddit while the history
// crawl moves its cursor forward.
type CrawlProgress struct {
	mu        sync.Mutex
	subreddit string
	pages     int
	records   int
	cursor    int64
	startTime time.Time
}

// NewCrawlProgress creates an idle progress line
func NewCrawlProgress() *CrawlProgress {
	return &CrawlProgress{startTime: time.Now()}
}

// Page records one persisted page. A new subreddit resets the counters.
func (p *CrawlProgress) Page(subreddit string, count int, cursor int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if subreddit != p.subreddit {
		p.subreddit = subreddit
		p.pages = 0
		p.records = 0
		p.startTime = time.Now()
	}
	p.pages++
	p.records += count
	p.cursor = cursor

	if !quiet {
		fmt.Fprintf(out, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
	}
}

func (p *CrawlProgress) line() string {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if m := elapsed.Minutes(); m > 0 {
		rate = float64(p.records) / m
	}
	return fmt.Sprintf("%s %s pages • %s records • %.0f/min • cursor %s",
		Cyan("r/"+p.subreddit),
		humanize.Comma(int64(p.pages)),
		humanize.Comma(int64(p.records)),
		rate,
		CursorTime(p.cursor),
	)
}

// Done ends the current line with a summary
func (p *CrawlProgress) Done(subreddit string, records int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quiet {
		return
	}
	fmt.Fprintf(out, "\n%s r/%s: %s records in %s\n",
		Green("✓"),
		subreddit,
		humanize.Comma(int64(records)),
		elapsed.Round(time.Second),
	)
}

// CursorTime renders an epoch cursor as a date with its relative age
func CursorTime(epoch int64) string {
	if epoch <= 0 {
		return "-"
	}
	t := time.Unix(epoch, 0).UTC()
	return fmt.Sprintf("%s (%s)", t.Format("2006-01-02 15:04"), humanize.Time(t))
}

// PrintStats prints aligned label/value pairs in the given order
func PrintStats(title string, labels []string, values map[string]int) {
	if quiet {
		return
	}
	width := 0
	for _, l := range labels {
		if len(l) > width {
			width = len(l)
		}
	}
	fmt.Fprintln(out, Magenta(title))
	for _, l := range labels {
		fmt.Fprintf(out, "  %s %s %s\n", Dim("•"), Cyan(fmt.Sprintf("%-*s", width, l)), humanize.Comma(int64(values[l])))
	}
}
