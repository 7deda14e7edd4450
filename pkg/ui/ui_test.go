package ui

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetNoColor(true)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetNoColor(false)
		SetQuietMode(false)
	})
	return &buf
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintSuccess("done")
	PrintInfo("Subreddit", "ethtrader")
	PrintError("failed", "boom")

	assert.Equal(t, "failed: boom\n", buf.String())
}

func TestCrawlProgress(t *testing.T) {
	buf := capture(t)
	p := NewCrawlProgress()

	p.Page("ethtrader", 1000, 1451606400)
	p.Page("ethtrader", 500, 1451700000)
	assert.Contains(t, buf.String(), "r/ethtrader 2 pages • 1,500 records")
	assert.Contains(t, buf.String(), "cursor 2016-01-02")

	p.Page("btc", 10, 1451606400)
	assert.Contains(t, buf.String(), "r/btc 1 pages • 10 records")

	p.Done("btc", 10, 3*time.Second)
	assert.Contains(t, buf.String(), "r/btc: 10 records in 3s")
}

func TestCursorTime(t *testing.T) {
	assert.Equal(t, "-", CursorTime(0))
	assert.Contains(t, CursorTime(1451606400), "2016-01-01 00:00")
}

func TestPrintStats(t *testing.T) {
	buf := capture(t)
	PrintStats("Backfill", []string{"scanned", "failed"}, map[string]int{"scanned": 12345, "failed": 2})
	assert.Contains(t, buf.String(), "scanned 12,345")
	assert.Contains(t, buf.String(), "failed  2")
}
