package flatfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestPrepareWritesHeaders(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, m.Prepare("ethtrader"))

	assert.Equal(t, filepath.Join(dir, "ethtrader", "ethtrader_submissions.csv"), m.SubmissionsPath("ethtrader"))
	assert.Equal(t,
		[]string{"id|created_utc|title|selftext|score|upvote_ratio|permalink|num_comments|comments"},
		readLines(t, m.SubmissionsPath("ethtrader")))
	assert.Equal(t, []string{"submission_id"}, readLines(t, m.BlacklistPath("ethtrader")))
}

func TestPrepareKeepsExistingFiles(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Prepare("btc"))
	require.NoError(t, m.AppendBlacklist("btc", []string{"a1"}))

	require.NoError(t, m.Prepare("btc"))
	assert.Equal(t, []string{"submission_id", "a1"}, readLines(t, m.BlacklistPath("btc")))
}

func TestLoadBlacklist(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	ids, err := m.LoadBlacklist("ethfinance")
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = os.Stat(m.BlacklistPath("ethfinance"))
	require.NoError(t, err, "missing blacklist should be created")

	require.NoError(t, m.AppendBlacklist("ethfinance", []string{"a1", "b2"}))
	require.NoError(t, m.AppendBlacklist("ethfinance", []string{"c3"}))

	ids, err = m.LoadBlacklist("ethfinance")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a1": true, "b2": true, "c3": true}, ids)
}

func TestAppendSubmissionsSanitizesDelimiter(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Prepare("ethtrader"))

	row := Row{
		ID:          "abc",
		CreatedUTC:  1700000000,
		Title:       "ETH | BTC",
		SelfText:    "a|b",
		Score:       42,
		UpvoteRatio: 0.93,
		Permalink:   "/r/ethtrader/comments/abc/eth_btc/",
		NumComments: 7,
		Comments:    `{"top":[{"body":"x|y"}]}`,
	}
	require.NoError(t, m.AppendSubmissions("ethtrader", []Row{row}))

	lines := readLines(t, m.SubmissionsPath("ethtrader"))
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], "|")
	require.Len(t, fields, len(SubmissionHeader))
	assert.Equal(t, "abc", fields[0])
	assert.Equal(t, "1700000000", fields[1])
	assert.Equal(t, "ETH   BTC", fields[2])
	assert.Equal(t, "a b", fields[3])
	assert.Equal(t, "0.93", fields[5])
	assert.Equal(t, "7", fields[7])
	assert.NotContains(t, fields[8], "|")
}

func TestAppendNothing(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.AppendSubmissions("empty", nil))
	_, err = os.Stat(m.SubmissionsPath("empty"))
	assert.True(t, os.IsNotExist(err))
}
