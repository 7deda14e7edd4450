package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// siteFile is the older per-site config layout where a subreddit whose
// currentAfterDate key is absent has never been crawled.
type siteFile struct {
	Subreddits []struct {
		Name             string          `json:"name"`
		CurrentAfterDate json.RawMessage `json:"currentAfterDate,omitempty"`
	} `json:"subreddits"`
}

// ImportSiteFile seeds store from a site config file and returns the
// subreddit names in file order. Subreddits that already have a checkpoint
// keep it unless overwrite is set.
func ImportSiteFile(ctx context.Context, path string, store Store, overwrite bool) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site file: %w", err)
	}

	var site siteFile
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to parse site file: %w", err)
	}

	names := make([]string, 0, len(site.Subreddits))
	for _, sub := range site.Subreddits {
		if sub.Name == "" {
			return nil, fmt.Errorf("site file %s: subreddit without a name", path)
		}

		state := NotStarted()
		if len(sub.CurrentAfterDate) > 0 && string(sub.CurrentAfterDate) != "null" {
			cursor, err := parseAfterDate(sub.CurrentAfterDate)
			if err != nil {
				return nil, fmt.Errorf("subreddit %s: %w", sub.Name, err)
			}
			state = InProgress(cursor)
		}

		if !overwrite {
			existing, err := store.Load(ctx, sub.Name)
			if err != nil {
				return nil, err
			}
			if existing.Started() {
				names = append(names, sub.Name)
				continue
			}
		}

		if state.Started() || overwrite {
			if err := store.Save(ctx, sub.Name, state); err != nil {
				return nil, err
			}
		}
		names = append(names, sub.Name)
	}
	return names, nil
}

// parseAfterDate accepts the cursor as a JSON number or a quoted number.
func parseAfterDate(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid currentAfterDate %s", raw)
	}
	return int64(f), nil
}
