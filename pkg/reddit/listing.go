package reddit

import (
	"context"
	"fmt"
	"math"

	graw "github.com/jamesprial/go-reddit-api-wrapper"
	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"

	"redditcrawler/pkg/logger"
)

const (
	// HotLimit is the most items the hot listing will ever return
	HotLimit = 1000

	// listingPageSize is the largest page the listing endpoints accept
	listingPageSize = 100
)

// HotFetcher is the slice of the API wrapper the listing needs
type HotFetcher interface {
	GetHot(ctx context.Context, req *types.PostsRequest) (*types.PostsResponse, error)
}

// Credentials configure the OAuth application used for listings
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Listing pages through subreddit listings with the API wrapper
type Listing struct {
	api    HotFetcher
	logger logger.Logger
}

// NewListing authenticates an API client with creds
func NewListing(creds Credentials, log logger.Logger) (*Listing, error) {
	client, err := graw.NewClient(&graw.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		UserAgent:    creds.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return NewListingWithFetcher(client, log), nil
}

// NewListingWithFetcher wraps an existing fetcher
func NewListingWithFetcher(api HotFetcher, log logger.Logger) *Listing {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Listing{api: api, logger: logger.ForComponent(log, "reddit_listing")}
}

// Hot returns up to limit posts of the hot listing in listing order. Pages
// are requested until the limit is reached or the listing has no next page.
func (l *Listing) Hot(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	if limit <= 0 || limit > HotLimit {
		limit = HotLimit
	}

	posts := make([]Post, 0, limit)
	seen := make(map[string]bool, limit)
	after := ""
	for len(posts) < limit {
		size := listingPageSize
		if remaining := limit - len(posts); remaining < size {
			size = remaining
		}

		resp, err := l.api.GetHot(ctx, &types.PostsRequest{
			Subreddit: subreddit,
			Pagination: types.Pagination{
				Limit: size,
				After: after,
			},
		})
		if err != nil {
			return posts, fmt.Errorf("hot listing of r/%s: %w", subreddit, err)
		}
		if resp == nil || len(resp.Posts) == 0 {
			break
		}

		for _, p := range resp.Posts {
			if p == nil || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, fromAPI(p))
			if len(posts) == limit {
				break
			}
		}

		l.logger.DebugWithFields("fetched listing page", map[string]interface{}{
			"subreddit": subreddit,
			"page_size": len(resp.Posts),
			"total":     len(posts),
		})

		after = resp.AfterFullname
		if after == "" {
			break
		}
	}
	return posts, nil
}

func fromAPI(p *types.Post) Post {
	return Post{
		ID:          p.ID,
		CreatedUTC:  int64(math.Floor(p.CreatedUTC)),
		Title:       p.Title,
		SelfText:    p.SelfText,
		Score:       p.Score,
		NumComments: p.NumComments,
	}
}
