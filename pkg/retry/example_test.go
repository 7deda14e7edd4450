package retry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"redditcrawler/pkg/retry"
)

func ExampleRun() {
	policy := &retry.Policy{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	}

	calls := 0
	v, err := retry.Run(context.Background(), policy, func(ctx context.Context) retry.Result[string] {
		calls++
		if calls < 2 {
			return retry.Retryable[string](errors.New("connection reset"))
		}
		return retry.Success("page")
	})

	fmt.Println(v, err, calls)
	// Output: page <nil> 2
}
