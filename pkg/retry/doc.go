// Package retry implements the crawler's one retry policy.
//
// An attempt reports its outcome as a Result: Success(v), Retryable(err) or
// Fatal(err). Run keeps calling the attempt while it is retryable, waiting
// according to the Policy's BackoffStrategy (or a longer Retry-After from a
// rate limit response), and returns an *ExhaustedError once MaxAttempts is
// reached. Fatal results and context cancellation end the loop at once.
//
//	page, err := retry.Run(ctx, policy, func(ctx context.Context) retry.Result[[]pushshift.Submission] {
//		return retry.Classify(client.FetchPage(ctx, "ethtrader", cursor, 1000))
//	})
//	switch {
//	case retry.IsExhausted(err):
//		// still failing after MaxAttempts
//	case errs.Is(err, errs.ErrorTypeAuth):
//		// fatal, surfaced to the caller
//	}
package retry
