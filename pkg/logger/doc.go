// Package logger provides the structured logging interface used by every
// crawler component.
//
// It wraps zerolog behind the Logger interface so components can be handed
// a NewNopLogger or a NewTestLogger in tests. Console output is colourised;
// setting Format to "json" emits one JSON object per line instead, and File
// tees JSON lines to a file.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("subreddit", "ethtrader")
//	log.InfoWithFields("Page persisted", map[string]interface{}{
//	    "records": 1000,
//	    "cursor":  int64(1514764800),
//	})
package logger
