// Package upstream is the market-data fetch layer.
//
// Every outbound request goes through ThrottledTransport, which takes a
// permit from the shared upstream throttle before the request leaves the
// process. Client builds on it to fetch quotes.
//
//	transport := upstream.NewThrottledTransport(nil, throttle, collector)
//	client := upstream.NewClient(cfg.Upstream, transport)
//	quote, err := client.Quote(ctx, "AAPL")
//	if errors.Is(err, limits.ErrThrottleTimeout) {
//	    // upstream busy, retry shortly
//	}
package upstream
