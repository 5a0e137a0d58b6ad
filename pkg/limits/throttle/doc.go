// Package throttle guards outbound calls to the market-data provider with a
// single fleet-wide token bucket.
//
// The bucket lives in the shared store so every instance draws from the same
// budget. Refill is computed lazily from elapsed time on each attempt; there
// is no background ticker. When the store cannot be reached the throttle
// switches to an in-process TokenBucket with the same parameters and
// reports the degraded mode through logs, the pescanner_throttle_degraded
// gauge and Stats. While degraded the fleet-wide rate can exceed the target
// by a factor of the instance count.
//
// # Usage
//
//	t := throttle.New(store, throttle.Config{
//	    Name:       "market-data",
//	    Capacity:   5,
//	    RefillRate: 2,
//	})
//
//	if err := t.Acquire(ctx, 30*time.Second); err != nil {
//	    if errors.Is(err, limits.ErrThrottleTimeout) {
//	        // surface "try again shortly"
//	    }
//	    return err
//	}
//	resp, err := client.Do(req)
package throttle
