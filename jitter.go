package ppool

import (
	"math/rand"
	"time"
)

// jitterSleep pauses for a random duration in [min, max). Used by
// fetchers between their own successive outgoing requests to respect
// source rate limits.
func jitterSleep(min, max time.Duration) {
	if max <= min {
		time.Sleep(min)
		return
	}
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	time.Sleep(d)
}
