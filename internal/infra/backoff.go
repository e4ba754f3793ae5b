package infra

import (
	"time"
)

const (
	// Reconnect backoff for the push channel: 2s, 4s, 8s, ...
	backoffBase = 2 * time.Second
	backoffMax  = 60 * time.Second
)

// ReconnectBackoff returns the exponential backoff duration for a given
// retry count: backoffBase * 2^retry, capped at backoffMax.
// Negative retry counts return backoffBase.
func ReconnectBackoff(retry int) time.Duration {
	if retry < 0 {
		return backoffBase
	}

	// 2^30 seconds already exceeds any sane cap; avoid shift overflow.
	if retry > 30 {
		return backoffMax
	}

	d := backoffBase * time.Duration(1<<retry)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
