package github

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// decision classifies one HTTP exchange with the origin. Retry-vs-terminal
// logic is a pure function over response data; the fetch loops only act on
// the classification.
type decision int

const (
	decideOK       decision = iota
	decideRetry             // transient failure, consumes an attempt and backs off
	decideWait              // rate limited with a usable wait, retried outside the attempt budget
	decideNotFound          // changelog only: absence is a valid outcome
	decideTerminal          // not worth retrying within this run
)

type outcome struct {
	decision decision
	wait     time.Duration
	err      error
}

type httpResult struct {
	status int
	header http.Header
	body   []byte
}

// classifyDiscovery maps a tree API response to a decision. A 403 carrying a
// rate-limit reset under five minutes away is waited out without consuming an
// attempt; a 403 without one is terminal, since unauthenticated quota resets
// are far longer than any sensible retry budget.
func classifyDiscovery(res *httpResult, now time.Time) outcome {
	switch {
	case res.status == http.StatusForbidden:
		if reset := res.header.Get("X-RateLimit-Reset"); reset != "" {
			if sec, err := strconv.ParseInt(reset, 10, 64); err == nil {
				wait := time.Unix(sec, 0).Sub(now) + time.Second
				if wait > 0 && wait < maxRateLimitWait {
					return outcome{decision: decideWait, wait: wait}
				}
			}
		}
		return outcome{decision: decideTerminal, err: errors.New("GitHub API rate limit exceeded")}

	case res.status < http.StatusOK || res.status >= http.StatusMultipleChoices:
		return outcome{decision: decideRetry, err: fmt.Errorf("unsuccessful status code %d", res.status)}

	default:
		return outcome{decision: decideOK}
	}
}

// classifyFile maps a raw-content response to a decision. A 429 is waited out
// for Retry-After (default 60s) without consuming an attempt. When optional
// is set, a 404 means the file legitimately does not exist at the origin.
func classifyFile(res *httpResult, optional bool) outcome {
	switch {
	case optional && res.status == http.StatusNotFound:
		return outcome{decision: decideNotFound}

	case res.status == http.StatusTooManyRequests:
		wait := defaultRetryAfter
		if ra := res.header.Get("Retry-After"); ra != "" {
			if sec, err := strconv.Atoi(ra); err == nil {
				wait = time.Duration(sec) * time.Second
			}
		}
		return outcome{decision: decideWait, wait: wait}

	case res.status < http.StatusOK || res.status >= http.StatusMultipleChoices:
		return outcome{decision: decideRetry, err: fmt.Errorf("unsuccessful status code %d", res.status)}

	default:
		return outcome{decision: decideOK}
	}
}
