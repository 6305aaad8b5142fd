// Package github fetches the documentation set from the origin repository:
// tree discovery through the GitHub API and per-file content through the raw
// host, with bounded retries, backoff and rate-limit awareness. All fetching
// is sequential; the origin's unauthenticated quota is small.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gemini-community/docs-mirror/internal/config"
	"github.com/gemini-community/docs-mirror/internal/logging"
	"github.com/gemini-community/docs-mirror/internal/markdown"
	"github.com/gemini-community/docs-mirror/internal/metrics"
	"github.com/gemini-community/docs-mirror/internal/version"
)

const (
	maxAttempts       = 3
	baseRetryDelay    = 2 * time.Second
	maxRetryDelay     = 30 * time.Second
	requestTimeout    = 30 * time.Second
	defaultRetryAfter = 60 * time.Second
	maxRateLimitWait  = 5 * time.Minute

	// combined changelog content below this stripped size is treated as absent
	minChangelogSize = 100

	docsPrefix  = "docs/"
	markdownExt = ".md"

	// ChangelogPath is the well-known optional changelog at the origin root.
	ChangelogPath = "CHANGELOG.md"

	acceptHeader = "application/vnd.github.v3+json"
)

var userAgent = "docs-mirror/" + version.Version

// changelogHeader is prepended to the origin's changelog before it is
// mirrored, attributing the content back to its source.
const changelogHeader = `# Gemini CLI Changelog

> **Source**: https://github.com/google-gemini/gemini-cli/blob/main/CHANGELOG.md
>
> This is the official Gemini CLI changelog, automatically fetched from the repository.

---

`

// Client performs all origin fetches for a run. It is not safe for
// concurrent use.
type Client struct {
	apiBase string
	rawBase string
	token   string
	client  *http.Client
	log     *logging.Logger

	// Injected so tests run without real delays.
	sleep  func(time.Duration)
	jitter func() float64
	now    func() time.Time
}

func New(fetch config.Fetch, log *logging.Logger) *Client {
	return &Client{
		apiBase: strings.TrimSuffix(fetch.APIBaseURL, "/"),
		rawBase: strings.TrimSuffix(fetch.RawBaseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		log:     log,
		sleep:   time.Sleep,
		jitter:  func() float64 { return 0.5 + rand.Float64()/2 },
		now:     time.Now,
	}
}

// WithToken attaches a bearer token to every request for the run's duration.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithDebugTransport dumps every request and response to the debug log.
func (c *Client) WithDebugTransport() *Client {
	c.client.Transport = NewLoggingTransport(nil, c.log)
	return c
}

// ListDocs discovers all Markdown files under docs/ via the recursive tree
// listing for the origin's fixed branch and returns their paths sorted
// lexicographically. Discovery failure is fatal to the run.
func (c *Client) ListDocs(ctx context.Context) ([]string, error) {
	url := c.apiBase + "/git/trees/" + config.SourceRef + "?recursive=1"
	c.log.Infof("discovering documentation files from GitHub")

	for attempt := 0; attempt < maxAttempts; {
		metrics.FetchCount.WithLabelValues("discovery").Inc()

		res, err := c.get(ctx, url, true)
		if err == nil {
			out := classifyDiscovery(res, c.now())
			switch out.decision {
			case decideWait:
				c.log.Warnf("rate limited, resets in %v", out.wait.Round(time.Second))
				metrics.RateLimitWaits.Inc()
				c.sleep(out.wait)
				continue
			case decideTerminal:
				metrics.FetchFailed.WithLabelValues("discovery").Inc()
				return nil, out.err
			case decideOK:
				files, perr := parseTree(res.body)
				if perr == nil {
					sort.Strings(files)
					c.log.Infof("discovered %d documentation files", len(files))
					return files, nil
				}
				err = perr
			case decideRetry:
				err = out.err
			}
		}

		attempt++
		c.log.Warnf("attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt >= maxAttempts {
			metrics.FetchFailed.WithLabelValues("discovery").Inc()
			return nil, fmt.Errorf("failed to discover docs after %d attempts: %w", maxAttempts, err)
		}
		c.sleep(c.backoffDelay(attempt - 1))
	}

	return nil, nil // unreachable
}

// FetchDoc retrieves one documentation file from the raw host and validates
// that the payload looks like Markdown. A validation failure is terminal for
// the file and never retried.
func (c *Client) FetchDoc(ctx context.Context, path string) (string, error) {
	url := c.rawBase + "/" + path

	for attempt := 0; attempt < maxAttempts; {
		metrics.FetchCount.WithLabelValues("doc").Inc()

		res, err := c.get(ctx, url, false)
		if err == nil {
			out := classifyFile(res, false)
			switch out.decision {
			case decideWait:
				c.log.Warnf("rate limited fetching %s, waiting %v", path, out.wait)
				metrics.RateLimitWaits.Inc()
				c.sleep(out.wait)
				continue
			case decideOK:
				content := string(res.body)
				if verr := markdown.Validate(content, path); verr != nil {
					metrics.FetchFailed.WithLabelValues("doc").Inc()
					return "", verr
				}
				c.log.Debugf("successfully fetched %s (%d bytes)", path, len(content))
				return content, nil
			case decideRetry:
				err = out.err
			}
		}

		attempt++
		c.log.Warnf("attempt %d/%d failed for %s: %v", attempt, maxAttempts, path, err)
		if attempt >= maxAttempts {
			metrics.FetchFailed.WithLabelValues("doc").Inc()
			return "", fmt.Errorf("failed to fetch %s after %d attempts: %w", path, maxAttempts, err)
		}
		c.sleep(c.backoffDelay(attempt - 1))
	}

	return "", nil // unreachable
}

// FetchChangelog retrieves the origin's optional top-level changelog with the
// attribution header prepended. Absence in any form (404, combined content
// too short, retries exhausted) is a valid non-error outcome and never counts
// as a run failure.
func (c *Client) FetchChangelog(ctx context.Context) (string, bool) {
	url := c.rawBase + "/" + ChangelogPath
	c.log.Infof("fetching changelog: %s", url)

	for attempt := 0; attempt < maxAttempts; {
		metrics.FetchCount.WithLabelValues("changelog").Inc()

		res, err := c.get(ctx, url, false)
		if err == nil {
			out := classifyFile(res, true)
			switch out.decision {
			case decideNotFound:
				c.log.Infof("no %s found in repository", ChangelogPath)
				return "", false
			case decideWait:
				c.log.Warnf("rate limited fetching changelog, waiting %v", out.wait)
				metrics.RateLimitWaits.Inc()
				c.sleep(out.wait)
				continue
			case decideOK:
				content := changelogHeader + string(res.body)
				if len(strings.TrimSpace(content)) < minChangelogSize {
					c.log.Warnf("changelog content too short")
					return "", false
				}
				c.log.Debugf("successfully fetched changelog (%d bytes)", len(content))
				return content, true
			case decideRetry:
				err = out.err
			}
		}

		attempt++
		c.log.Warnf("attempt %d/%d failed for changelog: %v", attempt, maxAttempts, err)
		if attempt >= maxAttempts {
			metrics.FetchFailed.WithLabelValues("changelog").Inc()
			return "", false
		}
		c.sleep(c.backoffDelay(attempt - 1))
	}

	return "", false // unreachable
}

func (c *Client) get(ctx context.Context, url string, api bool) (*httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if api {
		req.Header.Set("Accept", acceptHeader)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &httpResult{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// backoffDelay returns the sleep before the next counted attempt: the base
// delay doubled per attempt, capped, scaled by a jitter multiplier drawn
// uniformly from [0.5, 1.0).
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := baseRetryDelay << attempt
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return time.Duration(float64(d) * c.jitter())
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// parseTree keeps only Markdown blobs under the docs/ subtree.
func parseTree(body []byte) ([]string, error) {
	var tree struct {
		Tree []treeEntry `json:"tree"`
	}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree response: %w", err)
	}

	var files []string
	for _, item := range tree.Tree {
		if item.Type == "blob" && strings.HasPrefix(item.Path, docsPrefix) && strings.HasSuffix(item.Path, markdownExt) {
			files = append(files, item.Path)
		}
	}
	return files, nil
}
