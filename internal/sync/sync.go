package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gemini-community/docs-mirror/internal/config"
	"github.com/gemini-community/docs-mirror/internal/github"
	"github.com/gemini-community/docs-mirror/internal/logging"
	"github.com/gemini-community/docs-mirror/internal/manifest"
	"github.com/gemini-community/docs-mirror/internal/metrics"
	"github.com/gemini-community/docs-mirror/internal/version"
)

// courtesyDelay paces successive origin fetches.
const courtesyDelay = 300 * time.Millisecond

// Engine runs one full mirror pass: discover, fetch, diff against the
// previous manifest, reconcile the output directory and persist the new
// manifest. It holds no state between runs.
type Engine struct {
	cfg    *config.Root
	client *github.Client
	log    *logging.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// Summary is what a run reports back to the caller.
type Summary struct {
	Discovered  int
	Succeeded   int
	Failed      int
	FailedFiles []string
	Duration    time.Duration
}

func NewEngine(cfg *config.Root, client *github.Client, log *logging.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		log:    log,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Run executes one mirror pass. Individual file failures do not abort the
// run; they are reported in the summary and dropped from the manifest so the
// next run refetches them. Run returns an error only when discovery fails,
// discovery returns nothing, or not a single file could be fetched.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	start := e.now()
	metrics.LastSyncStart.SetToCurrentTime()

	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	prev := manifest.Load(e.cfg.OutputDir, e.log)
	next := manifest.Empty()

	paths, err := e.client.ListDocs(ctx)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no documentation files discovered")
	}

	var successful int
	failed := []string{}
	for i, path := range paths {
		e.log.Infof("processing %d/%d: %s", i+1, len(paths), path)

		content, err := e.client.FetchDoc(ctx, path)
		if err != nil {
			e.log.Errorf("failed to fetch %s: %v", path, err)
			failed = append(failed, path)
			continue
		}
		if err := e.record(next, prev, path, manifest.LogicalName(path), content, ""); err != nil {
			e.log.Errorf("failed to store %s: %v", path, err)
			failed = append(failed, path)
			continue
		}
		successful++
		if i < len(paths)-1 {
			e.sleep(courtesyDelay)
		}
	}

	if content, ok := e.client.FetchChangelog(ctx); ok {
		name := manifest.ChangelogName
		if err := e.record(next, prev, github.ChangelogPath, name, content, manifest.ChangelogSource); err != nil {
			e.log.Warnf("failed to store %s: %v", name, err)
		} else {
			successful++
		}
	}

	e.cleanup(prev, next)

	duration := e.now().Sub(start)
	next.FetchMetadata = &manifest.FetchMetadata{
		LastFetchCompleted:       e.now().UTC().Format(time.RFC3339),
		FetchDurationSeconds:     duration.Seconds(),
		TotalFilesDiscovered:     len(paths),
		FilesFetchedSuccessfully: successful,
		FilesFailed:              len(failed),
		FailedFiles:              failed,
		SourceRepository:         config.SourceRepository,
		TotalFiles:               len(next.Files),
		FetchToolVersion:         version.Version,
	}
	if err := manifest.Save(e.cfg.OutputDir, next, e.cfg.Mirror); err != nil {
		return nil, err
	}

	metrics.SyncDuration.Observe(duration.Seconds())
	metrics.LastSyncEnd.SetToCurrentTime()

	summary := &Summary{
		Discovered:  len(paths),
		Succeeded:   successful,
		Failed:      len(failed),
		FailedFiles: failed,
		Duration:    duration,
	}
	if len(failed) > 0 {
		e.log.Warnf("failed files (will retry next run):")
		for _, path := range failed {
			e.log.Warnf("  - %s", path)
		}
	}
	if summary.Succeeded == 0 {
		return summary, fmt.Errorf("no files were fetched successfully")
	}
	return summary, nil
}

// record diffs content against the previous manifest entry and writes the
// file only when the hash changed or the file is new. Unchanged files carry
// their previous timestamp forward so the manifest stays byte-stable across
// no-op runs.
func (e *Engine) record(next, prev *manifest.Manifest, originPath, name, content, source string) error {
	hash := manifest.HashContent(content)
	entry := manifest.Entry{
		OriginalPath: originPath,
		GitHubURL:    "https://github.com/" + config.SourceRepository + "/blob/" + config.SourceRef + "/" + originPath,
		Hash:         hash,
		Source:       source,
	}

	old, existed := prev.Files[name]
	if existed && old.Hash == hash {
		entry.LastUpdated = old.LastUpdated
		if entry.LastUpdated == "" {
			entry.LastUpdated = e.now().UTC().Format(time.RFC3339)
		}
		e.log.Infof("unchanged: %s", name)
		next.Files[name] = entry
		return nil
	}

	if err := os.WriteFile(filepath.Join(e.cfg.OutputDir, name), []byte(content), 0644); err != nil {
		return err
	}
	entry.LastUpdated = e.now().UTC().Format(time.RFC3339)
	e.log.Infof("updated: %s", name)
	next.Files[name] = entry
	return nil
}

// cleanup removes files the previous manifest tracked that this run no
// longer produced. Files never tracked by a manifest are left alone, as is
// the manifest itself.
func (e *Engine) cleanup(prev, next *manifest.Manifest) {
	for name := range prev.Files {
		if name == manifest.Filename {
			continue
		}
		if _, ok := next.Files[name]; ok {
			continue
		}
		target := filepath.Join(e.cfg.OutputDir, name)
		if _, err := os.Stat(target); err != nil {
			continue
		}
		e.log.Infof("removing obsolete file: %s", name)
		if err := os.Remove(target); err != nil {
			e.log.Warnf("failed to remove %s: %v", name, err)
		}
	}
}
