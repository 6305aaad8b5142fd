package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gemini-community/docs-mirror/internal/config"
	"github.com/gemini-community/docs-mirror/internal/github"
	"github.com/gemini-community/docs-mirror/internal/logging"
	"github.com/gemini-community/docs-mirror/internal/manifest"
)

const (
	goodDoc = "# Overview\n\nThe CLI ships with these pieces:\n\n- a prompt runner\n- a session manager\n"
	htmlDoc = "<!DOCTYPE html>\n<html><body>not markdown</body></html>"
)

// origin simulates the GitHub tree API and raw content endpoints for a fixed
// set of documentation files.
type origin struct {
	docs      map[string]string
	changelog string
}

func (o *origin) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/git/trees/main":
			var entries []map[string]string
			for path := range o.docs {
				entries = append(entries, map[string]string{"path": path, "type": "blob"})
			}
			if err := json.NewEncoder(w).Encode(map[string]any{"tree": entries}); err != nil {
				t.Errorf("failed to encode tree: %v", err)
			}
		case r.URL.Path == "/CHANGELOG.md":
			if o.changelog == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(o.changelog))
		default:
			content, ok := o.docs[strings.TrimPrefix(r.URL.Path, "/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(content))
		}
	})
}

func newTestEngine(t *testing.T, url, dir string) *Engine {
	t.Helper()
	log := logging.NewLogger(logging.Config{Level: logging.LevelDebug, Format: "json", Output: &bytes.Buffer{}})
	cfg := &config.Root{
		OutputDir: dir,
		Mirror:    config.Mirror{Repository: "example/gemini-cli-docs", Ref: "main"},
		Fetch:     config.Fetch{APIBaseURL: url, RawBaseURL: url},
	}
	e := NewEngine(cfg, github.New(cfg.Fetch, log), log)
	e.sleep = func(time.Duration) {}
	return e
}

func TestRunFreshSync(t *testing.T) {
	o := &origin{docs: map[string]string{
		"docs/index.md":        goodDoc,
		"docs/cli/commands.md": goodDoc,
	}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Discovered != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	for _, name := range []string{"index.md", "cli__commands.md"} {
		bs, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if string(bs) != goodDoc {
			t.Fatalf("unexpected content in %s", name)
		}
	}

	m := manifest.Load(dir, e.log)
	if len(m.Files) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(m.Files))
	}
	entry := m.Files["cli__commands.md"]
	if entry.OriginalPath != "docs/cli/commands.md" {
		t.Fatalf("unexpected original path %q", entry.OriginalPath)
	}
	if entry.Hash != manifest.HashContent(goodDoc) {
		t.Fatalf("unexpected hash %q", entry.Hash)
	}
	if want := "https://github.com/google-gemini/gemini-cli/blob/main/docs/cli/commands.md"; entry.GitHubURL != want {
		t.Fatalf("unexpected github url %q", entry.GitHubURL)
	}
	if m.FetchMetadata == nil || m.FetchMetadata.FilesFetchedSuccessfully != 2 {
		t.Fatalf("unexpected fetch metadata: %+v", m.FetchMetadata)
	}
}

func TestRunUnchangedFilesKeepTimestamp(t *testing.T) {
	o := &origin{docs: map[string]string{"docs/index.md": goodDoc}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()

	e1 := newTestEngine(t, ts.URL, dir)
	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e1.now = func() time.Time { return t1 }
	if _, err := e1.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	e2 := newTestEngine(t, ts.URL, dir)
	e2.now = func() time.Time { return t1.Add(24 * time.Hour) }
	if _, err := e2.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	m := manifest.Load(dir, e2.log)
	if got, want := m.Files["index.md"].LastUpdated, t1.Format(time.RFC3339); got != want {
		t.Fatalf("expected carried-forward timestamp %s, got %s", want, got)
	}
}

func TestRunChangedFileIsRewritten(t *testing.T) {
	o := &origin{docs: map[string]string{"docs/index.md": goodDoc}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	updated := goodDoc + "\n## New section\n\nMore content here.\n"
	o.docs["docs/index.md"] = updated
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	bs, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != updated {
		t.Fatal("expected file to be rewritten with updated content")
	}
	m := manifest.Load(dir, e.log)
	if m.Files["index.md"].Hash != manifest.HashContent(updated) {
		t.Fatal("expected manifest hash to track the new content")
	}
}

func TestRunPartialFailure(t *testing.T) {
	o := &origin{docs: map[string]string{
		"docs/good.md": goodDoc,
		"docs/bad.md":  htmlDoc, // fails validation, not retried
	}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("partial failure must not fail the run, got %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if diff := cmp.Diff([]string{"docs/bad.md"}, summary.FailedFiles); diff != "" {
		t.Fatalf("unexpected failed files (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(dir, "bad.md")); !os.IsNotExist(err) {
		t.Fatal("failed file must not be written")
	}
	m := manifest.Load(dir, e.log)
	if _, ok := m.Files["bad.md"]; ok {
		t.Fatal("failed file must not appear in the manifest")
	}
	if diff := cmp.Diff([]string{"docs/bad.md"}, m.FetchMetadata.FailedFiles); diff != "" {
		t.Fatalf("unexpected metadata failed files (-want +got):\n%s", diff)
	}
}

func TestRunRemovesObsoleteFiles(t *testing.T) {
	o := &origin{docs: map[string]string{"docs/index.md": goodDoc}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	// A previous run tracked removed.md; untracked.md was never in a manifest.
	prev := manifest.Empty()
	prev.Files["removed.md"] = manifest.Entry{OriginalPath: "docs/removed.md", Hash: "stale"}
	if err := manifest.Save(dir, prev, e.cfg.Mirror); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"removed.md", "untracked.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "removed.md")); !os.IsNotExist(err) {
		t.Fatal("expected tracked obsolete file to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "untracked.md")); err != nil {
		t.Fatal("untracked files must be left alone")
	}
	if _, err := os.Stat(filepath.Join(dir, manifest.Filename)); err != nil {
		t.Fatal("the manifest itself must never be removed")
	}
}

func TestRunChangelog(t *testing.T) {
	o := &origin{
		docs:      map[string]string{"docs/index.md": goodDoc},
		changelog: "## v2.0.0\n\n- Everything is new\n",
	}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Succeeded != 2 {
		t.Fatalf("changelog must count toward successes, got %+v", summary)
	}

	bs, err := os.ReadFile(filepath.Join(dir, manifest.ChangelogName))
	if err != nil {
		t.Fatalf("expected changelog to exist: %v", err)
	}
	if !strings.HasPrefix(string(bs), "# Gemini CLI Changelog") {
		t.Fatal("expected attribution header on the changelog")
	}

	m := manifest.Load(dir, e.log)
	entry, ok := m.Files[manifest.ChangelogName]
	if !ok {
		t.Fatal("expected changelog manifest entry")
	}
	if entry.Source != manifest.ChangelogSource {
		t.Fatalf("unexpected changelog source %q", entry.Source)
	}
	if entry.OriginalPath != "CHANGELOG.md" {
		t.Fatalf("unexpected changelog original path %q", entry.OriginalPath)
	}
}

func TestRunMissingChangelogIsNotAFailure(t *testing.T) {
	o := &origin{docs: map[string]string{"docs/index.md": goodDoc}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("missing changelog must not count as a failure: %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(dir, manifest.ChangelogName)); !os.IsNotExist(err) {
		t.Fatal("expected no changelog file")
	}
}

func TestRunEmptyDiscovery(t *testing.T) {
	o := &origin{docs: map[string]string{}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	e := newTestEngine(t, ts.URL, t.TempDir())
	if _, err := e.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "no documentation files discovered") {
		t.Fatalf("expected empty-discovery error, got %v", err)
	}
}

func TestRunAllFilesFail(t *testing.T) {
	o := &origin{docs: map[string]string{"docs/a.md": htmlDoc, "docs/b.md": htmlDoc}}
	ts := httptest.NewServer(o.handler(t))
	defer ts.Close()

	dir := t.TempDir()
	e := newTestEngine(t, ts.URL, dir)

	summary, err := e.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no files were fetched successfully") {
		t.Fatalf("expected total-failure error, got %v", err)
	}
	if summary == nil || summary.Succeeded != 0 || summary.Failed != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// The manifest is still written so the next run has the run statistics.
	m := manifest.Load(dir, e.log)
	if m.FetchMetadata == nil || m.FetchMetadata.FilesFailed != 2 {
		t.Fatalf("unexpected fetch metadata: %+v", m.FetchMetadata)
	}
}
