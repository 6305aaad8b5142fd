// Package manifest implements the persisted record of mirrored files. The
// on-disk JSON shape is an external contract consumed by downstream tooling;
// these types are the only place it is encoded or decoded.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gemini-community/docs-mirror/internal/config"
	"github.com/gemini-community/docs-mirror/internal/logging"
)

const (
	// Filename is the manifest's fixed name inside the output directory.
	// Reconciliation never deletes it.
	Filename = "docs_manifest.json"

	// ChangelogSource tags the changelog entry, which is fetched through a
	// different path than tree-discovered files.
	ChangelogSource = "gemini-cli-repository"

	// ChangelogName is the changelog's local filename, lowercased unlike its
	// origin path.
	ChangelogName = "changelog.md"

	description = "Gemini CLI documentation manifest. Community mirror - not affiliated with Google."

	docsPrefix  = "docs/"
	markdownExt = ".md"
)

// Entry records one mirrored file.
type Entry struct {
	OriginalPath string `json:"original_path"`
	GitHubURL    string `json:"github_url"`
	Hash         string `json:"hash"`
	LastUpdated  string `json:"last_updated"`
	Source       string `json:"source,omitempty"`
}

// FetchMetadata carries run statistics. It is informational only and fully
// overwritten every run.
type FetchMetadata struct {
	LastFetchCompleted       string   `json:"last_fetch_completed"`
	FetchDurationSeconds     float64  `json:"fetch_duration_seconds"`
	TotalFilesDiscovered     int      `json:"total_files_discovered"`
	FilesFetchedSuccessfully int      `json:"files_fetched_successfully"`
	FilesFailed              int      `json:"files_failed"`
	FailedFiles              []string `json:"failed_files"`
	SourceRepository         string   `json:"source_repository"`
	TotalFiles               int      `json:"total_files"`
	FetchToolVersion         string   `json:"fetch_tool_version"`
}

// Manifest is the whole persisted state. A run loads the previous manifest,
// builds an entirely new one in memory and replaces the file on save; there
// is no partial update.
type Manifest struct {
	Files            map[string]Entry `json:"files"`
	LastUpdated      string           `json:"last_updated"`
	BaseURL          string           `json:"base_url,omitempty"`
	GitHubRepository string           `json:"github_repository,omitempty"`
	GitHubRef        string           `json:"github_ref,omitempty"`
	SourceRepository string           `json:"source_repository,omitempty"`
	Description      string           `json:"description,omitempty"`
	FetchMetadata    *FetchMetadata   `json:"fetch_metadata,omitempty"`
}

func Empty() *Manifest {
	return &Manifest{Files: map[string]Entry{}}
}

// Load reads the manifest from dir. A missing file is a fresh mirror; a
// corrupt file is logged and treated the same way. Load never fails the run.
func Load(dir string, log *logging.Logger) *Manifest {
	bs, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to load manifest: %v", err)
		}
		return Empty()
	}

	var m Manifest
	if err := json.Unmarshal(bs, &m); err != nil {
		log.Warnf("failed to load manifest: %v", err)
		return Empty()
	}
	if m.Files == nil {
		m.Files = map[string]Entry{}
	}
	return &m
}

// Save stamps the manifest with the current time and the mirror identity and
// replaces the file in dir. mirror is expected to be validated already (see
// config.Root).
func Save(dir string, m *Manifest, mirror config.Mirror) error {
	m.LastUpdated = time.Now().Format(time.RFC3339)
	m.BaseURL = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/docs/", mirror.Repository, mirror.Ref)
	m.GitHubRepository = mirror.Repository
	m.GitHubRef = mirror.Ref
	m.SourceRepository = config.SourceRepository
	m.Description = description

	bs, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, Filename), append(bs, '\n'), 0644)
}

// LogicalName flattens an origin path into the local filename:
// "docs/cli/commands.md" becomes "cli__commands.md". This is a one-way
// transform; the output no longer carries the docs/ prefix, so applying it
// twice is not meaningful.
func LogicalName(path string) string {
	name := strings.TrimPrefix(path, docsPrefix)
	name = strings.TrimSuffix(name, markdownExt)
	return strings.ReplaceAll(name, "/", "__") + markdownExt
}

// HashContent returns the hex SHA-256 digest of content, the change-detection
// key recorded per entry.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
