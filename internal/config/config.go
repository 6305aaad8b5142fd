// Package config holds the typed run configuration. Environment variables
// are read exactly once, here; the engine and the GitHub client only ever see
// this structure.
package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/gemini-community/docs-mirror/internal/logging"
)

// The origin this tool mirrors is fixed: multi-repository support is out of
// scope. The fetch endpoints are configurable so deployments behind a proxy
// (and tests) can redirect them without changing what is mirrored.
const (
	SourceRepository  = "google-gemini/gemini-cli"
	SourceRef         = "main"
	DefaultAPIBaseURL = "https://api.github.com/repos/" + SourceRepository
	DefaultRawBaseURL = "https://raw.githubusercontent.com/" + SourceRepository + "/" + SourceRef

	DefaultOutputDir = "docs"

	// Recorded in the manifest when the mirror repository identity is
	// unknown or malformed.
	placeholderRepository = "YOUR_USERNAME/gemini-cli-docs"
)

var repoPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// Root is the top-level configuration structure.
type Root struct {
	OutputDir string  `json:"output_dir"`
	Mirror    Mirror  `json:"mirror"`
	Fetch     Fetch   `json:"fetch"`
	Auth      *Secret `json:"auth,omitempty"`
}

// Mirror identifies the repository this mirror is published from. It is only
// used to compute the cosmetic base_url recorded in the manifest.
type Mirror struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
}

// Fetch overrides the origin endpoints.
type Fetch struct {
	APIBaseURL string `json:"api_base_url"`
	RawBaseURL string `json:"raw_base_url"`
}

// Load reads the optional YAML configuration file, overlays the environment
// (GITHUB_TOKEN, GITHUB_REPOSITORY, GITHUB_REF_NAME), applies defaults and
// validates the result. An empty path means no file, environment and defaults
// only.
func Load(path string, log *logging.Logger) (*Root, error) {
	var root Root

	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(bs, &root); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	root.overlayEnv()
	root.applyDefaults()
	root.validate(log)

	return &root, nil
}

func (r *Root) overlayEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && r.Auth == nil {
		r.Auth = &Secret{Value: map[string]any{"type": "token_auth", "token": token}}
	}
	r.Mirror.Repository = cmp.Or(r.Mirror.Repository, os.Getenv("GITHUB_REPOSITORY"))
	r.Mirror.Ref = cmp.Or(r.Mirror.Ref, os.Getenv("GITHUB_REF_NAME"))
}

func (r *Root) applyDefaults() {
	r.OutputDir = filepath.Clean(cmp.Or(r.OutputDir, DefaultOutputDir))
	r.Mirror.Repository = cmp.Or(r.Mirror.Repository, placeholderRepository)
	r.Mirror.Ref = cmp.Or(r.Mirror.Ref, "main")
	r.Fetch.APIBaseURL = cmp.Or(r.Fetch.APIBaseURL, DefaultAPIBaseURL)
	r.Fetch.RawBaseURL = cmp.Or(r.Fetch.RawBaseURL, DefaultRawBaseURL)
}

// validate never fails the run: a malformed mirror repository is replaced
// with the placeholder so the manifest is not written with a bogus base_url.
func (r *Root) validate(log *logging.Logger) {
	if !repoPattern.MatchString(r.Mirror.Repository) {
		log.Warnf("invalid repository format: %s", r.Mirror.Repository)
		r.Mirror.Repository = placeholderRepository
	}
}

// Token resolves the configured credential to a bearer token. Returns the
// empty string when no credential is configured.
func (r *Root) Token() (string, error) {
	if r.Auth == nil {
		return "", nil
	}
	typed, err := r.Auth.Typed()
	if err != nil {
		return "", err
	}
	auth, ok := typed.(SecretTokenAuth)
	if !ok {
		return "", fmt.Errorf("unsupported secret type for github fetch: %T", typed)
	}
	return auth.Token, nil
}
