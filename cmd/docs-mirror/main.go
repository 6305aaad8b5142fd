package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gemini-community/docs-mirror/internal/config"
	"github.com/gemini-community/docs-mirror/internal/github"
	"github.com/gemini-community/docs-mirror/internal/logging"
	"github.com/gemini-community/docs-mirror/internal/metrics"
	"github.com/gemini-community/docs-mirror/internal/sync"
	"github.com/gemini-community/docs-mirror/internal/version"
)

var (
	// Set by goreleaser
	commit = "none"
	date   = "unknown"

	// Global flags
	cfgFile     string
	outputDir   string
	logLevel    string
	logFormat   string
	debugHTTP   bool
	metricsFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docs-mirror",
	Short: "Mirror Gemini CLI documentation from GitHub",
	Long: `docs-mirror fetches the Markdown documentation tree of the Gemini CLI
repository into a local directory, tracking per-file content hashes in a
manifest so unchanged files are left untouched and removed files are pruned.

It is designed to run one-shot, typically from a scheduled CI job.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time documentation fetch",
	Long: `Sync discovers all Markdown files under the origin repository's docs/
tree, fetches each one, validates it, and writes the files that changed
since the last run. The manifest in the output directory records content
hashes and drives both change detection and pruning of obsolete files.`,
	RunE: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docs-mirror %s\n", version.Version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())

	syncCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to mirror documentation into (default \"docs\")")
	syncCmd.Flags().BoolVar(&debugHTTP, "debug-http", false, "dump all HTTP requests and responses to the debug log")
	syncCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format (for a node_exporter textfile collector)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfgFile, "config", "", "config file (optional)")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	log := logging.NewLogger(logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Format: logFormat,
		Output: os.Stderr,
	})

	cfg, err := config.Load(cfgFile, log)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if outputDir != "" {
		cfg.OutputDir = filepath.Clean(outputDir)
	}

	client := github.New(cfg.Fetch, log)
	token, err := cfg.Token()
	if err != nil {
		return err
	}
	if token != "" {
		log.Infof("using GitHub token for authentication")
		client.WithToken(token)
	} else {
		log.Infof("no GitHub token found, using unauthenticated requests (rate limited)")
	}
	if debugHTTP {
		client.WithDebugTransport()
	}

	engine := sync.NewEngine(cfg, client, log)

	log.Infof("starting documentation fetch from %s", config.SourceRepository)
	summary, err := engine.Run(ctx)
	if summary != nil {
		renderSummary(summary)
	}
	if metricsFile != "" {
		if werr := metrics.WriteTextfile(metricsFile); werr != nil {
			log.Warnf("failed to write metrics file: %v", werr)
		}
	}
	if err != nil {
		log.Errorf("fetch failed: %v", err)
		return err
	}
	return nil
}

func renderSummary(s *sync.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Discovered", "Succeeded", "Failed", "Duration"})
	table.Append([]string{
		strconv.Itoa(s.Discovered),
		strconv.Itoa(s.Succeeded),
		strconv.Itoa(s.Failed),
		s.Duration.Round(time.Millisecond).String(),
	})
	table.Render()
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
