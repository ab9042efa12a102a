// Package main is the miwake CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/miwake/internal/catalog"
	"github.com/hyperjump/miwake/internal/cli"
	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/extract"
	"github.com/hyperjump/miwake/internal/indexer"
	"github.com/hyperjump/miwake/internal/matcher"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/search"
	"github.com/hyperjump/miwake/internal/server"
	"github.com/hyperjump/miwake/internal/storage"
	"github.com/hyperjump/miwake/internal/watcher"
	"github.com/hyperjump/miwake/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/miwake/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if neither exists the
// built-in defaults are used. Returns the config and the path that was loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "identify":
		runIdentify()
	case "add":
		runAdd()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("miwake version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the wired engine and its dependencies.
type Components struct {
	Storage storage.Storage
	Catalog *catalog.Catalog
	Indexer *indexer.Indexer
	Engine  *search.Engine
}

// Close releases storage.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.Open(&cfg.Storage, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	cat := catalog.New()
	ex := extract.NewExtractor(extract.OptionsFromConfig(&cfg.Extract))

	matchOpts := []matcher.Option{}
	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if debug {
		matchOpts = append(matchOpts, matcher.WithLogger(logger))
	}
	m := matcher.New(matcher.OptionsFromConfig(&cfg.Match), matchOpts...)
	idx := indexer.NewIndexer(store, cat, ex, &cfg.Corpus, idxOpts...)
	engine := search.NewEngine(store, cat, ex, m, idx, cfg, search.WithLogger(logger))

	logger.Info("components initialized",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("cache_path", store.Path()),
		zap.String("index", cfg.Match.Index))
	return &Components{Storage: store, Catalog: cat, Indexer: idx, Engine: engine}, nil
}

// setup loads config, creates the logger and wires components. It exits on failure.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))
	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, matches, file events)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := components.Engine.EnsureLoaded(ctx); err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}

	var watch server.WatchService
	if cfg.Corpus.Watch && cfg.Corpus.Directory != "" {
		idx := components.Indexer
		w := watcher.NewWatcher(cfg.Corpus.Directory, cfg.Corpus.Extensions, func(path string) {
			out, err := idx.IndexFile(ctx, path)
			if err != nil {
				logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch catalogued file",
				zap.String("path", path),
				zap.Int("entries", out.Entries),
				zap.String("skipped", out.Skipped))
		}, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		watch = w
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger, watch)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*outputFormat)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	dir := cfg.Corpus.Directory
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Usage: miwake build [flags] <corpus-dir> (or set corpus.directory in config)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	report, err := components.Engine.BuildCorpus(ctx, dir)
	if report != nil {
		if werr := cli.WriteBuildReport(os.Stdout, report, format); werr != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
}

func runIdentify() {
	fs := flag.NewFlagSet("identify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = match in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*outputFormat)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: miwake identify [flags] <image>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	var res *models.IdentifyResult
	if *serverURL != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read image failed: %v\n", err)
			os.Exit(1)
		}
		res = new(models.IdentifyResult)
		if err := postImage(*serverURL+"/api/v1/identify", data, http.StatusOK, res); err != nil {
			fmt.Fprintf(os.Stderr, "Identify failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, *debug)
		defer logger.Sync()
		defer components.Close()
		var err error
		res, err = components.Engine.IdentifyFile(context.Background(), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Identify failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteIdentifyResult(os.Stdout, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = append in-process)")
	id := fs.String("id", "", "entry id (default: file name without extension)")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: miwake add [flags] <image>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	entryID := *id
	if entryID == "" {
		entryID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read image failed: %v\n", err)
		os.Exit(1)
	}

	var out indexer.Outcome
	if *serverURL != "" {
		if err := postImage(*serverURL+"/api/v1/entries?id="+url.QueryEscape(entryID), data, http.StatusCreated, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		res, err := components.Engine.AddEntry(context.Background(), entryID, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		out = *res
	}
	if !out.OK() {
		fmt.Fprintf(os.Stderr, "Not added: %s\n", out.Skipped)
		os.Exit(1)
	}
	fmt.Printf("Added %s (%d entries)\n", out.ID, out.Entries)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", *configPath)
		os.Exit(1)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Write config failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", *configPath)
}

type statusResponse struct {
	Stats            *search.Stats `json:"stats"`
	WatchDirectories []string      `json:"watch_directories,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the cache directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*outputFormat)

	var stats *search.Stats
	if *serverURL != "" {
		status, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		stats = status.Stats
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		if err := components.Engine.EnsureLoaded(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Load catalog failed: %v\n", err)
			os.Exit(1)
		}
		stats = components.Engine.Stats()
	}
	if stats == nil {
		fmt.Fprintln(os.Stderr, "Status failed: empty response")
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// postImage sends data as the raw request body and decodes a JSON reply into out.
func postImage(endpoint string, data []byte, wantStatus int, out interface{}) error {
	resp, err := http.Post(endpoint, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return httpError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// argsReorder moves flags that follow positional arguments to the front so
// "miwake identify query.png --output json" parses like the flags-first form.
func argsReorder(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") && a != "-" {
			flags = append(flags, a)
			if !strings.Contains(a, "=") && !isBoolFlag(a) && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positional = append(positional, a)
	}
	return append(flags, positional...)
}

func isBoolFlag(a string) bool {
	switch strings.TrimLeft(a, "-") {
	case "debug", "help", "h":
		return true
	}
	return false
}

func printUsage() {
	fmt.Println(`miwake - Visual identification against a catalogued image corpus

Usage:
  miwake server [flags]            Start the HTTP server
  miwake build [flags] [dir]       Catalog a corpus directory (original + mirrored entries)
  miwake identify [flags] <image>  Identify an image against the catalog
  miwake add [flags] <image>       Append a single image to the catalog
  miwake status [flags]            Show catalog and cache status
  miwake init [--config path]      Write a config file with default settings
  miwake version                   Show version
  miwake help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/miwake/config.yaml)
  --debug            Enable debug logging

Identify Flags:
  --server string    Server URL; empty (default) matches in-process
  --output string    Output format: text or json (default: text)

Add Flags:
  --server string    Server URL; empty (default) appends in-process
  --id string        Entry id (default: file name without extension)

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to read the cache directly.
  --output string    Output format: text or json (default: text)

Examples:
  miwake build ./icons
  miwake identify screenshot.png
  miwake identify --server http://localhost:8080 --output json crop.png
  miwake add --id gamma gamma.png
  miwake status --server ""`)
}
