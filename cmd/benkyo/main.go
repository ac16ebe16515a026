// Package main is the benkyo CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/benkyo/internal/cli"
	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/server"
	"github.com/hyperjump/benkyo/internal/session"
	"github.com/hyperjump/benkyo/internal/watcher"
	"github.com/hyperjump/benkyo/pkg/utils"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

// errUsage marks a command line that could not be parsed; usage has already been printed.
var errUsage = errors.New("usage")

func main() {
	// A missing .env is fine; keys may come from the environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "server":
		return runServer(args)
	case "ask":
		return runAsk(args, out)
	case "add":
		return runAdd(args, out)
	case "clear":
		return runClear(args, out)
	case "info":
		return runInfo(args, out)
	case "history":
		return runHistory(args, out)
	case "status":
		return runStatus(args, out)
	case "watch":
		return runWatch(args, out)
	case "init":
		return runInit(args, out)
	case "version", "--version", "-v":
		fmt.Fprintf(out, "benkyo version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n", command)
		printUsage(out)
		return errUsage
	}
}

// reorderArgs moves flags that follow the positional arguments to the front so
// flag.Parse sees them: "benkyo ask what is ATP -top-k 2".
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args so multi-word questions work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// commonFlags are shared by every command that can talk to a server or open the files directly.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
}

func newFlagSet(name string, withServer bool) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
	if withServer {
		cf.serverURL = fs.String("server", defaultServerURL, "server URL; used when reachable (empty = always open files directly)")
	}
	return fs, cf
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(reorderArgs(args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// remote returns a client when a server is reachable at the configured URL.
func (cf commonFlags) remote(ctx context.Context) *apiClient {
	if cf.serverURL == nil || *cf.serverURL == "" {
		return nil
	}
	c := newAPIClient(strings.TrimRight(*cf.serverURL, "/"))
	if !c.reachable(ctx) {
		return nil
	}
	return c
}

// openLocal loads config and wires the components for direct file access.
func (cf commonFlags) openLocal() (*app, error) {
	cfg, _, err := loadConfig(*cf.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := newApp(cfg, logger, session.WithID(cliSessionID))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := parse(fs, args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess := a.session
	inbox := watcher.New(
		cfg.Watch.Directories,
		cfg.Ingest.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) {
			res, err := sess.IngestFile(ctx, path)
			if err != nil {
				logger.Warn("inbox file not ingested", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("inbox file ingested", zap.String("source", res.Source), zap.Int("fragments", res.Fragments))
		},
		watcher.WithLogger(logger),
	)
	if err := inbox.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer inbox.Stop()
	go inbox.SyncExistingFiles()

	srv := server.NewServer(sess, cfg, server.WithLogger(logger), server.WithWatch(inbox, resolvedConfigPath))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func runAsk(args []string, out io.Writer) error {
	fs, cf := newFlagSet("ask", true)
	topK := fs.Int("top-k", 0, "number of fragments to retrieve (0 = config default)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: benkyo ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	if err := parse(fs, args); err != nil {
		return err
	}
	question := joinArgs(fs.Args())
	if question == "" {
		fs.Usage()
		return errUsage
	}
	format, err := cli.ParseFormat(*cf.output)
	if err != nil {
		return err
	}

	ctx := context.Background()
	req := models.QueryRequest{Question: question, TopK: *topK}
	var answer *models.Answer
	if c := cf.remote(ctx); c != nil {
		answer, err = c.ask(ctx, req)
	} else {
		a, openErr := cf.openLocal()
		if openErr != nil {
			return openErr
		}
		defer a.Close()
		answer, err = a.session.Ask(ctx, req)
	}
	if err != nil {
		return err
	}
	return cli.WriteAnswer(out, answer, format)
}

func runAdd(args []string, out io.Writer) error {
	fs, cf := newFlagSet("add", true)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: benkyo add [flags] <file-or-directory>...\n\n")
		fs.PrintDefaults()
	}
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errUsage
	}
	format, err := cli.ParseFormat(*cf.output)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var add func(path string) (*models.IngestResult, error)
	var extensions []string
	if c := cf.remote(ctx); c != nil {
		add = func(path string) (*models.IngestResult, error) { return c.addDocument(ctx, path) }
		cfg, _, err := loadConfig(*cf.configPath)
		if err == nil {
			extensions = cfg.Ingest.Extensions
		}
	} else {
		a, err := cf.openLocal()
		if err != nil {
			return err
		}
		defer a.Close()
		add = func(path string) (*models.IngestResult, error) { return a.session.IngestFile(ctx, path) }
		extensions = a.indexer.Extensions()
	}

	paths, err := expandInputs(fs.Args(), extensions)
	if err != nil {
		return err
	}
	var failed int
	for _, p := range paths {
		res, err := add(p)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Skipped %s: %v\n", p, err)
			continue
		}
		if err := cli.WriteIngestResult(out, res, format); err != nil {
			return err
		}
	}
	if failed > 0 && failed == len(paths) {
		return fmt.Errorf("no documents added")
	}
	return nil
}

// expandInputs resolves files and directories to absolute file paths. Directories
// are walked recursively and filtered by extension.
func expandInputs(inputs, extensions []string) ([]string, error) {
	var paths []string
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && hasExtension(path, extensions) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func runClear(args []string, out io.Writer) error {
	fs, cf := newFlagSet("clear", true)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := parse(fs, args); err != nil {
		return err
	}
	if !*yes && !confirm(os.Stdin, out, "Remove every document and the conversation history?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}
	ctx := context.Background()
	if c := cf.remote(ctx); c != nil {
		if err := c.clear(ctx); err != nil {
			return err
		}
	} else {
		a, err := cf.openLocal()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.session.Clear(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "Knowledge base cleared.")
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runInfo(args []string, out io.Writer) error {
	fs, cf := newFlagSet("info", true)
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*cf.output)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var info models.DocumentsInfo
	if c := cf.remote(ctx); c != nil {
		if info, err = c.info(ctx); err != nil {
			return err
		}
	} else {
		a, err := cf.openLocal()
		if err != nil {
			return err
		}
		defer a.Close()
		info = a.session.Info()
	}
	return cli.WriteInfo(out, info, format)
}

func runHistory(args []string, out io.Writer) error {
	fs, cf := newFlagSet("history", true)
	limit := fs.Int("limit", 20, "number of interactions to show (0 = all)")
	deleteID := fs.String("delete", "", "delete the interaction with this ID")
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*cf.output)
	if err != nil {
		return err
	}
	ctx := context.Background()
	c := cf.remote(ctx)
	var a *app
	if c == nil {
		if a, err = cf.openLocal(); err != nil {
			return err
		}
		defer a.Close()
	}

	if *deleteID != "" {
		if c != nil {
			err = c.deleteInteraction(ctx, *deleteID)
		} else {
			err = a.session.DeleteInteraction(ctx, *deleteID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s\n", *deleteID)
		return nil
	}

	var items []*models.Interaction
	if c != nil {
		items, err = c.history(ctx, *limit)
	} else {
		items, err = a.session.History(ctx, *limit)
	}
	if err != nil {
		return err
	}
	return cli.WriteHistory(out, items, format)
}

func runStatus(args []string, out io.Writer) error {
	fs, cf := newFlagSet("status", true)
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*cf.output)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var st *session.Status
	if c := cf.remote(ctx); c != nil {
		st, err = c.status(ctx)
	} else {
		a, openErr := cf.openLocal()
		if openErr != nil {
			return openErr
		}
		defer a.Close()
		st, err = a.session.Status(ctx)
	}
	if err != nil {
		return err
	}
	return writeStatus(out, st, format)
}

func writeStatus(out io.Writer, st *session.Status, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		return cli.WriteJSON(out, st)
	}
	fmt.Fprintf(out, "session:           %s\n", st.SessionID)
	fmt.Fprintf(out, "fragments:         %d   # stored vectors and metadata records\n", st.Fragments)
	fmt.Fprintf(out, "documents:         %d\n", len(st.Documents))
	fmt.Fprintf(out, "dimensions:        %d\n", st.Dimensions)
	fmt.Fprintf(out, "history_entries:   %d\n", st.HistoryEntries)
	fmt.Fprintf(out, "disk_usage_bytes:  %d   # index %d, metadata %d, history %d\n",
		st.DiskUsageBytes, st.Disk.IndexBytes, st.Disk.MetadataBytes, st.Disk.HistoryBytes)
	if st.Uptime != "" {
		fmt.Fprintf(out, "uptime:            %s\n", st.Uptime)
	}
	return nil
}

func runWatch(args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: benkyo watch <add|remove|list> [path]")
		return errUsage
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	c := newAPIClient(strings.TrimRight(*serverURL, "/"))
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Fprintf(out, "Usage: benkyo watch %s <path>\n", sub)
			return errUsage
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		verb := "Added"
		if sub == "add" {
			err = c.watchAdd(ctx, path)
		} else {
			verb = "Removed"
			err = c.watchRemove(ctx, path)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", verb, path)
		return nil
	case "list":
		dirs, err := c.watchList(ctx)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Fprintln(out, d)
		}
		return nil
	default:
		fmt.Fprintf(out, "Unknown watch subcommand: %s\n", sub)
		return errUsage
	}
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := parse(fs, args); err != nil {
		return err
	}
	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `benkyo - ask questions of your own study documents

Usage:
  benkyo server [flags]                 Start the HTTP server and inbox watcher
  benkyo ask [flags] <question>         Answer a question from the knowledge base
  benkyo add [flags] <file-or-dir>...   Add documents (pdf, txt, md, rst, docx, pptx, xlsx)
  benkyo clear [flags]                  Remove all documents and history
  benkyo info [flags]                   List documents and fragment counts
  benkyo history [flags]                Show past questions and answers
  benkyo status [flags]                 Show knowledge base and storage status
  benkyo watch <add|remove|list>        Manage inbox directories of a running server
  benkyo init [path]                    Write a default config.yaml
  benkyo version                        Show version
  benkyo help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/benkyo/config.yaml, or ./config.yaml when present)
  --server string    Server URL (default: http://localhost:8080). Used when reachable; otherwise files are opened directly.
  --output string    Output format: text or json (default: text)

Ask Flags:
  --top-k int        Number of fragments to retrieve (default from config)

History Flags:
  --limit int        Number of interactions to show (default: 20)
  --delete string    Delete one interaction by ID

Server Flags:
  --debug            Enable debug logging

Examples:
  benkyo add lecture-notes.pdf slides/
  benkyo ask what is the krebs cycle
  benkyo ask --top-k 8 --output json "compare mitosis and meiosis"
  benkyo info
  benkyo clear --yes`)
}
