package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/annotations"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/archive"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/autodetect"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/badge"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/bitbucket"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/config"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/diff"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/github"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/gitlab"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/logging"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/metrics"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/parsers"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/paths"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/report"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/watcher"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/wizard"
	"github.com/felixgeelhaar/covreport/internal/mcp"
)

type Service interface {
	Upload(ctx context.Context, opts application.UploadOptions) (application.UploadResult, error)
	CarryForward(ctx context.Context, opts application.CarryForwardOptions) (application.CarryForwardResult, error)
	Summary(ctx context.Context, opts application.ReportOptions) (application.ReportSummary, error)
	Report(ctx context.Context, opts application.ReportOptions) error
	PatchTotals(ctx context.Context, opts application.PatchOptions) (application.ReportSummary, *domain.Diff, error)
	Patch(ctx context.Context, opts application.PatchOptions) error
	Status(ctx context.Context, opts application.StatusOptions) ([]domain.StatusResult, error)
	Sessions(ctx context.Context, opts application.SessionsOptions) ([]*domain.Session, error)
	DeleteSessions(ctx context.Context, opts application.DeleteOptions) ([]int, error)
	RenameSession(ctx context.Context, opts application.RenameOptions) error
	Flare(ctx context.Context, opts application.FlareOptions) (*domain.FlareNode, error)
	Commits(ctx context.Context, configPath string) ([]string, error)
	Watch(ctx context.Context, opts application.WatchOptions, watcher application.FileWatcher, callback application.WatchCallback) error
}

var (
	initWizard = wizard.Run
	serveMCP   = func(ctx context.Context, svc mcp.Service, configPath string) error {
		return mcp.New(svc, mcp.Config{ConfigPath: configPath}, Version).Run(ctx)
	}
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // a status check failed
	exitUsage  = 2
	exitError  = 3
	exitWizard = 5
)

func Run(args []string, stdout, stderr io.Writer, svc Service) int {
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}

	ctx := context.Background()
	fs := flag.NewFlagSet(args[1], flag.ContinueOnError)
	fs.SetOutput(stderr)
	parse := func() bool { return fs.Parse(args[2:]) == nil }

	switch args[1] {
	case "upload":
		up := uploadFlags(fs)
		search := fs.String("search", "", "Search this directory for coverage files when none are given")
		metricsFile := metricsFlag(fs)
		if !parse() {
			return exitUsage
		}
		opts := up.options(fs.Args())
		opts.Search = *search
		result, err := svc.Upload(ctx, opts)
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		printUpload(stdout, opts.Commit, result)
		return exitCode(writeMetrics(svc, *metricsFile), exitError, stderr)
	case "carryforward":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit receiving the sessions")
		parent := fs.String("parent", "", "Parent commit to copy sessions from")
		var flags listFlag
		fs.Var(&flags, "flag", "Flag to carry forward (repeatable; defaults to configured flags)")
		metricsFile := metricsFlag(fs)
		if !parse() {
			return exitUsage
		}
		result, err := svc.CarryForward(ctx, application.CarryForwardOptions{
			ConfigPath: *configPath, Commit: *commit, Parent: *parent, Flags: flags,
		})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		printCarryForward(stdout, *commit, *parent, result)
		return exitCode(writeMetrics(svc, *metricsFile), exitError, stderr)
	case "report":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose report is shown")
		files := fs.Bool("files", false, "Show per-file totals")
		output := outputFlags(fs)
		var pathList, flags listFlag
		fs.Var(&pathList, "path", "Restrict to files matching the glob (repeatable)")
		fs.Var(&flags, "flag", "Restrict to sessions with the flag (repeatable)")
		if !parse() {
			return exitUsage
		}
		err := svc.Report(ctx, application.ReportOptions{
			ConfigPath: *configPath, Commit: *commit, Paths: pathList, Flags: flags, Files: *files, Output: *output,
		})
		return exitCode(err, exitError, stderr)
	case "patch":
		configPath := configFlag(fs)
		base := fs.String("base", "", "Base commit")
		head := fs.String("head", "", "Head commit")
		output := outputFlags(fs)
		var pathList, flags listFlag
		fs.Var(&pathList, "path", "Restrict to files matching the glob (repeatable)")
		fs.Var(&flags, "flag", "Restrict to sessions with the flag (repeatable)")
		if !parse() {
			return exitUsage
		}
		err := svc.Patch(ctx, application.PatchOptions{
			ConfigPath: *configPath, Base: *base, Head: *head, Paths: pathList, Flags: flags, Output: *output,
		})
		return exitCode(err, exitError, stderr)
	case "status":
		configPath := configFlag(fs)
		base := fs.String("base", "", "Base commit for relative targets and patch checks")
		head := fs.String("head", "", "Head commit")
		output := outputFlags(fs)
		if !parse() {
			return exitUsage
		}
		results, err := svc.Status(ctx, application.StatusOptions{
			ConfigPath: *configPath, Base: *base, Head: *head, Output: *output,
		})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		for _, r := range results {
			if r.IsFailing() {
				return exitFailed
			}
		}
		return exitOK
	case "sessions":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose sessions are listed")
		output := outputFlags(fs)
		if !parse() {
			return exitUsage
		}
		_, err := svc.Sessions(ctx, application.SessionsOptions{ConfigPath: *configPath, Commit: *commit, Output: *output})
		return exitCode(err, exitError, stderr)
	case "commits":
		configPath := configFlag(fs)
		if !parse() {
			return exitUsage
		}
		commits, err := svc.Commits(ctx, *configPath)
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		for _, c := range commits {
			fmt.Fprintln(stdout, c)
		}
		return exitOK
	case "delete":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose sessions are deleted")
		var ids intListFlag
		var flags listFlag
		fs.Var(&ids, "id", "Session id to delete (repeatable)")
		fs.Var(&flags, "flag", "Delete sessions with the flag (repeatable)")
		metricsFile := metricsFlag(fs)
		if !parse() {
			return exitUsage
		}
		if len(ids) == 0 && len(flags) == 0 {
			fmt.Fprintln(stderr, "delete needs at least one -id or -flag")
			return exitUsage
		}
		deleted, err := svc.DeleteSessions(ctx, application.DeleteOptions{
			ConfigPath: *configPath, Commit: *commit, IDs: ids, Flags: flags,
		})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		if len(deleted) == 0 {
			fmt.Fprintln(stdout, "No matching sessions.")
		} else {
			fmt.Fprintf(stdout, "Deleted sessions %s from %s\n", joinInts(deleted), *commit)
		}
		return exitCode(writeMetrics(svc, *metricsFile), exitError, stderr)
	case "renumber":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose session is renumbered")
		from := fs.Int("from", -1, "Current session id")
		to := fs.Int("to", -1, "New session id")
		if !parse() {
			return exitUsage
		}
		if *from < 0 || *to < 0 {
			fmt.Fprintln(stderr, "renumber needs -from and -to")
			return exitUsage
		}
		err := svc.RenameSession(ctx, application.RenameOptions{ConfigPath: *configPath, Commit: *commit, From: *from, To: *to})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		fmt.Fprintf(stdout, "Session %d is now %d\n", *from, *to)
		return exitOK
	case "flare":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose report is rendered")
		base := fs.String("base", "", "Mark files changed since this commit")
		out := fs.String("out", "-", "Output file (- for stdout)")
		var pathList, flags listFlag
		fs.Var(&pathList, "path", "Restrict to files matching the glob (repeatable)")
		fs.Var(&flags, "flag", "Restrict to sessions with the flag (repeatable)")
		if !parse() {
			return exitUsage
		}
		tree, err := svc.Flare(ctx, application.FlareOptions{
			ConfigPath: *configPath, Commit: *commit, Base: *base, Paths: pathList, Flags: flags,
		})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		return exitCode(writeJSON(*out, stdout, tree), exitError, stderr)
	case "badge":
		configPath := configFlag(fs)
		commit := fs.String("commit", "", "Commit whose report is rendered")
		out := fs.String("out", "-", "Output file (- for stdout)")
		label := fs.String("label", badge.DefaultLabel, "Badge label")
		style := fs.String("style", string(badge.StyleFlat), "Badge style (flat, flat-square)")
		var pathList, flags listFlag
		fs.Var(&pathList, "path", "Restrict to files matching the glob (repeatable)")
		fs.Var(&flags, "flag", "Restrict to sessions with the flag (repeatable)")
		if !parse() {
			return exitUsage
		}
		tree, err := svc.Flare(ctx, application.FlareOptions{
			ConfigPath: *configPath, Commit: *commit, Paths: pathList, Flags: flags,
		})
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		opts := badge.FromFlare(tree, *label, badge.Style(*style))
		err = writeOutput(*out, stdout, func(w io.Writer) error { return badge.Generate(w, opts) })
		return exitCode(err, exitError, stderr)
	case "watch":
		up := uploadFlags(fs)
		dir := fs.String("dir", ".", "Directory watched for coverage files")
		if !parse() {
			return exitUsage
		}
		opts := application.WatchOptions{UploadOptions: up.options(nil), Dir: *dir}
		return runWatch(ctx, stdout, stderr, svc, opts)
	case "init":
		configPath := configFlag(fs)
		force := fs.Bool("force", false, "Overwrite existing config file")
		noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
		if !parse() {
			return exitUsage
		}
		cfg, err := initialConfig(*configPath)
		if err != nil {
			return exitCode(err, exitError, stderr)
		}
		if !*noInteractive {
			var confirmed bool
			cfg, confirmed, err = initWizard(cfg, stdout, os.Stdin)
			if err != nil {
				return exitCode(err, exitWizard, stderr)
			}
			if !confirmed {
				fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
				return exitOK
			}
		}
		if err := writeConfigFile(*configPath, cfg, stdout, *force); err != nil {
			return exitCode(err, exitUsage, stderr)
		}
		return exitOK
	case "mcp":
		configPath := configFlag(fs)
		if !parse() {
			return exitUsage
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := serveMCP(ctx, quiet(svc), *configPath)
		if err != nil && ctx.Err() != nil {
			return exitOK
		}
		return exitCode(err, exitError, stderr)
	case "version":
		fmt.Fprintln(stdout, versionString())
		return exitOK
	default:
		usage(stderr)
		return exitUsage
	}
}

// BuildService wires the production adapters. Logs go to stderr so stdout
// stays free for command output and the MCP transport.
func BuildService(out, stderr io.Writer) *application.Service {
	logger, _, err := logging.New(stderr, logging.Options{
		Level: os.Getenv("COVREPORT_LOG_LEVEL"),
		JSON:  os.Getenv("COVREPORT_LOG_FORMAT") == "json",
	})
	if err != nil {
		logger = zap.NewNop()
		fmt.Fprintf(stderr, "invalid log settings: %v\n", err)
	}
	return &application.Service{
		ConfigLoader:      config.Loader{},
		Parsers:           parsers.NewRegistry(),
		OpenStore:         archive.Factory,
		OpenDiff:          openDiff,
		AnnotationScanner: annotations.Scanner{},
		Finder:            autodetect.Finder{},
		PathFixer:         paths.Factory,
		Reporter:          report.Writer{},
		Metrics:           metrics.NewRecorder(),
		Events:            logging.NewEventLogger(logger),
		Logger:            logger,
		Out:               out,
	}
}

func openDiff(cfg application.DiffConfig) (application.DiffProvider, error) {
	switch cfg.Provider {
	case application.DiffProviderGitHub:
		client, err := github.NewClient(cfg.Repo, "")
		if err != nil {
			return nil, err
		}
		return client, nil
	case application.DiffProviderGitLab:
		client, err := gitlab.NewClient(cfg.Repo, "")
		if err != nil {
			return nil, err
		}
		return client, nil
	case application.DiffProviderBitbucket:
		client, err := bitbucket.NewClient(cfg.Repo)
		if err != nil {
			return nil, err
		}
		return client, nil
	case application.DiffProviderGit, "":
		return diff.GitDiff{Dir: cfg.Dir}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", application.ErrDiffUnavailable, cfg.Provider)
	}
}

// quiet detaches the service output so handlers cannot write onto the
// MCP stdio transport.
func quiet(svc Service) Service {
	if s, ok := svc.(*application.Service); ok {
		cp := *s
		cp.Out = nil
		return &cp
	}
	return svc
}

type textfileWriter interface {
	WriteTextfile(path string) error
}

// writeMetrics dumps the ingestion counters in the node exporter textfile
// format when path is set.
func writeMetrics(svc Service, path string) error {
	if path == "" {
		return nil
	}
	s, ok := svc.(*application.Service)
	if !ok {
		return nil
	}
	w, ok := s.Metrics.(textfileWriter)
	if !ok {
		return fmt.Errorf("metrics recorder cannot write %s", path)
	}
	return w.WriteTextfile(path)
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", config.DefaultPath, "Config file path")
}

func metricsFlag(fs *flag.FlagSet) *string {
	return fs.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
}

type uploadArgs struct {
	configPath *string
	commit     *string
	format     *string
	root       *string
	name       *string
	provider   *string
	build      *string
	job        *string
	url        *string
	flags      listFlag
	env        listFlag
}

func uploadFlags(fs *flag.FlagSet) *uploadArgs {
	u := &uploadArgs{
		configPath: configFlag(fs),
		commit:     fs.String("commit", "", "Commit the upload belongs to"),
		format:     fs.String("format", string(application.FormatAuto), "Upload format: auto|go|lcov|cobertura"),
		root:       fs.String("root", ".", "Source checkout scanned for ignore comments (empty to skip)"),
		name:       fs.String("name", "", "Session name"),
		provider:   fs.String("provider", "", "CI provider"),
		build:      fs.String("build", "", "CI build number"),
		job:        fs.String("job", "", "CI job id"),
		url:        fs.String("url", "", "CI build URL"),
	}
	fs.Var(&u.flags, "flag", "Session flag (repeatable)")
	fs.Var(&u.env, "env", "Environment variable recorded on the session (repeatable)")
	return u
}

func (u *uploadArgs) options(files []string) application.UploadOptions {
	opts := application.UploadOptions{
		ConfigPath: *u.configPath,
		Commit:     *u.commit,
		Files:      files,
		Format:     application.Format(*u.format),
		Root:       *u.root,
		Flags:      u.flags,
		Name:       *u.name,
		Provider:   *u.provider,
		Build:      *u.build,
		Job:        *u.job,
		URL:        *u.url,
		Time:       time.Now().Unix(),
	}
	if len(u.env) > 0 {
		opts.Env = make(map[string]string, len(u.env))
		for _, key := range u.env {
			opts.Env[key] = os.Getenv(key)
		}
	}
	return opts
}

func outputFlags(fs *flag.FlagSet) *application.OutputFormat {
	output := application.OutputText
	fs.Var((*outputValue)(&output), "output", "Output format: text|json")
	fs.Var((*outputValue)(&output), "o", "Output format: text|json")
	return &output
}

type outputValue application.OutputFormat

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(value string) error {
	switch value {
	case string(application.OutputText), string(application.OutputJSON):
		*o = outputValue(value)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", value)
	}
}

// listFlag implements flag.Value for repeatable string flags
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type intListFlag []int

func (l *intListFlag) String() string { return joinInts(*l) }

func (l *intListFlag) Set(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid session id: %s", value)
	}
	*l = append(*l, n)
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// initialConfig returns the existing config at path, or the defaults.
func initialConfig(path string) (application.Config, error) {
	loader := config.Loader{}
	ok, err := loader.Exists(path)
	if err != nil || !ok {
		return application.DefaultConfig(), err
	}
	return loader.Load(path)
}

func writeConfigFile(path string, cfg application.Config, stdout io.Writer, force bool) error {
	if path == "-" {
		return config.Write(stdout, cfg)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := config.Write(file, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)
	return nil
}

func writeJSON(path string, stdout io.Writer, v any) error {
	return writeOutput(path, stdout, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeOutput runs write against stdout, or against the file at path
// unless path is "-".
func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" || path == "" {
		return write(stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func printUpload(w io.Writer, commit string, result application.UploadResult) {
	fmt.Fprintf(w, "Session %d merged into %s: %s files, %s read\n",
		result.SessionID, commit, humanize.Comma(int64(result.Files)), humanize.Bytes(uint64(result.Bytes)))
	fmt.Fprintf(w, "Upload coverage %s, report coverage %s\n", percent(result.Totals), percent(result.Report))
}

func printCarryForward(w io.Writer, commit, parent string, result application.CarryForwardResult) {
	if len(result.Sessions) == 0 {
		fmt.Fprintf(w, "Nothing carried forward from %s\n", parent)
		return
	}
	mode := "shifted by diff"
	if !result.Shifted {
		mode = "unshifted"
	}
	fmt.Fprintf(w, "Carried %d sessions (%s) from %s into %s, %s\n",
		len(result.Sessions), strings.Join(result.Flags, ","), parent, commit, mode)
	fmt.Fprintf(w, "Report coverage %s\n", percent(result.Totals))
}

func percent(t domain.ReportTotals) string {
	if !t.HasCoverage() {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", t.Percent())
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `covreport <command>

Commands:
  upload        Parse coverage files into a new session of a commit
  carryforward  Copy carry-forward sessions from a parent commit
  report        Show the totals of a commit report
  patch         Show the coverage of lines added between two commits
  status        Evaluate project and patch status checks
  sessions      List the sessions of a commit report
  commits       List commits with a stored report
  delete        Delete sessions by id or flag
  renumber      Change the id of a session
  flare         Write the coverage tree of a report as JSON
  badge         Write an SVG coverage badge for a report
  watch         Upload coverage files as they are written
  init          Write a config file, with an interactive wizard
  mcp           Serve reports over MCP on stdio
  version       Print version information`)
}

func exitCode(err error, code int, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, err)
	if errors.Is(err, domain.ErrReportNotFound) {
		fmt.Fprintln(stderr, "hint: run `covreport commits` to list stored reports")
	}
	return code
}

func runWatch(ctx context.Context, stdout, stderr io.Writer, svc Service, opts application.WatchOptions) int {
	w, err := watcher.New(watcher.WithDebounce(500 * time.Millisecond))
	if err != nil {
		fmt.Fprintf(stderr, "failed to create watcher: %v\n", err)
		return exitError
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stdout, "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(stdout, "Watching %s for coverage files... (Ctrl+C to stop)\n\n", opts.Dir)

	uploads := 0
	callback := func(path string, result application.UploadResult, uploadErr error) {
		uploads++
		fmt.Fprintf(stdout, "--- Upload #%d at %s: %s ---\n", uploads, time.Now().Format("15:04:05"), path)
		if uploadErr != nil {
			fmt.Fprintf(stderr, "Upload failed: %v\n", uploadErr)
			return
		}
		printUpload(stdout, opts.Commit, result)
	}

	if err := svc.Watch(ctx, opts, w, callback); err != nil {
		if errors.Is(err, context.Canceled) {
			return exitOK
		}
		fmt.Fprintf(stderr, "watch error: %v\n", err)
		return exitError
	}
	return exitOK
}
