package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

type Service struct {
	ConfigLoader      ConfigLoader
	Parsers           ParserRegistry
	OpenStore         StoreFactory
	OpenDiff          DiffProviderFactory
	AnnotationScanner AnnotationScanner
	Finder            CoverageFinder
	PathFixer         PathFixerFactory
	Reporter          Reporter
	Metrics           Recorder
	Events            domain.EventPublisher
	Logger            *zap.Logger
	Out               io.Writer
	// Workers bounds concurrent parsing; zero means GOMAXPROCS.
	Workers int
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s *Service) publish(event domain.DomainEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(event); err != nil {
		s.log().Warn("publish event", zap.String("event", event.EventType()), zap.Error(err))
	}
}

func (s *Service) store(cfg Config) (ReportStore, error) {
	if s.OpenStore == nil {
		return nil, fmt.Errorf("no report store configured")
	}
	return s.OpenStore(cfg.Storage)
}

func (s *Service) diffProvider(cfg Config) (DiffProvider, error) {
	if s.OpenDiff == nil {
		return nil, ErrDiffUnavailable
	}
	return s.OpenDiff(cfg.Diff)
}

// loadOrNew returns the stored report of commit or an empty one.
func loadOrNew(ctx context.Context, store ReportStore, commit string) (*domain.Report, error) {
	report, err := store.Load(ctx, commit)
	if errors.Is(err, domain.ErrReportNotFound) {
		return domain.NewReport(), nil
	}
	return report, err
}

// Upload parses coverage files into a new session and merges it into the
// report of the commit.
func (s *Service) Upload(ctx context.Context, opts UploadOptions) (UploadResult, error) {
	if len(opts.Files) == 0 && opts.Search != "" && s.Finder != nil {
		found, err := s.Finder.Find(ctx, opts.Search)
		if err != nil {
			return UploadResult{}, fmt.Errorf("search %s: %w", opts.Search, err)
		}
		s.log().Debug("coverage files found", zap.String("dir", opts.Search), zap.Strings("files", found))
		opts.Files = found
	}
	if len(opts.Files) == 0 {
		return UploadResult{}, ErrNoFiles
	}
	if err := requireCommit(opts.Commit); err != nil {
		return UploadResult{}, err
	}
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return UploadResult{}, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return UploadResult{}, err
	}
	existing, err := loadOrNew(ctx, store, opts.Commit)
	if err != nil {
		return UploadResult{}, err
	}

	var fixer domain.PathFixer
	if s.PathFixer != nil {
		if fixer, err = s.PathFixer(cfg.Paths, nil); err != nil {
			return UploadResult{}, err
		}
	}
	id := existing.NextSessionID()
	upload, err := s.parseAll(ctx, domain.NewReportBuilder(id, fixer, nil), opts)
	if err != nil {
		return UploadResult{}, err
	}
	if s.AnnotationScanner != nil && opts.Root != "" {
		ignored, err := s.AnnotationScanner.Scan(ctx, opts.Root, upload.FileNames())
		if err != nil {
			return UploadResult{}, fmt.Errorf("scan annotations: %w", err)
		}
		upload = applyIgnores(upload, ignored)
	}
	if upload.IsEmpty() {
		return UploadResult{}, ErrNoCoverage
	}

	totals := upload.Totals()
	upload.AddSession(domain.Session{
		ID:       id,
		Totals:   &totals,
		Time:     opts.Time,
		Flags:    opts.Flags,
		Provider: opts.Provider,
		Build:    opts.Build,
		Name:     opts.Name,
		Job:      opts.Job,
		URL:      opts.URL,
		Env:      opts.Env,
		Type:     domain.SessionUploaded,
	}, true)

	merge := domain.NewDisjointMerge(existing)
	if err := merge.Add(upload); err != nil {
		return UploadResult{}, err
	}
	merged := merge.Finish()
	if err := store.Save(ctx, opts.Commit, merged); err != nil {
		return UploadResult{}, fmt.Errorf("save report: %w", err)
	}

	result := UploadResult{
		SessionID: id,
		Files:     upload.Len(),
		Bytes:     inputSize(opts.Files),
		Totals:    totals,
		Report:    merged.Totals(),
	}
	if s.Metrics != nil {
		s.Metrics.Upload(opts.Flags, result.Files, totals)
	}
	s.publish(domain.NewReportMergedEvent(opts.Commit, id, totals))
	s.log().Info("upload merged",
		zap.String("commit", opts.Commit),
		zap.Int("session", id),
		zap.Strings("flags", opts.Flags),
		zap.Int("files", result.Files),
		zap.String("coverage", totals.Coverage),
	)
	return result, nil
}

// parseAll parses every upload concurrently, one builder session per file,
// and joins the fragments in input order.
func (s *Service) parseAll(ctx context.Context, builder *domain.ReportBuilder, opts UploadOptions) (*domain.Report, error) {
	if s.Parsers == nil {
		return nil, fmt.Errorf("no profile parser configured")
	}
	fragments := make([]*domain.Report, len(opts.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, path := range opts.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			session := builder.NewSession(path)
			var err error
			if opts.Format == "" || opts.Format == FormatAuto {
				err = s.Parsers.Parse(path, session)
			} else {
				err = s.Parsers.ParseWithFormat(path, opts.Format, session)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			s.log().Debug("parsed upload", zap.String("path", path), zap.Int("files", session.Output().Len()))
			fragments[i] = session.Output()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := domain.NewReport()
	for _, f := range fragments {
		out.Merge(f, true)
	}
	return out, nil
}

func inputSize(paths []string) int64 {
	var n int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			n += info.Size()
		}
	}
	return n
}

// CarryForward copies the sessions of carry-forward flags from the parent
// commit into the commit, for flags the commit has not uploaded yet. Lines
// are shifted through the parent..commit diff when a diff provider is
// available; a failing provider leaves the lines unshifted.
func (s *Service) CarryForward(ctx context.Context, opts CarryForwardOptions) (CarryForwardResult, error) {
	if err := requireCommit(opts.Commit); err != nil {
		return CarryForwardResult{}, err
	}
	if opts.Parent == "" {
		return CarryForwardResult{}, fmt.Errorf("parent commit is required")
	}
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return CarryForwardResult{}, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return CarryForwardResult{}, err
	}
	parent, err := store.Load(ctx, opts.Parent)
	if err != nil {
		return CarryForwardResult{}, fmt.Errorf("load parent %s: %w", opts.Parent, err)
	}
	head, err := loadOrNew(ctx, store, opts.Commit)
	if err != nil {
		return CarryForwardResult{}, err
	}

	flags := opts.Flags
	if len(flags) == 0 {
		flags = cfg.CarryforwardFlags()
	}
	var pending []string
	for _, f := range flags {
		if len(head.SessionIDsWithFlags([]string{f})) == 0 {
			pending = append(pending, f)
		}
	}
	result := CarryForwardResult{Flags: pending, Sessions: map[int]int{}}
	if len(pending) == 0 {
		result.Totals = head.Totals()
		return result, nil
	}

	matcher, err := flagMatcher(cfg, pending)
	if err != nil {
		return CarryForwardResult{}, err
	}
	cf := domain.CarryForward(parent, pending, matcher, opts.Parent)
	if len(cf.SessionIDs()) == 0 {
		s.log().Info("nothing to carry forward", zap.String("parent", opts.Parent), zap.Strings("flags", pending))
		result.Totals = head.Totals()
		return result, nil
	}

	shifted, err := s.shift(ctx, cfg, cf, opts.Parent, opts.Commit)
	if err != nil {
		return CarryForwardResult{}, err
	}
	result.Shifted = shifted
	result.Sessions = head.Adopt(cf)
	if err := store.Save(ctx, opts.Commit, head); err != nil {
		return CarryForwardResult{}, fmt.Errorf("save report: %w", err)
	}
	result.Totals = head.Totals()

	if s.Metrics != nil {
		s.Metrics.CarryForward(pending, len(result.Sessions), shifted)
	}
	s.publish(domain.NewCarryForwardAppliedEvent(opts.Commit, opts.Parent, pending, len(result.Sessions), shifted))
	s.log().Info("carried forward",
		zap.String("commit", opts.Commit),
		zap.String("parent", opts.Parent),
		zap.Strings("flags", pending),
		zap.Int("sessions", len(result.Sessions)),
		zap.Bool("shifted", shifted),
	)
	return result, nil
}

// shift moves cf onto the numbering of head. Only context errors abort.
func (s *Service) shift(ctx context.Context, cfg Config, cf *domain.Report, parent, head string) (bool, error) {
	provider, err := s.diffProvider(cfg)
	if err == nil {
		var diff *domain.Diff
		diff, err = provider.Compare(ctx, parent, head)
		if err == nil {
			cf.ShiftLinesByDiff(diff, true)
			return true, nil
		}
	}
	if isContextErr(err) {
		return false, err
	}
	if s.Metrics != nil {
		s.Metrics.DiffFailure(string(cfg.Diff.Provider))
	}
	s.log().Warn("carry forward without line shift",
		zap.String("parent", parent),
		zap.String("commit", head),
		zap.String("provider", string(cfg.Diff.Provider)),
		zap.Error(err),
	)
	return false, nil
}

// Summary returns the (filtered) totals of the report of a commit.
func (s *Service) Summary(ctx context.Context, opts ReportOptions) (ReportSummary, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return ReportSummary{}, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return ReportSummary{}, err
	}
	report, err := store.Load(ctx, opts.Commit)
	if err != nil {
		return ReportSummary{}, err
	}
	view, err := report.Filter(opts.Paths, opts.Flags)
	if err != nil {
		return ReportSummary{}, err
	}
	return summarize(opts.Commit, view, opts.Files), nil
}

// Report writes the summary of a commit report.
func (s *Service) Report(ctx context.Context, opts ReportOptions) error {
	summary, err := s.Summary(ctx, opts)
	if err != nil {
		return err
	}
	return s.Reporter.WriteTotals(s.Out, summary, opts.Output)
}

// PatchTotals computes the coverage of the lines added between two commits,
// measured on the head report. Totals are also written onto the diff.
func (s *Service) PatchTotals(ctx context.Context, opts PatchOptions) (ReportSummary, *domain.Diff, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return ReportSummary{}, nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return ReportSummary{}, nil, err
	}
	head, err := store.Load(ctx, opts.Head)
	if err != nil {
		return ReportSummary{}, nil, err
	}
	provider, err := s.diffProvider(cfg)
	if err != nil {
		return ReportSummary{}, nil, err
	}
	diff, err := provider.Compare(ctx, opts.Base, opts.Head)
	if err != nil {
		return ReportSummary{}, nil, fmt.Errorf("compare %s..%s: %w", opts.Base, opts.Head, err)
	}
	view, err := head.Filter(opts.Paths, opts.Flags)
	if err != nil {
		return ReportSummary{}, nil, err
	}
	summary := ReportSummary{Commit: opts.Head}
	if totals := domain.ApplyDiff(view, diff, true); totals != nil {
		summary.Totals = *totals
	}
	for _, path := range diff.Paths() {
		if fd := diff.Files[path]; fd.Totals != nil {
			summary.Files = append(summary.Files, FileSummary{Name: path, Totals: *fd.Totals})
		}
	}
	return summary, diff, nil
}

// Patch writes the patch coverage between two commits.
func (s *Service) Patch(ctx context.Context, opts PatchOptions) error {
	summary, _, err := s.PatchTotals(ctx, opts)
	if err != nil {
		return err
	}
	return s.Reporter.WriteTotals(s.Out, summary, opts.Output)
}

// Status evaluates the configured status checks of the head report. Without
// configured checks a single project check against the base is run.
func (s *Service) Status(ctx context.Context, opts StatusOptions) ([]domain.StatusResult, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return nil, err
	}
	head, err := store.Load(ctx, opts.Head)
	if err != nil {
		return nil, err
	}
	var base *domain.Report
	var diff *domain.Diff
	if opts.Base != "" {
		base, err = store.Load(ctx, opts.Base)
		if errors.Is(err, domain.ErrReportNotFound) {
			s.log().Info("base report missing", zap.String("base", opts.Base))
			base, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		diff, err = s.statusDiff(ctx, cfg, opts.Base, opts.Head)
		if err != nil {
			return nil, err
		}
	}

	checks := cfg.Status
	if len(checks) == 0 {
		checks = []domain.StatusCheck{{Name: "project", Kind: domain.StatusProject}}
	}
	results := make([]domain.StatusResult, 0, len(checks))
	for _, check := range checks {
		res, err := domain.EvaluateStatus(check, head, base, diff)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", check.Name, err)
		}
		results = append(results, res)
	}
	if s.Reporter != nil && s.Out != nil {
		if err := s.Reporter.WriteStatus(s.Out, results, opts.Output); err != nil {
			return results, err
		}
	}
	return results, nil
}

// statusDiff fetches the diff patch checks measure. A failing provider turns
// patch checks into warnings instead of failing the run.
func (s *Service) statusDiff(ctx context.Context, cfg Config, base, head string) (*domain.Diff, error) {
	provider, err := s.diffProvider(cfg)
	if err == nil {
		var diff *domain.Diff
		if diff, err = provider.Compare(ctx, base, head); err == nil {
			return diff, nil
		}
	}
	if isContextErr(err) {
		return nil, err
	}
	s.log().Warn("patch status without diff", zap.String("base", base), zap.String("head", head), zap.Error(err))
	return nil, nil
}

// DeleteSessions removes sessions by id and by flag. It returns the ids
// removed.
func (s *Service) DeleteSessions(ctx context.Context, opts DeleteOptions) ([]int, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return nil, err
	}
	report, err := store.Load(ctx, opts.Commit)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	var ids []int
	for _, id := range append(append([]int(nil), opts.IDs...), report.SessionIDsWithFlags(opts.Flags)...) {
		if _, ok := report.Session(id); !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	report.DeleteMultipleSessions(ids)
	if err := store.Save(ctx, opts.Commit, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.SessionsDeleted(len(ids))
	}
	s.publish(domain.NewSessionsDeletedEvent(opts.Commit, ids, report.Len()))
	s.log().Info("sessions deleted", zap.String("commit", opts.Commit), zap.Ints("sessions", ids))
	return ids, nil
}

// RenameSession renumbers a session of a commit report.
func (s *Service) RenameSession(ctx context.Context, opts RenameOptions) error {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return err
	}
	store, err := s.store(cfg)
	if err != nil {
		return err
	}
	report, err := store.Load(ctx, opts.Commit)
	if err != nil {
		return err
	}
	if err := report.ChangeSessionID(opts.From, opts.To); err != nil {
		return err
	}
	return store.Save(ctx, opts.Commit, report)
}

// Sessions returns the session table of a commit report.
func (s *Service) Sessions(ctx context.Context, opts SessionsOptions) ([]*domain.Session, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return nil, err
	}
	report, err := store.Load(ctx, opts.Commit)
	if err != nil {
		return nil, err
	}
	sessions := report.Sessions()
	if s.Reporter != nil && s.Out != nil {
		if err := s.Reporter.WriteSessions(s.Out, sessions, opts.Output); err != nil {
			return sessions, err
		}
	}
	return sessions, nil
}

// Flare returns the coverage tree of a commit report. With a base, files
// changed since the base are marked.
func (s *Service) Flare(ctx context.Context, opts FlareOptions) (*domain.FlareNode, error) {
	cfg, err := loadConfig(s.ConfigLoader, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return nil, err
	}
	report, err := store.Load(ctx, opts.Commit)
	if err != nil {
		return nil, err
	}
	view, err := report.Filter(opts.Paths, opts.Flags)
	if err != nil {
		return nil, err
	}
	var changes []string
	if opts.Base != "" {
		diff, err := s.statusDiff(ctx, cfg, opts.Base, opts.Commit)
		if err != nil {
			return nil, err
		}
		if diff != nil {
			changes = diff.Paths()
		}
	}
	return domain.Flare(view, changes, cfg.Flare), nil
}

// Commits lists the commits with a stored report.
func (s *Service) Commits(ctx context.Context, configPath string) ([]string, error) {
	cfg, err := loadConfig(s.ConfigLoader, configPath)
	if err != nil {
		return nil, err
	}
	store, err := s.store(cfg)
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// isCoverageFile reports whether a path looks like a coverage upload.
func isCoverageFile(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range []string{".out", ".info", ".lcov", ".xml"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
