// Package logic runs the command-line batches: it turns arguments into jobs,
// runs them on the scheduler and reports what happened.
package logic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/idelchi/passcode/internal/archive"
	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/fileutil"
	"github.com/idelchi/passcode/internal/logging"
	"github.com/idelchi/passcode/internal/scheduler"
	"github.com/idelchi/passcode/internal/selection"
	"github.com/idelchi/passcode/internal/sysinfo"
	"github.com/idelchi/passcode/pkg/passcode"
)

var (
	// ErrJobsFailed is returned when at least one job of a batch failed.
	ErrJobsFailed = errors.New("jobs failed")
	// ErrKeyFileExists is returned when generating over an existing key file without --force.
	ErrKeyFileExists = errors.New("key file already exists")
)

// Runner executes one command invocation.
type Runner struct {
	cfg      *config.Config
	password []byte
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	session  *passcode.Session
}

// New returns a Runner for cfg. Result lines go to stdout; errors, logs,
// progress and stats go to stderr.
func New(cfg *config.Config, password []byte, stdout, stderr io.Writer) (*Runner, error) {
	logger, err := logging.New(stderr, logging.Options{Level: cfg.LogLevel, NoColor: cfg.NoColor})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &Runner{
		cfg:      cfg,
		password: password,
		stdout:   stdout,
		stderr:   stderr,
		logger:   logger,
		session:  passcode.New(passcode.WithLogger(logger), passcode.WithKeep(cfg.Keep)),
	}, nil
}

// Encrypt protects every argument: files become one container each, directories
// one bundle each, and with --bundle all arguments share a single bundle.
func (r *Runner) Encrypt(ctx context.Context) error {
	start := time.Now()

	if err := r.session.LoadKey(r.cfg.KeyFile, r.password); err != nil {
		return err
	}

	flt, err := r.filter()
	if err != nil {
		return err
	}

	targets, scanned, err := selection.Resolve(r.cfg.Files, flt)
	if err != nil {
		return fmt.Errorf("resolving files: %w", err)
	}

	chunk := r.cfg.ChunkBytes()

	jobs, err := r.encryptJobs(targets, flt, chunk)
	if err != nil {
		return err
	}

	p := r.printer("Encrypting")
	p.size = func(res scheduler.Result) int64 {
		size, _ := fileutil.Size(res.Output) //nolint:errcheck // best effort for stats

		return size
	}

	return r.run(ctx, start, scanned, r.fitWorkers(chunk), jobs, p)
}

func (r *Runner) encryptJobs(targets []selection.Target, flt *selection.Filter, chunk int) ([]scheduler.Job, error) {
	if r.cfg.Bundle {
		named := make(map[string]string, len(targets))
		items := make([]string, 0, len(targets))

		for _, t := range targets {
			item, err := filepath.Abs(t.Path)
			if err != nil {
				return nil, fileutil.Wrap("resolve", t.Path, err)
			}

			named[item] = t.Path
			items = append(items, item)
		}

		bundle := filepath.Join(filepath.Dir(items[0]), r.cfg.BundleName)

		return []scheduler.Job{r.bundleJob(bundle, bundle, items, skipAsNamed(flt, named), chunk)}, nil
	}

	jobs := make([]scheduler.Job, 0, len(targets))

	for _, t := range targets {
		if t.Kind == selection.File {
			path := t.Path

			jobs = append(jobs, scheduler.NewJob(path, func(progress func(float64)) (string, error) {
				outcome, err := r.session.Protect(path, chunk, progress)

				return outcome.Container, err
			}))

			continue
		}

		// Absolute, so that "." still bundles under its own name.
		dir, err := filepath.Abs(t.Path)
		if err != nil {
			return nil, fileutil.Wrap("resolve", t.Path, err)
		}

		skip := skipAsNamed(flt, map[string]string{dir: t.Path})

		jobs = append(jobs, r.bundleJob(t.Path, dir+archive.Extension, []string{dir}, skip, chunk))
	}

	return jobs, nil
}

func (r *Runner) bundleJob(name, bundle string, items []string, skip archive.SkipFunc, chunk int) scheduler.Job {
	return scheduler.NewJob(name, func(progress func(float64)) (string, error) {
		outcome, err := r.session.ProtectBundle(items, bundle, chunk, skip, progress)

		return outcome.Container, err
	})
}

// skipAsNamed matches excludes against paths spelled the way the user named
// each bundled item, since bundles are built from absolute paths.
// The items themselves are never skipped.
func skipAsNamed(flt *selection.Filter, named map[string]string) archive.SkipFunc {
	return func(path string, d fs.DirEntry) bool {
		for abs, arg := range named {
			if path == abs {
				return false
			}

			if strings.HasPrefix(path, abs+string(filepath.Separator)) {
				return flt.Skip(filepath.Join(arg, strings.TrimPrefix(path, abs)), d)
			}
		}

		return flt.Skip(path, d)
	}
}

// Decrypt restores every container named or found under a directory argument.
func (r *Runner) Decrypt(ctx context.Context) error {
	start := time.Now()

	if err := r.session.LoadKey(r.cfg.KeyFile, r.password); err != nil {
		return err
	}

	flt, err := r.filter()
	if err != nil {
		return err
	}

	containers, scanned, err := selection.Containers(r.cfg.Files, flt, passcode.Suffix)
	if err != nil {
		return fmt.Errorf("resolving files: %w", err)
	}

	if r.cfg.Output != "" && len(containers) != 1 {
		return fmt.Errorf("%w: --output needs exactly one container, found %d", config.ErrInvalid, len(containers))
	}

	sizes := make(map[string]int64, len(containers))
	jobs := make([]scheduler.Job, 0, len(containers))

	for _, container := range containers {
		sizes[container], _ = fileutil.Size(container) //nolint:errcheck // best effort for stats

		jobs = append(jobs, scheduler.NewJob(container, func(progress func(float64)) (string, error) {
			restored, err := r.session.Restore(container, r.cfg.Output, progress)

			return strings.Join(restored, ", "), err
		}))
	}

	p := r.printer("Decrypting")
	p.size = func(res scheduler.Result) int64 { return sizes[res.Name] }

	return r.run(ctx, start, scanned, r.cfg.Parallel, jobs, p)
}

// Hash prints the base64 SHA-256 digest of every file argument, walking directories.
func (r *Runner) Hash(ctx context.Context) error {
	start := time.Now()

	flt, err := r.filter()
	if err != nil {
		return err
	}

	files, scanned, err := selection.Files(r.cfg.Files, flt)
	if err != nil {
		return fmt.Errorf("resolving files: %w", err)
	}

	jobs := make([]scheduler.Job, 0, len(files))

	for _, file := range files {
		jobs = append(jobs, scheduler.NewJob(file, func(func(float64)) (string, error) {
			return r.session.HashFile(file)
		}))
	}

	p := r.printer("Hashing")
	p.line = func(res scheduler.Result) string { return res.Output + "  " + res.Name }
	p.size = func(res scheduler.Result) int64 {
		size, _ := fileutil.Size(res.Name) //nolint:errcheck // best effort for stats

		return size
	}

	return r.run(ctx, start, scanned, r.cfg.Parallel, jobs, p)
}

// GenerateKey writes a new key file derived from the password.
func (r *Runner) GenerateKey() error {
	exists, err := fileutil.Exists(r.cfg.KeyFile)
	if err != nil {
		return err
	}

	if exists && !r.cfg.Force {
		return fmt.Errorf("%w: %q (use --force to replace it)", ErrKeyFileExists, r.cfg.KeyFile)
	}

	if err := r.session.GenerateKey(r.cfg.KeyFile, r.password); err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if !r.cfg.Quiet {
		fmt.Fprintf(r.stdout, "Generated key file %q\n", r.cfg.KeyFile)
	}

	return nil
}

// CheckKey loads the key file to confirm the password matches it.
func (r *Runner) CheckKey() error {
	if err := r.session.LoadKey(r.cfg.KeyFile, r.password); err != nil {
		return err
	}

	if !r.cfg.Quiet {
		fmt.Fprintf(r.stdout, "Key file %q matches the password\n", r.cfg.KeyFile)
	}

	return nil
}

func (r *Runner) run(ctx context.Context, start time.Time, scanned, workers int, jobs []scheduler.Job, p *printer) error {
	sched := scheduler.New(workers, r.cfg.Timeout, r.logger)

	r.logger.Debug("starting batch", "jobs", len(jobs), "workers", sched.Workers())

	summary, err := sched.Run(ctx, &scheduler.Token{}, jobs, p)

	if r.cfg.Stats {
		printStats(r.stderr, p.stats(scanned, len(jobs), sched.Workers(), time.Since(start)))
	}

	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, summary.Failed, summary.Total)
	}

	return nil
}

// fitWorkers lowers the worker count when the chunk buffers of all workers
// would not fit in available memory.
func (r *Runner) fitWorkers(chunk int) int {
	workers := r.cfg.Parallel
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	memory, err := sysinfo.HostMemory()
	if err != nil {
		r.logger.Warn("cannot size workers to memory", "error", err)

		return workers
	}

	fit := sysinfo.FitWorkers(workers, int64(chunk), memory.Available)
	if fit < workers {
		r.logger.Warn("reducing parallel jobs to fit available memory",
			"requested", workers,
			"workers", fit,
			"chunk_size", humanize.IBytes(uint64(chunk)), //nolint:gosec // positive after validation
			"available", humanize.IBytes(memory.Available),
		)
	}

	return fit
}

func (r *Runner) filter() (*selection.Filter, error) {
	excludes := append([]string{}, r.cfg.Exclude...)

	if r.cfg.ExcludeFrom != "" {
		patterns, err := selection.LoadPatterns(r.cfg.ExcludeFrom)
		if err != nil {
			return nil, fmt.Errorf("loading exclude patterns: %w", err)
		}

		excludes = append(excludes, patterns...)
	}

	return selection.NewFilter(excludes)
}

func (r *Runner) printer(verb string) *printer {
	return newPrinter(r.stdout, r.stderr, verb, r.cfg.Quiet, r.cfg.NoColor)
}
