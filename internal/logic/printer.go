package logic

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/idelchi/passcode/internal/fileutil"
	"github.com/idelchi/passcode/internal/logging"
	"github.com/idelchi/passcode/internal/scheduler"
)

const (
	barWidth    = 100
	barThrottle = 100 * time.Millisecond
	spinnerType = 14
)

// printer renders scheduler events: one line per job, a progress bar on
// interactive terminals, and the tallies behind --stats.
type printer struct {
	stdout io.Writer
	stderr io.Writer

	verb        string
	quiet       bool
	interactive bool

	// line formats a succeeded job for stdout.
	line func(scheduler.Result) string
	// size reports the bytes a succeeded job accounts for.
	size func(scheduler.Result) int64

	ok   *color.Color
	fail *color.Color
	warn *color.Color

	bar         *progressbar.ProgressBar
	determinate bool
	total       int
	done        int

	processed int
	errored   int
	cancelled int
	bytes     int64
}

func newPrinter(stdout, stderr io.Writer, verb string, quiet, noColor bool) *printer {
	p := &printer{
		stdout:      stdout,
		stderr:      stderr,
		verb:        verb,
		quiet:       quiet,
		interactive: logging.IsTerminal(stderr),
		line:        processedLine,
		size:        func(scheduler.Result) int64 { return 0 },
		ok:          color.New(color.FgGreen),
		fail:        color.New(color.FgRed),
		warn:        color.New(color.FgYellow),
	}

	if noColor || !logging.IsTerminal(stdout) {
		p.ok.DisableColor()
	}

	if noColor || !p.interactive {
		p.fail.DisableColor()
		p.warn.DisableColor()
	}

	return p
}

func processedLine(r scheduler.Result) string {
	return fmt.Sprintf("Processed %q -> %q", r.Name, r.Output)
}

func (p *printer) Start(total int, determinate bool) {
	p.total = total
	p.determinate = determinate

	if p.quiet || !p.interactive {
		return
	}

	limit := barWidth
	if !determinate {
		limit = -1
	}

	p.bar = progressbar.NewOptions(limit,
		progressbar.OptionSetWriter(p.stderr),
		progressbar.OptionSetDescription(p.describe()),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(barThrottle),
		progressbar.OptionSpinnerType(spinnerType),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *printer) Progress(fraction float64) {
	if p.bar == nil || !p.determinate {
		return
	}

	_ = p.bar.Set(int(fraction * barWidth))
}

func (p *printer) Done(r scheduler.Result) {
	p.done++

	if p.bar != nil {
		_ = p.bar.Clear()
	}

	switch r.Status {
	case scheduler.Succeeded:
		p.processed++
		p.bytes += p.size(r)

		if !p.quiet {
			p.ok.Fprintln(p.stdout, p.line(r)) //nolint:errcheck
		}
	case scheduler.Failed:
		p.errored++

		p.fail.Fprintf(p.stderr, "Error processing %q: %v\n", r.Name, r.Err) //nolint:errcheck

		if errors.Is(r.Err, fileutil.ErrAccessDenied) {
			p.warn.Fprintf(p.stderr, //nolint:errcheck
				"  hint: check the permissions of %q and its directory, or run as a user that may modify them\n", r.Name)
		}
	case scheduler.Cancelled:
		p.cancelled++

		if !p.quiet {
			p.warn.Fprintf(p.stderr, "Skipped %q: %v\n", r.Name, r.Err) //nolint:errcheck
		}
	}

	if p.bar != nil && !p.determinate {
		p.bar.Describe(p.describe())
		_ = p.bar.Add(1)
	}
}

func (p *printer) Finish(summary scheduler.Summary) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}

	if summary.TimedOut {
		p.warn.Fprintf(p.stderr, "Timed out after %s with %d of %d job(s) finished\n", //nolint:errcheck
			summary.Elapsed.Round(time.Second), summary.Succeeded+summary.Failed, summary.Total)
	}
}

func (p *printer) describe() string {
	if p.total <= 1 {
		return p.verb
	}

	return fmt.Sprintf("%s %d/%d", p.verb, p.done, p.total)
}
