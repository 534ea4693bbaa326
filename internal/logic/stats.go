package logic

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/idelchi/passcode/internal/sysinfo"
)

type stats struct {
	scanned   int
	jobs      int
	processed int
	errored   int
	cancelled int
	size      int64
	workers   int
	duration  time.Duration
}

func (p *printer) stats(scanned, jobs, workers int, duration time.Duration) stats {
	return stats{
		scanned:   scanned,
		jobs:      jobs,
		processed: p.processed,
		errored:   p.errored,
		cancelled: p.cancelled,
		size:      p.bytes,
		workers:   workers,
		duration:  duration,
	}
}

func printStats(w io.Writer, s stats) {
	memory := "unknown"
	if rss, err := sysinfo.ProcessRSS(); err == nil {
		memory = humanize.IBytes(rss)
	}

	fmt.Fprintf(w, "\nStats\n")
	fmt.Fprintf(w, "  Scanned:   %d\n", s.scanned)
	fmt.Fprintf(w, "  Jobs:      %d\n", s.jobs)
	fmt.Fprintf(w, "  Workers:   %d\n", s.workers)
	fmt.Fprintf(w, "  Processed: %d\n", s.processed)
	fmt.Fprintf(w, "  Errors:    %d\n", s.errored)
	fmt.Fprintf(w, "  Cancelled: %d\n", s.cancelled)
	//nolint:gosec // sizes are sums of file sizes
	fmt.Fprintf(w, "  Size:      %s\n", humanize.IBytes(uint64(max(0, s.size))))
	fmt.Fprintf(w, "  Duration:  %s\n", s.duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Memory:    %s\n", memory)
}
