package transfer

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// WithProgressLogger adds a progress logger that logs transfer progress with the given interval.
//
// For example, if interval is `5*time.Second`, every 5 seconds, the given logger will print `processed X / Y so far`
// where X and Y are the number of bytes processed and expected in a human-friendly format (e.g. 5 KiB, 1 MiB, etc.).
// Once the last byte has been processed, `processed Y in total` is logged.
func WithProgressLogger(logger *log.Logger, interval time.Duration) func(*Options) {
	return func(opts *Options) {
		var (
			r    = &rate.Sometimes{Interval: interval}
			done bool
		)

		opts.Progress = chain(opts.Progress, func(processed, total int64) {
			if processed == total {
				if !done {
					logger.Printf("processed %s in total", humanize.IBytes(uint64(total)))
					done = true
				}
				return
			}

			r.Do(func() {
				logger.Printf("processed %s / %s so far", humanize.IBytes(uint64(processed)), humanize.IBytes(uint64(total)))
			})
		})
	}
}

// WithProgressBar adds a progress bar that displays transfer progress.
//
// The bar's max is set to the total number of source bytes on first update.
func WithProgressBar(bar *progressbar.ProgressBar) func(*Options) {
	return func(opts *Options) {
		var sized bool
		opts.Progress = chain(opts.Progress, func(processed, total int64) {
			if !sized {
				bar.ChangeMax64(total)
				sized = true
			}

			_ = bar.Set64(processed)
		})
	}
}

func chain(a, b func(processed, total int64)) func(processed, total int64) {
	if a == nil {
		return b
	}

	return func(processed, total int64) {
		a(processed, total)
		b(processed, total)
	}
}
