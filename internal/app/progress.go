package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// ProgressUpdate is what a surface sees of a running or finished job
type ProgressUpdate struct {
	SessionID  string
	Status     domain.DownloadStatus
	Downloaded int64
	Total      int64
	ETA        time.Duration
	Err        error // set on failed updates
}

// Terminal reports whether this is the last update of a job
func (u ProgressUpdate) Terminal() bool {
	return u.Status.IsTerminal()
}

// ProgressSink delivers updates to a surface (chat message edit, terminal, ...)
type ProgressSink interface {
	Report(ctx context.Context, update ProgressUpdate) error
}

// ProgressSinkFunc adapts a function to ProgressSink
type ProgressSinkFunc func(ctx context.Context, update ProgressUpdate) error

// Report calls f
func (f ProgressSinkFunc) Report(ctx context.Context, update ProgressUpdate) error {
	return f(ctx, update)
}

// deliveryTimeout bounds a single sink call
const deliveryTimeout = 15 * time.Second

// ProgressReporter forwards one job's updates to a sink from a single
// goroutine. Consecutive ticks with the same status are coalesced and
// deliveries are rate limited. The last tick of every status and the
// terminal update are always delivered, in order.
type ProgressReporter struct {
	sink    ProgressSink
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	queue    []ProgressUpdate
	final    *ProgressUpdate
	finished bool

	wake chan struct{}
	done chan struct{}
}

// NewProgressReporter starts a reporter that calls sink at most once per interval
func NewProgressReporter(sink ProgressSink, interval time.Duration, logger *zap.Logger) *ProgressReporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	p := &ProgressReporter{
		sink:    sink,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Tick queues an intermediate update. It replaces the newest queued tick
// when both share a status; ticks after Finish are dropped.
func (p *ProgressReporter) Tick(update ProgressUpdate) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	if n := len(p.queue); n > 0 && p.queue[n-1].Status == update.Status {
		if update.Downloaded < p.queue[n-1].Downloaded {
			p.mu.Unlock()
			return
		}
		p.queue[n-1] = update
	} else {
		p.queue = append(p.queue, update)
	}
	p.mu.Unlock()
	p.signal()
}

// Finish queues the terminal update and blocks until it has been delivered
func (p *ProgressReporter) Finish(update ProgressUpdate) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.finished = true
	p.final = &update
	p.mu.Unlock()
	p.signal()
	<-p.done
}

func (p *ProgressReporter) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *ProgressReporter) run() {
	defer close(p.done)

	for range p.wake {
		for {
			p.mu.Lock()
			queued, finished := len(p.queue) > 0, p.finished
			p.mu.Unlock()

			if !queued && !finished {
				break
			}
			_ = p.limiter.Wait(context.Background())

			// only run pops, so the head survives the wait; the tail may
			// have been coalesced with newer ticks meanwhile
			p.mu.Lock()
			if len(p.queue) > 0 {
				next := p.queue[0]
				p.queue = p.queue[1:]
				p.mu.Unlock()
				p.deliver(next)
				continue
			}
			final := p.final
			p.mu.Unlock()

			p.deliver(*final)
			return
		}
	}
}

func (p *ProgressReporter) deliver(update ProgressUpdate) {
	if p.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := p.sink.Report(ctx, update); err != nil {
		p.logger.Warn("Progress delivery failed",
			zap.String("session_id", update.SessionID),
			zap.String("status", string(update.Status)),
			zap.Error(err))
	}
}

// Percent returns downloaded/total in percent; ok is false when total is unknown
func Percent(downloaded, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	p := float64(downloaded) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p, true
}

// RenderBar draws a fixed-width bar of filled and empty segments
func RenderBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(float64(width) * percent / 100)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

// FormatETA renders a remaining time as m:ss, or "" when unknown
func FormatETA(eta time.Duration) string {
	secs := int(eta.Round(time.Second) / time.Second)
	if secs <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// FormatSize renders a byte count with binary units
func FormatSize(size int64) string {
	if size <= 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}

// FormatDuration renders seconds as hh:mm:ss, or mm:ss under an hour
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// RenderProgress renders a single progress line with a bar of the given width
func RenderProgress(update ProgressUpdate, width int) string {
	percent, known := Percent(update.Downloaded, update.Total)
	if !known {
		return fmt.Sprintf("%s %s downloaded (unknown total)",
			RenderBar(0, width), FormatSize(update.Downloaded))
	}

	line := fmt.Sprintf("%s %.1f%% (%s of %s)",
		RenderBar(percent, width), percent,
		FormatSize(update.Downloaded), FormatSize(update.Total))
	if eta := FormatETA(update.ETA); eta != "" {
		line += " ETA " + eta
	}
	return line
}
