package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	applogger "FinSignal/pkg/logger"
)

// ErrPipelineClosed is returned by Notify after Close.
var ErrPipelineClosed = errors.New("alert pipeline closed")

// AlertPipeline sits between the worker and a Notifier. It validates and
// throttles alerts per stream, and buffers failed deliveries for retry in
// the background.
type AlertPipeline struct {
	next    domrepo.Notifier
	metrics domrepo.Metrics
	l       *applogger.Logger

	limiter    *ratelimit.Limiter
	maxPerMin  float64
	bufSize    int
	backoffMin time.Duration
	backoffMax time.Duration

	bufCh  chan models.Alert
	stopCh chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

type PipelineOption func(*AlertPipeline)

// WithMaxPerMinute caps alerts per symbol and timeframe. Zero disables throttling.
func WithMaxPerMinute(n float64) PipelineOption {
	return func(p *AlertPipeline) {
		if n >= 0 {
			p.maxPerMin = n
		}
	}
}

// WithBufferSize sets how many failed alerts wait for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *AlertPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff bounds the retry delay after a failed redelivery.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *AlertPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *AlertPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewAlertPipeline creates the pipeline and starts its retry loop.
func NewAlertPipeline(next domrepo.Notifier, m domrepo.Metrics, opts ...PipelineOption) *AlertPipeline {
	p := &AlertPipeline{
		next:       next,
		metrics:    m,
		l:          applogger.Nop(),
		maxPerMin:  30,
		bufSize:    256,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxPerMin > 0 {
		p.limiter = ratelimit.PerMinute(p.maxPerMin, int(p.maxPerMin))
	}
	p.bufCh = make(chan models.Alert, p.bufSize)
	go p.retryLoop()
	return p
}

// Notify validates, throttles and forwards a. A failed delivery is queued
// for retry and reported to the caller.
func (p *AlertPipeline) Notify(ctx context.Context, a models.Alert) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPipelineClosed
	}
	if err := validateAlert(a); err != nil {
		p.metrics.RecordAlert("invalid")
		return err
	}
	if p.limiter != nil && !p.limiter.Allow(a.Signal.Symbol+"|"+a.Signal.Timeframe) {
		p.metrics.RecordAlert("throttled")
		p.l.Warn("alert throttled",
			applogger.String("symbol", a.Signal.Symbol),
			applogger.String("timeframe", a.Signal.Timeframe),
		)
		return nil
	}
	if err := p.next.Notify(ctx, a); err != nil {
		p.enqueue(a)
		return fmt.Errorf("alert downstream: %w", err)
	}
	p.metrics.RecordAlert("sent")
	return nil
}

// Buffered returns the number of alerts waiting for retry.
func (p *AlertPipeline) Buffered() int { return len(p.bufCh) }

// Close stops the retry loop and closes the downstream notifier. Alerts
// still buffered are dropped.
func (p *AlertPipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("dropping buffered alerts", applogger.Int("count", n))
	}
	return p.next.Close()
}

func (p *AlertPipeline) enqueue(a models.Alert) {
	select {
	case p.bufCh <- a:
		p.metrics.RecordAlert("buffered")
	default:
		p.metrics.RecordAlert("dropped")
		p.l.Warn("alert buffer full, dropping", applogger.String("id", a.Signal.ID))
	}
}

func (p *AlertPipeline) retryLoop() {
	defer close(p.done)
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case a := <-p.bufCh:
			if err := p.next.Notify(context.Background(), a); err != nil {
				p.metrics.RecordAlert("retry_failed")
				if backoff *= 2; backoff > p.backoffMax {
					backoff = p.backoffMax
				}
				select {
				case p.bufCh <- a:
				default:
					p.metrics.RecordAlert("dropped")
				}
				select {
				case <-p.stopCh:
					return
				case <-time.After(backoff):
				}
				continue
			}
			backoff = p.backoffMin
			p.metrics.RecordAlert("sent")
		}
	}
}

func validateAlert(a models.Alert) error {
	s := a.Signal
	if s.Symbol == "" || s.Timeframe == "" {
		return fmt.Errorf("alert without stream")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("alert %s without timestamp", s.ID)
	}
	if s.Side != models.SideLong && s.Side != models.SideShort {
		return fmt.Errorf("alert %s with side %q", s.ID, s.Side)
	}
	if a.Text == "" {
		return fmt.Errorf("alert %s without text", s.ID)
	}
	return nil
}
