package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/internal/retry"
	"honeypot-lab/pkg/logger"
)

// ReportObserver is told about every report once its delivery has finished,
// whether it was delivered, failed or skipped.
type ReportObserver interface {
	ObserveReport(ctx context.Context, record *models.ReportRecord) error
}

// ReportObserverFunc adapts a function to ReportObserver
type ReportObserverFunc func(ctx context.Context, record *models.ReportRecord) error

func (f ReportObserverFunc) ObserveReport(ctx context.Context, record *models.ReportRecord) error {
	return f(ctx, record)
}

// CallbackDispatcherConfig contains configuration for the dispatcher
type CallbackDispatcherConfig struct {
	// URL of the evaluator. Empty disables delivery; observers still run.
	URL         string
	Timeout     time.Duration
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultCallbackDispatcherConfig returns sensible defaults
func DefaultCallbackDispatcherConfig() CallbackDispatcherConfig {
	return CallbackDispatcherConfig{
		Timeout:     5 * time.Second,
		Workers:     2,
		QueueSize:   256,
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// CallbackDispatcher delivers reports to the evaluator on a bounded queue
// drained by a fixed worker pool. Submit never blocks.
type CallbackDispatcher struct {
	cfg        CallbackDispatcherConfig
	queue      chan *deliveryJob
	httpClient *http.Client
	logger     *logger.Logger

	obsMu     sync.RWMutex
	observers []ReportObserver

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	queued    atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

type deliveryJob struct {
	id       uuid.UUID
	report   *models.Report
	queuedAt time.Time
}

// DispatcherStats is a point-in-time view of delivery activity
type DispatcherStats struct {
	Queued    int64 `json:"queued"`
	Dropped   int64 `json:"dropped"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	Pending   int   `json:"pending"`
}

// NewCallbackDispatcher creates a dispatcher and starts its workers
func NewCallbackDispatcher(cfg CallbackDispatcherConfig, log *logger.Logger) *CallbackDispatcher {
	def := DefaultCallbackDispatcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &CallbackDispatcher{
		cfg:   cfg,
		queue: make(chan *deliveryJob, cfg.QueueSize),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.WithComponent("callback-dispatcher"),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info().
		Int("workers", cfg.Workers).
		Int("queue_size", cfg.QueueSize).
		Bool("delivery_enabled", cfg.URL != "").
		Msg("callback dispatcher started")

	return d
}

// AddObserver registers an observer for finished deliveries
func (d *CallbackDispatcher) AddObserver(o ReportObserver) {
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
}

// Submit queues a report for delivery. It returns false if the queue is full
// or the dispatcher is stopped; the report is then dropped.
func (d *CallbackDispatcher) Submit(report *models.Report) bool {
	if d.ctx.Err() != nil {
		d.drop(report, "stopped")
		return false
	}

	job := &deliveryJob{id: uuid.New(), report: report, queuedAt: time.Now().UTC()}
	select {
	case d.queue <- job:
		d.queued.Add(1)
		metrics.ReportsTotal.WithLabelValues("queued").Inc()
		return true
	default:
		d.drop(report, "queue full")
		return false
	}
}

func (d *CallbackDispatcher) drop(report *models.Report, reason string) {
	d.dropped.Add(1)
	metrics.ReportsTotal.WithLabelValues("dropped").Inc()
	d.logger.Warn().
		Str("session_id", report.SessionID).
		Str("reason", reason).
		Msg("report dropped")
}

func (d *CallbackDispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug().Int("worker", id).Msg("callback worker stopping")
			return
		case job := <-d.queue:
			d.process(job)
		}
	}
}

func (d *CallbackDispatcher) process(job *deliveryJob) {
	record := &models.ReportRecord{
		ID:        job.id,
		Report:    *job.report,
		CreatedAt: job.queuedAt,
	}
	log := d.logger.WithSessionID(job.report.SessionID)

	if d.cfg.URL == "" {
		record.Status = models.DeliverySkipped
		d.skipped.Add(1)
		metrics.CallbackDeliveriesTotal.WithLabelValues(string(models.DeliverySkipped)).Inc()
		log.Debug().Msg("no callback url configured, delivery skipped")
		d.notify(record)
		return
	}

	payload, err := json.Marshal(job.report)
	if err != nil {
		record.Status = models.DeliveryFailed
		record.LastError = err.Error()
		d.recordFailure(log, record)
		return
	}

	policy := retry.Policy{MaxAttempts: d.cfg.MaxAttempts, BaseDelay: d.cfg.BaseDelay, MaxDelay: 10 * time.Second}
	attempts, err := retry.Do(d.ctx, policy, func(attempt int) error {
		status, err := d.post(payload, job)
		record.StatusCode = status
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("callback attempt failed")
		}
		return err
	})
	record.Attempts = attempts

	if err != nil {
		record.Status = models.DeliveryFailed
		record.LastError = err.Error()
		d.recordFailure(log, record)
		return
	}

	now := time.Now().UTC()
	record.Status = models.DeliveryDelivered
	record.DeliveredAt = &now
	d.delivered.Add(1)
	metrics.CallbackDeliveriesTotal.WithLabelValues(string(models.DeliveryDelivered)).Inc()
	log.Info().
		Int("status", record.StatusCode).
		Int("attempts", attempts).
		Int("intel_items", job.report.ExtractedIntelligence.Count()).
		Msg("report delivered")
	d.notify(record)
}

// post sends one attempt. Client errors are permanent, server and network errors retry.
func (d *CallbackDispatcher) post(payload []byte, job *deliveryJob) (int, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("failed to create callback request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "honeypot-lab/1.0")
	req.Header.Set("X-Report-ID", job.id.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return resp.StatusCode, retry.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, body))
	default:
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
}

func (d *CallbackDispatcher) recordFailure(log *logger.Logger, record *models.ReportRecord) {
	d.failed.Add(1)
	metrics.CallbackDeliveriesTotal.WithLabelValues(string(models.DeliveryFailed)).Inc()
	log.Warn().
		Str("error", record.LastError).
		Int("attempts", record.Attempts).
		Int("status", record.StatusCode).
		Msg("report delivery failed")
	d.notify(record)
}

func (d *CallbackDispatcher) notify(record *models.ReportRecord) {
	d.obsMu.RLock()
	observers := append([]ReportObserver(nil), d.observers...)
	d.obsMu.RUnlock()

	// observers outlive a stopping dispatcher so the final outcome is still recorded
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	for _, o := range observers {
		if err := o.ObserveReport(ctx, record); err != nil {
			d.logger.Warn().Err(err).Str("session_id", record.Report.SessionID).Msg("report observer failed")
		}
	}
}

// Stats returns delivery counters
func (d *CallbackDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:    d.queued.Load(),
		Dropped:   d.dropped.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Skipped:   d.skipped.Load(),
		Pending:   len(d.queue),
	}
}

// Stop cancels in-flight retries and waits for the workers to exit.
// Reports still queued are discarded.
func (d *CallbackDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		d.httpClient.CloseIdleConnections()
		d.logger.Info().Int("discarded", len(d.queue)).Msg("callback dispatcher stopped")
	})
}
