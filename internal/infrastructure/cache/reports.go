package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// Cache key patterns
const (
	latestReportKey = "report:latest:"
	reportCountKey  = "report:count:"
)

// ReportCache keeps the most recent report per session in Redis
type ReportCache struct {
	redis  *RedisCache
	ttl    time.Duration
	logger *logger.Logger
}

// NewReportCache creates a report cache. A non-positive ttl keeps entries forever.
func NewReportCache(redis *RedisCache, ttl time.Duration, log *logger.Logger) *ReportCache {
	return &ReportCache{
		redis:  redis,
		ttl:    ttl,
		logger: log.WithComponent("report-cache"),
	}
}

// LatestReportKey returns the unprefixed key of a session's latest report
func LatestReportKey(sessionID string) string {
	return latestReportKey + sessionID
}

// ReportCountKey returns the unprefixed key of a session's report counter
func ReportCountKey(sessionID string) string {
	return reportCountKey + sessionID
}

// ObserveReport stores the record as the session's latest and bumps its counter
func (c *ReportCache) ObserveReport(ctx context.Context, record *models.ReportRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal report record: %w", err)
	}

	sid := record.Report.SessionID
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}

	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, c.redis.key(LatestReportKey(sid)), data, ttl)
	pipe.Incr(ctx, c.redis.key(ReportCountKey(sid)))
	if ttl > 0 {
		pipe.Expire(ctx, c.redis.key(ReportCountKey(sid)), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}

	c.logger.Debug().Str("session_id", sid).Str("status", string(record.Status)).Msg("latest report cached")
	return nil
}

// LatestReport returns the most recent report record for a session.
// found is false when none was cached or it expired.
func (c *ReportCache) LatestReport(ctx context.Context, sessionID string) (record *models.ReportRecord, found bool, err error) {
	var rec models.ReportRecord
	if err := c.redis.GetJSON(ctx, LatestReportKey(sessionID), &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached report: %w", err)
	}
	return &rec, true, nil
}

// ReportCount returns how many reports were emitted for a session
func (c *ReportCache) ReportCount(ctx context.Context, sessionID string) (int64, error) {
	val, err := c.redis.Get(ctx, ReportCountKey(sessionID))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
