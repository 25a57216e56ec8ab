package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/interaction-monitor/internal/audit"
	"github.com/interaction-monitor/internal/metrics"
	"github.com/interaction-monitor/pkg/models"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PendingKey is the Redis list holding history records awaiting persistence
const PendingKey = "monitor:history:pending"

const syncBatchSize = 10000

// historyRecord is one submission: an interaction and the incidents derived from it
type historyRecord struct {
	Interaction models.AIInteraction `json:"interaction"`
	Incidents   []models.Incident    `json:"incidents,omitempty"`
}

// RedisCache queues interaction history in Redis and periodically moves it
// into Postgres.
type RedisCache struct {
	rdb          *redis.Client
	auditLog     *audit.Logger
	logger       *zap.SugaredLogger
	syncTicker   *time.Ticker
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
	syncInterval time.Duration
}

// NewRedisCache creates a new RedisCache
func NewRedisCache(rdb *redis.Client, auditLog *audit.Logger, syncInterval time.Duration, logger *zap.SugaredLogger) *RedisCache {
	return &RedisCache{
		rdb:          rdb,
		auditLog:     auditLog,
		logger:       logger,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		syncInterval: syncInterval,
	}
}

// Enqueue pushes one submission onto the pending list
func (rc *RedisCache) Enqueue(ctx context.Context, interaction models.AIInteraction, incidents []models.Incident) error {
	payload, err := json.Marshal(historyRecord{Interaction: interaction, Incidents: incidents})
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}
	if err := rc.rdb.LPush(ctx, PendingKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue history record: %w", err)
	}
	return nil
}

// Start begins the background worker that periodically syncs history from
// Redis to Postgres. The worker keeps running after ctx is cancelled; only
// Stop ends it, after a final sync.
func (rc *RedisCache) Start(ctx context.Context) error {
	if rc.syncInterval <= 0 {
		return fmt.Errorf("invalid sync interval: %v", rc.syncInterval)
	}

	rc.syncTicker = time.NewTicker(rc.syncInterval)
	go rc.syncWorker(context.WithoutCancel(ctx))
	rc.logger.Infof("✓ Redis→Postgres history sync worker started (interval: %v)", rc.syncInterval)

	return nil
}

// syncWorker runs in the background and syncs history to Postgres.
func (rc *RedisCache) syncWorker(ctx context.Context) {
	defer close(rc.doneChan)
	for {
		select {
		case <-rc.syncTicker.C:
			if err := rc.Sync(ctx); err != nil {
				rc.logger.Warnf("⚠️  Failed to sync history to Postgres: %v", err)
			}
		case <-rc.stopChan:
			rc.syncTicker.Stop()
			if err := rc.Sync(ctx); err != nil {
				rc.logger.Warnf("⚠️  Failed to perform final history sync to Postgres: %v", err)
			}
			rc.logger.Info("✓ Redis→Postgres history sync worker stopped")
			return
		}
	}
}

// Sync moves one batch of pending records from Redis into Postgres
func (rc *RedisCache) Sync(ctx context.Context) error {
	queueSize, err := rc.rdb.LLen(ctx, PendingKey).Result()
	if err != nil {
		rc.logger.Warnf("⚠️  Failed to get history queue size: %v", err)
	} else {
		metrics.HistoryQueueLength.Set(float64(queueSize))
	}

	// Pop from the right side of the list (FIFO order) - REMOVES from Redis!
	raw, err := rc.rdb.RPopCount(ctx, PendingKey, syncBatchSize).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read history from Redis: %w", err)
	}
	if len(raw) == 0 {
		metrics.HistoryQueueLength.Set(0)
		return nil
	}

	remaining := queueSize - int64(len(raw))
	if remaining < 0 {
		remaining = 0
	}
	metrics.HistoryQueueLength.Set(float64(remaining))

	records := make([]historyRecord, 0, len(raw))
	payloads := make([]string, 0, len(raw))
	for _, data := range raw {
		var rec historyRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			rc.logger.Warnf("⚠️  Dropping undecodable history record: %v", err)
			continue
		}
		records = append(records, rec)
		payloads = append(payloads, data)
	}
	if len(records) == 0 {
		return nil
	}

	if err := rc.bulkWrite(ctx, records); err != nil {
		rc.logger.Warnf("⚠️  Bulk insert failed: %v, falling back to individual inserts", err)
		return rc.writeEach(ctx, records, payloads)
	}

	rc.logger.Infof("✓ Bulk synced %d history records to Postgres", len(records))
	return nil
}

// writeEach inserts records one at a time and re-queues the ones that fail
func (rc *RedisCache) writeEach(ctx context.Context, records []historyRecord, payloads []string) error {
	synced := 0
	var failed []string
	for i, rec := range records {
		if err := rc.auditLog.Write(ctx, rec.Interaction, rec.Incidents); err != nil {
			rc.logger.Warnf("⚠️  Failed to write interaction %s: %v", rec.Interaction.ID, err)
			failed = append(failed, payloads[i])
			continue
		}
		synced++
	}

	for _, data := range failed {
		if err := rc.rdb.RPush(ctx, PendingKey, data).Err(); err != nil {
			rc.logger.Warnf("⚠️  Failed to re-queue history record: %v", err)
		}
	}
	if len(failed) > 0 {
		rc.logger.Warnf("⚠️  Re-queued %d failed history records for retry", len(failed))
	}

	rc.logger.Infof("✓ Synced %d/%d history records to Postgres (fallback mode)", synced, len(records))
	return nil
}

// bulkWrite uses PostgreSQL COPY for high-performance bulk inserts
func (rc *RedisCache) bulkWrite(ctx context.Context, records []historyRecord) error {
	tx, err := rc.auditLog.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := copyRows(ctx, tx, "interactions", audit.InteractionColumns, len(records), func(i int) ([]interface{}, error) {
		return audit.InteractionRow(records[i].Interaction)
	}); err != nil {
		return err
	}

	var incidents []models.Incident
	for _, rec := range records {
		incidents = append(incidents, rec.Incidents...)
	}
	if len(incidents) > 0 {
		if err := copyRows(ctx, tx, "incidents", audit.IncidentColumns, len(incidents), func(i int) ([]interface{}, error) {
			return audit.IncidentRow(incidents[i])
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// copyRows streams n rows into table with a single COPY statement
func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(int) ([]interface{}, error)) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		values, err := row(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to add row to COPY into %s: %w", table, err)
		}
	}

	// Flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush COPY into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close COPY into %s: %w", table, err)
	}
	return nil
}

// Stop gracefully stops the background worker after a final sync.
func (rc *RedisCache) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.stopChan)
		if rc.syncTicker != nil {
			<-rc.doneChan
		}
	})
}
