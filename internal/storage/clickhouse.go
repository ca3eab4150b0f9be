package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/logging"
)

// ClickHouseDB wraps the ClickHouse connection used by the audit sink
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// AuditRecord captures the outcome of one processed job for the
// high-volume audit stream.
type AuditRecord struct {
	JobID           string
	Signature       string
	TransactionHash string
	LogIndex        uint32
	AccountID       string
	Outcome         string // processed, skipped, retried, failed
	ErrorClass      string
	Attempt         int
	Duration        time.Duration
	ProcessedAt     time.Time
}

// AuditSink records processed-event outcomes. Writes are best effort: a
// sink failure is logged and never fails the job. A nil receiver or nil
// connection disables the sink.
type AuditSink struct {
	db *ClickHouseDB
}

// NewAuditSink creates an audit sink over a ClickHouse connection.
// Pass nil to disable auditing.
func NewAuditSink(db *ClickHouseDB) *AuditSink {
	return &AuditSink{db: db}
}

// CreateAuditTable creates the event_audit table if it does not exist
func (s *AuditSink) CreateAuditTable(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS event_audit (
			job_id           String,
			signature        String,
			transaction_hash String,
			log_index        UInt32,
			account_id       String,
			outcome          String,
			error_class      String,
			attempt          Int32,
			duration_ms      UInt64,
			processed_at     DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (processed_at, signature)
	`)
}

// Record writes one audit record, logging and swallowing failures
func (s *AuditSink) Record(ctx context.Context, rec AuditRecord) {
	if s == nil || s.db == nil {
		return
	}
	err := s.db.conn.Exec(ctx, `
		INSERT INTO event_audit
			(job_id, signature, transaction_hash, log_index, account_id,
			 outcome, error_class, attempt, duration_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Signature,
		rec.TransactionHash,
		rec.LogIndex,
		rec.AccountID,
		rec.Outcome,
		rec.ErrorClass,
		int32(rec.Attempt),
		uint64(rec.Duration.Milliseconds()),
		rec.ProcessedAt,
	)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Audit sink write failed")
	}
}
