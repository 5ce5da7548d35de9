package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// RequestRecord is one routing decision in the audit log. Message content
// is deliberately never stored.
type RequestRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RequestID    string    `json:"request_id" gorm:"index;not null"`
	Tier         string    `json:"tier"`
	Backend      string    `json:"backend"`
	CacheHit     bool      `json:"cache_hit" gorm:"default:false"`
	FallbackUsed bool      `json:"fallback_used" gorm:"default:false"`
	LatencyMs    int64     `json:"latency_ms"`
	Status       int       `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLog persists routing decisions to Postgres. All writes are
// best-effort and asynchronous; a down database never affects requests.
type AuditLog struct {
	db      *gorm.DB
	logger  *utils.Logger
	records chan RequestRecord
	done    chan struct{}
}

// NewAuditLog opens the Postgres connection and starts the writer goroutine
func NewAuditLog(config *types.DatabaseConfig, log *utils.Logger) (*AuditLog, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		config.Host,
		config.Port,
		config.Username,
		config.Password,
		config.Database,
	)

	gormLogger := gormlogger.New(
		log,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&RequestRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit log schema: %w", err)
	}

	log.Info("Successfully connected to PostgreSQL audit log")

	a := &AuditLog{
		db:      db,
		logger:  log,
		records: make(chan RequestRecord, 256),
		done:    make(chan struct{}),
	}
	go a.writeLoop()

	return a, nil
}

// Record enqueues a routing decision. Drops the record when the queue is
// full rather than blocking the request path.
func (a *AuditLog) Record(rec RequestRecord) {
	if a == nil {
		return
	}
	select {
	case a.records <- rec:
	default:
		a.logger.Warn("Audit log queue full, dropping record")
	}
}

// Close stops the writer goroutine after draining queued records
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	close(a.records)
	<-a.done
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (a *AuditLog) writeLoop() {
	defer close(a.done)
	for rec := range a.records {
		if err := a.db.Create(&rec).Error; err != nil {
			a.logger.WithError(err).Warn("Failed to write audit record")
		}
	}
}
