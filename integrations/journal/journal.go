package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"escrowd/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry is one journaled escrow event. The journal is an observational copy
// of the notification stream; the ledger stays authoritative.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"index"`
	Type       string    `gorm:"size:64;index"`
	EscrowID   string    `gorm:"size:32;index"`
	Attributes string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (Entry) TableName() string { return "escrow_events" }

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(e.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(e.Attributes), &out); err != nil {
		return nil, fmt.Errorf("journal: decode attributes: %w", err)
	}
	return out, nil
}

// Journal persists envelopes through gorm.
type Journal struct {
	db *gorm.DB
}

// Open connects to the journal database and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// AutoMigrate performs the journal schema migration.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Name identifies the sink in logs and metrics.
func (j *Journal) Name() string { return "journal" }

// Deliver appends env to the journal.
func (j *Journal) Deliver(ctx context.Context, env events.Envelope) error {
	attrs := env.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	entry := Entry{
		ID:         uuid.New(),
		Sequence:   env.Sequence,
		Type:       env.Type,
		EscrowID:   env.EscrowID(),
		Attributes: string(raw),
		OccurredAt: env.OccurredAt.UTC(),
	}
	return j.db.WithContext(ctx).Create(&entry).Error
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	EscrowID string
	Type     string
	Limit    int
}

// List returns entries oldest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if filter.EscrowID != "" {
		query = query.Where("escrow_id = ?", filter.EscrowID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var entries []Entry
	if err := query.Order("occurred_at ASC").Order("sequence ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
