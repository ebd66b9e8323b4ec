package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// WebhookEvent is the journal row of one delivered event.
type WebhookEvent struct {
	EventID    string  `gorm:"primaryKey;size:128;not null"`
	EventType  string  `gorm:"size:64;index"`
	Outcome    Outcome `gorm:"size:16;index"`
	Attempts   int     `gorm:"not null;default:1"`
	LastError  string  `gorm:"size:1024"`
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

//go:generate mockgen -source=journal.go -package stripewebhook -destination journal_mock.go Journal
type Journal interface {
	IsHandled(c context.Context, eventID string) (bool, error)
	Record(c context.Context, event WebhookEvent) error
	Recent(c context.Context, limit int) ([]WebhookEvent, error)
}

type gormJournal struct {
	db *gorm.DB
}

// NewJournal opens the journal database and migrates its schema.
func NewJournal(driver string, dsn string) (*gormJournal, func(), error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, func() {}, fmt.Errorf("unsupported journal driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("error opening journal: %s", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, func() {}, fmt.Errorf("error accessing journal connection pool: %s", err)
	}
	if driver == "sqlite" {
		// sqlite serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	err = db.AutoMigrate(&WebhookEvent{})
	if err != nil {
		sqlDB.Close()
		return nil, func() {}, fmt.Errorf("error migrating journal: %s", err)
	}

	return &gormJournal{db: db}, func() { sqlDB.Close() }, nil
}

func (j *gormJournal) IsHandled(c context.Context, eventID string) (bool, error) {
	event := WebhookEvent{}
	err := j.db.WithContext(c).
		Where("event_id = ?", eventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error fetching journal entry %s: %s", eventID, err)
	}
	return event.Outcome == OutcomeHandled || event.Outcome == OutcomeUnhandled, nil
}

// Record inserts the event or, on redelivery, updates its outcome and counts the attempt.
func (j *gormJournal) Record(c context.Context, event WebhookEvent) error {
	err := j.db.WithContext(c).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"outcome":    event.Outcome,
				"last_error": event.LastError,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": event.UpdatedAt,
			}),
		}).
		Create(&event).Error
	if err != nil {
		return fmt.Errorf("error recording journal entry %s: %s", event.EventID, err)
	}
	return nil
}

func (j *gormJournal) Recent(c context.Context, limit int) ([]WebhookEvent, error) {
	events := []WebhookEvent{}
	err := j.db.WithContext(c).
		Order("received_at desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("error listing journal: %s", err)
	}
	return events, nil
}
