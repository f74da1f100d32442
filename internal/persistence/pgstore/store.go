package pgstore

import (
	"context"
	"time"

	"robo-ingest/internal/model"
	"robo-ingest/internal/persistence"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventModel struct {
	Origin     string    `gorm:"column:origin;primaryKey"`
	ExternalID string    `gorm:"column:external_id;primaryKey"`
	EventKind  string    `gorm:"column:event_kind"`
	Status     string    `gorm:"column:status"`
	Product    string    `gorm:"column:product"`
	Amount     string    `gorm:"column:amount"`
	Currency   string    `gorm:"column:currency"`
	IngestedAt time.Time `gorm:"column:ingested_at"`
	Raw        []byte    `gorm:"column:raw;type:jsonb"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (eventModel) TableName() string { return "neutral_events" }

type financialModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID string    `gorm:"column:external_id"`
	Origin     string    `gorm:"column:origin"`
	Product    string    `gorm:"column:product"`
	Amount     string    `gorm:"column:amount"`
	Currency   string    `gorm:"column:currency"`
	Ts         time.Time `gorm:"column:ts"`
}

func (financialModel) TableName() string { return "financial_records" }

type auditModel struct {
	ID      int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Ts      time.Time `gorm:"column:ts"`
	Origin  string    `gorm:"column:origin"`
	Level   string    `gorm:"column:level"`
	Message string    `gorm:"column:message"`
	Extra   []byte    `gorm:"column:extra;type:jsonb"`
}

func (auditModel) TableName() string { return "audit_logs" }

// Store implements persistence.Port on Postgres.
type Store struct {
	db *gorm.DB
}

var _ persistence.Port = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Log(ctx context.Context, rec model.LogRecord) error {
	row := auditModel{
		Ts:      rec.Ts.UTC(),
		Origin:  rec.Origin,
		Level:   string(rec.Level),
		Message: rec.Message,
	}
	if len(rec.Extra) > 0 {
		extra, err := json.Marshal(rec.Extra)
		if err != nil {
			return err
		}
		row.Extra = extra
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecordEvent upserts on (origin, external_id). The latest delivery wins.
func (s *Store) RecordEvent(ctx context.Context, ev *model.NeutralEvent) error {
	row, err := toEventModel(ev)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "origin"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"event_kind", "status", "product", "amount", "currency", "ingested_at", "raw", "updated_at",
		}),
	}).Create(&row).Error
}

func (s *Store) RecordFinancial(ctx context.Context, rec model.FinancialRecord) error {
	row := financialModel{
		ExternalID: rec.ExternalID,
		Origin:     string(rec.Origin),
		Product:    rec.Product,
		Amount:     persistence.FormatAmount(rec.Amount),
		Currency:   rec.Currency,
		Ts:         rec.Ts.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Close releases the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toEventModel(ev *model.NeutralEvent) (eventModel, error) {
	row := eventModel{
		Origin:     string(ev.Origin),
		ExternalID: ev.ExternalID,
		EventKind:  ev.EventKind,
		Status:     ev.Status,
		Product:    ev.Product,
		Amount:     persistence.FormatAmount(ev.Financial.Amount),
		Currency:   ev.Financial.Currency,
		IngestedAt: ev.IngestedAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if len(ev.Raw) > 0 {
		raw, err := json.Marshal(ev.Raw)
		if err != nil {
			return eventModel{}, err
		}
		row.Raw = raw
	}
	return row, nil
}
