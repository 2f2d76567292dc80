package store

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

var json = sonic.ConfigFastest

// OrderRecord is the persisted snapshot of an order, upserted on every
// lifecycle transition.
type OrderRecord struct {
	ID              string    `gorm:"primaryKey;size:64"`
	TokenID         string    `gorm:"index;size:128;not null"`
	MarketID        string    `gorm:"size:128"`
	Side            string    `gorm:"size:8;not null"`
	Status          string    `gorm:"index;size:24;not null"`
	TotalSize       int64     `gorm:"not null"`
	FilledAmount    int64     `gorm:"not null"`
	RemainingAmount int64     `gorm:"not null"`
	TargetPrice     float64   `gorm:"not null"`
	MinPrice        float64   `gorm:"not null"`
	MaxPrice        float64   `gorm:"not null"`
	Urgency         string    `gorm:"size:8"`
	AdjustmentCount int       `gorm:"not null"`
	UndercutCount   int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"index;not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (OrderRecord) TableName() string { return "orders" }

// FillRecord is one append-only fill row.
type FillRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	OrderID     string    `gorm:"index;size:64;not null"`
	TokenID     string    `gorm:"index;size:128;not null"`
	Amount      int64     `gorm:"not null"`
	Price       float64   `gorm:"not null"`
	FilledTotal int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

func (FillRecord) TableName() string { return "fills" }

// EventRecord is one append-only lifecycle event row; details carry the
// event payload as JSON.
type EventRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	OrderID   string    `gorm:"index;size:64;not null"`
	Kind      string    `gorm:"index;size:24;not null"`
	Details   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index;not null"`
}

func (EventRecord) TableName() string { return "order_events" }

// SnapshotRecord is one polled market observation.
type SnapshotRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	TokenID    string    `gorm:"index;size:128;not null"`
	BestBid    float64   `gorm:"not null"`
	BestAsk    float64   `gorm:"not null"`
	BidDepth   int64     `gorm:"not null"`
	AskDepth   int64     `gorm:"not null"`
	Spread     float64   `gorm:"not null"`
	MicroPrice float64   `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index;not null"`
}

func (SnapshotRecord) TableName() string { return "market_snapshots" }

// Store persists orders, fills, events, and market snapshots to
// PostgreSQL. Persistence is observational: the daemon never reads
// orders back to resume them.
type Store struct {
	db *gorm.DB
}

// New wraps a gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&OrderRecord{}, &FillRecord{}, &EventRecord{}, &SnapshotRecord{})
}

// SaveOrder upserts the order snapshot by order id.
func (s *Store) SaveOrder(order *model.Order) error {
	record := toOrderRecord(order)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return errors.Wrap(err, "save order")
	}
	return nil
}

// RecordFill appends one fill row.
func (s *Store) RecordFill(orderID, tokenID string, amount int64, price float64, filledTotal int64) error {
	record := FillRecord{
		OrderID:     orderID,
		TokenID:     tokenID,
		Amount:      amount,
		Price:       price,
		FilledTotal: filledTotal,
		CreatedAt:   time.Now(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(err, "record fill")
	}
	return nil
}

// RecordEvent appends one lifecycle event row.
func (s *Store) RecordEvent(e model.Event) error {
	details := ""
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return errors.Wrap(err, "marshal event details")
		}
		details = string(raw)
	}

	record := EventRecord{
		OrderID:   e.OrderID,
		Kind:      e.Kind.String(),
		Details:   details,
		CreatedAt: e.Timestamp,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(err, "record event")
	}
	return nil
}

// SaveMarketSnapshot appends one market observation.
func (s *Store) SaveMarketSnapshot(snapshot *model.MarketSnapshot) error {
	record := SnapshotRecord{
		TokenID:    snapshot.TokenID,
		BestBid:    snapshot.BestBid,
		BestAsk:    snapshot.BestAsk,
		BidDepth:   snapshot.BidDepth,
		AskDepth:   snapshot.AskDepth,
		Spread:     snapshot.Spread,
		MicroPrice: snapshot.MicroPrice,
		CreatedAt:  snapshot.Timestamp,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(err, "save market snapshot")
	}
	return nil
}

// LoadActiveOrders returns orders persisted in a non-terminal status.
// They are reported for visibility at startup, never resumed.
func (s *Store) LoadActiveOrders() ([]*model.Order, error) {
	var records []OrderRecord
	err := s.db.
		Where("status IN ?", []string{
			enum.StatusQueued.String(),
			enum.StatusActive.String(),
			enum.StatusPartiallyFilled.String(),
		}).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load active orders")
	}

	orders := make([]*model.Order, len(records))
	for i := range records {
		orders[i] = fromOrderRecord(&records[i])
	}
	return orders, nil
}

// OrderHistory returns the most recent orders for a token, newest first.
func (s *Store) OrderHistory(tokenID string, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []OrderRecord
	err := s.db.
		Where("token_id = ?", tokenID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load order history")
	}

	orders := make([]*model.Order, len(records))
	for i := range records {
		orders[i] = fromOrderRecord(&records[i])
	}
	return orders, nil
}

// Fills returns the fill rows for an order, oldest first.
func (s *Store) Fills(orderID string) ([]FillRecord, error) {
	var records []FillRecord
	err := s.db.
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load fills")
	}
	return records, nil
}

// Events returns the event rows for an order, oldest first.
func (s *Store) Events(orderID string) ([]EventRecord, error) {
	var records []EventRecord
	err := s.db.
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load events")
	}
	return records, nil
}

func toOrderRecord(order *model.Order) OrderRecord {
	return OrderRecord{
		ID:              order.OrderID,
		TokenID:         order.TokenID,
		MarketID:        order.MarketID,
		Side:            order.Side.String(),
		Status:          order.Status.String(),
		TotalSize:       order.TotalSize,
		FilledAmount:    order.FilledAmount,
		RemainingAmount: order.RemainingAmount,
		TargetPrice:     order.TargetPrice,
		MinPrice:        order.MinPrice,
		MaxPrice:        order.MaxPrice,
		Urgency:         order.Urgency.String(),
		AdjustmentCount: order.AdjustmentCount,
		UndercutCount:   order.UndercutCount,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func fromOrderRecord(record *OrderRecord) *model.Order {
	return &model.Order{
		OrderID:         record.ID,
		TokenID:         record.TokenID,
		MarketID:        record.MarketID,
		Side:            enum.ParseSide(record.Side),
		Status:          enum.ParseStatus(record.Status),
		TotalSize:       record.TotalSize,
		FilledAmount:    record.FilledAmount,
		RemainingAmount: record.RemainingAmount,
		TargetPrice:     record.TargetPrice,
		MinPrice:        record.MinPrice,
		MaxPrice:        record.MaxPrice,
		Urgency:         enum.ParseUrgency(record.Urgency),
		AdjustmentCount: record.AdjustmentCount,
		UndercutCount:   record.UndercutCount,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}
