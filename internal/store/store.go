// Package store persists the decision audit trail and small runtime state
// in a local sqlite database.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"marlin/internal/decision"
	"marlin/internal/logger"
)

// DecisionRecord is one audited non-hold decision.
type DecisionRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Symbol       string    `gorm:"index" json:"symbol"`
	Signal       string    `json:"signal"`
	Confidence   float64   `json:"confidence"`
	ProfitTarget *float64  `json:"profit_target,omitempty"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	Leverage     *float64  `json:"leverage,omitempty"`
	RiskUSD      *float64  `json:"risk_usd,omitempty"`
	RiskPct      *float64  `json:"risk_pct,omitempty"`
	Invalidation string    `json:"invalidation,omitempty"`
	// Raw carries the full validated decision for replay and debugging.
	Raw datatypes.JSON `json:"raw,omitempty"`
}

// OIWindow is the persisted open-interest sample window for one coin.
type OIWindow struct {
	Coin      string         `gorm:"primaryKey"`
	Window    datatypes.JSON
	UpdatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

// Open creates or opens the database and migrates the schema. WAL keeps
// audit writes from blocking readers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&DecisionRecord{}, &OIWindow{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one decision, fire and forget: the write happens off the
// caller's path and failures are only logged, never raised.
func (s *Store) Record(sym string, d *decision.Decision) {
	if d == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		logger.Warnf("[store] encode decision %s: %v", sym, err)
		raw = nil
	}
	rec := DecisionRecord{
		Symbol:       sym,
		Signal:       string(d.Signal),
		Confidence:   d.Conf(),
		ProfitTarget: d.ProfitTarget,
		StopLoss:     d.StopLoss,
		Leverage:     d.Leverage,
		RiskUSD:      d.RiskUSD,
		RiskPct:      d.RiskPct,
		Invalidation: d.Invalidation,
		Raw:          raw,
	}
	go func() {
		if err := s.db.Create(&rec).Error; err != nil {
			logger.Warnf("[store] record decision %s: %v", sym, err)
		}
	}()
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []DecisionRecord
	err := s.db.Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// LoadWindow and SaveWindow implement the open-interest persistence port.
func (s *Store) LoadWindow(coin string) ([]float64, error) {
	var row OIWindow
	err := s.db.First(&row, "coin = ?", coin).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var window []float64
	if err := json.Unmarshal(row.Window, &window); err != nil {
		return nil, fmt.Errorf("decode oi window %s: %w", coin, err)
	}
	return window, nil
}

func (s *Store) SaveWindow(coin string, window []float64) error {
	raw, err := json.Marshal(window)
	if err != nil {
		return err
	}
	row := OIWindow{Coin: coin, Window: raw, UpdatedAt: time.Now()}
	return s.db.Save(&row).Error
}
