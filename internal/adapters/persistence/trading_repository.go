package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

// GormAlertRepository implements trading.AlertRepository on a region shard
type GormAlertRepository struct {
	db *gorm.DB
}

// NewGormAlertRepository creates a new GORM price alert repository
func NewGormAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

// Create persists a new price alert
func (r *GormAlertRepository) Create(ctx context.Context, a *trading.PriceAlert) error {
	result := r.db.WithContext(ctx).Create(r.alertToModel(a))
	if result.Error != nil {
		return fmt.Errorf("failed to create alert: %w", result.Error)
	}
	return nil
}

// FindByID retrieves an alert by ID
func (r *GormAlertRepository) FindByID(ctx context.Context, regionID shared.RegionID, id string) (*trading.PriceAlert, error) {
	var model PriceAlertModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("alert")
		}
		return nil, fmt.Errorf("failed to find alert: %w", result.Error)
	}
	return r.modelToAlert(&model), nil
}

// ListArmedByStation finds untriggered alerts watching a station, the price
// sweep's work list after each fill and restock
func (r *GormAlertRepository) ListArmedByStation(ctx context.Context, regionID shared.RegionID, stationID shared.StationID) ([]*trading.PriceAlert, error) {
	var models []PriceAlertModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND station_id = ? AND triggered = ?", regionID.String(), stationID.String(), false).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list armed alerts: %w", result.Error)
	}
	return r.modelsToAlerts(models), nil
}

// ListByPlayer retrieves a player's alerts, newest first
func (r *GormAlertRepository) ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*trading.PriceAlert, error) {
	var models []PriceAlertModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND player_id = ?", regionID.String(), playerID.String()).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", result.Error)
	}
	return r.modelsToAlerts(models), nil
}

// Update saves the triggered flag. Alerts fire once and carry no other
// mutable state, so there is no version check.
func (r *GormAlertRepository) Update(ctx context.Context, a *trading.PriceAlert) error {
	result := r.db.WithContext(ctx).Save(r.alertToModel(a))
	if result.Error != nil {
		return fmt.Errorf("failed to update alert: %w", result.Error)
	}
	return nil
}

// Delete removes an alert
func (r *GormAlertRepository) Delete(ctx context.Context, regionID shared.RegionID, id string) error {
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id).
		Delete(&PriceAlertModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("alert")
	}
	return nil
}

func (r *GormAlertRepository) modelsToAlerts(models []PriceAlertModel) []*trading.PriceAlert {
	alerts := make([]*trading.PriceAlert, 0, len(models))
	for i := range models {
		alerts = append(alerts, r.modelToAlert(&models[i]))
	}
	return alerts
}

func (r *GormAlertRepository) alertToModel(a *trading.PriceAlert) *PriceAlertModel {
	return &PriceAlertModel{
		ID:          a.ID,
		RegionID:    a.RegionID.String(),
		PlayerID:    a.PlayerID.String(),
		StationID:   a.StationID.String(),
		Commodity:   string(a.Commodity),
		Direction:   string(a.Direction),
		Threshold:   a.Threshold,
		Triggered:   a.Triggered,
		TriggeredAt: a.TriggeredAt,
		CreatedAt:   a.CreatedAt,
	}
}

func (r *GormAlertRepository) modelToAlert(model *PriceAlertModel) *trading.PriceAlert {
	return &trading.PriceAlert{
		ID:          model.ID,
		RegionID:    shared.RegionID(model.RegionID),
		PlayerID:    shared.PlayerID(model.PlayerID),
		StationID:   shared.StationID(model.StationID),
		Commodity:   shared.Commodity(model.Commodity),
		Direction:   trading.AlertDirection(model.Direction),
		Threshold:   model.Threshold,
		Triggered:   model.Triggered,
		TriggeredAt: model.TriggeredAt,
		CreatedAt:   model.CreatedAt,
	}
}

// GormContractRepository implements trading.ContractRepository on a region shard
type GormContractRepository struct {
	db *gorm.DB
}

// NewGormContractRepository creates a new GORM market contract repository
func NewGormContractRepository(db *gorm.DB) *GormContractRepository {
	return &GormContractRepository{db: db}
}

// Create persists a new standing order
func (r *GormContractRepository) Create(ctx context.Context, c *trading.Contract) error {
	result := r.db.WithContext(ctx).Create(r.contractToModel(c))
	if result.Error != nil {
		return fmt.Errorf("failed to create contract: %w", result.Error)
	}
	return nil
}

// FindByID retrieves a contract by ID
func (r *GormContractRepository) FindByID(ctx context.Context, regionID shared.RegionID, id string) (*trading.Contract, error) {
	var model MarketContractModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("contract")
		}
		return nil, fmt.Errorf("failed to find contract: %w", result.Error)
	}
	return r.modelToContract(&model), nil
}

// ListOpenByStation finds open orders against a station, checked after each
// price movement for fills
func (r *GormContractRepository) ListOpenByStation(ctx context.Context, regionID shared.RegionID, stationID shared.StationID) ([]*trading.Contract, error) {
	var models []MarketContractModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND station_id = ? AND status = ?",
			regionID.String(), stationID.String(), string(trading.ContractOpen)).
		Order("created_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list open contracts: %w", result.Error)
	}
	return r.modelsToContracts(models), nil
}

// ListByPlayer retrieves a player's contracts, newest first
func (r *GormContractRepository) ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID) ([]*trading.Contract, error) {
	var models []MarketContractModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND player_id = ?", regionID.String(), playerID.String()).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", result.Error)
	}
	return r.modelsToContracts(models), nil
}

// ListOpenExpiredBefore finds open orders past their expiry, the expiry
// sweep's work list
func (r *GormContractRepository) ListOpenExpiredBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time) ([]*trading.Contract, error) {
	var models []MarketContractModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status = ? AND expires_at < ?",
			regionID.String(), string(trading.ContractOpen), cutoff).
		Order("expires_at").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list expired contracts: %w", result.Error)
	}
	return r.modelsToContracts(models), nil
}

// Update saves contract changes guarded by the version check
func (r *GormContractRepository) Update(ctx context.Context, c *trading.Contract) error {
	model := r.contractToModel(c)
	model.Version = c.Version + 1
	result := r.db.WithContext(ctx).
		Where("version = ?", c.Version).
		Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to update contract: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("contract changed concurrently")
	}
	c.Version = model.Version
	return nil
}

func (r *GormContractRepository) modelsToContracts(models []MarketContractModel) []*trading.Contract {
	contracts := make([]*trading.Contract, 0, len(models))
	for i := range models {
		contracts = append(contracts, r.modelToContract(&models[i]))
	}
	return contracts
}

func (r *GormContractRepository) contractToModel(c *trading.Contract) *MarketContractModel {
	return &MarketContractModel{
		ID:          c.ID,
		RegionID:    c.RegionID.String(),
		PlayerID:    c.PlayerID.String(),
		StationID:   c.StationID.String(),
		Commodity:   string(c.Commodity),
		Side:        string(c.Side),
		Quantity:    c.Quantity,
		StrikePrice: c.StrikePrice,
		Status:      string(c.Status),
		ExpiresAt:   c.ExpiresAt,
		FilledAt:    c.FilledAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Version:     c.Version,
	}
}

func (r *GormContractRepository) modelToContract(model *MarketContractModel) *trading.Contract {
	return &trading.Contract{
		ID:          model.ID,
		RegionID:    shared.RegionID(model.RegionID),
		PlayerID:    shared.PlayerID(model.PlayerID),
		StationID:   shared.StationID(model.StationID),
		Commodity:   shared.Commodity(model.Commodity),
		Side:        trading.ContractSide(model.Side),
		Quantity:    model.Quantity,
		StrikePrice: model.StrikePrice,
		Status:      trading.ContractStatus(model.Status),
		ExpiresAt:   model.ExpiresAt,
		FilledAt:    model.FilledAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		Version:     model.Version,
	}
}

// GormLedgerRepository implements trading.LedgerRepository. The ledger is
// append-only; rows are written inside the same transaction as the trade
// they describe.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GORM trade ledger repository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Record appends a trade record
func (r *GormLedgerRepository) Record(ctx context.Context, record *trading.TradeRecord) error {
	model := &TradeRecordModel{
		ID:            record.ID,
		RegionID:      record.RegionID.String(),
		PlayerID:      record.PlayerID.String(),
		StationID:     record.StationID.String(),
		Commodity:     string(record.Commodity),
		Direction:     string(record.Direction),
		Quantity:      record.Quantity,
		UnitPrice:     record.UnitPrice,
		Total:         record.Total,
		BalanceBefore: int64(record.BalanceBefore),
		BalanceAfter:  int64(record.BalanceAfter),
		RecordedAt:    record.RecordedAt,
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to record trade: %w", result.Error)
	}
	return nil
}

// ListByPlayer retrieves a player's most recent trades
func (r *GormLedgerRepository) ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID, limit int) ([]*trading.TradeRecord, error) {
	if limit < 1 {
		limit = 50
	}
	var models []TradeRecordModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND player_id = ?", regionID.String(), playerID.String()).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list trades: %w", result.Error)
	}
	records := make([]*trading.TradeRecord, 0, len(models))
	for i := range models {
		m := &models[i]
		records = append(records, &trading.TradeRecord{
			ID:            m.ID,
			RegionID:      shared.RegionID(m.RegionID),
			PlayerID:      shared.PlayerID(m.PlayerID),
			StationID:     shared.StationID(m.StationID),
			Commodity:     shared.Commodity(m.Commodity),
			Direction:     trading.TradeDirection(m.Direction),
			Quantity:      m.Quantity,
			UnitPrice:     m.UnitPrice,
			Total:         m.Total,
			BalanceBefore: shared.Credits(m.BalanceBefore),
			BalanceAfter:  shared.Credits(m.BalanceAfter),
			RecordedAt:    m.RecordedAt,
		})
	}
	return records, nil
}

// GormPriceHistoryRepository implements trading.PriceHistoryRepository
type GormPriceHistoryRepository struct {
	db *gorm.DB
}

// NewGormPriceHistoryRepository creates a new GORM price history repository
func NewGormPriceHistoryRepository(db *gorm.DB) *GormPriceHistoryRepository {
	return &GormPriceHistoryRepository{db: db}
}

// Record appends one quote sample
func (r *GormPriceHistoryRepository) Record(ctx context.Context, p *trading.PricePoint) error {
	model := &PriceHistoryModel{
		RegionID:   p.RegionID.String(),
		StationID:  p.StationID.String(),
		Commodity:  string(p.Commodity),
		UnitBuy:    p.UnitBuy,
		UnitSell:   p.UnitSell,
		Stock:      p.Stock,
		RecordedAt: p.RecordedAt,
	}
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to record price point: %w", result.Error)
	}
	return nil
}

// List retrieves samples for one station commodity since a point in time,
// oldest first so charts draw left to right
func (r *GormPriceHistoryRepository) List(ctx context.Context, regionID shared.RegionID, stationID shared.StationID, c shared.Commodity, since time.Time, limit int) ([]*trading.PricePoint, error) {
	if limit < 1 {
		limit = 200
	}
	var models []PriceHistoryModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND station_id = ? AND commodity = ? AND recorded_at >= ?",
			regionID.String(), stationID.String(), string(c), since).
		Order("recorded_at").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list price history: %w", result.Error)
	}
	points := make([]*trading.PricePoint, 0, len(models))
	for i := range models {
		m := &models[i]
		points = append(points, &trading.PricePoint{
			RegionID:   shared.RegionID(m.RegionID),
			StationID:  shared.StationID(m.StationID),
			Commodity:  shared.Commodity(m.Commodity),
			UnitBuy:    m.UnitBuy,
			UnitSell:   m.UnitSell,
			Stock:      m.Stock,
			RecordedAt: m.RecordedAt,
		})
	}
	return points, nil
}
