package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// GormCombatRepository implements combat.Repository on a region shard. The
// combatant snapshots ride on the combat row; resolved rounds go to an
// append-only journal keyed by (combat, round index), so replaying a round
// write is harmless.
type GormCombatRepository struct {
	db *gorm.DB
}

// NewGormCombatRepository creates a new GORM combat repository
func NewGormCombatRepository(db *gorm.DB) *GormCombatRepository {
	return &GormCombatRepository{db: db}
}

// combatantDoc is the stored shape of one side's snapshot.
type combatantDoc struct {
	ShipID         string         `json:"ship_id"`
	PlayerID       string         `json:"player_id"`
	HullClass      string         `json:"hull_class"`
	InitiativeBase float64        `json:"initiative_base"`
	CombatRating   int            `json:"combat_rating"`
	ShieldRating   int            `json:"shield_rating"`
	Condition      float64        `json:"condition"`
	Shield         int            `json:"shield"`
	Drones         int            `json:"drones"`
	RetreatScore   float64        `json:"retreat_score"`
	JoinedAt       time.Time      `json:"joined_at"`
	LastCommand    combat.Command `json:"last_command"`
}

// Create persists a new engagement
func (r *GormCombatRepository) Create(ctx context.Context, c *combat.Combat) error {
	model, err := r.combatToModel(c)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create combat: %w", err)
		}
		return r.appendRounds(tx, c)
	})
}

// FindByID retrieves an engagement with its round journal
func (r *GormCombatRepository) FindByID(ctx context.Context, regionID shared.RegionID, id shared.CombatID) (*combat.Combat, error) {
	var model CombatModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND id = ?", regionID.String(), id.String()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("combat")
		}
		return nil, fmt.Errorf("failed to find combat: %w", result.Error)
	}
	return r.loadAggregate(ctx, &model)
}

// FindActiveByShip retrieves the live engagement a ship is locked in, if any
func (r *GormCombatRepository) FindActiveByShip(ctx context.Context, regionID shared.RegionID, shipID shared.ShipID) (*combat.Combat, error) {
	var model CombatModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND (attacker_ship_id = ? OR defender_ship_id = ?) AND status IN ?",
			regionID.String(), shipID.String(), shipID.String(), activeStatuses()).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("combat")
		}
		return nil, fmt.Errorf("failed to find combat: %w", result.Error)
	}
	return r.loadAggregate(ctx, &model)
}

// ListByPlayer retrieves a player's engagement history, newest first
func (r *GormCombatRepository) ListByPlayer(ctx context.Context, regionID shared.RegionID, playerID shared.PlayerID, limit int) ([]*combat.Combat, error) {
	var models []CombatModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND (attacker_player_id = ? OR defender_player_id = ?)",
			regionID.String(), playerID.String(), playerID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list combats: %w", result.Error)
	}
	return r.loadAll(ctx, models)
}

// ListActive retrieves every engagement still resolving in the region.
func (r *GormCombatRepository) ListActive(ctx context.Context, regionID shared.RegionID, limit int) ([]*combat.Combat, error) {
	var models []CombatModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status IN ?", regionID.String(), activeStatuses()).
		Order("created_at").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active combats: %w", result.Error)
	}
	return r.loadAll(ctx, models)
}

// ListDueBefore retrieves active engagements whose open round hit its
// deadline, oldest deadline first.
func (r *GormCombatRepository) ListDueBefore(ctx context.Context, regionID shared.RegionID, cutoff time.Time, limit int) ([]*combat.Combat, error) {
	var models []CombatModel
	result := r.db.WithContext(ctx).
		Where("region_id = ? AND status IN ? AND round_due_at <= ?", regionID.String(), activeStatuses(), cutoff).
		Order("round_due_at").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list due combats: %w", result.Error)
	}
	return r.loadAll(ctx, models)
}

func activeStatuses() []string {
	return []string{string(combat.StatusEngaging), string(combat.StatusResolving)}
}

func (r *GormCombatRepository) loadAll(ctx context.Context, models []CombatModel) ([]*combat.Combat, error) {
	combats := make([]*combat.Combat, 0, len(models))
	for i := range models {
		c, err := r.loadAggregate(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		combats = append(combats, c)
	}
	return combats, nil
}

// Update saves an engagement guarded by its version and appends any newly
// resolved rounds to the journal.
func (r *GormCombatRepository) Update(ctx context.Context, c *combat.Combat) error {
	model, err := r.combatToModel(c)
	if err != nil {
		return err
	}
	model.Version = c.Version + 1
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("version = ?", c.Version).Save(model)
		if result.Error != nil {
			return fmt.Errorf("failed to update combat: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewConflictError("combat changed concurrently")
		}
		return r.appendRounds(tx, c)
	})
	if err != nil {
		return err
	}
	c.Version = model.Version
	return nil
}

// appendRounds journals the aggregate's rounds, skipping those already
// stored.
func (r *GormCombatRepository) appendRounds(tx *gorm.DB, c *combat.Combat) error {
	for i := range c.Rounds {
		round := &c.Rounds[i]
		data, err := json.Marshal(round)
		if err != nil {
			return fmt.Errorf("failed to marshal round: %w", err)
		}
		model := CombatRoundModel{
			CombatID:   c.ID.String(),
			RoundIndex: round.Index,
			Data:       string(data),
			ResolvedAt: round.ResolvedAt,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "combat_id"}, {Name: "round_index"}},
			DoNothing: true,
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("failed to append round: %w", err)
		}
	}
	return nil
}

func (r *GormCombatRepository) loadAggregate(ctx context.Context, model *CombatModel) (*combat.Combat, error) {
	var roundModels []CombatRoundModel
	err := r.db.WithContext(ctx).
		Where("combat_id = ?", model.ID).
		Order("round_index").
		Find(&roundModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rounds: %w", err)
	}
	rounds := make([]combat.Round, 0, len(roundModels))
	for i := range roundModels {
		var round combat.Round
		if err := json.Unmarshal([]byte(roundModels[i].Data), &round); err != nil {
			return nil, fmt.Errorf("corrupt round %d for combat %s: %w", roundModels[i].RoundIndex, model.ID, err)
		}
		rounds = append(rounds, round)
	}
	return r.modelToCombat(model, rounds)
}

func (r *GormCombatRepository) combatToModel(c *combat.Combat) (*CombatModel, error) {
	attacker, err := json.Marshal(r.combatantToDoc(c.Attacker))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attacker: %w", err)
	}
	defender, err := json.Marshal(r.combatantToDoc(c.Defender))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defender: %w", err)
	}
	pendingAtk, err := marshalCommand(c.PendingAttacker)
	if err != nil {
		return nil, err
	}
	pendingDef, err := marshalCommand(c.PendingDefender)
	if err != nil {
		return nil, err
	}
	return &CombatModel{
		ID:               c.ID.String(),
		RegionID:         c.RegionID.String(),
		Sector:           c.Sector,
		AttackerShipID:   c.Attacker.ShipID.String(),
		AttackerPlayerID: c.Attacker.PlayerID.String(),
		DefenderShipID:   c.Defender.ShipID.String(),
		DefenderPlayerID: c.Defender.PlayerID.String(),
		Attacker:         string(attacker),
		Defender:         string(defender),
		Status:           string(c.Status),
		RoundCap:         c.RoundCap,
		RoundDeadline:    int64(c.RoundDeadline),
		RoundDueAt:       c.RoundDueAt,
		PendingAttacker:  pendingAtk,
		PendingDefender:  pendingDef,
		EscapedBy:        string(c.EscapedBy),
		CreatedAt:        c.CreatedAt,
		ResolvedAt:       c.ResolvedAt,
		UpdatedAt:        c.UpdatedAt,
		Version:          c.Version,
	}, nil
}

func marshalCommand(cmd *combat.Command) (string, error) {
	if cmd == nil {
		return "", nil
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal command: %w", err)
	}
	return string(data), nil
}

func unmarshalCommand(data, combatID string) (*combat.Command, error) {
	if data == "" {
		return nil, nil
	}
	var cmd combat.Command
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		return nil, fmt.Errorf("corrupt pending command for combat %s: %w", combatID, err)
	}
	return &cmd, nil
}

func (r *GormCombatRepository) modelToCombat(model *CombatModel, rounds []combat.Round) (*combat.Combat, error) {
	var attackerDoc, defenderDoc combatantDoc
	if err := json.Unmarshal([]byte(model.Attacker), &attackerDoc); err != nil {
		return nil, fmt.Errorf("corrupt attacker for combat %s: %w", model.ID, err)
	}
	if err := json.Unmarshal([]byte(model.Defender), &defenderDoc); err != nil {
		return nil, fmt.Errorf("corrupt defender for combat %s: %w", model.ID, err)
	}
	pendingAtk, err := unmarshalCommand(model.PendingAttacker, model.ID)
	if err != nil {
		return nil, err
	}
	pendingDef, err := unmarshalCommand(model.PendingDefender, model.ID)
	if err != nil {
		return nil, err
	}
	return &combat.Combat{
		ID:              shared.CombatID(model.ID),
		RegionID:        shared.RegionID(model.RegionID),
		Sector:          model.Sector,
		Attacker:        r.docToCombatant(attackerDoc),
		Defender:        r.docToCombatant(defenderDoc),
		Status:          combat.Status(model.Status),
		RoundCap:        model.RoundCap,
		RoundDeadline:   time.Duration(model.RoundDeadline),
		RoundDueAt:      model.RoundDueAt,
		PendingAttacker: pendingAtk,
		PendingDefender: pendingDef,
		EscapedBy:       combat.Side(model.EscapedBy),
		Rounds:          rounds,
		CreatedAt:       model.CreatedAt,
		ResolvedAt:      model.ResolvedAt,
		UpdatedAt:       model.UpdatedAt,
		Version:         model.Version,
	}, nil
}

func (r *GormCombatRepository) combatantToDoc(c combat.Combatant) combatantDoc {
	return combatantDoc{
		ShipID:         c.ShipID.String(),
		PlayerID:       c.PlayerID.String(),
		HullClass:      c.HullClass,
		InitiativeBase: c.InitiativeBase,
		CombatRating:   c.CombatRating,
		ShieldRating:   c.ShieldRating,
		Condition:      c.Condition,
		Shield:         c.Shield,
		Drones:         c.Drones,
		RetreatScore:   c.RetreatScore,
		JoinedAt:       c.JoinedAt,
		LastCommand:    c.LastCommand,
	}
}

func (r *GormCombatRepository) docToCombatant(doc combatantDoc) combat.Combatant {
	return combat.Combatant{
		ShipID:         shared.ShipID(doc.ShipID),
		PlayerID:       shared.PlayerID(doc.PlayerID),
		HullClass:      doc.HullClass,
		InitiativeBase: doc.InitiativeBase,
		CombatRating:   doc.CombatRating,
		ShieldRating:   doc.ShieldRating,
		Condition:      doc.Condition,
		Shield:         doc.Shield,
		Drones:         doc.Drones,
		RetreatScore:   doc.RetreatScore,
		JoinedAt:       doc.JoinedAt,
		LastCommand:    doc.LastCommand,
	}
}
