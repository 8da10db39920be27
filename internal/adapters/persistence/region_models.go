package persistence

import (
	"time"
)

// Region-shard tables. Every regional row carries its region_id even though a
// shard holds exactly one region, so repository queries read the same against
// shared sqlite databases in tests and dedicated databases in production.

// RegionMetaModel represents the region_meta table, a single row naming the
// shard's owner region and its simulation clock.
type RegionMetaModel struct {
	RegionID   string     `gorm:"column:region_id;primaryKey"`
	RegionName string     `gorm:"column:region_name;not null"`
	Seed       int64      `gorm:"column:seed;not null"`
	Tick       int64      `gorm:"column:tick;not null;default:0"`
	LastTickAt *time.Time `gorm:"column:last_tick_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null"`
}

func (RegionMetaModel) TableName() string {
	return "region_meta"
}

// SectorModel represents the sectors table
type SectorModel struct {
	RegionID     string    `gorm:"column:region_id;primaryKey"`
	SectorIndex  int       `gorm:"column:sector_index;primaryKey;autoIncrement:false"`
	Name         string    `gorm:"column:name;not null"`
	Type         string    `gorm:"column:type;not null"`
	Hazard       int       `gorm:"column:hazard;not null"`
	Radiation    int       `gorm:"column:radiation;not null"`
	Security     int       `gorm:"column:security;not null"`
	Development  int       `gorm:"column:development;not null"`
	Traffic      int       `gorm:"column:traffic;not null"`
	District     string    `gorm:"column:district"`
	ControlledBy string    `gorm:"column:controlled_by"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
	Version      int       `gorm:"column:version;not null;default:0"`
}

func (SectorModel) TableName() string {
	return "sectors"
}

// WarpLinkModel represents the warp_links table
type WarpLinkModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RegionID    string    `gorm:"column:region_id;not null;uniqueIndex:idx_warp_edge"`
	FromSector  int       `gorm:"column:from_sector;not null;uniqueIndex:idx_warp_edge"`
	ToSector    int       `gorm:"column:to_sector;not null;uniqueIndex:idx_warp_edge"`
	TurnCost    int       `gorm:"column:turn_cost;not null"`
	Toll        int64     `gorm:"column:toll;not null;default:0"`
	Restriction string    `gorm:"column:restriction"`
	OneWay      bool      `gorm:"column:one_way;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (WarpLinkModel) TableName() string {
	return "warp_links"
}

// PlanetModel represents the planets table
type PlanetModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	RegionID       string     `gorm:"column:region_id;not null"`
	Sector         int        `gorm:"column:sector;not null;index"`
	Name           string     `gorm:"column:name;not null"`
	Type           string     `gorm:"column:type;not null"`
	OwnerID        string     `gorm:"column:owner_id;index"`
	Population     int64      `gorm:"column:population;not null;default:0"`
	Allocation     string     `gorm:"column:allocation;type:text"` // JSON map role -> share
	Stockpile      string     `gorm:"column:stockpile;type:text"`  // JSON map role -> units
	Buildings      string     `gorm:"column:buildings;type:text"`  // JSON map building -> level
	CitadelLevel   int        `gorm:"column:citadel_level;not null;default:0"`
	ShieldLevel    int        `gorm:"column:shield_level;not null;default:0"`
	DronesStation  int        `gorm:"column:drones_stationed;not null;default:0"`
	UnderSiege     bool       `gorm:"column:under_siege;not null;default:false"`
	SiegeProgress  float64    `gorm:"column:siege_progress;not null;default:0"`
	GenesisCreated bool       `gorm:"column:genesis_created;not null;default:false"`
	LastTickIndex  int64      `gorm:"column:last_tick_index;not null;default:0"`
	ColonizedAt    *time.Time `gorm:"column:colonized_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	Version        int        `gorm:"column:version;not null;default:0"`
}

func (PlanetModel) TableName() string {
	return "planets"
}

// StationModel represents the stations table. The full market inventory is a
// JSON document on the row so price moves commit as one compare-and-swap.
type StationModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	RegionID     string    `gorm:"column:region_id;not null"`
	Sector       int       `gorm:"column:sector;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	Class        int       `gorm:"column:class;not null"`
	Services     int       `gorm:"column:services;not null;default:0"`
	FactionID    string    `gorm:"column:faction_id"`
	OwnerID      string    `gorm:"column:owner_id"`
	Status       string    `gorm:"column:status;not null"`
	PairedPlanet int       `gorm:"column:paired_planet;not null;default:0"`
	Inventory    string    `gorm:"column:inventory;type:text"` // JSON map commodity -> slot
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
	Version      int       `gorm:"column:version;not null;default:0"`
}

func (StationModel) TableName() string {
	return "stations"
}

// PriceHistoryModel represents the price_history table. Append-only samples.
type PriceHistoryModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RegionID   string    `gorm:"column:region_id;not null"`
	StationID  string    `gorm:"column:station_id;not null;index:idx_price_station_commodity"`
	Commodity  string    `gorm:"column:commodity;not null;index:idx_price_station_commodity"`
	UnitBuy    int64     `gorm:"column:unit_buy;not null"`
	UnitSell   int64     `gorm:"column:unit_sell;not null"`
	Stock      int       `gorm:"column:stock;not null"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null;index"`
}

func (PriceHistoryModel) TableName() string {
	return "price_history"
}

// TradeRecordModel represents the trade_records table. Append-only ledger.
type TradeRecordModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	RegionID      string    `gorm:"column:region_id;not null"`
	PlayerID      string    `gorm:"column:player_id;not null;index"`
	StationID     string    `gorm:"column:station_id;not null;index"`
	Commodity     string    `gorm:"column:commodity;not null"`
	Direction     string    `gorm:"column:direction;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	UnitPrice     int64     `gorm:"column:unit_price;not null"`
	Total         int64     `gorm:"column:total;not null"`
	BalanceBefore int64     `gorm:"column:balance_before;not null"`
	BalanceAfter  int64     `gorm:"column:balance_after;not null"`
	RecordedAt    time.Time `gorm:"column:recorded_at;not null;index"`
}

func (TradeRecordModel) TableName() string {
	return "trade_records"
}

// PriceAlertModel represents the price_alerts table
type PriceAlertModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	RegionID    string     `gorm:"column:region_id;not null"`
	PlayerID    string     `gorm:"column:player_id;not null;index"`
	StationID   string     `gorm:"column:station_id;not null;index"`
	Commodity   string     `gorm:"column:commodity;not null"`
	Direction   string     `gorm:"column:direction;not null"`
	Threshold   int64      `gorm:"column:threshold;not null"`
	Triggered   bool       `gorm:"column:triggered;not null;default:false"`
	TriggeredAt *time.Time `gorm:"column:triggered_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
}

func (PriceAlertModel) TableName() string {
	return "price_alerts"
}

// MarketContractModel represents the market_contracts table
type MarketContractModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	RegionID    string     `gorm:"column:region_id;not null"`
	PlayerID    string     `gorm:"column:player_id;not null;index"`
	StationID   string     `gorm:"column:station_id;not null;index"`
	Commodity   string     `gorm:"column:commodity;not null"`
	Side        string     `gorm:"column:side;not null"`
	Quantity    int        `gorm:"column:quantity;not null"`
	StrikePrice int64      `gorm:"column:strike_price;not null"`
	Status      string     `gorm:"column:status;not null;index"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;not null;index"`
	FilledAt    *time.Time `gorm:"column:filled_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
	Version     int        `gorm:"column:version;not null;default:0"`
}

func (MarketContractModel) TableName() string {
	return "market_contracts"
}

// ShipModel represents the ships table
type ShipModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	OwnerID         string     `gorm:"column:owner_id;not null;index"`
	TeamID          string     `gorm:"column:team_id;index"`
	RegionID        string     `gorm:"column:region_id;not null"`
	Sector          int        `gorm:"column:sector;not null;index"`
	Class           string     `gorm:"column:class;not null"`
	Name            string     `gorm:"column:name;not null"`
	Condition       float64    `gorm:"column:condition;not null"`
	Shield          int        `gorm:"column:shield;not null"`
	Fuel            int        `gorm:"column:fuel;not null"`
	Cargo           string     `gorm:"column:cargo;type:text"` // JSON manifest
	DronesAboard    int        `gorm:"column:drones_aboard;not null;default:0"`
	Mods            string     `gorm:"column:mods;type:text"` // JSON array
	Insurance       string     `gorm:"column:insurance"`
	MaintenanceDebt int64      `gorm:"column:maintenance_debt;not null;default:0"`
	LastServiceAt   time.Time  `gorm:"column:last_service_at;not null"`
	AcquiredAt      time.Time  `gorm:"column:acquired_at;not null"`
	Destroyed       bool       `gorm:"column:destroyed;not null;default:false"`
	DestroyedAt     *time.Time `gorm:"column:destroyed_at"`
	ReservedBy      string     `gorm:"column:reserved_by;index"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
	Version         int        `gorm:"column:version;not null;default:0"`
}

func (ShipModel) TableName() string {
	return "ships"
}

// DroneDeploymentModel represents the drone_deployments table
type DroneDeploymentModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	RegionID   string    `gorm:"column:region_id;not null"`
	OwnerID    string    `gorm:"column:owner_id;not null;index"`
	TeamID     string    `gorm:"column:team_id"`
	Kind       string    `gorm:"column:kind;not null"`
	Sector     int       `gorm:"column:sector;not null;index"`
	PinnedToID string    `gorm:"column:pinned_to_id"`
	Count      int       `gorm:"column:count;not null"`
	Behavior   string    `gorm:"column:behavior;type:text"` // JSON
	DeployedAt time.Time `gorm:"column:deployed_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
	Version    int       `gorm:"column:version;not null;default:0"`
}

func (DroneDeploymentModel) TableName() string {
	return "drone_deployments"
}

// CombatModel represents the combats table. Combatant documents are JSON;
// ship and player ids are lifted into columns for the active-combat lookups.
type CombatModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	RegionID         string     `gorm:"column:region_id;not null"`
	Sector           int        `gorm:"column:sector;not null;index"`
	AttackerShipID   string     `gorm:"column:attacker_ship_id;not null;index"`
	AttackerPlayerID string     `gorm:"column:attacker_player_id;not null;index"`
	DefenderShipID   string     `gorm:"column:defender_ship_id;not null;index"`
	DefenderPlayerID string     `gorm:"column:defender_player_id;index"`
	Attacker         string     `gorm:"column:attacker;type:text;not null"` // JSON combatant
	Defender         string     `gorm:"column:defender;type:text;not null"` // JSON combatant
	Status           string     `gorm:"column:status;not null;index"`
	RoundCap         int        `gorm:"column:round_cap;not null"`
	RoundDeadline    int64      `gorm:"column:round_deadline_ns;not null"`
	RoundDueAt       time.Time  `gorm:"column:round_due_at;not null;index"`
	PendingAttacker  string     `gorm:"column:pending_attacker;type:text"` // JSON command, empty when none
	PendingDefender  string     `gorm:"column:pending_defender;type:text"`
	EscapedBy        string     `gorm:"column:escaped_by"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
	Version          int        `gorm:"column:version;not null;default:0"`
}

func (CombatModel) TableName() string {
	return "combats"
}

// CombatRoundModel represents the combat_rounds table. Append-only round
// journal keyed by (combat, round index).
type CombatRoundModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CombatID   string    `gorm:"column:combat_id;not null;uniqueIndex:idx_combat_round"`
	RoundIndex int       `gorm:"column:round_index;not null;uniqueIndex:idx_combat_round"`
	Data       string    `gorm:"column:data;type:text;not null"` // JSON round outcome
	ResolvedAt time.Time `gorm:"column:resolved_at;not null"`
}

func (CombatRoundModel) TableName() string {
	return "combat_rounds"
}

// MessageModel represents the messages table
type MessageModel struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	RegionID             string     `gorm:"column:region_id;not null"`
	AuthorID             string     `gorm:"column:author_id;not null;index"`
	AudienceKind         string     `gorm:"column:audience_kind;not null"`
	Recipients           string     `gorm:"column:recipients;type:text"` // JSON array, direct only
	TeamID               string     `gorm:"column:team_id;index"`
	Sector               int        `gorm:"column:sector;not null;default:0"`
	Subject              string     `gorm:"column:subject;not null"`
	Body                 string     `gorm:"column:body;type:text;not null"`
	Priority             string     `gorm:"column:priority;not null"`
	ParentID             string     `gorm:"column:parent_id;index"`
	Attachments          string     `gorm:"column:attachments;type:text"` // JSON array
	Coordinates          string     `gorm:"column:coordinates;type:text"` // JSON, optional
	ExpiresAt            *time.Time `gorm:"column:expires_at"`
	ConfirmationRequired bool       `gorm:"column:confirmation_required;not null;default:false"`
	SentAt               time.Time  `gorm:"column:sent_at;not null;index"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// MessageReceiptModel represents the message_receipts table, one row per
// recipient of a message.
type MessageReceiptModel struct {
	MessageID   string     `gorm:"column:message_id;primaryKey"`
	RecipientID string     `gorm:"column:recipient_id;primaryKey"`
	ReadAt      *time.Time `gorm:"column:read_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	DeletedAt   *time.Time `gorm:"column:deleted_at"`
}

func (MessageReceiptModel) TableName() string {
	return "message_receipts"
}

// TeamModel represents the teams table
type TeamModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	RegionID   string    `gorm:"column:region_id;not null"`
	Name       string    `gorm:"column:name;unique;not null"`
	Tag        string    `gorm:"column:tag;unique;not null"`
	Type       string    `gorm:"column:type;not null"`
	JoinPolicy string    `gorm:"column:join_policy;not null"`
	LeaderID   string    `gorm:"column:leader_id;not null"`
	Treasury   int64     `gorm:"column:treasury;not null;default:0"`
	MemberCap  int       `gorm:"column:member_cap;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
	Version    int       `gorm:"column:version;not null;default:0"`
}

func (TeamModel) TableName() string {
	return "teams"
}

// TeamMemberModel represents the team_members table
type TeamMemberModel struct {
	TeamID    string    `gorm:"column:team_id;primaryKey"`
	PlayerID  string    `gorm:"column:player_id;primaryKey"`
	Role      string    `gorm:"column:role;not null"`
	JoinedAt  time.Time `gorm:"column:joined_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (TeamMemberModel) TableName() string {
	return "team_members"
}

// TeamInvitationModel represents the team_invitations table
type TeamInvitationModel struct {
	TeamID    string    `gorm:"column:team_id;primaryKey"`
	PlayerID  string    `gorm:"column:player_id;primaryKey"`
	InvitedBy string    `gorm:"column:invited_by;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

func (TeamInvitationModel) TableName() string {
	return "team_invitations"
}

// PolicyModel represents the policies table
type PolicyModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	RegionID       string     `gorm:"column:region_id;not null"`
	ProposedBy     string     `gorm:"column:proposed_by;not null"`
	Title          string     `gorm:"column:title;not null"`
	Proposal       string     `gorm:"column:proposal;type:text;not null"`
	Status         string     `gorm:"column:status;not null;index"`
	YesWeight      float64    `gorm:"column:yes_weight;not null;default:0"`
	NoWeight       float64    `gorm:"column:no_weight;not null;default:0"`
	VotingClosesAt time.Time  `gorm:"column:voting_closes_at;not null;index"`
	DecidedAt      *time.Time `gorm:"column:decided_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	Version        int        `gorm:"column:version;not null;default:0"`
}

func (PolicyModel) TableName() string {
	return "policies"
}

// ElectionModel represents the elections table
type ElectionModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	RegionID       string     `gorm:"column:region_id;not null"`
	Position       string     `gorm:"column:position;not null"`
	Candidates     string     `gorm:"column:candidates;type:text"` // JSON array
	Tallies        string     `gorm:"column:tallies;type:text"`    // JSON map candidate -> weight
	Status         string     `gorm:"column:status;not null;index"`
	WinnerID       string     `gorm:"column:winner_id"`
	VotingOpensAt  time.Time  `gorm:"column:voting_opens_at;not null"`
	VotingClosesAt time.Time  `gorm:"column:voting_closes_at;not null;index"`
	ClosedAt       *time.Time `gorm:"column:closed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	Version        int        `gorm:"column:version;not null;default:0"`
}

func (ElectionModel) TableName() string {
	return "elections"
}

// ElectionBallotModel represents the election_ballots table. The composite
// key enforces one ballot per voter per election.
type ElectionBallotModel struct {
	ElectionID string    `gorm:"column:election_id;primaryKey"`
	VoterID    string    `gorm:"column:voter_id;primaryKey"`
	Candidate  string    `gorm:"column:candidate;not null"`
	Weight     float64   `gorm:"column:weight;not null"`
	CastAt     time.Time `gorm:"column:cast_at;not null"`
}

func (ElectionBallotModel) TableName() string {
	return "election_ballots"
}

// PolicyVoteModel represents the policy_votes table. The composite key
// enforces one vote per voter per policy.
type PolicyVoteModel struct {
	PolicyID string    `gorm:"column:policy_id;primaryKey"`
	VoterID  string    `gorm:"column:voter_id;primaryKey"`
	Approve  bool      `gorm:"column:approve;not null"`
	Weight   float64   `gorm:"column:weight;not null"`
	CastAt   time.Time `gorm:"column:cast_at;not null"`
}

func (PolicyVoteModel) TableName() string {
	return "policy_votes"
}

// MissionModel represents the faction_missions table
type MissionModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	RegionID         string     `gorm:"column:region_id;not null"`
	FactionID        string     `gorm:"column:faction_id;not null;index"`
	Type             string     `gorm:"column:type;not null"`
	TargetSector     int        `gorm:"column:target_sector;not null;default:0"`
	Commodity        string     `gorm:"column:commodity"`
	Quantity         int        `gorm:"column:quantity;not null;default:0"`
	TargetShipID     string     `gorm:"column:target_ship_id"`
	RewardCredits    int64      `gorm:"column:reward_credits;not null"`
	RewardReputation int        `gorm:"column:reward_reputation;not null"`
	MinTier          string     `gorm:"column:min_tier;not null"`
	AcceptedBy       string     `gorm:"column:accepted_by;index"`
	TeamID           string     `gorm:"column:team_id"`
	Status           string     `gorm:"column:status;not null;index"`
	OfferedAt        time.Time  `gorm:"column:offered_at;not null"`
	ExpiresAt        time.Time  `gorm:"column:expires_at;not null;index"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
	Version          int        `gorm:"column:version;not null;default:0"`
}

func (MissionModel) TableName() string {
	return "faction_missions"
}

// FirstLoginSessionModel represents the first_login_sessions table
type FirstLoginSessionModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	PlayerID     string     `gorm:"column:player_id;not null;index"`
	State        string     `gorm:"column:state;not null;index"`
	Seed         int64      `gorm:"column:seed;not null"`
	OfferedHulls string     `gorm:"column:offered_hulls;type:text"` // JSON array
	ClaimedHull  string     `gorm:"column:claimed_hull"`
	Exchanges    string     `gorm:"column:exchanges;type:text"` // JSON array
	Flagged      bool       `gorm:"column:flagged;not null;default:false"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	ResolvedAt   *time.Time `gorm:"column:resolved_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
	Version      int        `gorm:"column:version;not null;default:0"`
}

func (FirstLoginSessionModel) TableName() string {
	return "first_login_sessions"
}

// BountyModel represents the bounties table
type BountyModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	RegionID  string     `gorm:"column:region_id;not null"`
	PostedBy  string     `gorm:"column:posted_by;not null;index"`
	TargetID  string     `gorm:"column:target_id;not null;index"`
	Amount    int64      `gorm:"column:amount;not null"`
	Reason    string     `gorm:"column:reason"`
	Status    string     `gorm:"column:status;not null;index"`
	ClaimedBy string     `gorm:"column:claimed_by"`
	ClaimedAt *time.Time `gorm:"column:claimed_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
	Version   int        `gorm:"column:version;not null;default:0"`
}

func (BountyModel) TableName() string {
	return "bounties"
}
