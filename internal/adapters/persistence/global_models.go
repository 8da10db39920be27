package persistence

import (
	"time"
)

// Global-shard tables: identity, federation registry, cross-region protocol
// state and the durable event log. Regional gameplay tables live in
// region_models.go.

// AccountModel represents the accounts table
type AccountModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	Handle         string     `gorm:"column:handle;unique;not null"`
	Email          string     `gorm:"column:email;index"`
	CredentialHash string     `gorm:"column:credential_hash"`
	Role           string     `gorm:"column:role;not null"`
	MFAEnabled     bool       `gorm:"column:mfa_enabled;not null;default:false"`
	TOTPSecret     string     `gorm:"column:totp_secret"`
	BackupCodes    string     `gorm:"column:backup_codes;type:text"` // JSON array of hashes
	Disabled       bool       `gorm:"column:disabled;not null;default:false"`
	DeletedAt      *time.Time `gorm:"column:deleted_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	Version        int        `gorm:"column:version;not null;default:0"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// OAuthIdentityModel represents the oauth_identities table. One row per
// (provider, external account), at most one per provider per account.
type OAuthIdentityModel struct {
	Provider          string    `gorm:"column:provider;primaryKey"`
	ProviderAccountID string    `gorm:"column:provider_account_id;primaryKey"`
	AccountID         string    `gorm:"column:account_id;not null;index"`
	DisplayName       string    `gorm:"column:display_name"`
	BoundAt           time.Time `gorm:"column:bound_at;not null"`
}

func (OAuthIdentityModel) TableName() string {
	return "oauth_identities"
}

// RefreshTokenModel represents the refresh_tokens table. Rows form rotation
// chains; only token hashes are stored.
type RefreshTokenModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	AccountID         string     `gorm:"column:account_id;not null;index"`
	ChainID           string     `gorm:"column:chain_id;not null;index"`
	RefreshHash       string     `gorm:"column:refresh_hash;unique;not null"`
	DeviceFingerprint string     `gorm:"column:device_fingerprint"`
	IssuedAt          time.Time  `gorm:"column:issued_at;not null"`
	ExpiresAt         time.Time  `gorm:"column:expires_at;not null;index"`
	UsedAt            *time.Time `gorm:"column:used_at"`
	RevokedAt         *time.Time `gorm:"column:revoked_at"`
}

func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}

// PlayerModel represents the players table. Personas are global; the current
// region column routes gameplay calls to the owning shard.
type PlayerModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	AccountID     string     `gorm:"column:account_id;unique;not null"`
	Name          string     `gorm:"column:name;unique;not null"`
	CurrentRegion string     `gorm:"column:current_region;not null;index"`
	CurrentSector int        `gorm:"column:current_sector;not null"`
	CurrentShipID string     `gorm:"column:current_ship_id"`
	Credits       int64      `gorm:"column:credits;not null"`
	TeamID        string     `gorm:"column:team_id"`
	Onboarded     bool       `gorm:"column:onboarded;not null;default:false"`
	MutedUntil    *time.Time `gorm:"column:muted_until"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null"`
	Version       int        `gorm:"column:version;not null;default:0"`
}

func (PlayerModel) TableName() string {
	return "players"
}

// RegionModel represents the regions table
type RegionModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	Name             string     `gorm:"column:name;unique;not null"`
	DisplayName      string     `gorm:"column:display_name;not null"`
	OwnerAccountID   string     `gorm:"column:owner_account_id;index"`
	Status           string     `gorm:"column:status;not null;index"`
	Governance       string     `gorm:"column:governance;not null"`
	GovernorPlayerID string     `gorm:"column:governor_player_id"`
	TaxRate          float64    `gorm:"column:tax_rate;not null"`
	VotingThreshold  float64    `gorm:"column:voting_threshold;not null"`
	ElectionCadence  int        `gorm:"column:election_cadence;not null"`
	TradeBonuses     string     `gorm:"column:trade_bonuses;type:text"` // JSON map
	Culture          string     `gorm:"column:culture;type:text"`      // opaque JSON document
	Specialization   string     `gorm:"column:specialization;not null"`
	StartingShip     string     `gorm:"column:starting_ship"`
	SectorCount      int        `gorm:"column:sector_count;not null"`
	Seed             int64      `gorm:"column:seed;not null"`
	NexusGateSector  int        `gorm:"column:nexus_gate_sector;not null;default:0"`
	SubscriptionID   string     `gorm:"column:subscription_id;index"`
	EvacuationAt     *time.Time `gorm:"column:evacuation_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
	Version          int        `gorm:"column:version;not null;default:0"`
}

func (RegionModel) TableName() string {
	return "regions"
}

// MembershipModel represents the memberships table, one row per
// (player, region) pair.
type MembershipModel struct {
	PlayerID     string    `gorm:"column:player_id;primaryKey"`
	RegionID     string    `gorm:"column:region_id;primaryKey"`
	Type         string    `gorm:"column:type;not null"`
	Reputation   int       `gorm:"column:reputation;not null;default:0"`
	VotingWeight float64   `gorm:"column:voting_weight;not null;default:0"`
	VisitCount   int       `gorm:"column:visit_count;not null;default:0"`
	FirstVisitAt time.Time `gorm:"column:first_visit_at;not null"`
	LastVisitAt  time.Time `gorm:"column:last_visit_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
	Version      int       `gorm:"column:version;not null;default:0"`
}

func (MembershipModel) TableName() string {
	return "memberships"
}

// ReputationModel represents the faction_reputations table
type ReputationModel struct {
	PlayerID  string    `gorm:"column:player_id;primaryKey"`
	FactionID string    `gorm:"column:faction_id;primaryKey"`
	Score     int       `gorm:"column:score;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
	Version   int       `gorm:"column:version;not null;default:0"`
}

func (ReputationModel) TableName() string {
	return "faction_reputations"
}

// TravelModel represents the travels table, the idempotency anchor of the
// two-step inter-region transfer protocol.
type TravelModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	PlayerID          string     `gorm:"column:player_id;not null;index"`
	SourceRegion      string     `gorm:"column:source_region;not null"`
	DestinationRegion string     `gorm:"column:destination_region;not null"`
	Method            string     `gorm:"column:method;not null"`
	Cost              int64      `gorm:"column:cost;not null"`
	Manifest          string     `gorm:"column:manifest;type:text"` // JSON
	Status            string     `gorm:"column:status;not null;index"`
	FailureReason     string     `gorm:"column:failure_reason"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;index"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null"`
	Version           int        `gorm:"column:version;not null;default:0"`
}

func (TravelModel) TableName() string {
	return "travels"
}

// TreatyModel represents the treaties table
type TreatyModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	RegionA      string     `gorm:"column:region_a;not null;index"`
	RegionB      string     `gorm:"column:region_b;not null;index"`
	Type         string     `gorm:"column:type;not null"`
	Terms        string     `gorm:"column:terms;type:text"` // JSON
	Status       string     `gorm:"column:status;not null;index"`
	SignatoryA   string     `gorm:"column:signatory_a"`
	SignatoryB   string     `gorm:"column:signatory_b"`
	SignedAtA    time.Time  `gorm:"column:signed_at_a;not null"`
	SignedAtB    *time.Time `gorm:"column:signed_at_b"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	TerminatedBy string     `gorm:"column:terminated_by"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
	Version      int        `gorm:"column:version;not null;default:0"`
}

func (TreatyModel) TableName() string {
	return "treaties"
}

// AuditEntryModel represents the audit_entries table. Append-only.
type AuditEntryModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Category       string    `gorm:"column:category;not null;index:idx_audit_category_time"`
	Action         string    `gorm:"column:action;not null"`
	ActorAccountID string    `gorm:"column:actor_account_id;index"`
	ActorIP        string    `gorm:"column:actor_ip"`
	Subject        string    `gorm:"column:subject"`
	RegionName     string    `gorm:"column:region_name"`
	RequestID      string    `gorm:"column:request_id"`
	Detail         string    `gorm:"column:detail;type:text"` // JSON
	OccurredAt     time.Time `gorm:"column:occurred_at;not null;index:idx_audit_category_time"`
}

func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// DurableEventModel represents the durable_events table. One row per
// (event, scope); the autoincrement id is the replay cursor, so per-scope
// order follows emit order.
type DurableEventModel struct {
	Seq        int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	Scope      string    `gorm:"column:scope;not null;index"`
	EventType  string    `gorm:"column:event_type;not null"`
	Payload    string    `gorm:"column:payload;type:text;not null"` // JSON
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
}

func (DurableEventModel) TableName() string {
	return "durable_events"
}

// EventCursorModel represents the event_cursors table: the last sequence an
// account acknowledged per scope, used to resume sockets that lost their
// cursor and to prune the log.
type EventCursorModel struct {
	AccountID string    `gorm:"column:account_id;primaryKey"`
	Scope     string    `gorm:"column:scope;primaryKey"`
	LastSeq   int64     `gorm:"column:last_seq;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (EventCursorModel) TableName() string {
	return "event_cursors"
}

// SubscriptionModel represents the subscriptions table linking billing state
// to region entitlements.
type SubscriptionModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	AccountID        string     `gorm:"column:account_id;not null;index"`
	Provider         string     `gorm:"column:provider;not null"`
	ExternalID       string     `gorm:"column:external_id;unique;not null"`
	Plan             string     `gorm:"column:plan;not null"`
	Status           string     `gorm:"column:status;not null;index"`
	RegionName       string     `gorm:"column:region_name;index"`
	CurrentPeriodEnd *time.Time `gorm:"column:current_period_end"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
	Version          int        `gorm:"column:version;not null;default:0"`
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// WebhookDeliveryModel represents the webhook_deliveries table. The delivery
// id makes webhook processing idempotent under provider retries.
type WebhookDeliveryModel struct {
	DeliveryID  string    `gorm:"column:delivery_id;primaryKey"`
	Provider    string    `gorm:"column:provider;not null"`
	EventType   string    `gorm:"column:event_type;not null"`
	Outcome     string    `gorm:"column:outcome;not null"`
	Note        string    `gorm:"column:note"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null;index"`
}

func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// SchedulerLeaseModel represents the scheduler_leases table. Present in both
// shard kinds: regional shards hold their tick lease, the global shard holds
// the sweep lease.
type SchedulerLeaseModel struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Holder    string    `gorm:"column:holder;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}

func (SchedulerLeaseModel) TableName() string {
	return "scheduler_leases"
}
