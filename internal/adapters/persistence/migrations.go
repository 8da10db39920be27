package persistence

import (
	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/infrastructure/database"
)

// GlobalMigrations builds the global shard's migration list.
func GlobalMigrations() []database.Migration {
	return []database.Migration{
		{
			ID: "0001_init",
			Migrate: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&AccountModel{},
					&OAuthIdentityModel{},
					&RefreshTokenModel{},
					&PlayerModel{},
					&RegionModel{},
					&MembershipModel{},
					&ReputationModel{},
					&TravelModel{},
					&TreatyModel{},
					&AuditEntryModel{},
					&DurableEventModel{},
					&EventCursorModel{},
					&SubscriptionModel{},
					&WebhookDeliveryModel{},
					&SchedulerLeaseModel{},
				)
			},
		},
	}
}

// RegionMigrations builds a regional shard's migration list.
func RegionMigrations() []database.Migration {
	return []database.Migration{
		{
			ID: "0001_init",
			Migrate: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&RegionMetaModel{},
					&SectorModel{},
					&WarpLinkModel{},
					&PlanetModel{},
					&StationModel{},
					&PriceHistoryModel{},
					&TradeRecordModel{},
					&PriceAlertModel{},
					&MarketContractModel{},
					&ShipModel{},
					&DroneDeploymentModel{},
					&CombatModel{},
					&CombatRoundModel{},
					&MessageModel{},
					&MessageReceiptModel{},
					&TeamModel{},
					&TeamMemberModel{},
					&TeamInvitationModel{},
					&PolicyModel{},
					&ElectionModel{},
					&ElectionBallotModel{},
					&PolicyVoteModel{},
					&MissionModel{},
					&FirstLoginSessionModel{},
					&BountyModel{},
					&SchedulerLeaseModel{},
				)
			},
		},
	}
}
