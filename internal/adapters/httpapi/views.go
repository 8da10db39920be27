package httpapi

import (
	"time"

	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/bounty"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/firstlogin"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/message"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/sector"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/station"
	"github.com/sectorwars/gameserver/internal/domain/subscription"
	"github.com/sectorwars/gameserver/internal/domain/team"
	"github.com/sectorwars/gameserver/internal/domain/trading"
	"github.com/sectorwars/gameserver/internal/domain/travel"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
)

// View structs pin the wire contract. Domain entities stay tag-free; the
// snake_case shaping lives here so internal refactors never leak onto the
// wire.

type playerView struct {
	ID            shared.PlayerID `json:"id"`
	Name          string          `json:"name"`
	Region        string          `json:"region"`
	Sector        int             `json:"sector"`
	ShipID        shared.ShipID   `json:"ship_id,omitempty"`
	Credits       shared.Credits  `json:"credits"`
	TeamID        shared.TeamID   `json:"team_id,omitempty"`
	Onboarded     bool            `json:"onboarded"`
	MutedUntil    *time.Time      `json:"muted_until,omitempty"`
}

func viewPlayer(p *player.Player) playerView {
	return playerView{
		ID:         p.ID,
		Name:       p.Name,
		Region:     p.CurrentRegion,
		Sector:     p.CurrentSector,
		ShipID:     p.CurrentShipID,
		Credits:    p.Credits,
		TeamID:     p.TeamID,
		Onboarded:  p.Onboarded,
		MutedUntil: p.MutedUntil,
	}
}

type shipView struct {
	ID        shared.ShipID          `json:"id"`
	Name      string                 `json:"name"`
	Class     ship.HullClass         `json:"class"`
	Sector    int                    `json:"sector"`
	Condition float64                `json:"condition"`
	Shield    int                    `json:"shield"`
	Fuel      int                    `json:"fuel"`
	Cargo     map[shared.Commodity]int `json:"cargo"`
	CargoCap  int                    `json:"cargo_capacity"`
	Drones    int                    `json:"drones_aboard"`
	Destroyed bool                   `json:"destroyed"`
}

func viewShip(s *ship.Ship) shipView {
	v := shipView{
		ID:        s.ID,
		Name:      s.Name,
		Class:     s.Class,
		Sector:    s.Sector,
		Condition: s.Condition,
		Shield:    s.Shield,
		Fuel:      s.Fuel,
		Drones:    s.DronesAboard,
		Destroyed: s.Destroyed,
	}
	if s.Cargo != nil {
		v.Cargo = s.Cargo.Items
		v.CargoCap = s.Cargo.Capacity
	}
	return v
}

type sectorView struct {
	Index        int         `json:"index"`
	Name         string      `json:"name"`
	Type         sector.Type `json:"type"`
	Hazard       int         `json:"hazard"`
	Radiation    int         `json:"radiation"`
	Security     int         `json:"security"`
	Development  int         `json:"development"`
	Traffic      int         `json:"traffic"`
	District     string      `json:"district,omitempty"`
	ControlledBy string      `json:"controlled_by,omitempty"`
}

func viewSector(s *sector.Sector) sectorView {
	return sectorView{
		Index:        s.Index,
		Name:         s.Name,
		Type:         s.Type,
		Hazard:       s.Hazard,
		Radiation:    s.Radiation,
		Security:     s.Security,
		Development:  s.Development,
		Traffic:      s.Traffic,
		District:     s.District,
		ControlledBy: s.ControlledBy,
	}
}

func viewSectors(in []*sector.Sector) []sectorView {
	out := make([]sectorView, 0, len(in))
	for _, s := range in {
		out = append(out, viewSector(s))
	}
	return out
}

type warpLinkView struct {
	From        int                `json:"from"`
	To          int                `json:"to"`
	TurnCost    int                `json:"turn_cost"`
	Toll        int64              `json:"toll"`
	Restriction sector.Restriction `json:"restriction"`
	OneWay      bool               `json:"one_way"`
}

func viewLinks(in []*sector.WarpLink) []warpLinkView {
	out := make([]warpLinkView, 0, len(in))
	for _, l := range in {
		out = append(out, warpLinkView{
			From:        l.FromSector,
			To:          l.ToSector,
			TurnCost:    l.TurnCost,
			Toll:        l.Toll,
			Restriction: l.Restriction,
			OneWay:      l.OneWay,
		})
	}
	return out
}

type teamView struct {
	ID         shared.TeamID   `json:"id"`
	Name       string          `json:"name"`
	Tag        string          `json:"tag"`
	Type       team.Type       `json:"type"`
	JoinPolicy team.JoinPolicy `json:"join_policy"`
	LeaderID   shared.PlayerID `json:"leader_id"`
	Treasury   shared.Credits  `json:"treasury"`
	MemberCap  int             `json:"member_cap"`
	CreatedAt  time.Time       `json:"created_at"`
}

func viewTeam(t *team.Team) teamView {
	return teamView{
		ID:         t.ID,
		Name:       t.Name,
		Tag:        t.Tag,
		Type:       t.Type,
		JoinPolicy: t.JoinPolicy,
		LeaderID:   t.LeaderID,
		Treasury:   t.Treasury,
		MemberCap:  t.MemberCap,
		CreatedAt:  t.CreatedAt,
	}
}

func viewTeams(in []*team.Team) []teamView {
	out := make([]teamView, 0, len(in))
	for _, t := range in {
		out = append(out, viewTeam(t))
	}
	return out
}

type memberView struct {
	PlayerID shared.PlayerID `json:"player_id"`
	Role     team.Role       `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

func viewMembers(in []*team.Member) []memberView {
	out := make([]memberView, 0, len(in))
	for _, m := range in {
		out = append(out, memberView{PlayerID: m.PlayerID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out
}

type messageView struct {
	ID                   shared.MessageID     `json:"id"`
	AuthorID             shared.PlayerID      `json:"author_id"`
	Kind                 message.AudienceKind `json:"kind"`
	Subject              string               `json:"subject"`
	Body                 string               `json:"body"`
	Priority             message.Priority     `json:"priority"`
	ParentID             shared.MessageID     `json:"parent_id,omitempty"`
	Attachments          []message.Attachment `json:"attachments,omitempty"`
	Coordinates          *message.Coordinates `json:"coordinates,omitempty"`
	ExpiresAt            *time.Time           `json:"expires_at,omitempty"`
	ConfirmationRequired bool                 `json:"confirmation_required"`
	SentAt               time.Time            `json:"sent_at"`
}

func viewMessage(m *message.Message) messageView {
	return messageView{
		ID:                   m.ID,
		AuthorID:             m.AuthorID,
		Kind:                 m.Audience.Kind,
		Subject:              m.Subject,
		Body:                 m.Body,
		Priority:             m.Priority,
		ParentID:             m.ParentID,
		Attachments:          m.Attachments,
		Coordinates:          m.Coordinates,
		ExpiresAt:            m.ExpiresAt,
		ConfirmationRequired: m.ConfirmationRequired,
		SentAt:               m.SentAt,
	}
}

func viewMessages(in []*message.Message) []messageView {
	out := make([]messageView, 0, len(in))
	for _, m := range in {
		out = append(out, viewMessage(m))
	}
	return out
}

type combatantView struct {
	ShipID    shared.ShipID   `json:"ship_id"`
	PlayerID  shared.PlayerID `json:"player_id"`
	HullClass string          `json:"hull_class"`
	Condition float64         `json:"condition"`
	Shield    int             `json:"shield"`
	Drones    int             `json:"drones"`
}

func viewCombatant(c combat.Combatant) combatantView {
	return combatantView{
		ShipID:    c.ShipID,
		PlayerID:  c.PlayerID,
		HullClass: c.HullClass,
		Condition: c.Condition,
		Shield:    c.Shield,
		Drones:    c.Drones,
	}
}

type combatView struct {
	ID         shared.CombatID `json:"id"`
	Sector     int             `json:"sector"`
	Attacker   combatantView   `json:"attacker"`
	Defender   combatantView   `json:"defender"`
	Status     combat.Status   `json:"status"`
	Round      int             `json:"round"`
	RoundDueAt time.Time       `json:"round_due_at"`
	EscapedBy  combat.Side     `json:"escaped_by,omitempty"`
	Rounds     []combat.Round  `json:"rounds"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

func viewCombat(c *combat.Combat) combatView {
	return combatView{
		ID:         c.ID,
		Sector:     c.Sector,
		Attacker:   viewCombatant(c.Attacker),
		Defender:   viewCombatant(c.Defender),
		Status:     c.Status,
		Round:      len(c.Rounds),
		RoundDueAt: c.RoundDueAt,
		EscapedBy:  c.EscapedBy,
		Rounds:     c.Rounds,
		ResolvedAt: c.ResolvedAt,
	}
}

func viewCombats(in []*combat.Combat) []combatView {
	out := make([]combatView, 0, len(in))
	for _, c := range in {
		out = append(out, viewCombat(c))
	}
	return out
}

type deploymentView struct {
	ID         shared.DroneDeploymentID `json:"id"`
	OwnerID    shared.PlayerID          `json:"owner_id"`
	Kind       drone.PinKind            `json:"kind"`
	Sector     int                      `json:"sector"`
	PinnedToID string                   `json:"pinned_to_id,omitempty"`
	Count      int                      `json:"count"`
	Behavior   drone.Behavior           `json:"behavior"`
	DeployedAt time.Time                `json:"deployed_at"`
}

func viewDeployment(d *drone.Deployment) deploymentView {
	return deploymentView{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		Kind:       d.Kind,
		Sector:     d.Sector,
		PinnedToID: d.PinnedToID,
		Count:      d.Count,
		Behavior:   d.Behavior,
		DeployedAt: d.DeployedAt,
	}
}

func viewDeployments(in []*drone.Deployment) []deploymentView {
	out := make([]deploymentView, 0, len(in))
	for _, d := range in {
		out = append(out, viewDeployment(d))
	}
	return out
}

type planetView struct {
	ID            shared.PlanetID         `json:"id"`
	Sector        int                     `json:"sector"`
	Name          string                  `json:"name"`
	Type          planet.Type             `json:"type"`
	OwnerID       shared.PlayerID         `json:"owner_id,omitempty"`
	Population    int64                   `json:"population"`
	Allocation    map[planet.Role]float64 `json:"allocation,omitempty"`
	Stockpile     map[planet.Role]int64   `json:"stockpile,omitempty"`
	Buildings     map[planet.Building]int `json:"buildings,omitempty"`
	CitadelLevel  int                     `json:"citadel_level"`
	ShieldLevel   int                     `json:"shield_level"`
	DronesStation int                     `json:"drones_stationed"`
	UnderSiege    bool                    `json:"under_siege"`
	ColonizedAt   *time.Time              `json:"colonized_at,omitempty"`
}

func viewPlanet(p *planet.Planet) planetView {
	return planetView{
		ID:            p.ID,
		Sector:        p.Sector,
		Name:          p.Name,
		Type:          p.Type,
		OwnerID:       p.OwnerID,
		Population:    p.Population,
		Allocation:    p.Allocation,
		Stockpile:     p.Stockpile,
		Buildings:     p.Buildings,
		CitadelLevel:  p.CitadelLevel,
		ShieldLevel:   p.ShieldLevel,
		DronesStation: p.DronesStation,
		UnderSiege:    p.UnderSiege,
		ColonizedAt:   p.ColonizedAt,
	}
}

func viewPlanets(in []*planet.Planet) []planetView {
	out := make([]planetView, 0, len(in))
	for _, p := range in {
		out = append(out, viewPlanet(p))
	}
	return out
}

type bountyView struct {
	ID        string          `json:"id"`
	PostedBy  shared.PlayerID `json:"posted_by"`
	TargetID  shared.PlayerID `json:"target_id"`
	Amount    shared.Credits  `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Status    bounty.Status   `json:"status"`
	ClaimedBy shared.PlayerID `json:"claimed_by,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func viewBounty(b *bounty.Bounty) bountyView {
	return bountyView{
		ID:        b.ID,
		PostedBy:  b.PostedBy,
		TargetID:  b.TargetID,
		Amount:    b.Amount,
		Reason:    b.Reason,
		Status:    b.Status,
		ClaimedBy: b.ClaimedBy,
		ExpiresAt: b.ExpiresAt,
	}
}

func viewBounties(in []*bounty.Bounty) []bountyView {
	out := make([]bountyView, 0, len(in))
	for _, b := range in {
		out = append(out, viewBounty(b))
	}
	return out
}

type policyView struct {
	ID             shared.PolicyID         `json:"id"`
	ProposedBy     shared.PlayerID         `json:"proposed_by"`
	Title          string                  `json:"title"`
	Proposal       string                  `json:"proposal"`
	Status         governance.PolicyStatus `json:"status"`
	YesWeight      float64                 `json:"yes_weight"`
	NoWeight       float64                 `json:"no_weight"`
	VotingClosesAt time.Time               `json:"voting_closes_at"`
	DecidedAt      *time.Time              `json:"decided_at,omitempty"`
}

func viewPolicy(p *governance.Policy) policyView {
	return policyView{
		ID:             p.ID,
		ProposedBy:     p.ProposedBy,
		Title:          p.Title,
		Proposal:       p.Proposal,
		Status:         p.Status,
		YesWeight:      p.YesWeight,
		NoWeight:       p.NoWeight,
		VotingClosesAt: p.VotingClosesAt,
		DecidedAt:      p.DecidedAt,
	}
}

func viewPolicies(in []*governance.Policy) []policyView {
	out := make([]policyView, 0, len(in))
	for _, p := range in {
		out = append(out, viewPolicy(p))
	}
	return out
}

type electionView struct {
	ID             shared.ElectionID           `json:"id"`
	Position       governance.Position         `json:"position"`
	Candidates     []shared.PlayerID           `json:"candidates"`
	Tallies        map[shared.PlayerID]float64 `json:"tallies,omitempty"`
	Status         governance.ElectionStatus   `json:"status"`
	WinnerID       shared.PlayerID             `json:"winner_id,omitempty"`
	VotingOpensAt  time.Time                   `json:"voting_opens_at"`
	VotingClosesAt time.Time                   `json:"voting_closes_at"`
}

func viewElection(e *governance.Election) electionView {
	return electionView{
		ID:             e.ID,
		Position:       e.Position,
		Candidates:     e.Candidates,
		Tallies:        e.Tallies,
		Status:         e.Status,
		WinnerID:       e.WinnerID,
		VotingOpensAt:  e.VotingOpensAt,
		VotingClosesAt: e.VotingClosesAt,
	}
}

func viewElections(in []*governance.Election) []electionView {
	out := make([]electionView, 0, len(in))
	for _, e := range in {
		out = append(out, viewElection(e))
	}
	return out
}

type missionView struct {
	ID               string                `json:"id"`
	FactionID        faction.ID            `json:"faction_id"`
	Type             faction.MissionType   `json:"type"`
	TargetSector     int                   `json:"target_sector"`
	Commodity        shared.Commodity      `json:"commodity,omitempty"`
	Quantity         int                   `json:"quantity,omitempty"`
	TargetShipID     shared.ShipID         `json:"target_ship_id,omitempty"`
	RewardCredits    int64                 `json:"reward_credits"`
	RewardReputation int                   `json:"reward_reputation"`
	MinTier          faction.Tier          `json:"min_tier"`
	Status           faction.MissionStatus `json:"status"`
	ExpiresAt        time.Time             `json:"expires_at"`
}

func viewMission(m *faction.Mission) missionView {
	return missionView{
		ID:               m.ID,
		FactionID:        m.FactionID,
		Type:             m.Type,
		TargetSector:     m.TargetSector,
		Commodity:        m.Commodity,
		Quantity:         m.Quantity,
		TargetShipID:     m.TargetShipID,
		RewardCredits:    m.RewardCredits,
		RewardReputation: m.RewardReputation,
		MinTier:          m.MinTier,
		Status:           m.Status,
		ExpiresAt:        m.ExpiresAt,
	}
}

func viewMissions(in []*faction.Mission) []missionView {
	out := make([]missionView, 0, len(in))
	for _, m := range in {
		out = append(out, viewMission(m))
	}
	return out
}

type reputationView struct {
	FactionID faction.ID   `json:"faction_id"`
	Score     int          `json:"score"`
	Tier      faction.Tier `json:"tier"`
}

func viewReputations(in []*faction.Reputation) []reputationView {
	out := make([]reputationView, 0, len(in))
	for _, r := range in {
		out = append(out, reputationView{FactionID: r.FactionID, Score: r.Score, Tier: faction.TierFor(r.Score)})
	}
	return out
}

type regionView struct {
	Name             string                `json:"name"`
	DisplayName      string                `json:"display_name"`
	Status           region.Status         `json:"status"`
	Governance       region.GovernanceType `json:"governance"`
	GovernorPlayerID shared.PlayerID       `json:"governor_player_id,omitempty"`
	TaxRate          float64               `json:"tax_rate"`
	Specialization   string                `json:"specialization,omitempty"`
	SectorCount      int                   `json:"sector_count"`
	NexusGateSector  int                   `json:"nexus_gate_sector,omitempty"`
	EvacuationAt     *time.Time            `json:"evacuation_at,omitempty"`
}

func viewRegion(r *region.Region) regionView {
	return regionView{
		Name:             r.Name,
		DisplayName:      r.DisplayName,
		Status:           r.Status,
		Governance:       r.Governance,
		GovernorPlayerID: r.GovernorPlayerID,
		TaxRate:          r.TaxRate,
		Specialization:   r.Specialization,
		SectorCount:      r.SectorCount,
		NexusGateSector:  r.NexusGateSector,
		EvacuationAt:     r.EvacuationAt,
	}
}

func viewRegions(in []*region.Region) []regionView {
	out := make([]regionView, 0, len(in))
	for _, r := range in {
		out = append(out, viewRegion(r))
	}
	return out
}

type travelView struct {
	ID            shared.TravelID `json:"id"`
	Source        shared.RegionID `json:"source_region"`
	Destination   shared.RegionID `json:"destination_region"`
	Method        travel.Method   `json:"method"`
	Cost          int64           `json:"cost"`
	Manifest      travel.Manifest `json:"manifest"`
	Status        travel.Status   `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewTravel(t *travel.Travel) travelView {
	return travelView{
		ID:            t.ID,
		Source:        t.SourceRegion,
		Destination:   t.DestinationRegion,
		Method:        t.Method,
		Cost:          t.Cost,
		Manifest:      t.Manifest,
		Status:        t.Status,
		FailureReason: t.FailureReason,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
	}
}

func viewTravels(in []*travel.Travel) []travelView {
	out := make([]travelView, 0, len(in))
	for _, t := range in {
		out = append(out, viewTravel(t))
	}
	return out
}

type treatyView struct {
	ID        shared.TreatyID `json:"id"`
	RegionA   shared.RegionID `json:"region_a"`
	RegionB   shared.RegionID `json:"region_b"`
	Type      treaty.Type     `json:"type"`
	Terms     treaty.Terms    `json:"terms"`
	Status    treaty.Status   `json:"status"`
	SignedAtA time.Time       `json:"signed_at_a"`
	SignedAtB *time.Time      `json:"signed_at_b,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func viewTreaty(t *treaty.Treaty) treatyView {
	return treatyView{
		ID:        t.ID,
		RegionA:   t.RegionA,
		RegionB:   t.RegionB,
		Type:      t.Type,
		Terms:     t.Terms,
		Status:    t.Status,
		SignedAtA: t.SignedAtA,
		SignedAtB: t.SignedAtB,
		ExpiresAt: t.ExpiresAt,
	}
}

func viewTreaties(in []*treaty.Treaty) []treatyView {
	out := make([]treatyView, 0, len(in))
	for _, t := range in {
		out = append(out, viewTreaty(t))
	}
	return out
}

type onboardingView struct {
	ID           string                `json:"id"`
	State        firstlogin.State      `json:"state"`
	OfferedHulls []ship.HullClass      `json:"offered_hulls,omitempty"`
	ClaimedHull  ship.HullClass        `json:"claimed_hull,omitempty"`
	Exchanges    []firstlogin.Exchange `json:"exchanges"`
	ExpiresAt    time.Time             `json:"expires_at"`
	Question     string                `json:"question,omitempty"`
}

func viewOnboarding(s *firstlogin.Session, question string) onboardingView {
	return onboardingView{
		ID:           s.ID,
		State:        s.State,
		OfferedHulls: s.OfferedHulls,
		ClaimedHull:  s.ClaimedHull,
		Exchanges:    s.Exchanges,
		ExpiresAt:    s.ExpiresAt,
		Question:     question,
	}
}

type accountView struct {
	ID         shared.AccountID `json:"id"`
	Handle     string           `json:"handle"`
	Email      string           `json:"email"`
	Role       account.Role     `json:"role"`
	MFAEnabled bool             `json:"mfa_enabled"`
	Disabled   bool             `json:"disabled"`
	CreatedAt  time.Time        `json:"created_at"`
}

func viewAccount(a *account.Account) accountView {
	return accountView{
		ID:         a.ID,
		Handle:     a.Handle,
		Email:      a.Email,
		Role:       a.Role,
		MFAEnabled: a.MFAEnabled,
		Disabled:   a.Disabled,
		CreatedAt:  a.CreatedAt,
	}
}

func viewAccounts(in []*account.Account) []accountView {
	out := make([]accountView, 0, len(in))
	for _, a := range in {
		out = append(out, viewAccount(a))
	}
	return out
}

type sessionView struct {
	ID                string     `json:"id"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

func viewSessions(in []*account.Session) []sessionView {
	out := make([]sessionView, 0, len(in))
	for _, s := range in {
		out = append(out, sessionView{
			ID:                s.ID,
			DeviceFingerprint: s.DeviceFingerprint,
			IssuedAt:          s.IssuedAt,
			ExpiresAt:         s.ExpiresAt,
			RevokedAt:         s.RevokedAt,
		})
	}
	return out
}

type tradeRecordView struct {
	ID        string                 `json:"id"`
	StationID shared.StationID       `json:"station_id"`
	Commodity shared.Commodity       `json:"commodity"`
	Direction trading.TradeDirection `json:"direction"`
	Quantity  int                    `json:"quantity"`
	UnitPrice int64                  `json:"unit_price"`
	Total     int64                  `json:"total"`
	Balance   shared.Credits         `json:"balance_after"`
	RecordedAt time.Time             `json:"recorded_at"`
}

func viewTradeRecords(in []*trading.TradeRecord) []tradeRecordView {
	out := make([]tradeRecordView, 0, len(in))
	for _, rec := range in {
		out = append(out, tradeRecordView{
			ID:         rec.ID,
			StationID:  rec.StationID,
			Commodity:  rec.Commodity,
			Direction:  rec.Direction,
			Quantity:   rec.Quantity,
			UnitPrice:  rec.UnitPrice,
			Total:      rec.Total,
			Balance:    rec.BalanceAfter,
			RecordedAt: rec.RecordedAt,
		})
	}
	return out
}

type pricePointView struct {
	StationID  shared.StationID `json:"station_id"`
	Commodity  shared.Commodity `json:"commodity"`
	UnitBuy    int64            `json:"unit_buy"`
	UnitSell   int64            `json:"unit_sell"`
	Stock      int              `json:"stock"`
	RecordedAt time.Time        `json:"recorded_at"`
}

func viewPricePoints(in []*trading.PricePoint) []pricePointView {
	out := make([]pricePointView, 0, len(in))
	for _, p := range in {
		out = append(out, pricePointView{
			StationID:  p.StationID,
			Commodity:  p.Commodity,
			UnitBuy:    p.UnitBuy,
			UnitSell:   p.UnitSell,
			Stock:      p.Stock,
			RecordedAt: p.RecordedAt,
		})
	}
	return out
}

type contractView struct {
	ID          string                 `json:"id"`
	StationID   shared.StationID       `json:"station_id"`
	Commodity   shared.Commodity       `json:"commodity"`
	Side        trading.ContractSide   `json:"side"`
	Quantity    int                    `json:"quantity"`
	StrikePrice int64                  `json:"strike_price"`
	Status      trading.ContractStatus `json:"status"`
	ExpiresAt   time.Time              `json:"expires_at"`
	FilledAt    *time.Time             `json:"filled_at,omitempty"`
}

func viewContract(c *trading.Contract) contractView {
	return contractView{
		ID:          c.ID,
		StationID:   c.StationID,
		Commodity:   c.Commodity,
		Side:        c.Side,
		Quantity:    c.Quantity,
		StrikePrice: c.StrikePrice,
		Status:      c.Status,
		ExpiresAt:   c.ExpiresAt,
		FilledAt:    c.FilledAt,
	}
}

func viewContracts(in []*trading.Contract) []contractView {
	out := make([]contractView, 0, len(in))
	for _, c := range in {
		out = append(out, viewContract(c))
	}
	return out
}

type alertView struct {
	ID        string                 `json:"id"`
	StationID shared.StationID       `json:"station_id"`
	Commodity shared.Commodity       `json:"commodity"`
	Direction trading.AlertDirection `json:"direction"`
	Threshold int64                  `json:"threshold"`
	Triggered bool                   `json:"triggered"`
}

func viewAlert(a *trading.PriceAlert) alertView {
	return alertView{
		ID:        a.ID,
		StationID: a.StationID,
		Commodity: a.Commodity,
		Direction: a.Direction,
		Threshold: a.Threshold,
		Triggered: a.Triggered,
	}
}

func viewAlerts(in []*trading.PriceAlert) []alertView {
	out := make([]alertView, 0, len(in))
	for _, a := range in {
		out = append(out, viewAlert(a))
	}
	return out
}

type stationView struct {
	ID       shared.StationID          `json:"id"`
	Name     string                    `json:"name"`
	Class    station.Class             `json:"class"`
	Sector   int                       `json:"sector"`
	Status   station.OperationalStatus `json:"status"`
	Services []string                  `json:"services"`
}

func viewStation(st *station.Station) stationView {
	return stationView{
		ID:       st.ID,
		Name:     st.Name,
		Class:    st.Class,
		Sector:   st.Sector,
		Status:   st.Status,
		Services: st.Services.Names(),
	}
}

type subscriptionView struct {
	ID               string              `json:"id"`
	Provider         string              `json:"provider"`
	Plan             string              `json:"plan"`
	Status           subscription.Status `json:"status"`
	RegionName       string              `json:"region_name,omitempty"`
	CurrentPeriodEnd *time.Time          `json:"current_period_end,omitempty"`
}

func viewSubscriptions(in []*subscription.Subscription) []subscriptionView {
	out := make([]subscriptionView, 0, len(in))
	for _, s := range in {
		out = append(out, subscriptionView{
			ID:               s.ID,
			Provider:         s.Provider,
			Plan:             s.Plan,
			Status:           s.Status,
			RegionName:       s.RegionName,
			CurrentPeriodEnd: s.CurrentPeriodEnd,
		})
	}
	return out
}
