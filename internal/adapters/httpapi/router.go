package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sectorwars/gameserver/internal/adapters/advisory"
	"github.com/sectorwars/gameserver/internal/application/admin"
	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/colony"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/comms"
	"github.com/sectorwars/gameserver/internal/application/drones"
	"github.com/sectorwars/gameserver/internal/application/engagement"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/application/missions"
	"github.com/sectorwars/gameserver/internal/application/movement"
	"github.com/sectorwars/gameserver/internal/application/onboarding"
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/application/security"
	"github.com/sectorwars/gameserver/internal/application/teams"
	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Server binds the application services to the /api/v1 route table.
type Server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	tokens  *auth.TokenIssuer
	players player.Repository
	locales common.LocaleResolver

	auth        *auth.Service
	trade       *trade.Service
	movement    *movement.Service
	engagement  *engagement.Service
	federation  *federation.Service
	teams       *teams.Service
	comms       *comms.Service
	security    *security.Service
	drones      *drones.Service
	politics    *politics.Service
	missions    *missions.Service
	colony      *colony.Service
	onboarding  *onboarding.Service
	admin       *admin.Service
	provisioner *provisioner.Service
	advisor     *advisory.Advisor

	limiter  *RateLimiter
	observer Observer

	fabric        http.Handler
	metrics       http.Handler
	webhookSecret string
}

// Deps carries everything the route table needs. Fabric and Metrics are
// mounted as-is; nil leaves the mount out.
type Deps struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Tokens  *auth.TokenIssuer
	Players player.Repository
	Locales common.LocaleResolver

	Auth        *auth.Service
	Trade       *trade.Service
	Movement    *movement.Service
	Engagement  *engagement.Service
	Federation  *federation.Service
	Teams       *teams.Service
	Comms       *comms.Service
	Security    *security.Service
	Drones      *drones.Service
	Politics    *politics.Service
	Missions    *missions.Service
	Colony      *colony.Service
	Onboarding  *onboarding.Service
	Admin       *admin.Service
	Provisioner *provisioner.Service
	Advisor     *advisory.Advisor

	Limiter  *RateLimiter
	Observer Observer

	Fabric  http.Handler
	Metrics http.Handler
}

func NewServer(deps Deps) *Server {
	return &Server{
		cfg:           deps.Config,
		logger:        deps.Logger,
		tokens:        deps.Tokens,
		players:       deps.Players,
		locales:       deps.Locales,
		auth:          deps.Auth,
		trade:         deps.Trade,
		movement:      deps.Movement,
		engagement:    deps.Engagement,
		federation:    deps.Federation,
		teams:         deps.Teams,
		comms:         deps.Comms,
		security:      deps.Security,
		drones:        deps.Drones,
		politics:      deps.Politics,
		missions:      deps.Missions,
		colony:        deps.Colony,
		onboarding:    deps.Onboarding,
		admin:         deps.Admin,
		provisioner:   deps.Provisioner,
		advisor:       deps.Advisor,
		limiter:       deps.Limiter,
		observer:      deps.Observer,
		fabric:        deps.Fabric,
		metrics:       deps.Metrics,
		webhookSecret: deps.Config.Provisioner.WebhookSecret,
	}
}

// Handler assembles the full middleware chain and route table.
func (s *Server) Handler() http.Handler {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(s.notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	root.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		root.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := root.PathPrefix("/api/v1").Subrouter()

	// Webhooks authenticate by HMAC signature, never by bearer token, and
	// sit outside the account rate limiter.
	api.HandleFunc("/webhooks/subscriptions", s.handleSubscriptionWebhook).Methods(http.MethodPost)

	// Anonymous auth surface: IP-keyed rate limit, no bearer token.
	anon := api.PathPrefix("/auth").Subrouter()
	anon.Use(mux.MiddlewareFunc(s.limiter.Middleware))
	anon.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	anon.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	anon.HandleFunc("/mfa/verify", s.handleMFAVerify).Methods(http.MethodPost)
	anon.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	anon.HandleFunc("/oauth/{provider}", s.handleOAuthURL).Methods(http.MethodGet)
	anon.HandleFunc("/oauth/{provider}/callback", s.handleOAuthCallback).Methods(http.MethodGet)

	// Everything else requires a verified access token.
	authed := api.PathPrefix("").Subrouter()
	authed.Use(mux.MiddlewareFunc(authenticate(s.tokens, s.players)))
	authed.Use(mux.MiddlewareFunc(s.limiter.Middleware))

	if s.fabric != nil {
		api.Handle("/ws", s.fabric).Methods(http.MethodGet)
	}

	s.mountAuthed(authed)

	adminRouter := authed.PathPrefix("/admin").Subrouter()
	adminRouter.Use(mux.MiddlewareFunc(requireAdmin))
	s.mountAdmin(adminRouter)

	chain := requestContext(s.logger, s.cfg.Server.MaxBodyBytes, s.observer)(recoverPanic(root))
	return chain
}

func (s *Server) mountAuthed(r *mux.Router) {
	// session management
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/auth/sessions/{id}", s.handleRevokeSession).Methods(http.MethodDelete)
	r.HandleFunc("/auth/mfa/enroll", s.handleEnrollTOTP).Methods(http.MethodPost)
	r.HandleFunc("/auth/mfa/enroll/verify", s.handleVerifyEnrollment).Methods(http.MethodPost)
	r.HandleFunc("/auth/credential", s.handleChangeCredential).Methods(http.MethodPut)

	// player state
	r.HandleFunc("/player/state", s.handlePlayerState).Methods(http.MethodGet)
	r.HandleFunc("/player/ships", s.handlePlayerShips).Methods(http.MethodGet)
	r.HandleFunc("/player/entitlements", s.handleEntitlements).Methods(http.MethodGet)

	// first-login onboarding
	r.HandleFunc("/first-login/session", s.handleOnboardingStart).Methods(http.MethodPost)
	r.HandleFunc("/first-login/session", s.handleOnboardingSession).Methods(http.MethodGet)
	r.HandleFunc("/first-login/claim", s.handleOnboardingClaim).Methods(http.MethodPost)
	r.HandleFunc("/first-login/answer", s.handleOnboardingAnswer).Methods(http.MethodPost)
	r.HandleFunc("/first-login/session", s.handleOnboardingAbandon).Methods(http.MethodDelete)

	// navigation
	r.HandleFunc("/sectors", s.handleListSectors).Methods(http.MethodGet)
	r.HandleFunc("/sectors/{index}/tunnels", s.handleTunnels).Methods(http.MethodGet)
	r.HandleFunc("/sectors/{index}/scan", s.handleScanSector).Methods(http.MethodGet)
	r.HandleFunc("/sectors/move", s.handleMove).Methods(http.MethodPost)
	r.HandleFunc("/sectors/route", s.handlePlanRoute).Methods(http.MethodPost)

	// trading
	r.HandleFunc("/trading/market/{index}", s.handleMarket).Methods(http.MethodGet)
	r.HandleFunc("/trading/buy", s.handleBuy).Methods(http.MethodPost)
	r.HandleFunc("/trading/sell", s.handleSell).Methods(http.MethodPost)
	r.HandleFunc("/trading/history", s.handleTradeHistory).Methods(http.MethodGet)
	r.HandleFunc("/trading/prices/{commodity}", s.handlePriceHistory).Methods(http.MethodGet)
	r.HandleFunc("/trading/forecast/{index}", s.handleMarketForecast).Methods(http.MethodGet)
	r.HandleFunc("/trading/alerts", s.handleCreateAlert).Methods(http.MethodPost)
	r.HandleFunc("/trading/alerts", s.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/trading/alerts/{id}", s.handleDeleteAlert).Methods(http.MethodDelete)
	r.HandleFunc("/trading/contracts", s.handleOpenContract).Methods(http.MethodPost)
	r.HandleFunc("/trading/contracts", s.handleListContracts).Methods(http.MethodGet)
	r.HandleFunc("/trading/contracts/{id}", s.handleCancelContract).Methods(http.MethodDelete)
	r.HandleFunc("/trading/contracts/{id}/settle", s.handleSettleContract).Methods(http.MethodPost)

	// combat
	r.HandleFunc("/combat/engage", s.handleEngage).Methods(http.MethodPost)
	r.HandleFunc("/combat/{id}", s.handleCombatStatus).Methods(http.MethodGet)
	r.HandleFunc("/combat/{id}/command", s.handleCombatCommand).Methods(http.MethodPost)
	r.HandleFunc("/combat/{id}/retreat", s.handleRetreat).Methods(http.MethodPost)
	r.HandleFunc("/combat", s.handleCombatHistory).Methods(http.MethodGet)

	// drones
	r.HandleFunc("/drones/deploy", s.handleDeployDrones).Methods(http.MethodPost)
	r.HandleFunc("/drones/{id}/recall", s.handleRecallDrones).Methods(http.MethodPost)
	r.HandleFunc("/drones/{id}", s.handleReconfigureDrones).Methods(http.MethodPut)
	r.HandleFunc("/drones", s.handleListDrones).Methods(http.MethodGet)
	r.HandleFunc("/drones/buy", s.handleBuyDrones).Methods(http.MethodPost)

	// planets
	r.HandleFunc("/planets", s.handleHoldings).Methods(http.MethodGet)
	r.HandleFunc("/planets/{id}", s.handlePlanetDetail).Methods(http.MethodGet)
	r.HandleFunc("/planets/colonize", s.handleColonize).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/colonists", s.handleLandColonists).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/allocate", s.handleAllocate).Methods(http.MethodPut)
	r.HandleFunc("/planets/{id}/buildings", s.handleConstruct).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/citadel", s.handleUpgradeCitadel).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/shield", s.handleUpgradeShield).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/drones", s.handleStationDrones).Methods(http.MethodPut)
	r.HandleFunc("/planets/{id}/stockpile", s.handleCollectStockpile).Methods(http.MethodPost)
	r.HandleFunc("/planets/genesis", s.handleGenesis).Methods(http.MethodPost)
	r.HandleFunc("/planets/{id}/siege", s.handleBesiege).Methods(http.MethodPost)

	// teams
	r.HandleFunc("/teams", s.handleCreateTeam).Methods(http.MethodPost)
	r.HandleFunc("/teams", s.handleListTeams).Methods(http.MethodGet)
	r.HandleFunc("/teams/{id}", s.handleTeamDetail).Methods(http.MethodGet)
	r.HandleFunc("/teams/invitations", s.handleInvite).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/accept", s.handleAcceptInvite).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/apply", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc("/teams/applications/{playerID}/approve", s.handleApproveApplication).Methods(http.MethodPost)
	r.HandleFunc("/teams/applications/{playerID}/reject", s.handleRejectApplication).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/members/{playerID}/role", s.handleAssignRole).Methods(http.MethodPut)
	r.HandleFunc("/teams/{id}/members/{playerID}", s.handleKick).Methods(http.MethodDelete)
	r.HandleFunc("/teams/{id}/leave", s.handleLeaveTeam).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}", s.handleDisbandTeam).Methods(http.MethodDelete)
	r.HandleFunc("/teams/{id}/treasury/deposit", s.handleTreasuryDeposit).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/treasury/withdraw", s.handleTreasuryWithdraw).Methods(http.MethodPost)

	// messages
	r.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages", s.handleInbox).Methods(http.MethodGet)
	r.HandleFunc("/messages/unread", s.handleUnread).Methods(http.MethodGet)
	r.HandleFunc("/messages/thread/{id}", s.handleThread).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/read", s.handleMarkRead).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/confirm", s.handleConfirmMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)

	// factions and missions
	r.HandleFunc("/factions/missions", s.handleMissionBoard).Methods(http.MethodGet)
	r.HandleFunc("/factions/missions/mine", s.handleMyMissions).Methods(http.MethodGet)
	r.HandleFunc("/factions/standing", s.handleStanding).Methods(http.MethodGet)
	r.HandleFunc("/factions/missions/{id}/accept", s.handleAcceptMission).Methods(http.MethodPost)
	r.HandleFunc("/factions/missions/{id}/complete", s.handleCompleteMission).Methods(http.MethodPost)
	r.HandleFunc("/factions/missions/{id}", s.handleAbandonMission).Methods(http.MethodDelete)

	// bounties
	r.HandleFunc("/bounties", s.handlePostBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounties", s.handleBountyBoard).Methods(http.MethodGet)
	r.HandleFunc("/bounties/player/{id}", s.handleBountiesOnPlayer).Methods(http.MethodGet)
	r.HandleFunc("/bounties/{id}", s.handleCancelBounty).Methods(http.MethodDelete)

	// governance
	r.HandleFunc("/governance/policies", s.handleProposePolicy).Methods(http.MethodPost)
	r.HandleFunc("/governance/policies", s.handleListPolicies).Methods(http.MethodGet)
	r.HandleFunc("/governance/policies/{id}", s.handlePolicyDetail).Methods(http.MethodGet)
	r.HandleFunc("/governance/policies/{id}/vote", s.handleCastPolicyVote).Methods(http.MethodPost)
	r.HandleFunc("/governance/policies/{id}/vote", s.handleRetractPolicyVote).Methods(http.MethodDelete)
	r.HandleFunc("/governance/policies/{id}", s.handleWithdrawPolicy).Methods(http.MethodDelete)
	r.HandleFunc("/governance/elections", s.handleScheduleElection).Methods(http.MethodPost)
	r.HandleFunc("/governance/elections", s.handleListElections).Methods(http.MethodGet)
	r.HandleFunc("/governance/elections/{id}", s.handleElectionDetail).Methods(http.MethodGet)
	r.HandleFunc("/governance/elections/{id}/ballot", s.handleCastBallot).Methods(http.MethodPost)
	r.HandleFunc("/governance/elections/{id}/ballot", s.handleRetractBallot).Methods(http.MethodDelete)
	r.HandleFunc("/governance/elections/{id}", s.handleCancelElection).Methods(http.MethodDelete)

	// regions, travel and treaties
	r.HandleFunc("/regions", s.handleListRegions).Methods(http.MethodGet)
	r.HandleFunc("/regions/{name}", s.handleGetRegion).Methods(http.MethodGet)
	r.HandleFunc("/regions/{name}/statistics", s.handleRegionStatistics).Methods(http.MethodGet)
	r.HandleFunc("/travel", s.handleInitiateTravel).Methods(http.MethodPost)
	r.HandleFunc("/travel", s.handleTravelHistory).Methods(http.MethodGet)
	r.HandleFunc("/travel/{id}", s.handleGetTravel).Methods(http.MethodGet)
	r.HandleFunc("/travel/{id}", s.handleCancelTravel).Methods(http.MethodDelete)
	r.HandleFunc("/treaties", s.handleProposeTreaty).Methods(http.MethodPost)
	r.HandleFunc("/treaties", s.handleListTreaties).Methods(http.MethodGet)
	r.HandleFunc("/treaties/{id}/countersign", s.handleCountersignTreaty).Methods(http.MethodPost)
	r.HandleFunc("/treaties/{id}", s.handleDissolveTreaty).Methods(http.MethodDelete)
}

func (s *Server) mountAdmin(r *mux.Router) {
	r.HandleFunc("/users", s.handleAdminUsers).Methods(http.MethodGet)
	r.HandleFunc("/economy", s.handleAdminEconomy).Methods(http.MethodGet)
	r.HandleFunc("/combat", s.handleAdminCombat).Methods(http.MethodGet)
	r.HandleFunc("/fleet", s.handleAdminFleet).Methods(http.MethodGet)
	r.HandleFunc("/colonization", s.handleAdminColonization).Methods(http.MethodGet)
	r.HandleFunc("/presence", s.handleAdminPresence).Methods(http.MethodGet)
	r.HandleFunc("/audit", s.handleAdminAudit).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/suspend", s.handleSuspendAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/reinstate", s.handleReinstateAccount).Methods(http.MethodPost)
	r.HandleFunc("/players/{id}/mute", s.handleMutePlayer).Methods(http.MethodPost)
	r.HandleFunc("/players/{id}/mute", s.handleUnmutePlayer).Methods(http.MethodDelete)

	r.HandleFunc("/regions", s.handleCreateRegion).Methods(http.MethodPost)
	r.HandleFunc("/regions/{name}/suspend", s.handleSuspendRegion).Methods(http.MethodPost)
	r.HandleFunc("/regions/{name}/resume", s.handleResumeRegion).Methods(http.MethodPost)
	r.HandleFunc("/regions/{name}/terminate", s.handleTerminateRegion).Methods(http.MethodPost)
	r.HandleFunc("/regions/{name}/governance", s.handleSetGovernance).Methods(http.MethodPut)
	r.HandleFunc("/regions/{name}/governor", s.handleAppointGovernor).Methods(http.MethodPut)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, shared.NewNotFoundError("route"))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, shared.NewValidationErrorf("method %s not allowed", r.Method))
}
