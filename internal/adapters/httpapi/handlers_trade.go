package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/trade"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

type fillRequest struct {
	StationID string `json:"station_id" validate:"required"`
	Commodity string `json:"commodity" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := s.trade.Market(r.Context(), actor, shared.StationID(mux.Vars(r)["index"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleFill(w, r, s.trade.Buy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleFill(w, r, s.trade.Sell)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request,
	fill func(context.Context, common.Actor, shared.StationID, shared.Commodity, int) (*trade.Receipt, error)) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req fillRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	receipt, err := fill(r.Context(), actor, shared.StationID(req.StationID), shared.Commodity(req.Commodity), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, receipt)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit := queryInt(r, "limit", 50)
	records, err := s.trade.History(r.Context(), actor, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTradeRecords(records))
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	commodity := shared.Commodity(mux.Vars(r)["commodity"])
	stationID := shared.StationID(r.URL.Query().Get("station_id"))
	since := time.Unix(queryInt64(r, "since", 0), 0)
	points, err := s.trade.PriceHistory(r.Context(), actor, stationID, commodity, since, queryInt(r, "limit", 100))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPricePoints(points))
}

func (s *Server) handleMarketForecast(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := s.trade.Market(r.Context(), actor, shared.StationID(mux.Vars(r)["index"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	forecasts := s.advisor.MarketForecast(r.Context(), view.Name, view.Quotes)
	respond(w, http.StatusOK, map[string]any{
		"station_id": view.StationID,
		"forecasts":  forecasts,
	})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		StationID string `json:"station_id" validate:"required"`
		Commodity string `json:"commodity" validate:"required"`
		Direction string `json:"direction" validate:"required,oneof=above below"`
		Threshold int64  `json:"threshold" validate:"required,min=1"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	alert, err := s.trade.CreateAlert(r.Context(), actor, shared.StationID(req.StationID),
		shared.Commodity(req.Commodity), trading.AlertDirection(req.Direction), req.Threshold)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewAlert(alert))
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	alerts, err := s.trade.ListAlerts(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewAlerts(alerts))
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.trade.DeleteAlert(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleOpenContract(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		StationID  string `json:"station_id" validate:"required"`
		Commodity  string `json:"commodity" validate:"required"`
		Side       string `json:"side" validate:"required,oneof=buy sell"`
		Quantity   int    `json:"quantity" validate:"required,min=1"`
		TTLMinutes int    `json:"ttl_minutes" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	contract, err := s.trade.OpenContract(r.Context(), actor, trade.ContractInput{
		StationID: shared.StationID(req.StationID),
		Commodity: shared.Commodity(req.Commodity),
		Side:      trading.ContractSide(req.Side),
		Quantity:  req.Quantity,
		TTL:       time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewContract(contract))
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	contracts, err := s.trade.ListContracts(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewContracts(contracts))
}

func (s *Server) handleCancelContract(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	contract, err := s.trade.CancelContract(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewContract(contract))
}

func (s *Server) handleSettleContract(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	receipt, err := s.trade.SettleContract(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, receipt)
}
