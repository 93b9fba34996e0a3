package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/settlement"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/relayer"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server exposes a running network over HTTP.
type Server struct {
	logger  *zap.Logger
	network *network.Network
	queue   *relayer.Queue
	tracker *settlement.Tracker
	// operator is the owner account used for fee and pause changes.
	operator ethcommon.Address

	mux *chi.Mux
}

func NewServer(logger *zap.Logger, n *network.Network, queue *relayer.Queue, tracker *settlement.Tracker, operator ethcommon.Address, registry *prometheus.Registry) (*Server, error) {
	metrics, err := zaap.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	n.Subscribe(metrics.HandleLogs)

	relayerGauges := []struct {
		name  string
		help  string
		value func(inQueue, relaying, completed int) int
	}{
		{"relayer_in_queue", "Bridge messages waiting for a full batch.", func(inQueue, _, _ int) int { return inQueue }},
		{"relayer_relaying", "Bridge messages being delivered.", func(_, relaying, _ int) int { return relaying }},
		{"relayer_completed", "Bridge messages delivered since start.", func(_, _, completed int) int { return completed }},
	}
	for _, gauge := range relayerGauges {
		value := gauge.value
		if err := registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "zaap",
			Name:      gauge.name,
			Help:      gauge.help,
		}, func() float64 {
			return float64(value(queue.Status()))
		})); err != nil {
			return nil, errors.Wrap(err, "failed to register relayer metrics")
		}
	}

	s := &Server{
		logger:   logger,
		network:  n,
		queue:    queue,
		tracker:  tracker,
		operator: operator,
		mux:      chi.NewMux(),
	}

	s.mux.Use(middleware.RequestID)
	s.mux.Use(s.logRequests)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(middleware.Timeout(requestTimeout))

	s.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, s.logger, http.StatusOK, StatusResponse{Status: "healthy"})
	})

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/chains", s.handleChains)
		r.Route("/chains/{chainID}", func(r chi.Router) {
			r.Get("/balances/{holder}", s.handleBalances)
			r.Get("/fees/{direction}", s.handleGetFees)
			r.Put("/fees/{direction}", s.handleSetFees)
			r.Post("/pause/{direction}", s.handlePause(true))
			r.Delete("/pause/{direction}", s.handlePause(false))
		})
		r.Get("/cached", s.handleCached)
		r.Post("/cached/retry", s.handleRetry)
		r.Get("/relayer", s.handleRelayer)
		r.Post("/relayer/retry", s.handleRelayerRetry)
		r.Post("/enter", s.handleEnter)
	})

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving zaap api", zap.String("address", address))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "failed to serve")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down server")
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	chains := s.network.GetChains()
	resp := make([]ChainResponse, 0, len(chains))
	for _, chain := range chains {
		deployment, err := s.network.GetDeployment(chain.GetChainID())
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp = append(resp, chainResponse(chain, deployment))
	}
	utils.WriteJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	chain, deployment, ok := s.chain(w, r)
	if !ok {
		return
	}

	holder, err := resolveHolder(chain, chi.URLParam(r, "holder"))
	if err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, err)
		return
	}

	assets := append([]network.Asset{{Symbol: network.NativeSymbol, Address: ledger.NativeAsset, Decimals: 18}}, deployment.Assets...)
	resp := BalancesResponse{ChainID: chain.GetChainID(), Holder: holder.Hex()}
	for _, asset := range assets {
		balance, err := chain.GetBalance(r.Context(), holder, asset.Address)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Balances = append(resp.Balances, BalanceResponse{
			Symbol:    asset.Symbol,
			Asset:     asset.Address.Hex(),
			Amount:    utils.FormatAmount(balance, asset.Decimals),
			BaseUnits: balance.String(),
		})
	}
	utils.WriteJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	chain, deployment, ok := s.chain(w, r)
	if !ok {
		return
	}
	dir, err := fees.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, err)
		return
	}

	s.writeFees(w, r.Context(), chain.GetChainID(), deployment.Zaap, dir)
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	chain, deployment, ok := s.chain(w, r)
	if !ok {
		return
	}
	dir, err := fees.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, err)
		return
	}

	var req FeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "failed to decode request"))
		return
	}

	if err := ApplyFees(r.Context(), deployment.Zaap, s.operator, dir, req); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Fees updated", zap.String("chain_id", chain.GetChainID()), zap.String("direction", string(dir)))
	s.writeFees(w, r.Context(), chain.GetChainID(), deployment.Zaap, dir)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain, deployment, ok := s.chain(w, r)
		if !ok {
			return
		}
		dir, err := fees.ParseDirection(chi.URLParam(r, "direction"))
		if err != nil {
			utils.WriteError(w, s.logger, http.StatusBadRequest, err)
			return
		}

		if err := SetPaused(deployment.Zaap, s.operator, dir, paused); err != nil {
			s.writeError(w, err)
			return
		}

		s.logger.Info("Pause updated", zap.String("chain_id", chain.GetChainID()), zap.String("direction", string(dir)), zap.Bool("paused", paused))
		utils.WriteJSON(w, s.logger, http.StatusOK, chainResponse(chain, deployment))
	}
}

func (s *Server) handleCached(w http.ResponseWriter, r *http.Request) {
	cached := s.network.Transport().Cached()
	resp := make([]CachedResponse, 0, len(cached))
	for _, receipt := range cached {
		resp = append(resp, CachedResponse{
			SourceChainID:      receipt.Request.SourceChainID,
			DestinationChainID: receipt.DestinationChainID,
			Nonce:              receipt.Request.Nonce,
			Receiver:           receipt.Receiver.Hex(),
			Asset:              receipt.Request.Asset.Hex(),
			Amount:             receipt.Request.Amount.String(),
			Reason:             receipt.Reason,
		})
	}
	utils.WriteJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "failed to decode request"))
		return
	}

	if err := s.network.Transport().RetryCached(r.Context(), req.SourceChainID, req.DestinationChainID, req.Nonce); err != nil {
		s.writeError(w, err)
		return
	}

	utils.WriteJSON(w, s.logger, http.StatusOK, StatusResponse{Status: "delivered"})
}

func (s *Server) handleRelayer(w http.ResponseWriter, r *http.Request) {
	inQueue, relaying, completed := s.queue.Status()
	utils.WriteJSON(w, s.logger, http.StatusOK, RelayerResponse{
		InQueue:   inQueue,
		Relaying:  relaying,
		Completed: completed,
		Failed:    len(s.queue.Failed()),
	})
}

func (s *Server) handleRelayerRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.RetryFailed(); err != nil {
		s.writeError(w, err)
		return
	}

	utils.WriteJSON(w, s.logger, http.StatusOK, StatusResponse{Status: "delivered"})
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "failed to decode request"))
		return
	}

	start := time.Now()
	result, err := settlement.Run(r.Context(), s.logger, s.network, s.queue, s.tracker, req, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	utils.WriteJSON(w, s.logger, http.StatusOK, enterResponse(result, time.Since(start)))
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) (network.Chain, *network.Deployment, bool) {
	chainID := chi.URLParam(r, "chainID")
	chain, err := s.network.GetChain(chainID)
	if err != nil {
		utils.WriteError(w, s.logger, http.StatusNotFound, err)
		return nil, nil, false
	}
	deployment, err := s.network.GetDeployment(chainID)
	if err != nil {
		utils.WriteError(w, s.logger, http.StatusNotFound, err)
		return nil, nil, false
	}
	return chain, deployment, true
}

func (s *Server) writeFees(w http.ResponseWriter, ctx context.Context, chainID string, z *zaap.Zaap, dir fees.Direction) {
	cfg, err := z.FeeConfig(ctx, dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	utils.WriteJSON(w, s.logger, http.StatusOK, feesResponse(chainID, dir, cfg))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	utils.WriteError(w, s.logger, statusCode(err), err)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, zaap.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, bridge.ErrNotCached):
		return http.StatusNotFound
	case errors.Is(err, fees.ErrInvalidFeeBps),
		errors.Is(err, fees.ErrInvalidPartnerShare),
		errors.Is(err, fees.ErrInvalidAddress),
		errors.Is(err, zaap.ErrInvalidAmount),
		errors.Is(err, zaap.ErrRouteMismatch),
		errors.Is(err, zaap.ErrUnsupportedRouter),
		errors.Is(err, zaap.ErrEmptyRouteAssetMismatch),
		errors.Is(err, zaap.ErrInvalidRecipient),
		errors.Is(err, zaap.ErrInvalidPermit),
		errors.Is(err, zaap.ErrInsufficientValue),
		errors.Is(err, zaap.ErrDeadlineExpired),
		errors.Is(err, bridge.ErrUnknownPool),
		errors.Is(err, bridge.ErrUnknownChain):
		return http.StatusBadRequest
	case errors.Is(err, zaap.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, zaap.ErrSwapExecutionFailed),
		errors.Is(err, zaap.ErrRouterExecutionFailed),
		errors.Is(err, zaap.ErrTransferFailed),
		errors.Is(err, bridge.ErrSlippage),
		errors.Is(err, bridge.ErrInsufficientFee):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ApplyFees applies req to the fee configuration of z as operator.
func ApplyFees(ctx context.Context, z *zaap.Zaap, operator ethcommon.Address, dir fees.Direction, req FeesRequest) error {
	if req.FeeBps != nil {
		if err := z.SetFeeBps(ctx, operator, dir, *req.FeeBps); err != nil {
			return err
		}
	}
	if req.ClearTreasury {
		if err := z.ClearTreasury(ctx, operator, dir); err != nil {
			return err
		}
	} else if req.Treasury != "" {
		if !ethcommon.IsHexAddress(req.Treasury) {
			return errors.Wrapf(fees.ErrInvalidAddress, "treasury %s", req.Treasury)
		}
		if err := z.SetTreasury(ctx, operator, dir, ethcommon.HexToAddress(req.Treasury)); err != nil {
			return err
		}
	}
	for _, partner := range req.SetPartners {
		if !ethcommon.IsHexAddress(partner.Address) {
			return errors.Wrapf(fees.ErrInvalidAddress, "partner %s address %s", partner.PartnerID, partner.Address)
		}
		if err := z.SetPartner(ctx, operator, dir, []byte(partner.PartnerID), fees.Partner{
			Address:      ethcommon.HexToAddress(partner.Address),
			PercentShare: partner.PercentShare,
		}); err != nil {
			return err
		}
	}
	for _, partnerID := range req.DeletePartners {
		if err := z.DeletePartner(ctx, operator, dir, []byte(partnerID)); err != nil {
			return err
		}
	}
	return nil
}

func SetPaused(z *zaap.Zaap, operator ethcommon.Address, dir fees.Direction, paused bool) error {
	switch {
	case dir == fees.Inbound && paused:
		return z.PauseIn(operator)
	case dir == fees.Inbound:
		return z.UnpauseIn(operator)
	case paused:
		return z.PauseOut(operator)
	default:
		return z.UnpauseOut(operator)
	}
}

func chainResponse(chain network.Chain, deployment *network.Deployment) ChainResponse {
	resp := ChainResponse{
		ChainID:       chain.GetChainID(),
		BridgeChainID: chain.GetBridgeChainID(),
		Zaap:          deployment.Zaap.Address().Hex(),
		Owner:         deployment.Zaap.Owner().Hex(),
		WrappedNative: deployment.Zaap.WrappedNative().Hex(),
		PausedIn:      deployment.Zaap.PausedIn(),
		PausedOut:     deployment.Zaap.PausedOut(),
	}
	for _, asset := range deployment.Assets {
		resp.Assets = append(resp.Assets, AssetResponse{Symbol: asset.Symbol, Address: asset.Address.Hex(), Decimals: asset.Decimals})
	}
	return resp
}

func feesResponse(chainID string, dir fees.Direction, cfg fees.Config) FeesResponse {
	resp := FeesResponse{
		ChainID:   chainID,
		Direction: string(dir),
		FeeBps:    cfg.FeeBps,
		Partners:  make([]PartnerResponse, 0, len(cfg.Partners)),
	}
	if cfg.Treasury != nil {
		resp.Treasury = cfg.Treasury.Hex()
	}
	for key, partner := range cfg.Partners {
		resp.Partners = append(resp.Partners, PartnerResponse{PartnerKey: key, Address: partner.Address.Hex(), PercentShare: partner.PercentShare})
	}
	sort.Slice(resp.Partners, func(i, j int) bool { return resp.Partners[i].PartnerKey < resp.Partners[j].PartnerKey })
	return resp
}

func enterResponse(result *settlement.Result, duration time.Duration) EnterResponse {
	resp := EnterResponse{
		SettlementID:      result.Entry.SettlementID,
		Nonce:             result.Entry.Nonce,
		BridgeAmountGross: result.Entry.BridgeAmountGross.String(),
		BridgeAmountNet:   result.Entry.BridgeAmountNet.String(),
		Duration:          duration,
	}
	if result.Out != nil {
		resp.Outcome = result.Out.Outcome.String()
		resp.DeliveredAsset = result.Out.DeliveredAsset.Hex()
		resp.DeliveredAmount = amountString(result.Out.DeliveredAmount)
		resp.Remainder = amountString(result.Out.Remainder)
	}
	if result.Cached != nil {
		resp.Cached = true
		resp.CachedReason = result.Cached.Reason
	}
	return resp
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func resolveHolder(chain network.Chain, s string) (ethcommon.Address, error) {
	if ethcommon.IsHexAddress(s) {
		return ethcommon.HexToAddress(s), nil
	}
	wallet, err := chain.GetWallet(s)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return wallet.Address(), nil
}

// ParseNonce parses a nonce given on the command line or in a URL.
func ParseNonce(s string) (uint64, error) {
	nonce, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid nonce %s", s)
	}
	return nonce, nil
}
