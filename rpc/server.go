package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasenet/native/lease"
	"leasenet/observability"
	"leasenet/relay"
)

const requestBodyLimit int64 = 1 << 20 // 1 MiB

// RateLimitKeyLease guards the lease mutation endpoints.
const RateLimitKeyLease = "lease"

// RateLimitKeyRelay guards the relay delivery endpoint.
const RateLimitKeyRelay = "relay"

// Server exposes the lease engine and relay gateway over HTTP.
type Server struct {
	engine    *lease.Engine
	gateway   *relay.Gateway
	linkers   *relay.Registry
	auth      *Authenticator
	adminAuth *AdminAuthenticator
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewServer wires the HTTP surface to its collaborators. auth may be nil to
// disable HMAC verification (tests, local development); adminAuth and limiter
// may likewise be nil.
func NewServer(engine *lease.Engine, gateway *relay.Gateway, linkers *relay.Registry, auth *Authenticator, adminAuth *AdminAuthenticator, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		gateway:   gateway,
		linkers:   linkers,
		auth:      auth,
		adminAuth: adminAuth,
		limiter:   limiter,
		logger:    logger,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/lease", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware(RateLimitKeyLease))
		}
		sr.Post("/lend", s.handleLend)
		sr.Post("/borrow", s.handleBorrow)
		sr.Post("/claim", s.handleClaim)
		sr.Post("/unstake", s.handleUnstake)
		sr.Get("/{collection}/{assetID}", s.handleLendingInfo)
	})

	r.Route("/v1/admin", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware(RateLimitKeyLease))
		}
		if s.adminAuth != nil {
			sr.Use(s.adminAuth.Middleware(ScopeLeaseAdmin))
		}
		sr.Post("/refund", s.handleRefund)
		sr.Post("/whitelist", s.handleWhitelist)
		sr.Post("/original", s.handleSetOriginal)
		sr.Post("/linker", s.handleLinker)
	})

	r.Route("/v1/relay", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware(RateLimitKeyRelay))
		}
		sr.Post("/execute", s.handleRelayExecute)
	})

	return r
}

type lendRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Price      string `json:"price"`
	MinTime    int64  `json:"minTime"`
	MaxTime    int64  `json:"maxTime"`
	Deadline   int64  `json:"deadline"`
}

type borrowRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Expires    int64  `json:"expires"`
	Payment    string `json:"payment"`
}

type claimRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

type unstakeRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	AutoClaim  bool   `json:"autoClaim"`
}

type refundRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Recipient  string `json:"recipient"`
}

type whitelistRequest struct {
	Caller   string `json:"caller"`
	Original string `json:"original"`
	Wrapped  string `json:"wrapped"`
}

type setOriginalRequest struct {
	Caller  string `json:"caller"`
	Network string `json:"network"`
	Remote  string `json:"remote"`
}

type linkerRequest struct {
	Caller  string `json:"caller"`
	Network string `json:"network"`
	Address string `json:"address"`
	Modify  bool   `json:"modify"`
}

type relayExecuteRequest struct {
	SourceNetwork string `json:"sourceNetwork"`
	SourceAddress string `json:"sourceAddress"`
	Payload       string `json:"payload"`
}

type listingResponse struct {
	Collection    string `json:"collection"`
	AssetID       uint64 `json:"assetId"`
	Owner         string `json:"owner"`
	Price         string `json:"price"`
	MinTime       int64  `json:"minTime"`
	MaxTime       int64  `json:"maxTime"`
	Deadline      int64  `json:"deadline"`
	Borrower      string `json:"borrower"`
	LatestReward  string `json:"latestReward"`
	TotalRewards  string `json:"totalRewards"`
	OriginNetwork string `json:"originNetwork"`
	Expires       int64  `json:"expires"`
	StartedAt     int64  `json:"startedAt"`
}

type claimResponse struct {
	Paid string `json:"paid"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newListingResponse(l *lease.Listing) listingResponse {
	return listingResponse{
		Collection:    common.Address(l.Collection).Hex(),
		AssetID:       l.AssetID,
		Owner:         common.Address(l.Owner).Hex(),
		Price:         bigString(l.Price),
		MinTime:       l.MinTime,
		MaxTime:       l.MaxTime,
		Deadline:      l.Deadline,
		Borrower:      common.Address(l.Borrower).Hex(),
		LatestReward:  bigString(l.LatestReward),
		TotalRewards:  bigString(l.TotalRewards),
		OriginNetwork: l.OriginNetwork,
		Expires:       l.Expires,
		StartedAt:     l.StartedAt,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) handleLend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req lendRequest
	if !s.decodeAuthenticated(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("price: %w", err))
		return
	}
	listing, err := s.engine.Lend(caller, collection, req.AssetID, price, req.MinTime, req.MaxTime, req.Deadline)
	s.observe("lend", err, start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListingResponse(listing))
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req borrowRequest
	if !s.decodeAuthenticated(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("payment: %w", err))
		return
	}
	listing, err := s.engine.Borrow(caller, collection, req.AssetID, req.Expires, payment)
	s.observe("borrow", err, start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingResponse(listing))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req claimRequest
	if !s.decodeAuthenticated(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	paid, err := s.engine.ClaimRewards(caller, collection, req.AssetID)
	s.observe("claim", err, start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Paid: bigString(paid)})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req unstakeRequest
	if !s.decodeAuthenticated(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	err = s.engine.Unstake(caller, collection, req.AssetID, req.AutoClaim)
	s.observe("unstake", err, start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "unstaked"})
}

func (s *Server) handleLendingInfo(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress(chi.URLParam(r, "collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	assetID, err := strconv.ParseUint(chi.URLParam(r, "assetID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("assetID: %w", err))
		return
	}
	listing, _ := s.engine.LendingInfo(collection, assetID)
	writeJSON(w, http.StatusOK, newListingResponse(listing))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("collection: %w", err))
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recipient: %w", err))
		return
	}
	err = s.engine.Refund(caller, collection, req.AssetID, recipient)
	s.observe("refund", err, start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "refunded"})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	original, err := parseAddress(req.Original)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("original: %w", err))
		return
	}
	wrapped, err := parseAddress(req.Wrapped)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("wrapped: %w", err))
		return
	}
	if err := s.engine.Whitelist(caller, original, wrapped); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "whitelisted"})
}

func (s *Server) handleSetOriginal(w http.ResponseWriter, r *http.Request) {
	var req setOriginalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	remote, err := parseAddress(req.Remote)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("remote: %w", err))
		return
	}
	if err := s.engine.SetOriginal(caller, req.Network, remote); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (s *Server) handleLinker(w http.ResponseWriter, r *http.Request) {
	var req linkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	if req.Modify {
		err = s.linkers.ModifyLinker(caller, req.Network, req.Address)
	} else {
		err = s.linkers.AddLinker(caller, req.Network, req.Address)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "linked"})
}

func (s *Server) handleRelayExecute(w http.ResponseWriter, r *http.Request) {
	var req relayExecuteRequest
	if !s.decodeAuthenticated(w, r, &req) {
		return
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Payload), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("payload: %w", err))
		return
	}
	err = s.gateway.Execute(relay.Message{
		SourceNetwork: req.SourceNetwork,
		SourceAddress: req.SourceAddress,
		Payload:       payload,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "executed"})
}

// decodeAuthenticated reads the body once, verifies the HMAC signature when an
// authenticator is configured, then unmarshals the request.
func (s *Server) decodeAuthenticated(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return false
	}
	if s.auth != nil {
		if _, err := s.auth.Authenticate(r, body); err != nil {
			s.logger.Warn("request authentication failed", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return false
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func (s *Server) observe(operation string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.LeaseMetrics().Observe(operation, outcome, time.Since(start))
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	return amount, nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, lease.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, lease.ErrListingExists), errors.Is(err, lease.ErrLeaseActive), errors.Is(err, lease.ErrAlreadyWhitelisted):
		return http.StatusConflict
	case errors.Is(err, lease.ErrNotOwner), errors.Is(err, lease.ErrNotAdmin), errors.Is(err, relay.ErrNotAdmin), errors.Is(err, relay.ErrUntrustedSender):
		return http.StatusForbidden
	case errors.Is(err, lease.ErrTermsOutOfBounds), errors.Is(err, lease.ErrWrongPayment), errors.Is(err, lease.ErrNotWhitelisted),
		errors.Is(err, lease.ErrNothingToClaim), errors.Is(err, lease.ErrRefundTooEarly), errors.Is(err, relay.ErrBadPayload),
		errors.Is(err, relay.ErrUnknownNetwork):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
