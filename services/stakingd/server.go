package stakingd

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftstake/crypto"
	"nftstake/gateway/middleware"
	stake "nftstake/native/nftstake"
)

// Rate limit groups.
const (
	routeGroupLedger = "ledger"
	routeGroupAdmin  = "admin"
)

const maxRequestBody = 1 << 16

// ServerOptions wires the HTTP surface.
type ServerOptions struct {
	Node          *Node
	Journal       *Journal
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Server exposes the staking ledger over HTTP.
type Server struct {
	node           *Node
	journal        *Journal
	logger         *slog.Logger
	originPatterns []string
	router         http.Handler
}

// NewServer builds the router.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:           opts.Node,
		journal:        opts.Journal,
		logger:         logger,
		originPatterns: originPatterns(opts.CORS.AllowedOrigins),
	}
	s.router = s.buildRouter(opts)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter(opts ServerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(opts.CORS))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	group := func(name string, scopes ...string) func(chi.Router) {
		return func(sr chi.Router) {
			if opts.Observability != nil {
				sr.Use(opts.Observability.Middleware(name))
			}
			if opts.Authenticator != nil {
				sr.Use(opts.Authenticator.Middleware(scopes...))
			}
			if opts.RateLimiter != nil {
				sr.Use(opts.RateLimiter.Middleware(name))
			}
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(ledger chi.Router) {
			group(routeGroupLedger)(ledger)
			ledger.Post("/stake", s.handleStake)
			ledger.Post("/stake/batch", s.handleStakeBatch)
			ledger.Post("/unstake", s.handleUnstake)
			ledger.Post("/unstake/batch", s.handleUnstakeBatch)
			ledger.Post("/withdraw", s.handleWithdraw)
			ledger.Post("/claim", s.handleClaim)
			ledger.Post("/registry/approve", s.handleApprove)

			ledger.Get("/params", s.handleParams)
			ledger.Get("/records/{tokenID}", s.handleRecord)
			ledger.Get("/tokens/{tokenID}", s.handleToken)
			ledger.Get("/holders/{addr}", s.handleHolder)
			ledger.Get("/holders/{addr}/pending", s.handlePending)
			ledger.Get("/holders/{addr}/rewards", s.handleRewards)
			ledger.Get("/events", s.handleEvents)
			ledger.Get("/events/stream", s.handleEventStream)
		})
		v1.Route("/admin", func(admin chi.Router) {
			group(routeGroupAdmin)(admin)
			admin.Post("/pause", s.handlePause)
			admin.Post("/unpause", s.handleUnpause)
			admin.Post("/reward-rate", s.handleSetRewardRate)
			admin.Post("/claim-delay", s.handleSetClaimDelay)
			admin.Post("/unbonding-period", s.handleSetUnbondingPeriod)
			admin.Post("/upgrade", s.handleUpgrade)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.node.Initialized() {
		status = "uninitialized"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "journalHead": s.journalHead()})
}

func (s *Server) journalHead() int64 {
	if s.journal == nil {
		return 0
	}
	return s.journal.Head()
}

// --- request bodies ---

type tokenRequest struct {
	TokenID *uint64 `json:"tokenId"`
}

type batchRequest struct {
	TokenIDs []uint64 `json:"tokenIds"`
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

type uintRequest struct {
	Value *uint64 `json:"value"`
}

type secondsRequest struct {
	Seconds *int64 `json:"seconds"`
}

type versionRequest struct {
	Version *uint32 `json:"version"`
}

// --- views ---

// recordView carries unstakeRequestedAt only while the token is unbonding.
type recordView struct {
	TokenID            uint64 `json:"tokenId"`
	Holder             string `json:"holder"`
	StakedAt           int64  `json:"stakedAt"`
	LastClaimAt        int64  `json:"lastClaimAt"`
	UnstakeRequestedAt *int64 `json:"unstakeRequestedAt,omitempty"`
	Status             string `json:"status"`
}

func newRecordView(rec *stake.StakeRecord) recordView {
	view := recordView{
		TokenID:     rec.TokenID,
		Holder:      addressString(rec.Holder),
		StakedAt:    rec.StakedAt,
		LastClaimAt: rec.LastClaimAt,
		Status:      rec.Status.String(),
	}
	if at, ok := rec.UnstakeRequested(); ok {
		view.UnstakeRequestedAt = &at
	}
	return view
}

func newRecordViews(records []*stake.StakeRecord) []recordView {
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, newRecordView(rec))
	}
	return out
}

type paramsView struct {
	Admin           string `json:"admin"`
	Custodian       string `json:"custodian"`
	Registry        string `json:"registry"`
	RewardRate      uint64 `json:"rewardRate"`
	ClaimDelay      int64  `json:"claimDelaySeconds"`
	UnbondingPeriod int64  `json:"unbondingPeriodSeconds"`
	Paused          bool   `json:"paused"`
	Version         uint32 `json:"version"`
	InitializedAt   int64  `json:"initializedAt"`
}

func newParamsView(p *stake.Params) paramsView {
	return paramsView{
		Admin:           addressString(p.Admin),
		Custodian:       addressString(p.Custodian),
		Registry:        p.Registry,
		RewardRate:      p.RewardRate,
		ClaimDelay:      p.ClaimDelay,
		UnbondingPeriod: p.UnbondingPeriod,
		Paused:          p.Paused,
		Version:         p.Version,
		InitializedAt:   p.InitializedAt,
	}
}

type claimView struct {
	Holder    string   `json:"holder"`
	Amount    string   `json:"amount"`
	Symbol    string   `json:"symbol"`
	TokenIDs  []uint64 `json:"tokenIds"`
	ClaimedAt int64    `json:"claimedAt"`
}

type pendingView struct {
	Holder       string `json:"holder"`
	Amount       string `json:"amount"`
	StakedTokens int    `json:"stakedTokens"`
	ClaimableAt  int64  `json:"claimableAt,omitempty"`
	ClaimableNow bool   `json:"claimableNow"`
	ComputedAt   int64  `json:"computedAt"`
}

type rewardsView struct {
	Holder       string `json:"holder"`
	Symbol       string `json:"symbol"`
	Balance      string `json:"balance"`
	TotalClaimed string `json:"totalClaimed"`
	LastClaimAt  int64  `json:"lastClaimAt"`
	Claims       uint64 `json:"claims"`
}

type tokenView struct {
	TokenID  uint64 `json:"tokenId"`
	Owner    string `json:"owner"`
	URI      string `json:"uri,omitempty"`
	MintedAt int64  `json:"mintedAt"`
}

// --- ledger handlers ---

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TokenID == nil {
		writeError(w, http.StatusBadRequest, "tokenId required")
		return
	}
	rec, err := s.node.Stake(r.Context(), caller, *req.TokenID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleStakeBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	records, err := s.node.StakeBatch(r.Context(), caller, req.TokenIDs)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": newRecordViews(records)})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TokenID == nil {
		writeError(w, http.StatusBadRequest, "tokenId required")
		return
	}
	rec, err := s.node.Unstake(r.Context(), caller, *req.TokenID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleUnstakeBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	records, err := s.node.UnstakeBatch(r.Context(), caller, req.TokenIDs)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": newRecordViews(records)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TokenID == nil {
		writeError(w, http.StatusBadRequest, "tokenId required")
		return
	}
	rec, err := s.node.Withdraw(r.Context(), caller, *req.TokenID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	result, err := s.node.Claim(r.Context(), caller)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimView{
		Holder:    addressString(result.Holder),
		Amount:    bigString(result.Amount),
		Symbol:    s.node.RewardSymbol(),
		TokenIDs:  result.TokenIDs,
		ClaimedAt: result.ClaimedAt,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	if err := s.node.Approve(r.Context(), caller, approved); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": addressString(caller), "approved": approved})
}

// --- queries ---

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.node.Params()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newParamsView(params))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenParam(w, r)
	if !ok {
		return
	}
	rec, err := s.node.Record(tokenID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenParam(w, r)
	if !ok {
		return
	}
	tok, err := s.node.Token(tokenID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenView{TokenID: tok.ID, Owner: addressString(tok.Owner), URI: tok.URI, MintedAt: tok.MintedAt})
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(w, r)
	if !ok {
		return
	}
	records, err := s.node.HolderRecords(holder)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": addressString(holder), "records": newRecordViews(records)})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(w, r)
	if !ok {
		return
	}
	pending, err := s.node.PendingRewards(holder)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingView{
		Holder:       addressString(holder),
		Amount:       bigString(pending.Amount),
		StakedTokens: pending.StakedTokens,
		ClaimableAt:  pending.ClaimableAt,
		ClaimableNow: pending.ClaimableNow,
		ComputedAt:   pending.ComputedAtUnix,
	})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(w, r)
	if !ok {
		return
	}
	account, err := s.node.RewardAccount(holder)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	balance, err := s.node.RewardBalance(holder)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardsView{
		Holder:       addressString(holder),
		Symbol:       s.node.RewardSymbol(),
		Balance:      bigString(balance),
		TotalClaimed: bigString(account.TotalClaimed),
		LastClaimAt:  account.LastClaimAt,
		Claims:       account.Claims,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal unavailable")
		return
	}
	query := r.URL.Query()
	after, err := parseCursor(query.Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}
	entries, err := s.journal.List(r.Context(), after, limit)
	if err != nil {
		s.logger.Error("list journal", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries, "next": next})
}

// --- admin handlers ---

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	params, err := s.node.Pause(r.Context(), caller)
	s.writeParams(w, params, err)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	params, err := s.node.Unpause(r.Context(), caller)
	s.writeParams(w, params, err)
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req uintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value required")
		return
	}
	params, err := s.node.SetRewardRate(r.Context(), caller, *req.Value)
	s.writeParams(w, params, err)
}

func (s *Server) handleSetClaimDelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req secondsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Seconds == nil || *req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "seconds must be a non-negative integer")
		return
	}
	params, err := s.node.SetClaimDelay(r.Context(), caller, *req.Seconds)
	s.writeParams(w, params, err)
}

func (s *Server) handleSetUnbondingPeriod(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req secondsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Seconds == nil || *req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "seconds must be a non-negative integer")
		return
	}
	params, err := s.node.SetUnbondingPeriod(r.Context(), caller, *req.Seconds)
	s.writeParams(w, params, err)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req versionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Version == nil {
		writeError(w, http.StatusBadRequest, "version required")
		return
	}
	params, err := s.node.Upgrade(r.Context(), caller, *req.Version)
	s.writeParams(w, params, err)
}

func (s *Server) writeParams(w http.ResponseWriter, params *stake.Params, err error) {
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newParamsView(params))
}

// --- helpers ---

// statusFor maps ledger failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, stake.ErrRecordNotFound), errors.Is(err, stake.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, stake.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, stake.ErrNotInitialized):
		return http.StatusServiceUnavailable
	}
	switch outcomeOf(err) {
	case stake.KindAuthorization:
		return http.StatusForbidden
	case stake.KindTiming:
		return http.StatusTooEarly
	case stake.KindState:
		return http.StatusConflict
	case stake.KindValidation:
		return http.StatusBadRequest
	case stake.KindAvailability:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger request failed", slog.Any("error", err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func requireCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return [20]byte{}, false
	}
	return caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func tokenParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return 0, false
	}
	return id, true
}

func addressParam(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return [20]byte{}, false
	}
	return addr, true
}

func addressString(raw [20]byte) string {
	return crypto.FromRaw(raw).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// originPatterns converts CORS origins into websocket origin patterns, which
// match on host only.
func originPatterns(origins []string) []string {
	var out []string
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if idx := strings.Index(origin, "://"); idx >= 0 {
			origin = origin[idx+3:]
		}
		out = append(out, origin)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
