package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/holiman/uint256"

	"p2pswap/internal/config"
	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/types"
)

// HeaderAccount carries the caller address. Unless signatures are required
// the API trusts it once the bearer token has been accepted.
const HeaderAccount = "X-Account"

// nonceTTL keeps a nonce for as long as a request carrying it could still
// pass the timestamp check.
const nonceTTL = 2 * MaxTimeDrift

// Wallet is the token side of the API: allowances toward custody and
// balance lookups.
type Wallet interface {
	Approve(ctx context.Context, owner, token types.Address, amount *uint256.Int) error
	BalanceOf(account, token types.Address) *uint256.Int
	Allowance(owner, token types.Address) *uint256.Int
}

// LedgerWallet serves a single-node deployment straight from the ledger.
type LedgerWallet struct {
	*custody.Ledger
}

func (w LedgerWallet) Approve(_ context.Context, owner, token types.Address, amount *uint256.Int) error {
	w.Ledger.Approve(owner, token, amount)
	return nil
}

// Options configures the HTTP server.
type Options struct {
	Service matcher.Service
	Wallet  Wallet
	Auth    config.HTTPAuthConfig
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  logging.Logger
}

// Server exposes the matching engine over HTTP.
type Server struct {
	svc     matcher.Service
	wallet  Wallet
	auth    config.HTTPAuthConfig
	metrics http.Handler
	logger  logging.Logger
	now     func() time.Time

	nonceMu sync.Mutex
	nonces  *expirable.LRU[string, int64]
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefaultLogger()
	}
	return &Server{
		svc:     opts.Service,
		wallet:  opts.Wallet,
		auth:    opts.Auth,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     time.Now,
		nonces:  expirable.NewLRU[string, int64](0, nil, nonceTTL),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.authenticate)

		v1.Get("/intents", s.handleIntentsByPair)
		v1.Get("/intents/active", s.handleActiveIntents)
		v1.Get("/intents/expired", s.handleExpiredIntents)
		v1.Get("/intents/{id}", s.handleGetIntent)
		v1.Get("/users/{owner}/intents", s.handleUserIntents)
		v1.Get("/matches", s.handleMatches)
		v1.Get("/stats", s.handleStats)
		v1.Get("/relayers", s.handleRelayers)
		v1.Get("/configuration", s.handleConfiguration)
		v1.Get("/balances/{account}/{token}", s.handleBalance)

		v1.Group(func(cmd chi.Router) {
			cmd.Use(requireCaller, s.verifySignature)
			cmd.Post("/intents", s.handleSubmit)
			cmd.Delete("/intents/{id}", s.handleCancel)
			cmd.Post("/intents/{id}/fallback", s.handleFallback)
			cmd.Post("/match/batch", s.handleBatchMatch)
			cmd.Post("/custody/approve", s.handleApprove)

			cmd.Route("/admin", func(admin chi.Router) {
				admin.Post("/relayers", s.handleAuthorizeRelayer)
				admin.Put("/configuration", s.handleUpdateConfiguration)
				admin.Post("/withdraw", s.handleEmergencyWithdraw)
				admin.Post("/ownership", s.handleTransferOwnership)
			})
		})
	})
	return r
}

// authenticate checks the static bearer tokens when auth is enabled.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !s.tokenAccepted(token) {
			s.logger.Warnf("auth: rejected token for %s %s", r.Method, r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenAccepted(token string) bool {
	ok := false
	for _, t := range s.auth.BearerTokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			ok = true
		}
	}
	return ok
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type callerKey struct{}

// requireCaller resolves X-Account into the request context.
func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderAccount))
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusUnauthorized, HeaderAccount+" header must carry a hex address")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, common.HexToAddress(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) types.Address {
	addr, _ := ctx.Value(callerKey{}).(types.Address)
	return addr
}
