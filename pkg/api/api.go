package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"example.com/tokenledger/pkg/chain"
	"example.com/tokenledger/pkg/contracts/loan"
	"example.com/tokenledger/pkg/contracts/randkey"
	"example.com/tokenledger/pkg/logger"
	"example.com/tokenledger/pkg/tokens"
)

// Options tunes the API. Zero values fall back to defaults.
type Options struct {
	RateLimit  float64
	RateBurst  int
	CORSOrigin string
	OpTimeout  time.Duration
	// MaxSkew bounds how far X-Timestamp may drift from the server clock.
	MaxSkew time.Duration
}

// API represents the REST API for the token ledger
type API struct {
	host        *chain.Host
	feed        http.Handler
	log         *logger.Logger
	RateLimiter *rate.Limiter
	corsOrigin  string
	opTimeout   time.Duration
	auth        *authenticator
}

// NewAPI initializes a new API instance. feed serves GET /events/ws and
// may be nil.
func NewAPI(host *chain.Host, feed http.Handler, opts Options, log *logger.Logger) *API {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	if opts.MaxSkew <= 0 {
		opts.MaxSkew = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		host:        host,
		feed:        feed,
		log:         log,
		RateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		corsOrigin:  opts.CORSOrigin,
		opTimeout:   opts.OpTimeout,
		auth:        newAuthenticator(opts.MaxSkew, time.Now),
	}
}

// Response structure for API responses
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Helper function to write JSON responses
func (api *API) writeJSONResponse(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Status:  http.StatusText(status),
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.log.Warn("failed to write response", "error", err)
	}
}

// writeError maps contract and ledger failures onto HTTP statuses.
func (api *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var data interface{}
	var kind tokens.Error
	switch {
	case errors.As(err, &kind):
		data = map[string]string{"error": kind.Kind()}
	case errors.Is(err, loan.ErrOnlyForOwner):
		data = map[string]string{"error": "OnlyForOwner"}
	case errors.Is(err, randkey.ErrFailGetRandomSource):
		data = map[string]string{"error": "FailGetRandomSource"}
	}
	if status == http.StatusInternalServerError {
		api.log.Error("request failed", "error", err)
	}
	api.writeJSONResponse(w, status, err.Error(), data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tokens.ErrInsufficientBalance),
		errors.Is(err, tokens.ErrInsufficientAllowance),
		errors.Is(err, tokens.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tokens.ErrOnlyForCreator), errors.Is(err, loan.ErrOnlyForOwner):
		return http.StatusForbidden
	case errors.Is(err, randkey.ErrFailGetRandomSource):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- Middleware Features ---

type ctxKey int

const requestIDKey ctxKey = iota

// Logger middleware tags each request with an id and logs it
func (api *API) Logger(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		api.log.Info("request", "request_id", id, "method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	}
}

// CORS middleware handles cross-origin resource sharing
func (api *API) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", api.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Public-Key, X-Signature, X-Timestamp, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// RateLimit middleware limits the rate of requests
func (api *API) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !api.RateLimiter.Allow() {
			api.writeJSONResponse(w, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next(w, r)
	}
}

func (api *API) public(h http.HandlerFunc) http.HandlerFunc {
	return api.Logger(api.CORS(api.RateLimit(h)))
}

func (api *API) signed(h http.HandlerFunc) http.HandlerFunc {
	return api.Logger(api.CORS(api.RateLimit(api.Auth(h))))
}

// --- API Initialization ---

// Router wires every route.
func (api *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", api.public(api.Health)).Methods(http.MethodGet)
	r.HandleFunc("/token", api.public(api.GetToken)).Methods(http.MethodGet)
	r.HandleFunc("/balances/{account}", api.public(api.GetBalance)).Methods(http.MethodGet)
	r.HandleFunc("/allowances/{owner}/{spender}", api.public(api.GetAllowance)).Methods(http.MethodGet)
	r.HandleFunc("/events", api.public(api.GetEvents)).Methods(http.MethodGet)
	r.HandleFunc("/receipts", api.public(api.GetReceipts)).Methods(http.MethodGet)
	r.HandleFunc("/delegate/{owner}", api.public(api.GetDelegate)).Methods(http.MethodGet)
	r.HandleFunc("/loan", api.public(api.GetLoan)).Methods(http.MethodGet)
	r.HandleFunc("/random", api.public(api.GetRandom)).Methods(http.MethodGet)
	if api.feed != nil {
		r.Handle("/events/ws", api.feed).Methods(http.MethodGet)
	}

	write := []string{http.MethodPost, http.MethodOptions}
	r.HandleFunc("/transfer", api.signed(api.Transfer)).Methods(write...)
	r.HandleFunc("/approve", api.signed(api.Approve)).Methods(write...)
	r.HandleFunc("/transfer-from", api.signed(api.TransferFrom)).Methods(write...)
	r.HandleFunc("/issue", api.signed(api.Issue)).Methods(write...)
	r.HandleFunc("/burn", api.signed(api.Burn)).Methods(write...)
	r.HandleFunc("/loan/recharge", api.signed(api.RechargeForBorrowing)).Methods(write...)
	r.HandleFunc("/loan/ratio", api.signed(api.SetMinCollateralRatio)).Methods(write...)
	r.HandleFunc("/random/update", api.signed(api.UpdateRandom)).Methods(write...)

	return r
}

// Serve runs the API on addr until ctx is done. tlsConfig may be nil.
func (api *API) Serve(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	api.log.Info("API running", "addr", addr, "tls", tlsConfig != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
