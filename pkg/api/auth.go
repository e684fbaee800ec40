package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/tokens"
	"example.com/tokenledger/pkg/wallet"
)

const (
	HeaderPublicKey = "X-Public-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"

	maxBodyBytes = 1 << 20
)

const callerKey ctxKey = iota + 1

// SigningPayload is the message a client signs for a mutating request.
func SigningPayload(method, path string, timestamp int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte(' ')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// SignRequest sets the auth headers on req for body, signed by w.
func SignRequest(req *http.Request, w *wallet.Wallet, timestamp int64, body []byte) {
	sig := w.SignMessage(SigningPayload(req.Method, req.URL.Path, timestamp, body))
	req.Header.Set(HeaderPublicKey, w.ExportPublicKey())
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
}

// authenticator verifies request signatures and rejects replays inside
// the accepted clock window.
type authenticator struct {
	mu      sync.Mutex
	maxSkew time.Duration
	now     func() time.Time
	seen    map[string]time.Time
}

func newAuthenticator(maxSkew time.Duration, now func() time.Time) *authenticator {
	return &authenticator{maxSkew: maxSkew, now: now, seen: make(map[string]time.Time)}
}

func (a *authenticator) verify(r *http.Request, body []byte) (tokens.AccountID, error) {
	pub, err := wallet.ParsePublicKey(r.Header.Get(HeaderPublicKey))
	if err != nil {
		return tokens.AccountID{}, err
	}
	sig, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil || len(sig) == 0 {
		return tokens.AccountID{}, wallet.ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return tokens.AccountID{}, xerrors.New("missing or malformed timestamp")
	}

	now := a.now()
	at := time.Unix(ts, 0)
	if at.Before(now.Add(-a.maxSkew)) || at.After(now.Add(a.maxSkew)) {
		return tokens.AccountID{}, xerrors.Errorf("timestamp %d outside accepted window", ts)
	}
	if err := wallet.VerifySignature(SigningPayload(r.Method, r.URL.Path, ts, body), sig, pub); err != nil {
		return tokens.AccountID{}, err
	}

	key := hex.EncodeToString(sig)
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, t := range a.seen {
		if now.Sub(t) > 2*a.maxSkew {
			delete(a.seen, k)
		}
	}
	if _, dup := a.seen[key]; dup {
		return tokens.AccountID{}, xerrors.New("replayed request")
	}
	a.seen[key] = now
	return wallet.AccountIDFromPublicKey(pub), nil
}

// Auth middleware checks the request signature and stores the caller
func (api *API) Auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if xerrors.As(err, &tooLarge) {
				api.writeJSONResponse(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}
			api.writeJSONResponse(w, http.StatusBadRequest, "Unreadable body", nil)
			return
		}
		caller, err := api.auth.verify(r, body)
		if err != nil {
			api.writeJSONResponse(w, http.StatusUnauthorized, "Unauthorized: "+err.Error(), nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	}
}

func callerFrom(ctx context.Context) (tokens.AccountID, bool) {
	c, ok := ctx.Value(callerKey).(tokens.AccountID)
	return c, ok
}
