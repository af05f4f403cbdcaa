package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-inventory/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-inventory/pkg/redis"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"

	DefaultIdempotencyTTL = 24 * time.Hour
	// DefaultIdempotencyPendingTTL bounds how long a crashed request blocks
	// its key.
	DefaultIdempotencyPendingTTL = time.Minute
)

// IdempotencyOptions sets how long a completed response is replayed and how
// long an in-flight claim lives. Zero values use the defaults.
type IdempotencyOptions struct {
	TTL        time.Duration
	PendingTTL time.Duration
}

func (o IdempotencyOptions) withDefaults() IdempotencyOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultIdempotencyTTL
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = DefaultIdempotencyPendingTTL
	}
	return o
}

type storedResponse struct {
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
	// Claim is set while the first request is still running.
	Claim string `json:"claim,omitempty"`
}

func (s storedResponse) pending() bool { return s.Claim != "" }

// Idempotency guards a mutating route with the Idempotency-Key header. The
// key is claimed before the handler runs so concurrent duplicates cannot
// both execute; a repeat with the same body replays the stored response and
// a different body is a 409. 5xx outcomes drop the claim so the caller may
// retry. Safe methods pass through untouched.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, opts IdempotencyOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyKeyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			hash := hashBody(body)
			claim, err := encodeStored(storedResponse{RequestHash: hash, Claim: uuid.NewString()})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim"))
				return
			}

			claimed, err := store.SetNX(ctx, key, claim, opts.PendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, logg, w, key, hash)
				return
			}

			capture := &bodyCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.status >= http.StatusInternalServerError {
				if _, err := store.DelIfEqual(ctx, key, claim); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency claim", err)
				}
				return
			}

			done, err := encodeStored(storedResponse{
				Status:      capture.status,
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				ContentType: capture.Header().Get("Content-Type"),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(ctx, key, done, opts.TTL)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotent response", err)
			}
		})
	}
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "idempotency claim expired"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
	case stored.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		stored.writeTo(w)
	}
}

func (s storedResponse) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	if body, err := base64.StdEncoding.DecodeString(s.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func encodeStored(s storedResponse) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}

// idempotencyScope keeps keys from colliding across callers, stores and
// routes.
func idempotencyScope(r *http.Request) string {
	p, _ := PrincipalFromContext(r.Context())
	return strings.Join([]string{p.UserID.String(), p.StoreID.String(), r.Method, r.URL.Path}, "|")
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type bodyCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (c *bodyCapture) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
