package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/cache"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
)

// IdempotencyStore is implemented by *cache.Idempotency.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (*cache.StoredResponse, bool, error)
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Save(ctx context.Context, key string, resp *cache.StoredResponse) error
	Release(ctx context.Context, key, token string) error
}

// Idempotency replays the stored 2xx response for a repeated Idempotency-Key
// and rejects a duplicate that arrives while the first is still running.
// Keys are scoped to the caller, method and path. Use after Auth.
// When the store is unreachable the request runs without replay protection.
func Idempotency(store IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if header == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			key := scopedKey(r, header)
			ctx := r.Context()

			stored, ok, err := store.Lookup(ctx, key)
			if err != nil {
				logger.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if ok {
				replay(w, stored)
				return
			}

			token, acquired, err := store.Acquire(ctx, key)
			if err != nil {
				logger.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				http.Error(w, `{"error":"a request with this idempotency key is in progress","code":"IDEMPOTENCY_KEY_IN_USE"}`, http.StatusConflict)
				return
			}
			bg := context.WithoutCancel(ctx)
			defer func() {
				if err := store.Release(bg, key, token); err != nil {
					logger.Warn("idempotency release failed", "error", err)
				}
			}()

			// The first holder may have saved and released between our
			// lookup and acquire.
			stored, ok, err = store.Lookup(ctx, key)
			if err != nil {
				logger.Warn("idempotency store unavailable", "error", err)
			} else if ok {
				replay(w, stored)
				return
			}

			var body bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}
			resp := &cache.StoredResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			}
			if err := store.Save(bg, key, resp); err != nil {
				logger.Warn("idempotency save failed", "error", err)
			}
		})
	}
}

func scopedKey(r *http.Request, header string) string {
	caller := "anonymous"
	if p := PrincipalFromCtx(r.Context()); p != nil {
		caller = p.UserID.String()
	}
	return caller + ":" + r.Method + " " + r.URL.Path + ":" + header
}

func replay(w http.ResponseWriter, resp *cache.StoredResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
