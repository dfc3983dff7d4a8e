package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem guards checkout-style endpoints against duplicate submissions. The
// first request carrying a given Idempotency-Key claims it in Redis for TTL;
// any replay inside that window is rejected with 409 before the handler runs.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemRedisKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "idempotency:" + hex.EncodeToString(sum[:])
}

// Middleware applies the guard. Requests without an Idempotency-Key pass
// through untouched, as does every request when no Redis client is wired.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Idempotency-Key")
		if raw == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		claimed, err := i.R.SetNX(r.Context(), idemRedisKey(raw), 1, i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
