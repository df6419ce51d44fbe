package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/auth"
	"github.com/xenking/breeze-gateway/pkg/httpmiddleware"
)

// APIKeyHeader carries the merchant API key.
const APIKeyHeader = "api_key"

// Security authenticates merchant API requests via HMAC-SHA256 hashed API
// keys.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate rejects requests without a valid API key and stores the key
// in the request context.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		hexHash := auth.HashKey(s.pepper, key)
		info, err := s.apikeys.FindByHash(ctx, hexHash)
		if err != nil {
			zctx.From(ctx).Debug("API key lookup failed", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// The repository may return a row that does not match the hash.
		computed, _ := hex.DecodeString(hexHash)
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx = auth.WithKey(ctx, info)
		ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose key lacks scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := auth.KeyFrom(r.Context())
			if k == nil || !k.HasScope(scope) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
