package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// HashKey returns the SHA-256 hex digest of a raw admin key, the form stored
// in configuration.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RequireKey guards administrative handlers. The presented key is hashed and
// compared against hashes; an empty hash list rejects every request.
func RequireKey(hashes []string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		allowed = append(allowed, []byte(strings.ToLower(strings.TrimSpace(h))))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing admin key")
				return
			}
			presented := []byte(HashKey(key))
			for _, a := range allowed {
				if subtle.ConstantTimeCompare(presented, a) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "invalid admin key")
		})
	}
}

// extractKey reads the key from Authorization: Bearer, then X-API-Key.
func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
