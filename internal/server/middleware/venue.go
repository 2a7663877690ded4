package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/quorumlabs/settled/internal/crypto"
)

// maxReportBody caps how much of a venue report the verifier will read.
const maxReportBody = 1 << 20

// VenueSignature returns middleware that verifies the HMAC signature on
// venue callback requests. The body is read for verification and restored
// for the downstream handler.
func VenueSignature(auth *crypto.VenueAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			ts := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if ts == "" || sig == "" {
				writeUnauthorized(w, "missing venue signature")
				return
			}

			if err := auth.Verify(r.Method, r.URL.Path, string(body), ts, sig, time.Now()); err != nil {
				writeUnauthorized(w, "invalid venue signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
