package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// caPasswordLimiter throttles guessing of the CA passphrase. Only requests
// that fail with a wrong CA password count. A successful CA operation resets
// the client's record; other failures leave it untouched.
type caPasswordLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	window   []time.Time
	// globalLockedUntil blocks every client once the global window fills.
	globalLockedUntil time.Time
	now               func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures = 5
	// baseLockout is the initial lockout duration after maxFailures is reached.
	baseLockout = 1 * time.Minute
	// maxLockout caps the exponential backoff.
	maxLockout = 15 * time.Minute
	// attemptExpiry is how long after the last failure a record is kept.
	attemptExpiry = 1 * time.Hour

	globalWindow      = 1 * time.Minute
	globalMaxFailures = 50
	globalLockout     = 5 * time.Minute

	sweepThreshold = 1024
)

func newCAPasswordLimiter() *caPasswordLimiter {
	return &caPasswordLimiter{
		attempts: make(map[string]*attemptRecord),
		now:      time.Now,
	}
}

// check reports whether client is currently locked out and for how long.
func (rl *caPasswordLimiter) check(client string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.globalLockedUntil) {
		return true, rl.globalLockedUntil.Sub(now)
	}
	rec, ok := rl.attempts[client]
	if !ok {
		return false, 0
	}
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, client)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

// recordFailure counts a wrong CA password and applies exponential backoff
// once maxFailures is reached.
func (rl *caPasswordLimiter) recordFailure(client string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.attempts) >= sweepThreshold {
		rl.sweepLocked(now)
	}
	rec, ok := rl.attempts[client]
	if !ok || now.Sub(rec.lastFailure) > attemptExpiry {
		rec = &attemptRecord{}
		rl.attempts[client] = rec
	}
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= maxFailures {
		// baseLockout * 2^(failures - maxFailures)
		lockout := baseLockout
		for i := 0; i < rec.failures-maxFailures; i++ {
			lockout *= 2
			if lockout > maxLockout {
				lockout = maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}

	rl.window = append(rl.window, now)
	cutoff := now.Add(-globalWindow)
	start := 0
	for start < len(rl.window) && rl.window[start].Before(cutoff) {
		start++
	}
	rl.window = rl.window[start:]
	if len(rl.window) >= globalMaxFailures {
		rl.globalLockedUntil = now.Add(globalLockout)
	}
}

func (rl *caPasswordLimiter) recordSuccess(client string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, client)
}

// sweepLocked removes expired records. rl.mu must be held.
func (rl *caPasswordLimiter) sweepLocked(now time.Time) {
	for id, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > attemptExpiry {
			delete(rl.attempts, id)
		}
	}
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error: "too many failed CA password attempts; try again later",
		Code:  "rate_limited",
	})
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ---------------------------------------------------------------------------
// Client IP
// ---------------------------------------------------------------------------

// clientIP returns the client address used as the rate limit key.
func (a *API) clientIP(r *http.Request) string {
	return extractClientIP(r, a.trustedProxies)
}

// extractClientIP returns the best-effort client IP address. Proxy headers
// (X-Forwarded-For, then X-Real-IP) are only honoured when RemoteAddr falls
// within one of trustedProxies.
func extractClientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}
	return remoteIP
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	// Drop zone (fe80::1%eth0).
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	return "", false
}
