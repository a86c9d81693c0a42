package auth

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/isdelr/goals-be/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MsgTooManyRequests is returned when a client exceeds the auth rate.
const MsgTooManyRequests = "Muitas tentativas. Tente novamente mais tarde."

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterMaxClients = 10000
)

// Limiter throttles credential endpoints per client IP with a token bucket.
type Limiter struct {
	limit      rate.Limit
	burst      int
	maxClients int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perMinute requests per client with the given burst.
// perMinute <= 0 disables limiting.
func NewLimiter(perMinute, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Limiter{limit: limit, burst: burst, maxClients: limiterMaxClients, clients: make(map[string]*client)}
}

// Allow reports whether key may make another attempt now.
func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.evict(now)
		}
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// evict drops idle clients, and the least recently seen one when none are
// idle, so the map never grows past maxClients. Callers hold l.mu.
func (l *Limiter) evict(now time.Time) {
	var (
		oldestKey  string
		oldestSeen time.Time
	)
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.clients, k)
			continue
		}
		if oldestKey == "" || c.lastSeen.Before(oldestSeen) {
			oldestKey, oldestSeen = k, c.lastSeen
		}
	}
	if len(l.clients) >= l.maxClients && oldestKey != "" {
		delete(l.clients, oldestKey)
	}
}

// Middleware rejects requests over the limit with 429. Clients are keyed
// on r.RemoteAddr, which is the socket peer unless the router was told to
// trust proxy headers.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !l.Allow(key) {
			metrics.RateLimitedTotal.Inc()
			log.Warn().Str("client_ip", key).Str("path", r.URL.Path).Msg("Auth rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			reject(w, http.StatusTooManyRequests, MsgTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
