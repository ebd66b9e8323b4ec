package myratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mymetrics"
	"github.com/MarcGrol/stripeshop/lib/mytime"
)

// TrustedProxies is the number of proxies in front of the service whose
// X-Forwarded-For entries identify the caller.
type Config struct {
	PerMinute      int
	Burst          int
	IdleTimeout    time.Duration
	TrustedProxies int
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per caller key. Buckets idle for longer than
// IdleTimeout are evicted by Sweep, which Start runs periodically until Close.
type Limiter struct {
	sync.Mutex
	logger   mylog.Logger
	nower    mytime.Nower
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*keyLimiter
	proxies  int
	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, nower mytime.Nower) *Limiter {
	return &Limiter{
		logger:   mylog.New("ratelimit"),
		nower:    nower,
		limit:    rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:    cfg.Burst,
		idle:     cfg.IdleTimeout,
		limiters: map[string]*keyLimiter{},
		proxies:  cfg.TrustedProxies,
		stop:     make(chan struct{}),
	}
}

// Allow consumes one token for key. When denied it returns how long the caller should wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.nower.Now()

	l.Lock()
	defer l.Unlock()

	entry, found := l.limiters[key]
	if !found {
		entry = &keyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, l.idle
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep evicts buckets that have been idle for longer than the idle timeout.
func (l *Limiter) Sweep() int {
	now := l.nower.Now()

	l.Lock()
	defer l.Unlock()

	evicted := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.limiters, key)
			evicted++
		}
	}
	return evicted
}

func (l *Limiter) Size() int {
	l.Lock()
	defer l.Unlock()

	return len(l.limiters)
}

func (l *Limiter) Start(c context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				evicted := l.Sweep()
				if evicted > 0 {
					l.logger.Log(c, "", mylog.SeverityDebug, "Evicted %d idle rate limiters", evicted)
				}
			case <-l.stop:
				return
			case <-c.Done():
				return
			}
		}
	}()
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

type tooManyRequestsResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware rejects callers that exceed their budget with 429 and a Retry-After header.
func (l *Limiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := myhttp.ClientAddress(r, l.proxies)
			allowed, retryAfter := l.Allow(key)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			c := mycontext.ContextFromHTTPRequest(r)
			seconds := int(math.Ceil(retryAfter.Seconds()))
			l.logger.Log(c, key, mylog.SeverityWarn, "Rate limit exceeded on %s by %s (retry after %ds)", route, key, seconds)
			mymetrics.RecordRateLimited(route)

			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			myhttp.NewWriter(l.logger).Write(c, w, http.StatusTooManyRequests, tooManyRequestsResponse{
				Error:      "Too many payment requests. Please try again later.",
				RetryAfter: seconds,
			})
		})
	}
}
