package middleware

import (
	"strconv"
	"sync"
	"time"

	"license-authority/pkg/errutil"
	"license-authority/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. A bucket holds limit
// tokens and refills completely over window.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	lastGC   time.Time
	now      func() time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.window {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.window {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		v = &visitor{limiter: rate.NewLimiter(every, l.limit)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func RateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			response.Fail(c, errutil.TooManyRequest("Too many requests from this IP, please try again later.", nil,
				errutil.WithReason("RateLimited")))
			return
		}
		c.Next()
	}
}
