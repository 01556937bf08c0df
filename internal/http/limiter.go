package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimited is the result a throttled request carries, so clients can
// tell it apart from a swipe's quota_exceeded.
const RateLimited = "rate_limited"

// limiterIdle is how long a caller's bucket survives without traffic.
const limiterIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      r,
		burst:    b,
		now:      time.Now,
	}
}

func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Prune forgets callers idle for longer than limiterIdle.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdle)
	n := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			n++
		}
	}
	return n
}

// RateLimitMiddleware limits per caller, falling back to the client IP on
// routes without a caller.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := callerID(c); id != 0 {
			key = "user:" + strconv.FormatUint(uint64(id), 10)
		}
		l := limiter.GetLimiter(key)
		if !l.Allow() {
			if l.Limit() > 0 {
				wait := math.Ceil(1 / float64(l.Limit()))
				c.Header("Retry-After", strconv.Itoa(int(math.Max(wait, 1))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"result": RateLimited, "error": "Too many requests. Please wait."})
			return
		}
		c.Next()
	}
}
