package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 按客户端IP限流的中间件，
// 每个IP维护独立的令牌桶，长期不活跃的桶会被回收
type RateLimitMiddleware struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	limit    rate.Limit
	burst    int
	lastScan time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// 超过这个时长没有请求的IP，其令牌桶会在下次扫描时回收
const bucketIdleTTL = 3 * time.Minute

// NewRateLimitMiddleware 创建限流中间件，rpm 为每分钟请求数上限
func NewRateLimitMiddleware(rpm, burst int) *RateLimitMiddleware {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &RateLimitMiddleware{
		clients:  make(map[string]*clientBucket),
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
		lastScan: time.Now(),
	}
}

// Limit 限流处理函数，超限时返回429
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "请求频率超限",
			})
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) allow(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastScan) > bucketIdleTTL {
		for key, b := range m.clients {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(m.clients, key)
			}
		}
		m.lastScan = now
	}

	b := m.clients[ip]
	if b == nil {
		b = &clientBucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.clients[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
