package service

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/auth"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
)

// userContextKey is the gin context key under which the authenticated user
// is stored for the downstream handlers.
const userContextKey = "currentUser"

// authenticated verifies the bearer access token and loads the account it
// belongs to. Requests without a valid token are answered with UNAUTHORIZED
// before any handler runs.
func (s *Service) authenticated(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
		return
	}
	userID, err := s.tokens.Validate(tokenString, auth.ScopeAccess)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
		return
	}
	user, err := s.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unknown account"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

// currentUser returns the account stored by the authenticated middleware.
// Routes using it are always registered behind that middleware.
func currentUser(c *gin.Context) model.User {
	return c.MustGet(userContextKey).(model.User)
}

// requireRole lets the request pass only when the authenticated user has one
// of the listed roles. The search and store layers never see the role; the
// gate lives entirely up here.
func (s *Service) requireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "operation forbidden for role"})
	}
}

// visitorLimiter keeps one token bucket per client. Buckets are keyed by the
// authenticated user, or by the client IP for anonymous requests.
type visitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newVisitorLimiter(requests int, window time.Duration) *visitorLimiter {
	return &visitorLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
	}
}

func (v *visitorLimiter) allow(key string) bool {
	v.mu.Lock()
	limiter, ok := v.visitors[key]
	if !ok {
		limiter = rate.NewLimiter(v.limit, v.burst)
		v.visitors[key] = limiter
	}
	v.mu.Unlock()
	return limiter.Allow()
}

// rateLimited answers with TOO MANY REQUESTS once the client exhausted its
// bucket. Applied to the list and free-text search endpoints, capped at 10
// requests per minute by default.
func (s *Service) rateLimited(c *gin.Context) {
	key := c.ClientIP()
	if raw, ok := c.Get(userContextKey); ok {
		user := raw.(model.User)
		key = "user:" + strings.TrimSpace(user.Email)
	}
	if !s.limiter.allow(key) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
		return
	}
	c.Next()
}
