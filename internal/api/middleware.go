package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

const (
	accountKey = "account"
	sessionKey = "authz_session"
	tokenKey   = "token"
	loggerKey  = "logger"
)

// Redirect targets returned with denied requests
const (
	SignInPath       = "/signin"
	UnauthorizedPath = "/unauthorized"
)

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Set(loggerKey, log)

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}
		if account := currentAccount(c); account != nil {
			event = event.Str("account_id", account.ID)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func loggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(zerolog.Logger); ok {
			return &log
		}
	}
	nop := zerolog.Nop()
	return &nop
}

// Guard resolves the caller's account and applies route requirements
type Guard struct {
	accounts service.AccountService
	metrics  *metrics.Metrics
}

// NewGuard creates a guard backed by the account service
func NewGuard(accounts service.AccountService, m *metrics.Metrics) *Guard {
	return &Guard{accounts: accounts, metrics: m}
}

// RequireAuth admits any signed-in account
func (g *Guard) RequireAuth() gin.HandlerFunc {
	return g.require(authz.Requirement{})
}

// RequireRole admits accounts at or above role
func (g *Guard) RequireRole(role authz.Role) gin.HandlerFunc {
	return g.require(authz.Requirement{Role: role})
}

// RequirePermission admits accounts whose stored permissions include perm
func (g *Guard) RequirePermission(perm authz.Permission) gin.HandlerFunc {
	return g.require(authz.Requirement{Permission: perm})
}

func (g *Guard) require(req authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		gate := authz.NewGate(req)
		decision := gate.Resolve(g.session(c))
		g.metrics.ObserveDecision(decision)

		switch decision {
		case authz.DecisionAllow:
			c.Next()
		case authz.DecisionRedirectSignIn:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "authentication required",
				"redirect": SignInPath,
			})
		case authz.DecisionRedirectUnauthorized:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"redirect": UnauthorizedPath,
			})
		default:
			// account lookup failed for a reason other than the token
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":  "account could not be resolved",
				"status": authz.DecisionPending.String(),
			})
		}
	}
}

// session resolves the caller once per request
func (g *Guard) session(c *gin.Context) authz.Session {
	if v, ok := c.Get(sessionKey); ok {
		return v.(authz.Session)
	}

	s := authz.Session{Resolved: true}
	token := bearerToken(c)
	if token != "" {
		account, err := g.accounts.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			s.Authenticated = true
			s.Role = account.Role
			s.Permissions = account.GrantedPermissions()
			c.Set(accountKey, account)
			c.Set(tokenKey, token)
		case errors.Is(err, service.ErrUnauthorized):
		default:
			loggerFrom(c).Error().Err(err).Msg("Account lookup failed")
			s.Resolved = false
		}
	}
	c.Set(sessionKey, s)
	return s
}

// bearerToken reads the Authorization header, or the token query parameter
// for websocket upgrades
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// currentAccount returns the account a guard admitted, or nil
func currentAccount(c *gin.Context) *models.Account {
	if v, ok := c.Get(accountKey); ok {
		if a, ok := v.(*models.Account); ok {
			return a
		}
	}
	return nil
}
