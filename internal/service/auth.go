package service

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
)

// AuthService guards the trigger endpoints with a shared bearer secret
// and, when configured, gates destructive operations behind a TOTP code.
type AuthService struct {
	config *config.TriggerConfig
	logger *zap.Logger
}

func NewAuthService(cfg *config.TriggerConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		config: cfg,
		logger: logger,
	}
}

// TriggerAuthMiddleware checks the Authorization header of cron trigger
// calls against the shared secret. Comparison is constant-time.
func (a *AuthService) TriggerAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.config.Enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header ||
			subtle.ConstantTimeCompare([]byte(token), []byte(a.config.Secret)) != 1 {
			a.logger.Warn("Rejected trigger call", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireTOTP validates the X-Totp-Code header when a TOTP secret is
// configured. With no secret configured it is a no-op.
func (a *AuthService) RequireTOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.config.TOTPSecret == "" {
			c.Next()
			return
		}

		code := c.GetHeader("X-Totp-Code")
		if code == "" || !totp.Validate(code, a.config.TOTPSecret) {
			a.logger.Warn("TOTP validation failed", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "código de verificação inválido"})
			c.Abort()
			return
		}

		c.Next()
	}
}
