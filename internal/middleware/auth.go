package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/config"
	"github.com/castlane/timeline/pkg/logging"
)

var errInvalidToken = errors.New("invalid token")

// Claims is the viewer token issued by the upstream auth service.
// Subject holds the profile id.
type Claims struct {
	Kind models.ProfileKind `json:"kind"`
	jwt.RegisteredClaims
}

// Authenticator verifies viewer tokens
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator for HS256 tokens
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	a := &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		logger: logging.WithComponent("auth"),
	}
	if len(a.secret) == 0 {
		a.logger.Warn("No JWT secret configured; every bearer token will be rejected")
	}
	return a
}

// Parse verifies token and returns the viewer it names
func (a *Authenticator) Parse(token string) (viewer.Viewer, error) {
	if len(a.secret) == 0 {
		return viewer.Anonymous(), errInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return viewer.Anonymous(), errInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || !claims.Kind.Valid() {
		return viewer.Anonymous(), errInvalidToken
	}
	return viewer.FromRef(models.ProfileRef{ID: id, Kind: claims.Kind}), nil
}

// Issue signs a token for ref. The upstream auth service owns issuance;
// this exists for local tooling and tests.
func (a *Authenticator) Issue(ref models.ProfileRef, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: ref.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(ref.ID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Viewer resolves the request's viewer. A missing Authorization header is an
// anonymous viewer; a malformed or invalid token is rejected with 401.
func (a *Authenticator) Viewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Request = c.Request.WithContext(viewer.WithViewer(c.Request.Context(), viewer.Anonymous()))
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortUnauthorized(c)
			return
		}
		v, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			logging.WithContext(c.Request.Context()).Debug("Rejected viewer token", zap.Error(err))
			abortUnauthorized(c)
			return
		}

		c.Request = c.Request.WithContext(viewer.WithViewer(c.Request.Context(), v))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "invalid or expired token",
	})
}
