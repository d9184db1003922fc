package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthenticatorParse(t *testing.T) {
	auth := NewAuthenticator(&config.AuthConfig{JWTSecret: "secret", Issuer: "castlane-auth"})
	other := NewAuthenticator(&config.AuthConfig{JWTSecret: "other", Issuer: "castlane-auth"})
	foreign := NewAuthenticator(&config.AuthConfig{JWTSecret: "secret", Issuer: "someone-else"})

	valid, err := auth.Issue(models.ProfileRef{ID: 7, Kind: models.KindCast}, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Issue(models.ProfileRef{ID: 7, Kind: models.KindCast}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.Issue(models.ProfileRef{ID: 7, Kind: models.KindCast}, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue(models.ProfileRef{ID: 7, Kind: models.KindCast}, time.Hour)
	require.NoError(t, err)
	badKind, err := auth.Issue(models.ProfileRef{ID: 7, Kind: "admin"}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "7", "kind": "cast", "iss": "castlane-auth"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    viewer.Viewer
		wantErr bool
	}{
		{"valid", valid, viewer.Cast(7), false},
		{"expired", expired, viewer.Anonymous(), true},
		{"wrong key", wrongKey, viewer.Anonymous(), true},
		{"wrong issuer", wrongIssuer, viewer.Anonymous(), true},
		{"unknown kind", badKind, viewer.Anonymous(), true},
		{"alg none", unsigned, viewer.Anonymous(), true},
		{"garbage", "abc.def.ghi", viewer.Anonymous(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.Parse(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticatorWithoutSecret(t *testing.T) {
	auth := NewAuthenticator(&config.AuthConfig{})
	_, err := auth.Parse("anything")
	assert.Error(t, err)
}

func TestViewerMiddleware(t *testing.T) {
	auth := NewAuthenticator(&config.AuthConfig{JWTSecret: "secret"})
	guestToken, err := auth.Issue(models.ProfileRef{ID: 3, Kind: models.KindGuest}, time.Hour)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(auth.Viewer())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, viewer.FromContext(c.Request.Context()).String())
	})

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"no header", "", http.StatusOK, "anonymous"},
		{"guest", "Bearer " + guestToken, http.StatusOK, "guest:3"},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
