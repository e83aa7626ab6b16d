package controllers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/identity"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
)

// OAuthController is the thin shim between the external LMS handshake and
// the websocket handshake: it exchanges the authorization code, upserts the
// user, mints a short-lived token and bounces back to the UI.
type OAuthController struct {
	Auth          identity.Authenticator
	Store         store.Store
	JWTSecret     string
	UIRedirectURL string
	Log           *zap.Logger
}

// Callback handles GET /auth/callback?code=…&state=….
func (oc *OAuthController) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.Redirect(http.StatusFound, oc.redirectWith(url.Values{"error": {errParam}}))
		return
	}
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, oc.redirectWith(url.Values{"error": {"missing code"}}))
		return
	}
	if oc.Auth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lms authentication not configured"})
		return
	}

	id, err := oc.Auth.Authenticate(c.Request.Context(), code)
	if err != nil {
		oc.Log.Warn("lms code exchange failed", zap.Error(err))
		c.Redirect(http.StatusFound, oc.redirectWith(url.Values{"error": {"authentication failed"}}))
		return
	}

	role := strings.ToUpper(id.Role)
	if !models.ValidRole(role) {
		role = models.RoleStudent
	}
	var externalID *string
	if id.ExternalID != "" {
		externalID = &id.ExternalID
	}
	user, err := oc.Store.UpsertUser(c.Request.Context(), store.UpsertUserParams{
		ExternalID: externalID,
		Email:      strings.ToLower(id.Email),
		Name:       id.Name,
		Role:       role,
	})
	if err != nil {
		oc.Log.Error("upsert user failed", zap.Error(err))
		c.Redirect(http.StatusFound, oc.redirectWith(url.Values{"error": {"internal error"}}))
		return
	}

	expiresAt := time.Now().Add(5 * time.Minute)
	claims := jwt.MapClaims{
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(oc.JWTSecret))
	if err != nil {
		oc.Log.Error("handshake token signing failed", zap.Error(err))
		c.Redirect(http.StatusFound, oc.redirectWith(url.Values{"error": {"internal error"}}))
		return
	}

	c.Redirect(http.StatusFound, oc.redirectWith(url.Values{
		"name":  {user.Name},
		"role":  {user.Role},
		"email": {user.Email},
		"token": {signed},
	}))
}

func (oc *OAuthController) redirectWith(params url.Values) string {
	return oc.UIRedirectURL + "?" + params.Encode()
}
