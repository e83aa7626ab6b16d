package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thoughtswap/thoughtswap/internal/controllers"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

// Register wires the HTTP surface: health, the OAuth callback shim and the
// websocket endpoint everything else flows through.
func Register(r *gin.Engine, wsHandler *ws.Handler, oauthCtrl *controllers.OAuthController) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/auth/callback", oauthCtrl.Callback)

	r.GET("/ws", wsHandler.Serve)
}
