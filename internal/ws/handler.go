package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; identity is established by resolution.
		return true
	},
}

// Hints carry the handshake identity claim. They are a hint only: the stored
// user record is authoritative for role decisions.
type Hints struct {
	Email string
	Name  string
	Role  string
}

// IdentityResolver turns handshake hints into a persistent user, or fails
// the connection.
type IdentityResolver interface {
	Resolve(ctx context.Context, h Hints) (*models.User, error)
}

// Dispatcher receives resolved connections, inbound commands and disconnects.
type Dispatcher interface {
	Connected(c *Client)
	Dispatch(c *Client, ev Event)
	Disconnected(c *Client)
}

type handshakeClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Handler upgrades /ws requests and runs the connection lifecycle.
type Handler struct {
	hub        *Hub
	resolver   IdentityResolver
	dispatcher Dispatcher
	jwtSecret  string
	log        *zap.Logger
}

func NewHandler(hub *Hub, resolver IdentityResolver, dispatcher Dispatcher, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{
		hub:        hub,
		resolver:   resolver,
		dispatcher: dispatcher,
		jwtSecret:  jwtSecret,
		log:        log,
	}
}

// Serve is the gin endpoint for websocket connections. Identity hints come
// from a handshake token minted by the OAuth callback, or from raw query
// parameters for guest logins.
func (h *Handler) Serve(c *gin.Context) {
	hints, ok := h.handshakeHints(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid handshake token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), conn, h.log)
	h.hub.Register(client)
	go client.writePump()
	go h.resolve(client, hints)

	client.readPump(func(ev Event) {
		h.dispatcher.Dispatch(client, ev)
	})

	h.hub.Unregister(client.ID)
	h.dispatcher.Disconnected(client)
}

func (h *Handler) handshakeHints(c *gin.Context) (Hints, bool) {
	if tokenStr := c.Query("token"); tokenStr != "" {
		claims := &handshakeClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			return Hints{}, false
		}
		return Hints{Email: claims.Email, Name: claims.Name, Role: claims.Role}, true
	}
	return Hints{
		Email: c.Query("email"),
		Name:  c.Query("name"),
		Role:  c.Query("role"),
	}, true
}

// resolve runs concurrently with the pumps; commands queue behind the Ready
// barrier until it finishes.
func (h *Handler) resolve(client *Client, hints Hints) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := h.resolver.Resolve(ctx, hints)
	if err != nil {
		h.log.Info("identity resolution failed",
			zap.String("email", hints.Email), zap.Error(err))
		if data, merr := Marshal(EvAuthError, gin.H{"message": "authentication failed"}); merr == nil {
			client.Enqueue(data)
		}
		client.CloseAfterDrain()
		return
	}

	client.SetUser(user)
	h.dispatcher.Connected(client)
}
