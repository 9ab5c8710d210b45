package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"crypto-signals/internal/contract"
	"crypto-signals/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests into hub-managed websocket connections.
type Handler struct {
	hub  *Hub
	auth contract.TokenAuthenticator
	log  *logger.Logger
}

func NewHandler(hub *Hub, auth contract.TokenAuthenticator, log *logger.Logger) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		log:  log,
	}
}

func (h *Handler) SetupRoutes(e *echo.Echo) {
	e.GET("/ws", h.handleConnection)
}

func (h *Handler) handleConnection(c echo.Context) error {
	ctx := c.Request().Context()

	var userID uint
	if token := c.QueryParam("token"); token != "" {
		id, err := h.auth.Authenticate(ctx, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		userID = id
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", logger.ErrorField(err))
		return err
	}

	client := NewClient(h.hub, conn, userID)
	h.log.InfoContext(ctx, "Websocket connected",
		logger.StringField("connection_id", client.ID()),
	)

	h.hub.Serve(ctx, client)
	return nil
}
