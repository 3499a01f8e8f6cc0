package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"

	"github.com/BioHazard786/huddle/internal/relay"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// CLI clients send no Origin header; browsers are not a target.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// RoomListResponse is the body of GET /rooms.
type RoomListResponse struct {
	Rooms []relay.RoomInfo `json:"rooms"`
}

type relayController struct {
	hub *relay.Hub
	log *slog.Logger
}

// NewRouter builds the relay HTTP surface around hub. The hub must be
// running.
func NewRouter(hub *relay.Hub, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = httpErrorHandler(router, logger)

	ctrl := &relayController{hub: hub, log: logger}
	ctrl.Resolve(router)
	return router
}

func httpErrorHandler(e *echo.Echo, logger *slog.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		logger.Debug(err.Error(), slog.String("request", fmt.Sprintf("%s %s", c.Request().Method, c.Request().URL)))
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// Resolve registers the controller's routes.
func (ctrl *relayController) Resolve(e *echo.Echo) {
	e.GET("/health", ctrl.Health)
	e.GET("/ws", ctrl.ServeWs)
	e.GET("/rooms", ctrl.RoomList)
	e.GET("/rooms/:id", ctrl.RoomGet)
}

// Health reports liveness and the number of open rooms.
func (ctrl *relayController) Health(ctx echo.Context) error {
	rooms, err := ctrl.hub.Rooms(ctx.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: "ok", Rooms: len(rooms)})
}

// ServeWs upgrades the request and hands the connection to the hub.
func (ctrl *relayController) ServeWs(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response().Writer, ctx.Request(), nil)
	if err != nil {
		ctrl.log.Warn("Failed to upgrade connection", "error", err)
		return nil
	}

	client := relay.NewClient(ctrl.hub, conn)
	if !ctrl.hub.Register(client) {
		conn.Close()
		return nil
	}

	// The pumps own the connection from here on.
	go client.WritePump()
	go client.ReadPump()
	return nil
}

// RoomList returns every live room with its members.
func (ctrl *relayController) RoomList(ctx echo.Context) error {
	rooms, err := ctrl.hub.Rooms(ctx.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return ctx.JSON(http.StatusOK, RoomListResponse{Rooms: rooms})
}

// RoomGet returns one room, or 404.
func (ctrl *relayController) RoomGet(ctx echo.Context) error {
	info, ok, err := ctrl.hub.Room(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	return ctx.JSON(http.StatusOK, info)
}
