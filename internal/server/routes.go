package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/behide-game/Behide/internal/hub"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/version"
)

// Options configures the HTTP surface of the hub.
type Options struct {
	// AllowedOrigins lists browser origins accepted on every route.
	// Requests without an Origin header (native clients) are always accepted.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter mounts the hub routes:
//
//	GET /health       liveness check
//	GET /ws           signaling websocket
//	GET /rooms/:code  room lookup
func NewRouter(h *hub.Hub, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), originFilter(opts.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	router.GET("/ws", ServeWs(h, opts.AllowedOrigins, logger))
	router.GET("/rooms/:code", getRoom(h))

	return router
}

// ServeWs upgrades the request and hands the connection to the hub.
func ServeWs(h *hub.Hub, allowedOrigins []string, logger *slog.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "err", err)
			return
		}
		h.Serve(conn)
	}
}

func getRoom(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := room.Parse(room.Normalize(c.Param("code")))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
			return
		}

		info, found, err := h.LookupRoom(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// originFilter rejects browser requests from origins that are not listed.
// An empty list accepts every origin.
func originFilter(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || len(allowedOrigins) == 0 {
			c.Next()
			return
		}

		if !slices.Contains(allowedOrigins, origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
