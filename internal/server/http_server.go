// Package server constructs the HTTP surface of the chat service: health,
// client and session listings, and the WebSocket gateway.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

// ClientInfo is the JSON view of a registered client.
type ClientInfo struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// SetupRoutes returns a gin engine serving the chat HTTP endpoints. sessions
// may be nil when the journal is disabled.
func SetupRoutes(srv *Server, sessions journal.Store) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(srv.logger))

	router.GET("/", healthHandler)
	router.GET("/clients", clientsHandler(srv))
	router.GET("/sessions", sessionsHandler(sessions))

	gateway := NewGateway(srv)
	router.GET("/ws", gin.WrapH(gateway))
	return router
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "Chat server is running!")
}

func clientsHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries := srv.Registry().Snapshot()
		sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
		clients := make([]ClientInfo, 0, len(entries))
		for _, entry := range entries {
			clients = append(clients, ClientInfo{
				ID:       string(entry.ID),
				Username: entry.Username,
				JoinedAt: entry.JoinedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"count": len(clients), "clients": clients})
	}
}

func sessionsHandler(sessions journal.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session journal is disabled"})
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}

		events, err := sessions.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP())
	}
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Timeouts apply to plain requests only; upgraded WebSocket connections clear them.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
