// Package api is the thin HTTP surface over the session engine: create a
// session, fetch one by join code, end one. Everything live goes over the
// realtime channel, not here.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"slidecast/internal/auth"
	"slidecast/pkg/interfaces"
	"slidecast/pkg/types"
)

// SessionEnder ends a session with full room teardown; implemented by the
// dispatcher so REST and realtime ends behave identically.
type SessionEnder interface {
	EndSession(sessionID, requesterID string) error
}

// HealthChecker reports storage liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RoomStats reports connection counts for the health payload.
type RoomStats interface {
	Stats() map[string]int
}

type Server struct {
	store  interfaces.SessionStore
	ender  SessionEnder
	db     HealthChecker
	rooms  RoomStats
	tokens *auth.TokenParser
	engine *gin.Engine
}

func NewServer(store interfaces.SessionStore, ender SessionEnder, db HealthChecker, rooms RoomStats, tokens *auth.TokenParser) *Server {
	s := &Server{
		store:  store,
		ender:  ender,
		db:     db,
		rooms:  rooms,
		tokens: tokens,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))

	api := engine.Group("/api")
	{
		// Possession of the join code is the read capability; no token.
		api.GET("/sessions/by-code/:code", s.getSessionByCode)

		authed := api.Group("", s.authMiddleware())
		authed.POST("/sessions", s.createSession)
		authed.POST("/sessions/:id/end", s.endSession)
	}
	engine.GET("/health", s.healthCheck)

	s.engine = engine
}

// Engine exposes the router so main can mount the realtime endpoint.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// authMiddleware resolves the caller's identity and stashes it in the
// request context for handlers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.tokens.FromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "authentication required"))
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

type createSessionRequest struct {
	LessonID string `json:"lesson_id" binding:"required"`
	GroupID  string `json:"group_id"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, "lesson_id is required"))
		return
	}

	teacherID := c.GetString("userID")
	session, err := s.store.Create(c.Request.Context(), teacherID, req.LessonID, req.GroupID)
	if err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (s *Server) getSessionByCode(c *gin.Context) {
	session, err := s.store.GetByCode(c.Param("code"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (s *Server) endSession(c *gin.Context) {
	err := s.ender.EndSession(c.Param("id"), c.GetString("userID"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	c.JSON(status, gin.H{
		"status":      http.StatusText(status),
		"database":    dbStatus,
		"connections": s.rooms.Stats(),
		"timestamp":   time.Now(),
	})
}

// sendError maps the shared error classes onto HTTP statuses. Messages are
// safe to expose; internals are not.
func (s *Server) sendError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	default:
		c.JSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "internal error"))
		return
	}
	c.JSON(status, errorBody(status, err.Error()))
}

func errorBody(code int, message string) gin.H {
	return gin.H{
		"error":   http.StatusText(code),
		"code":    code,
		"message": message,
	}
}
