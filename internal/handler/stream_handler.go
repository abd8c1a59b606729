package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ACBRI/veritas.ia/internal/messaging"
	"github.com/ACBRI/veritas.ia/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type StreamHandler struct {
	store     *service.ReportStore
	hub       *messaging.ChangeHub
	jwtSecret string
}

func NewStreamHandler(store *service.ReportStore, hub *messaging.ChangeHub, jwtSecret string) *StreamHandler {
	return &StreamHandler{
		store:     store,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

// Handles GET /stream - server-sent store changes.
func (h *StreamHandler) StreamChanges(c *gin.Context) {
	client := h.hub.Subscribe()
	if client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	defer h.hub.Unsubscribe(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{
		"is_connected": h.store.IsConnected(),
		"loading":      h.store.Loading(),
	})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-client.Channel:
			if !ok {
				return
			}
			data, _ := json.Marshal(ev)
			c.SSEvent(string(ev.Kind), string(data))
			c.Writer.Flush()
		}
	}
}

// RequireToken guards a route with an HMAC-signed JWT when a secret is
// configured. The token comes from the Authorization header or, for
// EventSource clients, the token query parameter.
func (h *StreamHandler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.jwtSecret == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if _, err := h.validateToken(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (h *StreamHandler) validateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(h.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
