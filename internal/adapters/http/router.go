package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkeye/Mesh/internal/app/mesh"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Node is the part of a mesh session exposed over the status api.
type Node interface {
	ID() domain.MemberID
	Ready() bool
	Members() []domain.MemberID
	Snapshot() []core.MemberDTO
	Handlers() (control, peer []string)
	SendToServer(kind string, data any) error
	SendToPeer(to domain.MemberID, kind string, data any) error
	Broadcast(kind string, data any) (core.PublishResult, error)
}

type sendRequest struct {
	Kind string          `json:"kind" binding:"required"`
	Data json.RawMessage `json:"data"`
}

const requestIDHeader = "X-Request-ID"

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)
		c.Set("request_id", rid)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, node Node) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	api := r.Group("/api")

	// GET /api/status
	api.GET("/status", func(c *gin.Context) {
		control, peer := node.Handlers()
		c.JSON(http.StatusOK, gin.H{
			"id":       node.ID(),
			"ready":    node.Ready(),
			"members":  node.Members(),
			"handlers": gin.H{"control": control, "peer": peer},
		})
	})

	// GET /api/members: every known member with its handshake state
	api.GET("/members", func(c *gin.Context) {
		c.JSON(http.StatusOK, node.Snapshot())
	})

	api.POST("/server", func(c *gin.Context) {
		req, ok := bindSend(c)
		if !ok {
			return
		}
		if err := node.SendToServer(req.Kind, req.Data); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("rid", c.GetString("request_id")).Msg("send to server")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	})

	api.POST("/peers/:id", func(c *gin.Context) {
		req, ok := bindSend(c)
		if !ok {
			return
		}
		to := domain.MemberID(c.Param("id"))
		err := node.SendToPeer(to, req.Kind, req.Data)
		switch {
		case err == nil:
			c.Status(http.StatusAccepted)
		case errors.Is(err, mesh.ErrUnreadyPeer):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Warn().Err(err).Str("module", "adapters.http").Str("rid", c.GetString("request_id")).Str("member", string(to)).Msg("send to peer")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
	})

	api.POST("/broadcast", func(c *gin.Context) {
		req, ok := bindSend(c)
		if !ok {
			return
		}
		res, err := node.Broadcast(req.Kind, req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func bindSend(c *gin.Context) (sendRequest, bool) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid kind"})
		return req, false
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}
	return req, true
}
