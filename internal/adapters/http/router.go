package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voicemesh/internal/adapters/signal"
	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type roomResponse struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	Exists   bool            `json:"exists"`
	Clients  int             `json:"clients"`
}

// RoomCodeParam rejects requests whose :code is not a well formed room code.
func RoomCodeParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := domain.RoomCode(c.Param("code"))
		if !code.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
			return
		}
		c.Set("room_code", code)
		c.Next()
	}
}

func roomCode(c *gin.Context) domain.RoomCode {
	code, _ := c.Get("room_code")
	rc, _ := code.(domain.RoomCode)
	return rc
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(o, signal.OptionsFrom(cfg))

	r.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("owner ws endpoint hit")
		ctrl.HandleOwner(ctx, c)
	})
	r.GET("/ws/:code", RoomCodeParam(), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("room", string(roomCode(c))).Msg("client ws endpoint hit")
		ctrl.HandleClient(ctx, c, roomCode(c))
	})

	api := r.Group("/api")
	api.GET("/rooms/:code", RoomCodeParam(), func(c *gin.Context) {
		code := roomCode(c)
		info, ok := o.Registry.Info(code)
		c.JSON(http.StatusOK, roomResponse{RoomCode: code, Exists: ok, Clients: info.Clients})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": o.Registry.RoomCount()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
