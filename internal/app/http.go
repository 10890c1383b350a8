package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/ingest"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/retrieval"
)

type askRequest struct {
	Question  string `json:"question" binding:"required"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
}

func wireRouter(log *logger.Logger, m *metrics.Metrics, hc *healthChecker, in *ingest.Service, ret *retrieval.Retriever) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("quiry-backend"))

	router.GET("/health", func(c *gin.Context) {
		report := hc.Report(c.Request.Context())
		c.JSON(http.StatusOK, report)
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// The gateway process delivers raw message events here.
	router.POST("/messages", func(c *gin.Context) {
		var ev events.MessageEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := in.Submit(c.Request.Context(), ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	router.POST("/ask", func(c *gin.Context) {
		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		answer, err := ret.Answer(c.Request.Context(), retrieval.Query{
			Question:  req.Question,
			GuildID:   req.GuildID,
			ChannelID: req.ChannelID,
			AuthorID:  req.AuthorID,
		})
		if err != nil {
			log.Error("Answer failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer question"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"answer": answer})
	})

	return router
}
