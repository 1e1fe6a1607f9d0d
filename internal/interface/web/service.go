package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/application"
)

// Service exposes the swap orchestrator as a JSON API.
type Service struct {
	appSvc *application.Service
	server *http.Server
}

func NewService(port uint32, appSvc *application.Service) *Service {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	handler := newSwapHandler(appSvc)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/swaps", handler.initiate)
		v1.GET("/swaps", handler.list)
		v1.GET("/swaps/:id", handler.get)
		v1.POST("/swaps/:id/wait", handler.awaitFunding)
		v1.POST("/swaps/:id/redeem", handler.redeem)
		v1.POST("/swaps/:id/refund", handler.refund)
		v1.GET("/events", handler.streamEvents)
	}

	return &Service{
		appSvc: appSvc,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
	}
}

func (s *Service) Start() {
	go func() {
		log.WithField("addr", s.server.Addr).Info("http server started")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server exited")
		}
	}()
}

func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// nolint:all
	s.server.Shutdown(ctx)
	log.Debug("http server stopped")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("handled request")
	}
}
