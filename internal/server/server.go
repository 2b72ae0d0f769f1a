// Package server exposes health, metrics, run statistics and store aggregates over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderhub/internal/metrics"
	"orderhub/internal/report"
	"orderhub/internal/store"
)

// StatsSource is satisfied by *ingest.Stats.
type StatsSource interface {
	Snapshot(now time.Time) report.Snapshot
}

type Deps struct {
	Stats        StatsSource
	Store        store.Store
	Metrics      *metrics.Registry
	Logger       *zap.Logger
	QueryTimeout time.Duration
}

// NewEngine builds the router.
func NewEngine(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.QueryTimeout <= 0 {
		d.QueryTimeout = 10 * time.Second
	}
	log := d.Logger.Named("http")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.GET("/stats", func(c *gin.Context) {
		if d.Stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion not running"})
			return
		}
		snap := d.Stats.Snapshot(time.Now().UTC())
		c.JSON(http.StatusOK, gin.H{"stats": snap, "successRate": snap.SuccessRate()})
	})
	r.GET("/summary", func(c *gin.Context) {
		if d.Store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d.QueryTimeout)
		defer cancel()
		sum, err := store.Summarize(ctx, d.Store)
		if err != nil {
			log.Error("summary failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	})
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Next()
		log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Serve runs h on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("status server listening", zap.String("addr", addr))
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
