package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/middleware"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// Queries is the read-only query surface served over HTTP.
type Queries interface {
	GeneID(ctx context.Context, name string) (int64, error)
	TumorsWithDriver(ctx context.Context, gene string, class domain.MutationClass) ([]int64, error)
	CountTumorsWithDriverAtLocation(ctx context.Context, gene string, loc int) (int, error)
	TumorsWithDriverAtLocation(ctx context.Context, gene string, loc int) ([]int64, error)
	TargetFrequenciesAtHotspot(ctx context.Context, gene string, loc int) ([]domain.TargetFrequency, error)
	TargetGenesForPatient(ctx context.Context, gene string, patientID int64) ([]string, error)
	TopHotspots(ctx context.Context, gene string, n int) ([]domain.Hotspot, error)
	TopHotspotsWithTargets(ctx context.Context, gene string, n int) (map[int][]domain.TargetFrequency, error)
	OverlappingTargets(ctx context.Context, geneA, geneB string) ([]string, error)
	DriversForTarget(ctx context.Context, target string, minTumors int) ([]domain.DriverFrequency, error)
	TumorsWithoutAnyOf(ctx context.Context, genes []string) ([]string, error)
	TargetFrequenciesAtTopHotspots(ctx context.Context, gene string, n int) (*domain.TargetTally, error)
	TargetFrequenciesWithDeletion(ctx context.Context, gene string) (*domain.TargetTally, error)
}

// Server represents the HTTP server
type Server struct {
	config  domain.ServerConfig
	store   Pinger
	queries Queries
	log     *logrus.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, store Pinger, queries Queries, logger *logrus.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestLogger(logger))

	server := &Server{
		config:  cfg,
		store:   store,
		queries: queries,
		log:     logger,
		router:  router,
	}
	server.setupRoutes()

	return server
}

// Handler returns the routed handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Query API listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down query API")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/genes/:gene/id", s.handleGeneID)
		v1.GET("/tumors/without", s.handleTumorsWithout)
		v1.GET("/targets/:gene/drivers", s.handleDriversForTarget)

		drivers := v1.Group("/drivers/:gene")
		drivers.GET("/tumors", s.handleTumorsWithDriver)
		drivers.GET("/locations/:loc/tumors", s.handleTumorsAtLocation)
		drivers.GET("/locations/:loc/count", s.handleCountAtLocation)
		drivers.GET("/locations/:loc/targets", s.handleTargetsAtHotspot)
		drivers.GET("/patients/:patient/targets", s.handlePatientTargets)
		drivers.GET("/hotspots", s.handleTopHotspots)
		drivers.GET("/hotspots/targets", s.handleTopHotspotsWithTargets)
		drivers.GET("/hotspots/tally", s.handleTopHotspotTally)
		drivers.GET("/deletion/targets", s.handleDeletionTargets)
		drivers.GET("/overlap/:other", s.handleOverlap)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	body := gin.H{"timestamp": time.Now().UTC()}

	if err := s.store.Health(c.Request.Context()); err != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
		body["error"] = err.Error()
	}
	body["status"] = status
	c.JSON(code, body)
}
