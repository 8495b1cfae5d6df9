package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/appender"
	"github.com/lajos93/canvas-tile-api/internal/codec"
	"github.com/lajos93/canvas-tile-api/internal/job"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/status"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// Defaults applied to job requests that leave a field out
type Defaults struct {
	Mode   string
	Stitch bool
	Sparse bool
	// RegionZooms zoom levels of POST /generate/region
	RegionZooms []int
}

// SpeciesLister species category catalog
type SpeciesLister interface {
	List(ctx context.Context) ([]payload.Category, error)
}

// Server job control and tile HTTP surface
type Server struct {
	jobs     *job.Manager
	pipeline *tiles.Pipeline
	appender *appender.Appender
	workflow *appender.Workflow
	species  SpeciesLister
	status   *status.Store
	png      codec.Codec
	defaults Defaults
	log      logrus.FieldLogger
}

// Components what the routes are served from
type Components struct {
	Jobs     *job.Manager
	Pipeline *tiles.Pipeline
	Appender *appender.Appender
	Workflow *appender.Workflow
	Species  SpeciesLister
	Status   *status.Store
}

func New(c Components, defaults Defaults, log logrus.FieldLogger) *Server {
	png, _ := codec.New(codec.PNG, 0)
	if len(defaults.RegionZooms) == 0 {
		defaults.RegionZooms = appender.DefaultZooms()
	}
	return &Server{
		jobs:     c.Jobs,
		pipeline: c.Pipeline,
		appender: c.Appender,
		workflow: c.Workflow,
		species:  c.Species,
		status:   c.Status,
		png:      png,
		defaults: defaults,
		log:      log.WithField("component", "server"),
	}
}

// Router all routes on a fresh engine
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/tiles/:z/:x/:y", s.tile)
	r.GET("/download-tiles", s.downloadTiles)
	r.GET("/species", s.listSpecies)

	g := r.Group("/generate")
	g.POST("/start", s.startJob)
	g.POST("/region", s.startRegion)
	g.POST("/stop", s.stopJob)
	g.GET("/jobs", s.listJobs)
	g.GET("/last/:zoom", s.lastTile)

	r.POST("/append-icon", s.appendIcon)
	r.POST("/regenerate", s.regenerate)
	r.POST("/add-tree-workflow", s.addTree)

	r.GET("/status", s.getStatus)
	r.PUT("/status", s.putStatus)
	return r
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("%s %s %d %dms", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "canvas-tile-api",
	})
}

// fail maps the error taxonomy onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, tiles.ErrInvalidInput), errors.Is(err, tiles.ErrUnknownCategory):
		code = http.StatusBadRequest
	case errors.Is(err, job.ErrNoJob):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		s.log.Errorf("%s %s error, details: %s", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func regionOrDefault(r projection.Region, def projection.Region) projection.Region {
	if r.IsZero() {
		return def
	}
	return r
}
