package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lajos93/canvas-tile-api/internal/job"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/status"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", tiles.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSuffix(c.Param(name), ".png")
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", name, c.Param(name))
	}
	return v, nil
}

// categoryQuery optional ?category= id
func categoryQuery(c *gin.Context) (*int, error) {
	raw := c.Query("category")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badRequest("category must be an integer, got %q", raw)
	}
	return &id, nil
}

// tile renders one PNG tile on demand, nothing is stored.
func (s *Server) tile(c *gin.Context) {
	z, err := intParam(c, "z")
	if err != nil {
		s.fail(c, err)
		return
	}
	x, err := intParam(c, "x")
	if err != nil {
		s.fail(c, err)
		return
	}
	y, err := intParam(c, "y")
	if err != nil {
		s.fail(c, err)
		return
	}
	cat, err := categoryQuery(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	target, err := s.pipeline.Target(ctx, z, cat)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.pipeline.Render(ctx, target, projection.Tile(x, y, z), c.Query("stitch") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.png.Encode(res.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, s.png.ContentType(), data)
}

type startRequest struct {
	Zoom       *int   `json:"zoom"`
	Zooms      []int  `json:"zooms"`
	CategoryID *int   `json:"categoryId"`
	StartX     *int   `json:"startX"`
	StartY     *int   `json:"startY"`
	Mode       string `json:"mode"`
	Stitch     *bool  `json:"stitch"`
	Sparse     *bool  `json:"sparse"`
}

func (s *Server) startJob(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%s", err))
		return
	}

	spec := job.Spec{
		Zooms:      req.Zooms,
		CategoryID: req.CategoryID,
		Mode:       req.Mode,
		Stitch:     s.defaults.Stitch,
		Sparse:     s.defaults.Sparse,
	}
	if req.Zoom != nil {
		spec.Zooms = []int{*req.Zoom}
	}
	if spec.Mode == "" {
		spec.Mode = s.defaults.Mode
	}
	if req.Stitch != nil {
		spec.Stitch = *req.Stitch
	}
	if req.Sparse != nil {
		spec.Sparse = *req.Sparse
	}
	switch {
	case req.StartX != nil && req.StartY != nil:
		spec.Start = &job.Coord{X: *req.StartX, Y: *req.StartY}
	case req.StartX != nil || req.StartY != nil:
		s.fail(c, badRequest("startX and startY go together"))
		return
	}

	j, err := s.jobs.Start(spec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Tile generation started",
		"job":     j.Snapshot(),
	})
}

type regionRequest struct {
	projection.Region
	ZoomLevels []int  `json:"zoomLevels"`
	CategoryID *int   `json:"categoryId"`
	Mode       string `json:"mode"`
}

func (s *Server) startRegion(c *gin.Context) {
	var req regionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, badRequest("%s", err))
			return
		}
	}
	zooms := req.ZoomLevels
	if len(zooms) == 0 {
		zooms = s.defaults.RegionZooms
	}
	mode := req.Mode
	if mode == "" {
		mode = s.defaults.Mode
	}

	spec := job.Spec{
		Zooms:      zooms,
		CategoryID: req.CategoryID,
		Region:     regionOrDefault(req.Region, projection.Budapest),
		Mode:       mode,
		Stitch:     s.defaults.Stitch,
	}
	j, err := s.jobs.Start(spec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Region tile generation started",
		"jobId":      j.ID,
		"region":     spec.Region,
		"zoomLevels": zooms,
		"totalTiles": j.TotalTiles(),
	})
}

func (s *Server) stopJob(c *gin.Context) {
	if id := c.Query("job"); id != "" {
		if err := s.jobs.Stop(id); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Stop requested", "job": id})
		return
	}
	n := s.jobs.StopAll()
	c.JSON(http.StatusOK, gin.H{"message": "Stop requested", "jobs": n})
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.List()})
}

func (s *Server) lastTile(c *gin.Context) {
	z, err := intParam(c, "zoom")
	if err != nil {
		s.fail(c, err)
		return
	}
	cat, err := categoryQuery(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	target, err := s.pipeline.Target(ctx, z, cat)
	if err != nil {
		s.fail(c, err)
		return
	}

	last, ok, err := storage.LastTile(ctx, s.pipeline.Store(), target.Slug, z)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no tiles under %s", target.Prefix())})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"zoom":   z,
		"x":      last.X,
		"y":      last.Y,
		"prefix": target.Prefix(),
	})
}

type pointRequest struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	CategoryID *int     `json:"categoryId"`
	ZoomLevels []int    `json:"zoomLevels"`
}

func (s *Server) bindPoint(c *gin.Context) (payload.Point, pointRequest, bool) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%s", err))
		return payload.Point{}, req, false
	}
	if req.Lat == nil || req.Lon == nil {
		s.fail(c, badRequest("lat and lon are required"))
		return payload.Point{}, req, false
	}
	return payload.Point{Lat: *req.Lat, Lon: *req.Lon, CategoryID: req.CategoryID}, req, true
}

func (s *Server) appendIcon(c *gin.Context) {
	p, req, ok := s.bindPoint(c)
	if !ok {
		return
	}
	res, err := s.appender.AppendPoint(c.Request.Context(), p, req.ZoomLevels, req.CategoryID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) regenerate(c *gin.Context) {
	p, req, ok := s.bindPoint(c)
	if !ok {
		return
	}
	res, err := s.appender.Regenerate(c.Request.Context(), p, req.ZoomLevels, req.CategoryID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getStatus(c *gin.Context) {
	doc, err := s.status.Get(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// putStatus deep merges the body into the status record, arrays replaced.
func (s *Server) putStatus(c *gin.Context) {
	var patch status.Document
	if err := c.ShouldBindJSON(&patch); err != nil || patch == nil {
		s.fail(c, badRequest("body must be a JSON object"))
		return
	}
	doc, err := s.status.Patch(c.Request.Context(), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "status.json updated (arrays replaced)",
		"data":    doc,
	})
}
