package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lajos93/canvas-tile-api/internal/appender"
	"github.com/lajos93/canvas-tile-api/internal/storage"
)

func (s *Server) listSpecies(c *gin.Context) {
	list, err := s.species.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// downloadTiles streams every stored tile as tiles.zip. Once the first byte
// is out an error can only be logged.
func (s *Server) downloadTiles(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="tiles.zip"`)
	c.Header("Content-Type", "application/zip")
	c.Status(http.StatusOK)

	n, err := storage.WriteZip(c.Request.Context(), s.pipeline.Store(), storage.TilesRoot+"/", c.Writer)
	if err != nil {
		s.log.Errorf("zip tiles error after %d entries, details: %s", n, err)
		return
	}
	s.log.Infof("zip of %d tiles sent", n)
}

func (s *Server) addTree(c *gin.Context) {
	var req struct {
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
		SpeciesID *int     `json:"speciesId"`
		County    string   `json:"county"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%s", err))
		return
	}
	if req.Lat == nil || req.Lon == nil || req.SpeciesID == nil {
		s.fail(c, badRequest("lat, lon and speciesId are required"))
		return
	}

	rec, err := s.workflow.AddTree(c.Request.Context(), appender.AddTreeRequest{
		Lat:       *req.Lat,
		Lon:       *req.Lon,
		SpeciesID: *req.SpeciesID,
		County:    req.County,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "treeId": rec.TreeID, "phases": rec.Phases})
	case errors.Is(err, appender.ErrPartial):
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error(), "phases": rec.Phases})
	case rec.Type == "":
		// rejected before the workflow started
		s.fail(c, err)
	default:
		s.log.Errorf("add tree workflow error, details: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error(), "phases": rec.Phases})
	}
}
