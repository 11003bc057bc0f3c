package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tdi-genomics/tdisql/internal/domain"
)

// DefaultTop is the number of hotspots ranked when ?top= is absent.
const DefaultTop = 5

func (s *Server) handleGeneID(c *gin.Context) {
	gene := c.Param("gene")
	id, err := s.queries.GeneID(c.Request.Context(), gene)
	respond(c, gin.H{"gene": gene, "gene_id": id}, err)
}

func (s *Server) handleTumorsWithDriver(c *gin.Context) {
	class, ok := domain.ParseMutationClass(c.Query("class"))
	if !ok {
		// the repository falls back to all and logs the unknown value
		class = domain.MutationClass(c.Query("class"))
	}
	ids, err := s.queries.TumorsWithDriver(c.Request.Context(), c.Param("gene"), class)
	respond(c, gin.H{"gene": c.Param("gene"), "patient_ids": ids}, err)
}

func (s *Server) handleTumorsAtLocation(c *gin.Context) {
	loc, ok := intParam(c, "loc")
	if !ok {
		return
	}
	ids, err := s.queries.TumorsWithDriverAtLocation(c.Request.Context(), c.Param("gene"), loc)
	respond(c, gin.H{"gene": c.Param("gene"), "location": loc, "patient_ids": ids}, err)
}

func (s *Server) handleCountAtLocation(c *gin.Context) {
	loc, ok := intParam(c, "loc")
	if !ok {
		return
	}
	n, err := s.queries.CountTumorsWithDriverAtLocation(c.Request.Context(), c.Param("gene"), loc)
	respond(c, gin.H{"gene": c.Param("gene"), "location": loc, "tumors": n}, err)
}

func (s *Server) handleTargetsAtHotspot(c *gin.Context) {
	loc, ok := intParam(c, "loc")
	if !ok {
		return
	}
	freqs, err := s.queries.TargetFrequenciesAtHotspot(c.Request.Context(), c.Param("gene"), loc)
	respond(c, gin.H{"gene": c.Param("gene"), "location": loc, "targets": freqs}, err)
}

func (s *Server) handlePatientTargets(c *gin.Context) {
	patientID, err := strconv.ParseInt(c.Param("patient"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("patient must be an integer id: %q", c.Param("patient")))
		return
	}
	targets, err := s.queries.TargetGenesForPatient(c.Request.Context(), c.Param("gene"), patientID)
	respond(c, gin.H{"gene": c.Param("gene"), "patient_id": patientID, "targets": targets}, err)
}

func (s *Server) handleTopHotspots(c *gin.Context) {
	top, ok := topQuery(c)
	if !ok {
		return
	}
	hotspots, err := s.queries.TopHotspots(c.Request.Context(), c.Param("gene"), top)
	respond(c, gin.H{"gene": c.Param("gene"), "hotspots": hotspots}, err)
}

func (s *Server) handleTopHotspotsWithTargets(c *gin.Context) {
	top, ok := topQuery(c)
	if !ok {
		return
	}
	byLocation, err := s.queries.TopHotspotsWithTargets(c.Request.Context(), c.Param("gene"), top)
	respond(c, gin.H{"gene": c.Param("gene"), "hotspots": byLocation}, err)
}

func (s *Server) handleTopHotspotTally(c *gin.Context) {
	top, ok := topQuery(c)
	if !ok {
		return
	}
	tally, err := s.queries.TargetFrequenciesAtTopHotspots(c.Request.Context(), c.Param("gene"), top)
	respond(c, tally, err)
}

func (s *Server) handleDeletionTargets(c *gin.Context) {
	tally, err := s.queries.TargetFrequenciesWithDeletion(c.Request.Context(), c.Param("gene"))
	respond(c, tally, err)
}

func (s *Server) handleOverlap(c *gin.Context) {
	common, err := s.queries.OverlappingTargets(c.Request.Context(), c.Param("gene"), c.Param("other"))
	respond(c, gin.H{"genes": []string{c.Param("gene"), c.Param("other")}, "targets": common}, err)
}

func (s *Server) handleDriversForTarget(c *gin.Context) {
	minTumors := 0
	if raw := c.Query("min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Errorf("min must be a non-negative integer: %q", raw))
			return
		}
		minTumors = n
	}
	drivers, err := s.queries.DriversForTarget(c.Request.Context(), c.Param("gene"), minTumors)
	respond(c, gin.H{"target": c.Param("gene"), "drivers": drivers}, err)
}

func (s *Server) handleTumorsWithout(c *gin.Context) {
	genes := c.QueryArray("gene")
	names, err := s.queries.TumorsWithoutAnyOf(c.Request.Context(), genes)
	respond(c, gin.H{"genes": genes, "patients": names}, err)
}

// respond writes body, or maps err onto a status code.
func respond(c *gin.Context, body any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, body)
		return
	}
	_ = c.Error(err)

	status := http.StatusInternalServerError
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAmbiguous):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, fmt.Errorf("%s must be an integer: %q", name, c.Param(name)))
		return 0, false
	}
	return n, true
}

func topQuery(c *gin.Context) (int, bool) {
	raw := c.Query("top")
	if raw == "" {
		return DefaultTop, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, fmt.Errorf("top must be a positive integer: %q", raw))
		return 0, false
	}
	return n, true
}
