// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/mapimport/record"
	"github.com/rs/zerolog"
)

// DefaultNearRadius is used when a near query carries no radius.
const DefaultNearRadius = 50.0

// MaxNearRadius bounds the radius of a near query.
const MaxNearRadius = 5000.0

// Server exposes a Catalog over the routes Client uses.
type Server struct {
	catalog Catalog
	logger  *zerolog.Logger
}

// NewServer creates a server for c. A nil logger disables request logging.
func NewServer(c Catalog, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Server{catalog: c, logger: logger}
}

// Handler returns the gin engine serving the API.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api/records")
	api.GET("/near", s.findNear)
	api.POST("", s.createRecord)
	api.POST("/:id/tags", s.appendTags)

	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("catalog server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		status := ctx.Writer.Status()

		ev := s.logger.Info()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error().Str("errors", ctx.Errors.String())
		} else if status >= http.StatusBadRequest {
			ev = s.logger.Warn()
		}

		ev.Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func queryFloat(ctx *gin.Context, name string) (float64, bool) {
	v, err := strconv.ParseFloat(ctx.Query(name), 64)

	return v, err == nil
}

func (s *Server) findNear(ctx *gin.Context) {
	lat, ok := queryFloat(ctx, "lat")
	if !ok || lat < -90 || lat > 90 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "lat must be a number within [-90, 90]"})

		return
	}

	lon, ok := queryFloat(ctx, "lon")
	if !ok || lon < -180 || lon > 180 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "lon must be a number within [-180, 180]"})

		return
	}

	radius := DefaultNearRadius
	if ctx.Query("radius") != "" {
		radius, ok = queryFloat(ctx, "radius")
		if !ok || radius <= 0 || radius > MaxNearRadius {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "radius must be within (0, 5000]"})

			return
		}
	}

	records, err := s.catalog.FindNear(ctx.Request.Context(), lat, lon, radius)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	if records == nil {
		records = []*record.ExistingRecord{}
	}

	ctx.JSON(http.StatusOK, nearResponse{Records: records})
}

func (s *Server) createRecord(ctx *gin.Context) {
	var c record.ImportCandidate
	if err := ctx.ShouldBindJSON(&c); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := c.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	id, err := s.catalog.CreateRecord(ctx.Request.Context(), &c)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusCreated, createResponse{ID: id})
}

func (s *Server) appendTags(ctx *gin.Context) {
	var req appendTagsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := s.catalog.AppendTags(ctx.Request.Context(), ctx.Param("id"), req.Tags); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

func (s *Server) fail(ctx *gin.Context, err error) {
	_ = ctx.Error(err)

	switch {
	case errors.Is(err, ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case record.IsValidation(err):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
