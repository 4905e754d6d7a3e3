// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/poller"
)

// Readings is the source of the latest decoded responses.
type Readings interface {
	Get(command string) (poller.Reading, bool)
	Snapshot() []poller.Reading
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	srv *http.Server
}

// New registers health, readiness, metrics and readings routes.
func New(cfg config.HTTPConfig, metricsHandler http.Handler, readings Readings, readyFn func() bool) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if readyFn == nil || readyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	if readings != nil {
		api := r.Group("/api")
		api.GET("/readings", func(c *gin.Context) {
			c.JSON(http.StatusOK, readings.Snapshot())
		})
		api.GET("/readings/:cmd", func(c *gin.Context) {
			cmd := strings.ToUpper(c.Param("cmd"))
			reading, ok := readings.Get(cmd)
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "no reading for " + cmd})
				return
			}
			c.JSON(http.StatusOK, reading)
		})
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
