// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package statusapi exposes the coordinators of a registry over HTTP.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
)

// ServerConfig configures the status API server.
type ServerConfig struct {
	Addr  string
	Debug bool
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{Addr: ":8090"}
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("address must not be empty")
	}

	return nil
}

// Server serves coordinator status and start/stop requests.
type Server struct {
	server   *http.Server
	registry *lifecycle.Registry
	logger   *zap.SugaredLogger
	config   *ServerConfig
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Unhealthy []string `json:"unhealthy"`
	Healthy   bool     `json:"healthy"`
}

// NewServer creates a status API server for registry.
func NewServer(registry *lifecycle.Registry, config *ServerConfig, log *zap.SugaredLogger) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}

	if log == nil {
		log = logger.For(logger.ComponentStatusAPI)
	}

	s := &Server{
		registry: registry,
		config:   config,
		logger:   log,
	}

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Router builds the HTTP handler of the server.
func (s *Server) Router() http.Handler {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/health", s.health)

	coordinators := router.Group("/coordinators")
	coordinators.GET("", s.list)
	coordinators.GET("/:name", s.get)
	coordinators.POST("/:name/start", s.start)
	coordinators.POST("/:name/stop", s.stop)

	return router
}

// Start serves until Stop is called.
func (s *Server) Start(_ context.Context) error {
	s.logger.Infow("Starting status API server", "addr", s.config.Addr, "debug", s.config.Debug)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status API server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping status API server")

	return s.server.Shutdown(ctx)
}

func (s *Server) list(c *gin.Context) {
	coordinators := s.registry.List()

	infos := make([]lifecycle.CoordinatorInfo, 0, len(coordinators))
	for _, coordinator := range coordinators {
		infos = append(infos, coordinator.Info())
	}

	s.render(c, http.StatusOK, infos)
}

func (s *Server) get(c *gin.Context) {
	coordinator, ok := s.lookup(c)
	if !ok {
		return
	}

	s.render(c, http.StatusOK, coordinator.Info())
}

func (s *Server) start(c *gin.Context) {
	coordinator, ok := s.lookup(c)
	if !ok {
		return
	}

	coordinator.Start()
	s.logger.Infow("Start requested", "coordinator", coordinator.Name())
	s.render(c, http.StatusAccepted, coordinator.Info())
}

func (s *Server) stop(c *gin.Context) {
	coordinator, ok := s.lookup(c)
	if !ok {
		return
	}

	coordinator.Stop()
	s.logger.Infow("Stop requested", "coordinator", coordinator.Name())
	s.render(c, http.StatusAccepted, coordinator.Info())
}

// health reports unhealthy while any coordinator is in ERROR.
func (s *Server) health(c *gin.Context) {
	resp := healthResponse{Healthy: true, Unhealthy: []string{}}

	for _, coordinator := range s.registry.List() {
		if coordinator.Status() == lifecycle.StatusError {
			resp.Healthy = false
			resp.Unhealthy = append(resp.Unhealthy, coordinator.Name())
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.render(c, status, resp)
}

func (s *Server) lookup(c *gin.Context) (*lifecycle.Coordinator, bool) {
	name := c.Param("name")

	coordinator, ok := s.registry.Get(name)
	if !ok {
		s.render(c, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("coordinator %q not found", name)})

		return nil, false
	}

	return coordinator, true
}

func (s *Server) render(c *gin.Context, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Errorw("Failed to encode response", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)

		return
	}

	c.Data(status, "application/json; charset=utf-8", data)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debugw("Status API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
