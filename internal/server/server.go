/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultAddr          = ":8080"
	defaultMaxImageBytes = 10 << 20
	metadataAllowance    = 1 << 20
)

// Server is the HTTP front of the deposit backend.
type Server struct {
	service      *api.DepositService
	validate     *validator.Validate
	router       *gin.Engine
	httpServer   *http.Server
	maxBodyBytes int64
}

// New builds the router. gatherer may be nil, in which case /metrics is not served.
func New(service *api.DepositService, cfg models.ServerConfig, gatherer prometheus.Gatherer) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}

	s := &Server{
		service:      service,
		validate:     validator.New(),
		router:       gin.New(),
		maxBodyBytes: 2*cfg.MaxImageBytes + metadataAllowance,
	}
	s.router.MaxMultipartMemory = s.maxBodyBytes
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/healthz", s.health)
	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/v1", AuthMiddleware([]byte(cfg.JWTSecret)))
	{
		v1.POST("/deposits", s.submitDeposit)
		v1.GET("/deposits/:depositId", s.getDeposit)
		v1.POST("/deposits/:depositId/cancel", s.cancelDeposit)
		v1.POST("/deposits/:depositId/review", s.reviewDeposit)
		v1.POST("/validation", s.assess)

		v1.GET("/accounts/:accountId/balances", s.accountBalances)
		v1.GET("/accounts/:accountId/deposits", s.accountDeposits)
		v1.GET("/accounts/:accountId/transactions", s.accountTransactions)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	zap.L().Info("Deposit backend listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if p, ok := GetPrincipal(c); ok {
			fields = append(fields, zap.String("user_id", p.UserId))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			zap.L().Warn("Request served", fields...)
			return
		}
		zap.L().Debug("Request served", fields...)
	}
}
