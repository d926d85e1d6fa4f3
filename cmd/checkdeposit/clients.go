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

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"check-deposit-go/internal/cache"
	"check-deposit-go/internal/common"
	"check-deposit-go/internal/depositapi"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/ocr"
	"check-deposit-go/internal/pipeline"
	"check-deposit-go/internal/quality"
	"check-deposit-go/internal/submitter"
	"check-deposit-go/internal/transport"
	"check-deposit-go/internal/validation"

	"go.uber.org/zap"
)

func newTransport(name string) (*transport.Client, error) {
	httpClient, err := transport.NewHTTPClient(cfg.Services.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return transport.NewClient(name, httpClient, cfg.Retry, cfg.Breaker), nil
}

func newDepositClient() (*depositapi.Client, error) {
	hc, err := newTransport("deposit")
	if err != nil {
		return nil, err
	}
	return depositapi.NewClient(hc, cfg.Services.DepositURL, cfg.Services.ApiToken), nil
}

// newIdempotencyCache shares sessions through Redis when REDIS_ADDR is set and
// falls back to process memory otherwise.
func newIdempotencyCache() cache.IdempotencyCache {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache(cfg.Redis.TTL)
	}
	client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zap.L().Warn("Redis unavailable, using in-memory idempotency cache", zap.Error(err))
		return cache.NewMemoryCache(cfg.Redis.TTL)
	}
	return cache.NewRedisCache(client, cfg.Redis.TTL)
}

func qualityOptions() ([]quality.Option, error) {
	if policyFile == "" {
		return nil, nil
	}
	policy, err := common.LoadPolicy(policyFile)
	if err != nil {
		return nil, err
	}
	return []quality.Option{quality.WithSuggestions(policy.QualitySuggestions)}, nil
}

// newPipeline wires the capture pipeline against the configured services.
func newPipeline(progress func(stage string)) (*pipeline.Pipeline, *depositapi.Client, error) {
	qualityHTTP, err := newTransport("quality")
	if err != nil {
		return nil, nil, err
	}
	ocrHTTP, err := newTransport("ocr")
	if err != nil {
		return nil, nil, err
	}
	validationHTTP, err := newTransport("validation")
	if err != nil {
		return nil, nil, err
	}
	deposits, err := newDepositClient()
	if err != nil {
		return nil, nil, err
	}

	token := cfg.Services.ApiToken
	gateOpts, err := qualityOptions()
	if err != nil {
		return nil, nil, err
	}
	gate := quality.NewGate(quality.NewHTTPScorer(qualityHTTP, cfg.Services.QualityURL, token), cfg.Quality, gateOpts...)
	extractor := ocr.NewHTTPExtractor(ocrHTTP, cfg.Services.OcrURL, token, nil)
	engine := validation.NewEngine(validation.NewHTTPBackend(validationHTTP, cfg.Services.ValidationURL, token), cfg.Validation)
	sub := submitter.New(deposits,
		submitter.WithCache(newIdempotencyCache()),
		submitter.WithMaxImageBytes(int(cfg.Server.MaxImageBytes)))

	return pipeline.New(gate, extractor, engine, sub, pipeline.WithProgress(progress)), deposits, nil
}

func loadImage(path string, side models.Side) (models.CheckImage, error) {
	if path == "" {
		return models.CheckImage{}, fmt.Errorf("%s image path is required", side)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CheckImage{}, fmt.Errorf("unable to read %s image: %w", side, err)
	}
	return models.CheckImage{
		Side:       side,
		Data:       data,
		URI:        path,
		MimeType:   http.DetectContentType(data),
		CapturedAt: time.Now(),
	}, nil
}
