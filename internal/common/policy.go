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

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Policy is the deposit policy file. Every field is optional; unset fields keep
// the value from the environment.
type Policy struct {
	Limits             LimitsPolicy      `yaml:"limits"`
	Hold               HoldPolicy        `yaml:"hold"`
	Review             ReviewPolicy      `yaml:"review"`
	QualitySuggestions map[string]string `yaml:"quality_suggestions"`
}

type LimitsPolicy struct {
	SingleCheck     string        `yaml:"single_check"`
	NewAccount      string        `yaml:"new_account"`
	Daily           string        `yaml:"daily"`
	Monthly         string        `yaml:"monthly"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
}

type HoldPolicy struct {
	StandardImmediate   string  `yaml:"standard_immediate"`
	LargeDeposit        string  `yaml:"large_deposit"`
	HighRisk            float64 `yaml:"high_risk"`
	EstablishedDeposits int     `yaml:"established_deposits"`
	EstablishedTotal    string  `yaml:"established_total"`
}

type ReviewPolicy struct {
	ReviewThreshold float64 `yaml:"review_threshold"`
	RejectThreshold float64 `yaml:"reject_threshold"`
}

func LoadPolicy(policyFile string) (*Policy, error) {
	var policyPath string
	if filepath.IsAbs(policyFile) {
		policyPath = policyFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		policyPath = filepath.Join(wd, policyFile)
	}

	data, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", policyFile, err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", policyFile, err)
	}
	if policy.Review.ReviewThreshold > 0 && policy.Review.RejectThreshold > 0 &&
		policy.Review.ReviewThreshold >= policy.Review.RejectThreshold {
		return nil, fmt.Errorf("%s: review_threshold must be below reject_threshold", policyFile)
	}

	return &policy, nil
}

// Apply overlays the policy onto cfg.
func (p *Policy) Apply(cfg *models.Config) error {
	amounts := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"limits.single_check", p.Limits.SingleCheck, &cfg.Limits.SingleCheck},
		{"limits.new_account", p.Limits.NewAccount, &cfg.Limits.NewAccount},
		{"limits.daily", p.Limits.Daily, &cfg.Limits.Daily},
		{"limits.monthly", p.Limits.Monthly, &cfg.Limits.Monthly},
		{"hold.standard_immediate", p.Hold.StandardImmediate, &cfg.Hold.StandardImmediate},
		{"hold.large_deposit", p.Hold.LargeDeposit, &cfg.Hold.LargeDeposit},
		{"hold.established_total", p.Hold.EstablishedTotal, &cfg.Hold.EstablishedTotal},
	}
	for _, a := range amounts {
		if a.value == "" {
			continue
		}
		d, err := decimal.NewFromString(a.value)
		if err != nil {
			return fmt.Errorf("invalid amount for %s: %q (%w)", a.name, a.value, err)
		}
		if !d.IsPositive() {
			return fmt.Errorf("%s must be positive, got %s", a.name, a.value)
		}
		*a.dst = d
	}

	if p.Limits.DuplicateWindow > 0 {
		cfg.Limits.DuplicateWindow = p.Limits.DuplicateWindow
	}
	if p.Hold.HighRisk > 0 {
		cfg.Hold.HighRisk = p.Hold.HighRisk
	}
	if p.Hold.EstablishedDeposits > 0 {
		cfg.Hold.EstablishedDeposits = p.Hold.EstablishedDeposits
	}
	if p.Review.ReviewThreshold > 0 {
		cfg.Processor.ReviewThreshold = p.Review.ReviewThreshold
	}
	if p.Review.RejectThreshold > 0 {
		cfg.Processor.RejectThreshold = p.Review.RejectThreshold
	}
	return nil
}
