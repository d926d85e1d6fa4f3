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

package lifecycle

import (
	"time"

	"check-deposit-go/internal/models"
)

// Timeline step names, in order.
const (
	StepReceived     = "Deposit received"
	StepVerification = "Verifying check"
	StepReview       = "Review"
	StepApproval     = "Approved"
	StepFunds        = "Funds available"
)

var stepOrder = []string{StepReceived, StepVerification, StepReview, StepApproval, StepFunds}

// Estimated durations per stage used for ETAs on pending steps.
var stepEstimates = map[string]time.Duration{
	StepVerification: 10 * time.Minute,
	StepReview:       4 * time.Hour,
	StepApproval:     30 * time.Minute,
}

// DefaultSteps returns the timeline for a newly submitted deposit.
func DefaultSteps(submittedAt time.Time) []models.ProcessingStep {
	steps := make([]models.ProcessingStep, len(stepOrder))
	eta := submittedAt
	for i, name := range stepOrder {
		steps[i] = models.ProcessingStep{Name: name, Status: models.StepPending}
		if d, ok := stepEstimates[name]; ok {
			eta = eta.Add(d)
			at := eta
			steps[i].EstimatedAt = &at
		}
	}
	ts := submittedAt
	steps[0].Status = models.StepCompleted
	steps[0].Timestamp = &ts
	steps[0].EstimatedAt = nil
	return steps
}

// AdvanceSteps returns a copy of steps updated for a transition into status.
// Completed steps are never reverted.
func AdvanceSteps(steps []models.ProcessingStep, status models.DepositStatus, now time.Time) []models.ProcessingStep {
	out := make([]models.ProcessingStep, len(steps))
	copy(out, steps)
	idx := func(name string) int {
		for i := range out {
			if out[i].Name == name {
				return i
			}
		}
		return -1
	}
	complete := func(name string) {
		if i := idx(name); i >= 0 && out[i].Status != models.StepCompleted {
			ts := now
			out[i].Status = models.StepCompleted
			out[i].Timestamp = &ts
			out[i].EstimatedAt = nil
		}
	}
	start := func(name string) {
		if i := idx(name); i >= 0 && out[i].Status == models.StepPending {
			out[i].Status = models.StepInProgress
		}
	}
	failCurrent := func() {
		for i := range out {
			if out[i].Status == models.StepInProgress || out[i].Status == models.StepPending {
				ts := now
				out[i].Status = models.StepFailed
				out[i].Timestamp = &ts
				out[i].EstimatedAt = nil
				return
			}
		}
	}

	switch status {
	case models.StatusProcessing:
		start(StepVerification)
	case models.StatusUnderReview:
		complete(StepVerification)
		start(StepReview)
	case models.StatusApproved:
		complete(StepVerification)
		complete(StepReview)
		complete(StepApproval)
		start(StepFunds)
	case models.StatusDeposited:
		for _, name := range stepOrder {
			complete(name)
		}
	case models.StatusRejected, models.StatusFailed, models.StatusCancelled:
		failCurrent()
	}
	return out
}

// Progress returns completedSteps / totalSteps * 100, always within [0,100].
func Progress(steps []models.ProcessingStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range steps {
		if s.Status == models.StepCompleted {
			completed++
		}
	}
	p := float64(completed) / float64(len(steps)) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// EstimatedCompletion returns the latest ETA on the timeline, or nil when
// every step has finished.
func EstimatedCompletion(steps []models.ProcessingStep) *time.Time {
	var latest *time.Time
	for _, s := range steps {
		if s.EstimatedAt != nil && (latest == nil || s.EstimatedAt.After(*latest)) {
			latest = s.EstimatedAt
		}
	}
	return latest
}
