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

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
)

var transitions = map[models.DepositStatus][]models.DepositStatus{
	models.StatusSubmitted:   {models.StatusProcessing, models.StatusCancelled, models.StatusFailed},
	models.StatusProcessing:  {models.StatusUnderReview, models.StatusApproved, models.StatusRejected, models.StatusFailed},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:    {models.StatusDeposited, models.StatusFailed},
}

// IsTerminal reports whether no further transition can leave status.
func IsTerminal(status models.DepositStatus) bool {
	switch status {
	case models.StatusDeposited, models.StatusRejected, models.StatusCancelled, models.StatusFailed:
		return true
	}
	return false
}

// IsKnown reports whether status belongs to the lifecycle.
func IsKnown(status models.DepositStatus) bool {
	if IsTerminal(status) {
		return true
	}
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether from -> to is a legal step. Staying in the same
// status is not a transition.
func CanTransition(from, to models.DepositStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reachable reports whether to can follow from through one or more legal
// transitions. Polling may observe several transitions at once.
func Reachable(from, to models.DepositStatus) bool {
	seen := map[models.DepositStatus]bool{from: true}
	queue := []models.DepositStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Next lists the statuses reachable from status in one step.
func Next(status models.DepositStatus) []models.DepositStatus {
	out := make([]models.DepositStatus, len(transitions[status]))
	copy(out, transitions[status])
	return out
}

// Validate returns an IllegalTransitionError when from -> to is not permitted.
func Validate(from, to models.DepositStatus) error {
	if !CanTransition(from, to) {
		return &errs.IllegalTransitionError{From: from, To: to}
	}
	return nil
}

// CanCancel reports whether the cancel action is legal. Cancellation is only
// accepted before processing starts.
func CanCancel(status models.DepositStatus) bool {
	return status == models.StatusSubmitted
}

// CanResubmit reports whether a corrected deposit may be linked to one in status.
func CanResubmit(status models.DepositStatus) bool {
	return status == models.StatusRejected || status == models.StatusFailed
}

// AvailableActions returns the support actions valid for status, in display order.
func AvailableActions(status models.DepositStatus) []models.SupportAction {
	actions := []models.SupportAction{models.ActionViewDetails}
	if CanCancel(status) {
		actions = append(actions, models.ActionCancel)
	}
	if CanResubmit(status) {
		actions = append(actions, models.ActionResubmit)
	}
	switch status {
	case models.StatusUnderReview, models.StatusRejected, models.StatusFailed:
		actions = append(actions, models.ActionContactSupport)
	}
	return actions
}

// Apply moves d to status "to" at time now, updating its timeline and actions.
// reason is recorded as the rejection or hold reason where relevant.
func Apply(d *models.Deposit, to models.DepositStatus, reason string, now time.Time) error {
	if err := Validate(d.Status, to); err != nil {
		return err
	}
	d.Status = to
	switch to {
	case models.StatusRejected, models.StatusFailed:
		d.RejectionReason = reason
	case models.StatusUnderReview:
		d.HoldReason = reason
	case models.StatusDeposited:
		if d.ActualAvailability == nil {
			t := now
			d.ActualAvailability = &t
		}
	}
	d.ProcessingSteps = AdvanceSteps(d.ProcessingSteps, to, now)
	d.SupportActions = AvailableActions(to)
	d.UpdatedAt = now
	return nil
}
