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

package errs

import (
	"fmt"
	"net/http"

	"check-deposit-go/internal/models"
)

// RejectReason is the typed cause of a failed submission.
type RejectReason string

const (
	ReasonInvalidRequest  RejectReason = "invalid-request"
	ReasonUnauthenticated RejectReason = "unauthenticated"
	ReasonForbidden       RejectReason = "forbidden"
	ReasonDuplicate       RejectReason = "duplicate"
	ReasonPayloadTooLarge RejectReason = "payload-too-large"
	ReasonUnprocessable   RejectReason = "unprocessable"
	ReasonRateLimited     RejectReason = "rate-limited"
	ReasonServerError     RejectReason = "server-error"
	ReasonNetworkError    RejectReason = "network-error"
)

type userFacing struct {
	message    string
	suggestion string
}

var reasonText = map[RejectReason]userFacing{
	ReasonInvalidRequest: {
		"The deposit details are invalid.",
		"Check the amount and destination account, then try again.",
	},
	ReasonUnauthenticated: {
		"Your session has expired.",
		"Sign in again to continue your deposit.",
	},
	ReasonForbidden: {
		"This account is not eligible for mobile check deposit.",
		"Choose another account or contact support.",
	},
	ReasonDuplicate: {
		"This check appears to have been deposited already.",
		"Review your recent deposits or contact support if this is a mistake.",
	},
	ReasonPayloadTooLarge: {
		"The check images are too large to upload.",
		"Retake the photos at a lower resolution.",
	},
	ReasonUnprocessable: {
		"The check could not be accepted.",
		"Review the listed issues, retake the photos and submit again.",
	},
	ReasonRateLimited: {
		"You have reached your check deposit limit.",
		"Try again after your daily or monthly limit resets, or deposit at a branch.",
	},
	ReasonServerError: {
		"Something went wrong on our side.",
		"Wait a few minutes and check your deposit status before trying again.",
	},
	ReasonNetworkError: {
		"The upload did not complete because the connection was interrupted.",
		"Check your connection and try again.",
	},
}

// SubmissionError is the typed form of every failed deposit submission. Raw
// transport errors never escape the submitter.
type SubmissionError struct {
	Reason     RejectReason
	StatusCode int
	Code       string
	Detail     string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("deposit submission rejected: %s", e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable reports whether the submission may be sent again unchanged.
func (e *SubmissionError) Retryable() bool {
	return e.Reason == ReasonNetworkError
}

// Terminal reports whether the rejection ends this attempt and must be shown verbatim.
func (e *SubmissionError) Terminal() bool {
	switch e.Reason {
	case ReasonDuplicate, ReasonRateLimited, ReasonForbidden:
		return true
	}
	return false
}

// UserMessage returns the message shown for this reason. Terminal rejections
// prefer the server's own wording.
func (e *SubmissionError) UserMessage() string {
	if e.Terminal() && e.Detail != "" {
		return e.Detail
	}
	if t, ok := reasonText[e.Reason]; ok {
		return t.message
	}
	return reasonText[ReasonServerError].message
}

// Suggestion returns an actionable next step for this reason.
func (e *SubmissionError) Suggestion() string {
	if t, ok := reasonText[e.Reason]; ok {
		return t.suggestion
	}
	return reasonText[ReasonServerError].suggestion
}

// NewSubmissionError builds a rejection for reason with a server-facing detail.
func NewSubmissionError(reason RejectReason, detail string) *SubmissionError {
	return &SubmissionError{Reason: reason, StatusCode: statusForReason(reason), Detail: detail}
}

// ReasonForStatus maps an HTTP status onto the rejection taxonomy. ok is false
// for non-error statuses.
func ReasonForStatus(status int) (reason RejectReason, ok bool) {
	switch {
	case status < 400:
		return "", false
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest, true
	case status == http.StatusUnauthorized:
		return ReasonUnauthenticated, true
	case status == http.StatusForbidden:
		return ReasonForbidden, true
	case status == http.StatusConflict:
		return ReasonDuplicate, true
	case status == http.StatusRequestEntityTooLarge:
		return ReasonPayloadTooLarge, true
	case status == http.StatusUnprocessableEntity:
		return ReasonUnprocessable, true
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited, true
	case status >= 500:
		return ReasonServerError, true
	default:
		return ReasonInvalidRequest, true
	}
}

// FromResponse converts an error response from the deposit backend.
func FromResponse(status int, body models.ErrorBody) *SubmissionError {
	reason, ok := ReasonForStatus(status)
	if !ok {
		reason = ReasonServerError
	}
	return &SubmissionError{
		Reason:     reason,
		StatusCode: status,
		Code:       body.Code,
		Detail:     body.Message,
	}
}

// NetworkFailure wraps a transport error that prevented any response.
func NetworkFailure(err error) *SubmissionError {
	return &SubmissionError{Reason: ReasonNetworkError, Err: err}
}

func statusForReason(reason RejectReason) int {
	switch reason {
	case ReasonInvalidRequest:
		return http.StatusBadRequest
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonForbidden:
		return http.StatusForbidden
	case ReasonDuplicate:
		return http.StatusConflict
	case ReasonPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ReasonUnprocessable:
		return http.StatusUnprocessableEntity
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
