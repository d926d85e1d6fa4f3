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
	"errors"
	"fmt"
	"net/http"

	"check-deposit-go/internal/models"
)

// Kind classifies an error for recovery decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindSoftQuality
	KindOcrService
	KindValidationBlocking
	KindValidationWarning
	KindSubmissionConflict
	KindSubmissionRejected
	KindTransientNetwork
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindSoftQuality:
		return "soft-quality-failure"
	case KindOcrService:
		return "ocr-service-error"
	case KindValidationBlocking:
		return "validation-blocking"
	case KindValidationWarning:
		return "validation-warning"
	case KindSubmissionConflict:
		return "submission-conflict"
	case KindSubmissionRejected:
		return "submission-rejected"
	case KindTransientNetwork:
		return "transient-network"
	case KindPrecondition:
		return "precondition-violation"
	default:
		return "unknown"
	}
}

// Code sent by the backend when an idempotency key was already used. The client
// treats it as success and returns the existing deposit.
const CodeIdempotencyReplay = "idempotency_replay"

// Code sent by the backend when an action is not allowed in the current status.
const CodeInvalidState = "invalid_state"

// SoftQualityFailure is returned when a capture fails the quality gate. The user
// can retake the photo or continue with an explicit override.
type SoftQualityFailure struct {
	Side   models.Side
	Result models.QualityResult
}

func (e *SoftQualityFailure) Error() string {
	return fmt.Sprintf("%s image failed quality check (score %.2f): %v", e.Side, e.Result.Score, e.Result.Issues)
}

// OcrServiceError aborts the current attempt. Callers may retry.
type OcrServiceError struct {
	Side       models.Side
	StatusCode int
	Err        error
}

func (e *OcrServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocr service failed for %s image (status %d): %v", e.Side, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ocr service failed for %s image: %v", e.Side, e.Err)
}

func (e *OcrServiceError) Unwrap() error { return e.Err }

// ValidationBlockingError carries a verdict with at least one error the user must fix.
type ValidationBlockingError struct {
	Verdict models.ValidationVerdict
}

func (e *ValidationBlockingError) Error() string {
	if len(e.Verdict.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s (%d error(s))", e.Verdict.Errors[0].Message, len(e.Verdict.Errors))
}

// Overridable reports whether the user may continue anyway.
func (e *ValidationBlockingError) Overridable() bool {
	return e.Verdict.CanOverride()
}

// TransientNetworkError is safe to retry without side effects.
type TransientNetworkError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: network error after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// PreconditionError is returned when an action is requested from a state that
// does not allow it. It never resolves by retrying.
type PreconditionError struct {
	Op        string
	DepositId string
	Status    models.DepositStatus
	Reason    string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("%s not allowed for deposit %s in status %s", e.Op, e.DepositId, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IllegalTransitionError reports a status change the lifecycle does not permit.
type IllegalTransitionError struct {
	From models.DepositStatus
	To   models.DepositStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal deposit transition %s -> %s", e.From, e.To)
}

// IsRetryable reports whether err may be retried by the caller without side effects.
func IsRetryable(err error) bool {
	var netErr *TransientNetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var ocrErr *OcrServiceError
	if errors.As(err, &ocrErr) {
		return true
	}
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Retryable()
	}
	return false
}

// Classify maps err onto the recovery taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var (
		soft    *SoftQualityFailure
		ocr     *OcrServiceError
		blocked *ValidationBlockingError
		net     *TransientNetworkError
		pre     *PreconditionError
		sub     *SubmissionError
	)
	switch {
	case errors.As(err, &soft):
		return KindSoftQuality
	case errors.As(err, &ocr):
		return KindOcrService
	case errors.As(err, &blocked):
		if blocked.Overridable() {
			return KindValidationWarning
		}
		return KindValidationBlocking
	case errors.As(err, &pre):
		return KindPrecondition
	case errors.As(err, &sub):
		if sub.Reason == ReasonNetworkError {
			return KindTransientNetwork
		}
		return KindSubmissionRejected
	case errors.As(err, &net):
		return KindTransientNetwork
	}
	return KindUnknown
}

// HTTPStatus returns the status code a server should answer with for err.
func HTTPStatus(err error) int {
	var sub *SubmissionError
	if errors.As(err, &sub) {
		if sub.StatusCode != 0 {
			return sub.StatusCode
		}
		return statusForReason(sub.Reason)
	}
	var pre *PreconditionError
	if errors.As(err, &pre) {
		return http.StatusConflict
	}
	var ill *IllegalTransitionError
	if errors.As(err, &ill) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
