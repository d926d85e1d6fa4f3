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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorBody is the JSON error envelope returned by the deposit backend.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	DepositId  string `json:"depositId,omitempty"`
}

// SubmissionMetadata is the JSON part of the multipart deposit submission.
type SubmissionMetadata struct {
	SessionId         string              `json:"sessionId" validate:"required,max=128"`
	AccountId         string              `json:"accountId" validate:"required,max=64"`
	Amount            decimal.Decimal     `json:"depositAmount"`
	Memo              string              `json:"memo,omitempty" validate:"max=255"`
	Device            DeviceMetadata      `json:"device" validate:"required"`
	Extracted         *ExtractedCheckData `json:"extracted,omitempty"`
	Verdict           *ValidationVerdict  `json:"verdict,omitempty"`
	Override          bool                `json:"override"`
	OriginalDepositId string              `json:"originalDepositId,omitempty"`
}

// AssessmentRequest is sent to the validation/fraud backend.
type AssessmentRequest struct {
	AccountId      string             `json:"accountId,omitempty"`
	Extracted      ExtractedCheckData `json:"extracted"`
	DeclaredAmount decimal.Decimal    `json:"declaredAmount"`
}

// Assessment is the server-authoritative part of a verdict: duplicate and fraud
// signals that the client cannot compute locally.
type Assessment struct {
	DuplicateCheck bool    `json:"duplicateCheck"`
	FraudCheck     bool    `json:"fraudCheck"`
	FraudConfirmed bool    `json:"fraudConfirmed"`
	RiskScore      float64 `json:"riskScore"`
	Warnings       []Issue `json:"warnings"`
	Errors         []Issue `json:"errors"`
}

// CancelRequest is the body of the cancel action.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// ReviewRequest is the body of the manual review decision.
type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason" validate:"required_if=Approve false,max=255"`
}

// DepositStatusEvent is published on every lifecycle transition.
type DepositStatusEvent struct {
	DepositId  string        `json:"depositId"`
	AccountId  string        `json:"accountId"`
	From       DepositStatus `json:"from,omitempty"`
	To         DepositStatus `json:"to"`
	Amount     string        `json:"amount"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// FraudAlertEvent is published when a deposit scores above the high-risk threshold.
type FraudAlertEvent struct {
	AlertId    string    `json:"alertId"`
	DepositId  string    `json:"depositId"`
	AccountId  string    `json:"accountId"`
	UserId     string    `json:"userId,omitempty"`
	Amount     string    `json:"amount"`
	RiskScore  float64   `json:"riskScore"`
	Severity   string    `json:"severity"`
	Indicators []string  `json:"indicators"`
	Rejected   bool      `json:"rejected"`
	OccurredAt time.Time `json:"occurredAt"`
}
