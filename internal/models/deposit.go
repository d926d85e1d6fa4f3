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

// DepositStatus is the server-driven lifecycle state of a deposit.
type DepositStatus string

const (
	StatusSubmitted   DepositStatus = "SUBMITTED"
	StatusProcessing  DepositStatus = "PROCESSING"
	StatusUnderReview DepositStatus = "UNDER_REVIEW"
	StatusApproved    DepositStatus = "APPROVED"
	StatusDeposited   DepositStatus = "DEPOSITED"
	StatusRejected    DepositStatus = "REJECTED"
	StatusFailed      DepositStatus = "FAILED"
	StatusCancelled   DepositStatus = "CANCELLED"
)

// StepStatus is the sub-status of one entry in the processing timeline.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ProcessingStep is one entry of a deposit's ordered timeline.
type ProcessingStep struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	EstimatedAt *time.Time `json:"estimatedAt,omitempty"`
}

// SupportAction is a recovery or support control the client may render.
type SupportAction string

const (
	ActionCancel         SupportAction = "cancel"
	ActionResubmit       SupportAction = "resubmit"
	ActionContactSupport SupportAction = "contact-support"
	ActionViewDetails    SupportAction = "view-details"
)

// HoldType is the funds availability policy applied on approval.
type HoldType string

const (
	HoldNone     HoldType = "NONE"
	HoldNextDay  HoldType = "NEXT_DAY"
	HoldTwoDay   HoldType = "TWO_DAY"
	HoldFiveDay  HoldType = "FIVE_DAY"
	HoldSevenDay HoldType = "SEVEN_DAY"
	HoldExtended HoldType = "EXTENDED"
)

// BusinessDays returns the number of business days funds are held.
func (h HoldType) BusinessDays() int {
	switch h {
	case HoldNextDay:
		return 1
	case HoldTwoDay:
		return 2
	case HoldFiveDay:
		return 5
	case HoldSevenDay:
		return 7
	case HoldExtended:
		return 10
	default:
		return 0
	}
}

// Geolocation is the optional capture location reported by the device.
type Geolocation struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64 `json:"accuracy,omitempty" validate:"gte=0"`
}

// DeviceMetadata describes the device that captured the check.
type DeviceMetadata struct {
	DeviceId  string       `json:"deviceId" validate:"required,max=128"`
	Timestamp time.Time    `json:"timestamp" validate:"required"`
	Location  *Geolocation `json:"location,omitempty" validate:"omitempty"`
}

// DepositRequest is the unit submitted to the deposit backend. It is immutable
// once submitted; corrections are new requests linked by OriginalDepositId.
type DepositRequest struct {
	SessionId         string              `json:"sessionId" validate:"required,max=128"`
	AccountId         string              `json:"accountId" validate:"required,max=64"`
	Amount            decimal.Decimal     `json:"depositAmount"`
	Memo              string              `json:"memo,omitempty" validate:"max=255"`
	Device            DeviceMetadata      `json:"device"`
	Extracted         *ExtractedCheckData `json:"extracted,omitempty"`
	Verdict           *ValidationVerdict  `json:"verdict,omitempty"`
	Override          bool                `json:"override"`
	OriginalDepositId string              `json:"originalDepositId,omitempty"`
	Front             CheckImage          `json:"-"`
	Back              CheckImage          `json:"-"`
}

// Deposit is the server-tracked aggregate created by a successful submission.
type Deposit struct {
	Id                    string           `json:"depositId"`
	SessionId             string           `json:"sessionId"`
	UserId                string           `json:"userId,omitempty"`
	AccountId             string           `json:"accountId"`
	Status                DepositStatus    `json:"status"`
	Amount                decimal.Decimal  `json:"amount"`
	SubmittedAt           time.Time        `json:"submittedAt"`
	EstimatedAvailability *time.Time       `json:"estimatedAvailability,omitempty"`
	ActualAvailability    *time.Time       `json:"actualAvailability,omitempty"`
	ConfirmationNumber    string           `json:"confirmationNumber"`
	RejectionReason       string           `json:"rejectionReason,omitempty"`
	HoldReason            string           `json:"holdReason,omitempty"`
	HoldType              HoldType         `json:"holdType,omitempty"`
	ImmediatelyAvailable  decimal.Decimal  `json:"immediatelyAvailable"`
	RiskScore             float64          `json:"riskScore"`
	OriginalDepositId     string           `json:"originalDepositId,omitempty"`
	ProcessingSteps       []ProcessingStep `json:"processingSteps"`
	SupportActions        []SupportAction  `json:"supportActions"`
	Version               int64            `json:"version"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}
