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

// Side identifies which face of a paper check an image captures.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// QualityMetrics are the raw capture measurements reported by the scoring service.
type QualityMetrics struct {
	Resolution  float64 `json:"resolution"`  // effective DPI
	Contrast    float64 `json:"contrast"`    // contrast ratio, normalized to [0,1]
	Blur        float64 `json:"blur"`        // 0 = sharp, 1 = unreadable
	SkewDegrees float64 `json:"skewDegrees"` // signed rotation from horizontal
}

// CheckImage is one captured side of a check. It is never mutated after capture;
// a retake produces a new CheckImage.
type CheckImage struct {
	Side         Side               `json:"side"`
	Data         []byte             `json:"-"`
	URI          string             `json:"uri,omitempty"`
	MimeType     string             `json:"mimeType"`
	CapturedAt   time.Time          `json:"capturedAt"`
	QualityScore *float64           `json:"qualityScore,omitempty"`
	Validation   *ValidationVerdict `json:"validationResult,omitempty"`
}

// Empty reports whether the image carries neither bytes nor a URI reference.
func (c CheckImage) Empty() bool {
	return len(c.Data) == 0 && c.URI == ""
}

// QualityResult is the outcome of gating a single capture.
type QualityResult struct {
	Acceptable  bool            `json:"acceptable"`
	Issues      []string        `json:"issues"`
	Suggestions []string        `json:"suggestions"`
	Score       float64         `json:"score"`
	Metrics     *QualityMetrics `json:"metrics,omitempty"`
}

// ExtractedCheckData is the structured output of one OCR call. Pointer fields are
// nil when the engine could not read them; a nil field is never the same as zero.
type ExtractedCheckData struct {
	Side           Side             `json:"side,omitempty"`
	CheckNumber    *string          `json:"checkNumber,omitempty"`
	RoutingNumber  *string          `json:"routingNumber,omitempty"`
	AccountNumber  *string          `json:"accountNumber,omitempty"`
	PayeeName      *string          `json:"payeeName,omitempty"`
	PayorName      *string          `json:"payorName,omitempty"`
	CheckDate      *time.Time       `json:"checkDate,omitempty"`
	Memo           *string          `json:"memo,omitempty"`
	BankName       *string          `json:"bankName,omitempty"`
	NumericAmount  *decimal.Decimal `json:"numericAmount,omitempty"`
	WrittenAmount  *string          `json:"writtenAmount,omitempty"`
	AmountMismatch bool             `json:"amountMismatch"`
	Endorsed       *bool            `json:"endorsementDetected,omitempty"`
	Confidence     float64          `json:"confidence"`
	RawText        string           `json:"rawText,omitempty"`
}
