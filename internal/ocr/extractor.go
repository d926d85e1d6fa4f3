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

package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Extractor turns one captured side into structured check fields. Calls for the
// front and the back are independent and share no state.
type Extractor interface {
	Extract(ctx context.Context, image models.CheckImage) (*models.ExtractedCheckData, error)
}

// Options are the processing flags sent with every OCR request.
type Options struct {
	DocumentType          string `json:"documentType"`
	EnhanceImage          bool   `json:"enhanceImage"`
	ExtractStructuredData bool   `json:"extractStructuredData"`
	ValidateData          bool   `json:"validateData"`
}

// DefaultOptions are used when none are configured.
var DefaultOptions = Options{
	DocumentType:          "check",
	EnhanceImage:          true,
	ExtractStructuredData: true,
	ValidateData:          false,
}

type extractRequest struct {
	Side     models.Side `json:"side"`
	Image    []byte      `json:"image,omitempty"`
	URI      string      `json:"uri,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Options  Options     `json:"options"`
}

// extractResponse mirrors the OCR backend. Amounts arrive as strings so no
// precision is lost before decimal parsing.
type extractResponse struct {
	CheckNumber         *string  `json:"checkNumber"`
	RoutingNumber       *string  `json:"routingNumber"`
	AccountNumber       *string  `json:"accountNumber"`
	PayeeName           *string  `json:"payeeName"`
	PayorName           *string  `json:"payorName"`
	CheckDate           *string  `json:"checkDate"`
	Memo                *string  `json:"memo"`
	BankName            *string  `json:"bankName"`
	NumericAmount       *string  `json:"numericAmount"`
	WrittenAmount       *string  `json:"writtenAmount"`
	EndorsementDetected *bool    `json:"endorsementDetected"`
	Confidence          *float64 `json:"confidence"`
	RawText             string   `json:"rawText"`
}

// HTTPExtractor calls a remote OCR engine.
type HTTPExtractor struct {
	client  *transport.Client
	baseURL string
	token   string
	options Options
	metrics metrics.Collector
}

func NewHTTPExtractor(client *transport.Client, baseURL, token string, m metrics.Collector) *HTTPExtractor {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	return &HTTPExtractor{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		options: DefaultOptions,
		metrics: m,
	}
}

// Extract performs one OCR call. Any failure is an *errs.OcrServiceError and
// is not retried here beyond the transport's network retry.
func (e *HTTPExtractor) Extract(ctx context.Context, image models.CheckImage) (*models.ExtractedCheckData, error) {
	start := time.Now()
	data, err := e.extract(ctx, image)
	e.metrics.RecordStage("ocr", err == nil, time.Since(start))
	if err != nil {
		zap.L().Warn("OCR extraction failed", zap.String("side", string(image.Side)), zap.Error(err))
		return nil, err
	}
	zap.L().Debug("OCR extraction complete",
		zap.String("side", string(image.Side)),
		zap.Float64("confidence", data.Confidence),
		zap.Bool("amount_mismatch", data.AmountMismatch))
	return data, nil
}

func (e *HTTPExtractor) extract(ctx context.Context, image models.CheckImage) (*models.ExtractedCheckData, error) {
	if image.Empty() {
		return nil, &errs.OcrServiceError{Side: image.Side, Err: errors.New("image has no content")}
	}

	newReq, err := transport.JSONRequest(http.MethodPost, e.baseURL+"/v1/ocr", e.token, extractRequest{
		Side:     image.Side,
		Image:    image.Data,
		URI:      image.URI,
		MimeType: image.MimeType,
		Options:  e.options,
	})
	if err != nil {
		return nil, &errs.OcrServiceError{Side: image.Side, Err: err}
	}

	resp, err := e.client.Do(ctx, "ocr.extract", newReq)
	if err != nil {
		return nil, &errs.OcrServiceError{Side: image.Side, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		transport.DrainAndClose(resp.Body)
		return nil, &errs.OcrServiceError{
			Side:       image.Side,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var body extractResponse
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return nil, &errs.OcrServiceError{Side: image.Side, Err: err}
	}
	return convert(image.Side, body), nil
}

// convert maps the wire response. Unreadable values stay nil.
func convert(side models.Side, r extractResponse) *models.ExtractedCheckData {
	out := &models.ExtractedCheckData{
		Side:          side,
		CheckNumber:   trimmed(r.CheckNumber),
		RoutingNumber: digitsOnly(r.RoutingNumber),
		AccountNumber: digitsOnly(r.AccountNumber),
		PayeeName:     trimmed(r.PayeeName),
		PayorName:     trimmed(r.PayorName),
		Memo:          trimmed(r.Memo),
		BankName:      trimmed(r.BankName),
		WrittenAmount: trimmed(r.WrittenAmount),
		Endorsed:      r.EndorsementDetected,
		RawText:       r.RawText,
	}
	if r.Confidence != nil {
		out.Confidence = clamp01(*r.Confidence)
	}
	if r.CheckDate != nil {
		if t, ok := parseDate(*r.CheckDate); ok {
			out.CheckDate = &t
		}
	}
	if r.NumericAmount != nil {
		if d, ok := parseNumericAmount(*r.NumericAmount); ok {
			out.NumericAmount = &d
		}
	}
	out.AmountMismatch = amountsDisagree(out.NumericAmount, out.WrittenAmount)
	return out
}

// amountsDisagree compares the courtesy and legal amounts when both were read.
func amountsDisagree(numeric *decimal.Decimal, written *string) bool {
	if numeric == nil || written == nil {
		return false
	}
	w, ok := ParseWrittenAmount(*written)
	if !ok {
		return false
	}
	return !w.Equal(numeric.Round(2))
}

// Merge combines independently extracted front and back results. Front fields
// win; the back supplies the endorsement. Confidence is the mean of both.
func Merge(front, back *models.ExtractedCheckData) *models.ExtractedCheckData {
	switch {
	case front == nil && back == nil:
		return nil
	case front == nil:
		cp := *back
		return &cp
	case back == nil:
		cp := *front
		return &cp
	}

	out := *front
	out.Side = ""
	out.CheckNumber = firstNonNil(front.CheckNumber, back.CheckNumber)
	out.RoutingNumber = firstNonNil(front.RoutingNumber, back.RoutingNumber)
	out.AccountNumber = firstNonNil(front.AccountNumber, back.AccountNumber)
	out.PayeeName = firstNonNil(front.PayeeName, back.PayeeName)
	out.PayorName = firstNonNil(front.PayorName, back.PayorName)
	out.Memo = firstNonNil(front.Memo, back.Memo)
	out.BankName = firstNonNil(front.BankName, back.BankName)
	out.WrittenAmount = firstNonNil(front.WrittenAmount, back.WrittenAmount)
	if out.CheckDate == nil {
		out.CheckDate = back.CheckDate
	}
	if out.NumericAmount == nil {
		out.NumericAmount = back.NumericAmount
	}
	out.Endorsed = back.Endorsed
	out.Confidence = (front.Confidence + back.Confidence) / 2
	out.AmountMismatch = front.AmountMismatch || back.AmountMismatch || amountsDisagree(out.NumericAmount, out.WrittenAmount)
	if back.RawText != "" {
		out.RawText = strings.TrimSpace(front.RawText + "\n" + back.RawText)
	}
	return &out
}

func firstNonNil(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func digitsOnly(s *string) *string {
	if s == nil {
		return nil
	}
	var b strings.Builder
	for _, r := range *s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	v := b.String()
	return &v
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumericAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
