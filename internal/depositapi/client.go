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

package depositapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the backend does not know a deposit id.
var ErrNotFound = errors.New("deposit not found")

const (
	// IdempotencyHeader carries the capture session id on submissions.
	IdempotencyHeader = "Idempotency-Key"

	maxErrorBodyBytes = 64 << 10
)

// Client talks to the deposit backend: multipart submission, status, cancel
// and review.
type Client struct {
	http    *transport.Client
	baseURL string
	token   string
}

func NewClient(httpClient *transport.Client, baseURL, token string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Submit uploads both images and the metadata in one multipart request. Either
// a deposit with an id is returned or a *errs.SubmissionError.
func (c *Client) Submit(ctx context.Context, req *models.DepositRequest) (*models.Deposit, error) {
	body, contentType, err := encodeSubmission(req)
	if err != nil {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, err.Error())
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/deposits", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", contentType)
		r.Header.Set("Accept", "application/json")
		r.Header.Set(IdempotencyHeader, req.SessionId)
		c.authorize(r)
		return r, nil
	}

	resp, err := c.http.Do(ctx, "deposit.submit", newReq)
	if err != nil {
		return nil, errs.NetworkFailure(err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var d models.Deposit
		if err := transport.DecodeJSON(resp, &d); err != nil {
			return nil, errs.NetworkFailure(err)
		}
		if d.Id == "" {
			return nil, errs.NewSubmissionError(errs.ReasonServerError, "response carried no deposit id")
		}
		return &d, nil
	}

	errBody := readErrorBody(resp)
	if resp.StatusCode == http.StatusConflict && errBody.Code == errs.CodeIdempotencyReplay && errBody.DepositId != "" {
		zap.L().Info("Submission replayed, fetching existing deposit",
			zap.String("session_id", req.SessionId),
			zap.String("deposit_id", errBody.DepositId))
		d, err := c.GetDeposit(ctx, errBody.DepositId)
		if err != nil {
			return nil, errs.NetworkFailure(err)
		}
		return d, nil
	}
	return nil, errs.FromResponse(resp.StatusCode, errBody)
}

// GetDeposit fetches the current aggregate for id.
func (c *Client) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	newReq, err := transport.JSONRequest(http.MethodGet, c.depositURL(id, ""), c.token, nil)
	if err != nil {
		return nil, err
	}
	return c.depositCall(ctx, "deposit.get", id, newReq)
}

// Cancel asks the backend to cancel id. Only a successful response means the
// deposit is cancelled.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*models.Deposit, error) {
	newReq, err := transport.JSONRequest(http.MethodPost, c.depositURL(id, "/cancel"), c.token, models.CancelRequest{Reason: reason})
	if err != nil {
		return nil, err
	}
	return c.depositCall(ctx, "deposit.cancel", id, newReq)
}

// Review records a manual review decision for a deposit under review.
func (c *Client) Review(ctx context.Context, id string, approve bool, reason string) (*models.Deposit, error) {
	newReq, err := transport.JSONRequest(http.MethodPost, c.depositURL(id, "/review"), c.token, models.ReviewRequest{Approve: approve, Reason: reason})
	if err != nil {
		return nil, err
	}
	return c.depositCall(ctx, "deposit.review", id, newReq)
}

func (c *Client) depositCall(ctx context.Context, op, id string, newReq transport.RequestFunc) (*models.Deposit, error) {
	resp, err := c.http.Do(ctx, op, newReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		var d models.Deposit
		if err := transport.DecodeJSON(resp, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}

	body := readErrorBody(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode == http.StatusConflict && body.Code == errs.CodeInvalidState:
		return nil, &errs.PreconditionError{Op: strings.TrimPrefix(op, "deposit."), DepositId: id, Reason: body.Message}
	}
	return nil, errs.FromResponse(resp.StatusCode, body)
}

func (c *Client) depositURL(id, suffix string) string {
	return c.baseURL + "/v1/deposits/" + url.PathEscape(id) + suffix
}

func (c *Client) authorize(r *http.Request) {
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readErrorBody(resp *http.Response) models.ErrorBody {
	defer transport.DrainAndClose(resp.Body)
	var body models.ErrorBody
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return body
	}
	if err := json.Unmarshal(data, &body); err != nil {
		body.Message = strings.TrimSpace(string(data))
	}
	return body
}

// encodeSubmission renders the multipart body once so retries resend identical bytes.
func encodeSubmission(req *models.DepositRequest) ([]byte, string, error) {
	if req.Front.Empty() || req.Back.Empty() {
		return nil, "", errors.New("both check images are required")
	}
	if len(req.Front.Data) == 0 || len(req.Back.Data) == 0 {
		return nil, "", errors.New("check images must be loaded before upload")
	}

	meta, err := json.Marshal(MetadataFor(req))
	if err != nil {
		return nil, "", fmt.Errorf("error marshaling metadata: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="metadata"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", err
	}

	for _, img := range []models.CheckImage{req.Front, req.Back} {
		if err := writeImage(w, img); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeImage(w *multipart.Writer, img models.CheckImage) error {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s.jpg"`, img.Side, img.Side))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(img.Data)
	return err
}

// MetadataFor returns the JSON part of a submission.
func MetadataFor(req *models.DepositRequest) models.SubmissionMetadata {
	return models.SubmissionMetadata{
		SessionId:         req.SessionId,
		AccountId:         req.AccountId,
		Amount:            req.Amount,
		Memo:              req.Memo,
		Device:            req.Device,
		Extracted:         req.Extracted,
		Verdict:           req.Verdict,
		Override:          req.Override,
		OriginalDepositId: req.OriginalDepositId,
	}
}
