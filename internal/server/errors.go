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

package server

import (
	"errors"
	"net/http"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const codeNotFound = "not_found"

// respondError writes the JSON error envelope for err. Anything the service did
// not classify is reported as a server error without its detail.
func respondError(c *gin.Context, err error) {
	var (
		sub *errs.SubmissionError
		pre *errs.PreconditionError
		ill *errs.IllegalTransitionError
	)
	switch {
	case errors.As(err, &sub):
		c.JSON(errs.HTTPStatus(sub), submissionBody(sub))
	case errors.As(err, &pre):
		message := pre.Reason
		if message == "" {
			message = "deposit is " + string(pre.Status)
		}
		c.JSON(http.StatusConflict, models.ErrorBody{
			Code:      errs.CodeInvalidState,
			Message:   message,
			DepositId: pre.DepositId,
		})
	case errors.As(err, &ill):
		c.JSON(http.StatusConflict, models.ErrorBody{Code: errs.CodeInvalidState, Message: ill.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorBody{Code: codeNotFound, Message: "Deposit not found"})
	default:
		zap.L().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, submissionBody(errs.NewSubmissionError(errs.ReasonServerError, "")))
	}
}

func submissionBody(sub *errs.SubmissionError) models.ErrorBody {
	message := sub.Detail
	if message == "" {
		message = sub.UserMessage()
	}
	return models.ErrorBody{
		Code:       string(sub.Reason),
		Message:    message,
		Suggestion: sub.Suggestion(),
	}
}

func badRequest(c *gin.Context, detail string) {
	respondError(c, errs.NewSubmissionError(errs.ReasonInvalidRequest, detail))
}
