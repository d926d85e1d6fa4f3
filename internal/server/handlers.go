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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

func (s *Server) submitDeposit(c *gin.Context) {
	principal, _ := GetPrincipal(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	if err := c.Request.ParseMultipartForm(s.maxBodyBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, errs.NewSubmissionError(errs.ReasonPayloadTooLarge,
				fmt.Sprintf("Submission exceeds %d bytes", s.maxBodyBytes)))
			return
		}
		badRequest(c, "Expected a multipart submission with front, back and metadata parts")
		return
	}

	rawMeta := c.Request.MultipartForm.Value["metadata"]
	if len(rawMeta) == 0 {
		badRequest(c, "metadata part is required")
		return
	}
	var meta models.SubmissionMetadata
	if err := json.Unmarshal([]byte(rawMeta[0]), &meta); err != nil {
		badRequest(c, "metadata is not valid JSON: "+err.Error())
		return
	}

	front, err := s.readImage(c, "front")
	if err != nil {
		respondError(c, err)
		return
	}
	back, err := s.readImage(c, "back")
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := s.service.Intake(c.Request.Context(), principal, api.IntakeRequest{
		IdempotencyKey: c.GetHeader(idempotencyHeader),
		Metadata:       meta,
		Front:          front,
		Back:           back,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result.Deposit)
}

// readImage returns the bytes of one image part. Oversized parts are left to the
// service so the rejection carries its limit.
func (s *Server) readImage(c *gin.Context, side string) ([]byte, error) {
	fh, err := c.FormFile(side)
	if err != nil {
		return nil, errs.NewSubmissionError(errs.ReasonInvalidRequest, side+" image is required")
	}
	return readPart(fh)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) getDeposit(c *gin.Context) {
	principal, _ := GetPrincipal(c)
	d, err := s.service.Get(c.Request.Context(), principal, c.Param("depositId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) cancelDeposit(c *gin.Context) {
	principal, _ := GetPrincipal(c)

	var req models.CancelRequest
	if c.Request.ContentLength != 0 {
		if !s.bindJSON(c, &req) {
			return
		}
	}

	d, err := s.service.Cancel(c.Request.Context(), principal, c.Param("depositId"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) reviewDeposit(c *gin.Context) {
	principal, _ := GetPrincipal(c)

	var req models.ReviewRequest
	if !s.bindJSON(c, &req) {
		return
	}

	d, err := s.service.Review(c.Request.Context(), principal, c.Param("depositId"), req.Approve, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) assess(c *gin.Context) {
	principal, _ := GetPrincipal(c)

	var req models.AssessmentRequest
	if !s.bindJSON(c, &req) {
		return
	}

	assessment, err := s.service.Assess(c.Request.Context(), principal, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) accountBalances(c *gin.Context) {
	principal, _ := GetPrincipal(c)
	accountId := c.Param("accountId")

	balances, err := s.service.GetAccountBalances(c.Request.Context(), principal, accountId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountId, "balances": balances})
}

func (s *Server) accountDeposits(c *gin.Context) {
	principal, _ := GetPrincipal(c)
	accountId := c.Param("accountId")
	limit, offset := pageParams(c)

	deposits, err := s.service.ListDeposits(c.Request.Context(), principal, accountId, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountId, "deposits": deposits})
}

func (s *Server) accountTransactions(c *gin.Context) {
	principal, _ := GetPrincipal(c)
	accountId := c.Param("accountId")
	limit, offset := pageParams(c)

	transactions, err := s.service.GetTransactionHistory(c.Request.Context(), principal, accountId, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountId, "transactions": transactions})
}

func (s *Server) health(c *gin.Context) {
	if err := s.service.HealthCheck(c.Request.Context()); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindJSON decodes and validates the request body, answering 400 on failure.
func (s *Server) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(obj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			badRequest(c, fmt.Sprintf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		badRequest(c, err.Error())
		return false
	}
	return true
}

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}
