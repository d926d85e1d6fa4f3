package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"
)

// HTTPBackend calls the remote validation and fraud service.
type HTTPBackend struct {
	client  *transport.Client
	baseURL string
	token   string
}

func NewHTTPBackend(client *transport.Client, baseURL, token string) *HTTPBackend {
	return &HTTPBackend{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (h *HTTPBackend) Assess(ctx context.Context, req models.AssessmentRequest) (*models.Assessment, error) {
	newReq, err := transport.JSONRequest(http.MethodPost, h.baseURL+"/v1/validation", h.token, req)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(ctx, "validation.assess", newReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		transport.DrainAndClose(resp.Body)
		return nil, fmt.Errorf("validation service returned status %d", resp.StatusCode)
	}

	var a models.Assessment
	if err := transport.DecodeJSON(resp, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
