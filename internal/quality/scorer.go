package quality

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"
)

// HTTPScorer calls a remote image quality model.
type HTTPScorer struct {
	client  *transport.Client
	baseURL string
	token   string
}

func NewHTTPScorer(client *transport.Client, baseURL, token string) *HTTPScorer {
	return &HTTPScorer{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

type scoreRequest struct {
	Side     models.Side `json:"side"`
	Image    []byte      `json:"image,omitempty"`
	URI      string      `json:"uri,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
}

func (s *HTTPScorer) Score(ctx context.Context, image models.CheckImage) (*Assessment, error) {
	newReq, err := transport.JSONRequest(http.MethodPost, s.baseURL+"/v1/quality", s.token, scoreRequest{
		Side:     image.Side,
		Image:    image.Data,
		URI:      image.URI,
		MimeType: image.MimeType,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, "quality.score", newReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		transport.DrainAndClose(resp.Body)
		return nil, fmt.Errorf("quality service returned status %d", resp.StatusCode)
	}

	var a Assessment
	if err := transport.DecodeJSON(resp, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
