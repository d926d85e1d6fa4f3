package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes bounds how much of a JSON response is read.
const maxResponseBytes = 4 << 20

// JSONRequest returns a RequestFunc that sends v as a JSON body. The payload is
// marshaled once and replayed on every attempt.
func JSONRequest(method, url, token string, v any) (RequestFunc, error) {
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
	}
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}, nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(resp *http.Response, v any) error {
	defer DrainAndClose(resp.Body)
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(v); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
