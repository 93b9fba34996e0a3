package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HttpRequest sends req as a JSON body (no body when req is nil) and decodes the JSON response into T.
func HttpRequest[T any](ctx context.Context, logger *zap.Logger, url string, method string, req any) (T, error) {
	httpClient := &http.Client{}
	logger.Debug("sending request to zaap api", zap.String("url", url), zap.Any("req", req))

	var resp T
	var body io.Reader
	if req != nil {
		requestBody, err := json.Marshal(req)
		if err != nil {
			return resp, errors.Wrapf(err, "failed to marshal request body")
		}
		body = bytes.NewBuffer(requestBody)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return resp, errors.Wrapf(err, "failed to create request to %s", url)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := httpClient.Do(httpRequest)
	if err != nil {
		return resp, errors.Wrapf(err, "failed to send request to %s with req=%+v", url, req)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		_ = json.NewDecoder(response.Body).Decode(&apiErr)
		return resp, errors.Errorf("unexpected status code: %d for %s: %s", response.StatusCode, url, apiErr.Error)
	}

	if err := json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return resp, errors.Wrapf(err, "failed to decode response body")
	}

	logger.Debug("received response from zaap api", zap.String("url", url), zap.Any("resp", resp))

	return resp, nil
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}

// WriteError writes err as an ErrorResponse.
func WriteError(w http.ResponseWriter, logger *zap.Logger, status int, err error) {
	WriteJSON(w, logger, status, ErrorResponse{Error: err.Error()})
}
