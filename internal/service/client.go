package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	uploadPath  = "api/v0/evidence-runs"
	contentType = "application/json"
)

// EvidenceAPIUploader posts run summaries to the evidence-tracking
// service.
type EvidenceAPIUploader struct {
	requestURL *url.URL
	token      string
	client     *http.Client
}

// NewEvidenceAPIUploader validates the server URL, which must carry a
// scheme and host and no path, e.g. `https://evidence.example.com`.
func NewEvidenceAPIUploader(serverURL, token string) (*EvidenceAPIUploader, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the server url with a scheme and without path, e.g. `https://evidence.example.com`")
	}
	parsedURL.Path = uploadPath

	return &EvidenceAPIUploader{
		requestURL: parsedURL,
		token:      token,
		client:     &http.Client{},
	}, nil
}

func (c *EvidenceAPIUploader) Upload(ctx context.Context, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	created, err := decodeUploadResponse(resp)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "summary uploaded",
		slog.String("id", created.ID),
		slog.String("state", created.State))
	return nil
}

func (c *EvidenceAPIUploader) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type runCreateResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func decodeUploadResponse(resp *http.Response) (runCreateResponse, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err != nil {
			return runCreateResponse{}, fmt.Errorf("failed to parse response content type header: %w", err)
		}
		if ct != "application/json" {
			return runCreateResponse{}, fmt.Errorf("expected `application/json` content type, got: %s", ct)
		}
		var created runCreateResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return runCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		if created.ID == "" {
			return runCreateResponse{}, errors.New("received unexpected body")
		}
		return created, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return runCreateResponse{}, fmt.Errorf("status code: %d: check the repository token", resp.StatusCode)

	case http.StatusRequestEntityTooLarge:
		return runCreateResponse{}, fmt.Errorf("status code: %d: summary too large", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return runCreateResponse{}, err
	}
	return runCreateResponse{}, fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
