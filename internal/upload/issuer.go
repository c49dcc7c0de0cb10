package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type (
	IssuerConfig struct {
		Endpoint       string `yaml:"endpoint" env:"UPLOAD_ISSUER_ENDPOINT" env-required:"true"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"UPLOAD_ISSUER_TIMEOUT_SECONDS" env-default:"15"`
	}

	// httpTargetIssuer obtains chunk write targets from an external
	// credential service over HTTP. The targets it returns are opaque;
	// whatever signing or expiry scheme the service applies is invisible
	// to the coordinator.
	httpTargetIssuer struct {
		endpoint string
		client   *http.Client
	}

	issueTargetRequest struct {
		StorageKey  string `json:"storage_key"`
		PartNumber  int    `json:"part_number"`
		ContentType string `json:"content_type"`
	}

	issueTargetResponse struct {
		URL string `json:"url"`
	}

	finalizeRequest struct {
		StorageKey string           `json:"storage_key"`
		Parts      []CompletedChunk `json:"parts"`
	}

	abortRequest struct {
		StorageKey string `json:"storage_key"`
	}
)

func NewHTTPTargetIssuer(config IssuerConfig) TargetIssuer {
	return &httpTargetIssuer{
		endpoint: config.Endpoint,
		client:   &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
	}
}

func (issuer *httpTargetIssuer) IssueChunkTarget(ctx context.Context, storageKey string, partNumber int, contentType string) (WriteTarget, error) {
	var response issueTargetResponse
	err := issuer.post(ctx, "/targets", issueTargetRequest{StorageKey: storageKey, PartNumber: partNumber, ContentType: contentType}, &response)
	if err != nil {
		return WriteTarget{}, err
	}
	if response.URL == "" {
		return WriteTarget{}, fmt.Errorf("issuer returned an empty write target URL")
	}

	return WriteTarget{URL: response.URL}, nil
}

func (issuer *httpTargetIssuer) Finalize(ctx context.Context, storageKey string, parts []CompletedChunk) error {
	return issuer.post(ctx, "/finalize", finalizeRequest{StorageKey: storageKey, Parts: parts}, nil)
}

func (issuer *httpTargetIssuer) Abort(ctx context.Context, storageKey string) error {
	return issuer.post(ctx, "/abort", abortRequest{StorageKey: storageKey}, nil)
}

func (issuer *httpTargetIssuer) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode issuer request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, issuer.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := issuer.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("issuer replied HTTP %d for %s", response.StatusCode, path)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode issuer response: %w", err)
		}
	}

	return nil
}
