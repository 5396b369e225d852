package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ebookqa/config"
)

// azureClient calls the Azure Document Intelligence prebuilt-read model. The
// analyze API is asynchronous: submit, then poll the operation-location URL.
type azureClient struct {
	endpoint   string
	key        string
	apiVersion string
	httpClient *http.Client
	pollEvery  time.Duration
}

func newAzureClient(cfg config.AzureOCRConfig) (*azureClient, error) {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil, errors.New("azure ocr requires endpoint and key")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-07-31"
	}
	return &azureClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		key:        cfg.Key,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		pollEvery:  time.Second,
	}, nil
}

func (c *azureClient) Source() string { return "ocr/azure" }

// Recognize submits the image and polls until the analysis completes.
func (c *azureClient) Recognize(ctx context.Context, image []byte) (Result, error) {
	opURL, err := c.submit(ctx, image)
	if err != nil {
		return Result{}, err
	}
	for {
		res, done, err := c.poll(ctx, opURL)
		if err != nil {
			return Result{}, err
		}
		if done {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.pollEvery):
		}
	}
}

func (c *azureClient) submit(ctx context.Context, image []byte) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/prebuilt-read:analyze?api-version=%s", c.endpoint, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("analyze API returned status: %d", resp.StatusCode)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", errors.New("analyze API returned no operation-location")
	}
	return opURL, nil
}

func (c *azureClient) poll(ctx context.Context, opURL string) (Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", opURL, nil)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, false, fmt.Errorf("operation poll returned status: %d", resp.StatusCode)
	}

	var body analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, false, fmt.Errorf("failed to parse response: %w", err)
	}

	switch body.Status {
	case "succeeded":
		return Result{
			Text:       strings.TrimSpace(body.AnalyzeResult.Content),
			Confidence: averageWordConfidence(body.AnalyzeResult.Pages),
		}, true, nil
	case "failed":
		return Result{}, false, fmt.Errorf("analysis failed: %s", body.Error.Message)
	default:
		return Result{}, false, nil
	}
}

type analyzeOperation struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Content string        `json:"content"`
		Pages   []analyzePage `json:"pages"`
	} `json:"analyzeResult"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type analyzePage struct {
	Words []struct {
		Confidence float64 `json:"confidence"`
	} `json:"words"`
}

// averageWordConfidence normalizes Azure's 0-1 word confidences to 0-100.
func averageWordConfidence(pages []analyzePage) float64 {
	sum := 0.0
	count := 0
	for _, p := range pages {
		for _, w := range p.Words {
			sum += w.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}
