package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to a captioning sidecar over HTTP
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second // vision models on CPU are slow
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

type captionResponse struct {
	Caption
	Text string `json:"text"`
}

// Caption posts frame as JPEG to /caption. The sidecar may answer with the
// structured fields or with labeled text under "text".
func (c *HTTPClient) Caption(ctx context.Context, frame image.Image) (*Caption, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/caption", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caption request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("caption returned %d: %s", resp.StatusCode, respBody)
	}

	var result captionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding caption response: %w", err)
	}

	if result.Text != "" && result.Theme == "" && len(result.Keywords) == 0 {
		return Parse(result.Text), nil
	}
	out := result.Caption
	if out.MoodIntensity == 0 {
		out.MoodIntensity = DefaultMoodIntensity
	}
	return &out, nil
}
