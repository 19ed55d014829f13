package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

// Client talks to the Python vision service over HTTP.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

type visualRequest struct {
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

func NewClient(url string, logger *zap.Logger) *Client {
	logger.Info("using vision service", zap.String("url", url))
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// DeriveVisual sends one JPEG frame for analysis. The per-call timeout
// bounds how long a capture loop iteration can stall on the detector.
func (c *Client) DeriveVisual(ctx context.Context, frame []byte) (models.VisualSignals, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(visualRequest{
		Frame:     base64.StdEncoding.EncodeToString(frame),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return models.VisualSignals{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/detect/visual", bytes.NewReader(body))
	if err != nil {
		return models.VisualSignals{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.VisualSignals{}, fmt.Errorf("vision service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.VisualSignals{}, fmt.Errorf("vision service returned %d", resp.StatusCode)
	}

	var out models.VisualSignals
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.VisualSignals{}, fmt.Errorf("decode detection result: %w", err)
	}
	return out, nil
}

// Health reports whether the vision service is reachable.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
