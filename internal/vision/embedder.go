// embedder.go: HTTP client for the face embedding sidecar. The model
// itself (ArcFace or similar) runs out of process; this adapter sends a
// JPEG face crop and receives a fixed-length vector.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// Embedder converts face crops into embedding vectors via the sidecar.
type Embedder struct {
	url        string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewEmbedder creates an embedder client from settings.
func NewEmbedder(settings *conf.EmbedderSettings) *Embedder {
	return &Embedder{
		url:       settings.URL,
		dimension: settings.Dimension,
		httpClient: &http.Client{
			Timeout: settings.Timeout,
		},
		logger: logging.ForService("embedder"),
	}
}

type embedRequest struct {
	Image string `json:"image"` // base64 JPEG
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Detected  bool      `json:"detected"`
}

// Embed returns the embedding vector for a JPEG-encoded face crop. A
// sidecar answer without a detected face yields a nil vector and no
// error, that is a normal outcome.
func (e *Embedder) Embed(ctx context.Context, faceJPEG []byte) ([]float64, error) {
	payload, err := json.Marshal(embedRequest{
		Image: base64.StdEncoding.EncodeToString(faceJPEG),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("embedder").
			Category(errors.CategoryValidation).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(err).
			Component("embedder").
			Category(errors.CategoryHTTP).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("embedder").
			Category(errors.CategoryModelInference).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("embedding sidecar returned status %d", resp.StatusCode).
			Component("embedder").
			Category(errors.CategoryModelInference).
			Context("status", resp.StatusCode).
			Build()
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.New(err).
			Component("embedder").
			Category(errors.CategoryModelInference).
			Build()
	}
	if !decoded.Detected || len(decoded.Embedding) == 0 {
		return nil, nil
	}
	if e.dimension > 0 && len(decoded.Embedding) != e.dimension {
		return nil, errors.Newf("embedding dimension %d, expected %d", len(decoded.Embedding), e.dimension).
			Component("embedder").
			Category(errors.CategoryModelInference).
			Build()
	}
	return decoded.Embedding, nil
}

// Warmup pushes a small synthetic crop through the sidecar so the first
// real detection does not pay the model load cost. Failures are logged
// and non-fatal, the session can still start.
func (e *Embedder) Warmup(ctx context.Context) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 112, 112, gocv.MatTypeCV8UC3)
	defer func() { _ = img.Close() }()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		e.logger.Warn("warmup encode failed", "error", err)
		return
	}
	defer buf.Close()

	if _, err := e.Embed(ctx, buf.GetBytes()); err != nil {
		e.logger.Warn("embedding sidecar warmup failed", "error", err)
		return
	}
	e.logger.Info("embedding sidecar warm")
}
