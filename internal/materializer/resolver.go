// Package materializer implements the Log Materializer (§4.C): resolving
// artifact bytes, decrypting them, and extracting archives into a per-Task
// Workspace tree.
package materializer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// FetchResolver resolves one artifact's bytes, regardless of whether the
// producer embedded the payload or passed an opaque fetch token — both are
// handled by the same interface (§4.C).
type FetchResolver interface {
	Resolve(ctx context.Context, artifact models.LogArtifact) ([]byte, error)
}

// EmbeddedResolver returns bytes the producer already attached in-line.
type EmbeddedResolver struct{}

func (EmbeddedResolver) Resolve(_ context.Context, artifact models.LogArtifact) ([]byte, error) {
	if len(artifact.Payload) == 0 {
		return nil, fmt.Errorf("artifact %s has no embedded payload", artifact.Name)
	}
	return artifact.Payload, nil
}

// TokenResolver dereferences an opaque fetch token against an external
// store over HTTP. The token is treated as an opaque string per §3/§6 — this
// resolver only knows how to turn it into a URL using a configured base.
type TokenResolver struct {
	BaseURL string
	Client  *http.Client
}

func NewTokenResolver(baseURL string) *TokenResolver {
	return &TokenResolver{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Minute}}
}

func (t *TokenResolver) Resolve(ctx context.Context, artifact models.LogArtifact) ([]byte, error) {
	if artifact.OpaqueToken == "" {
		return nil, fmt.Errorf("artifact %s has no fetch token", artifact.Name)
	}
	url := t.BaseURL + "/" + artifact.OpaqueToken
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request for %s: %w", artifact.Name, err)
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", artifact.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch artifact %s: unexpected status %d", artifact.Name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s body: %w", artifact.Name, err)
	}
	return data, nil
}

// CompositeResolver picks EmbeddedResolver when a payload is present and
// falls back to the token resolver otherwise, so callers never need to
// branch on which transport a given Issue used.
type CompositeResolver struct {
	embedded EmbeddedResolver
	token    *TokenResolver
}

func NewCompositeResolver(token *TokenResolver) *CompositeResolver {
	return &CompositeResolver{token: token}
}

func (c *CompositeResolver) Resolve(ctx context.Context, artifact models.LogArtifact) ([]byte, error) {
	if len(artifact.Payload) > 0 {
		return c.embedded.Resolve(ctx, artifact)
	}
	return c.token.Resolve(ctx, artifact)
}
