package biometric

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zeebo/blake3"

	"github.com/root-sector/docvault/types"
)

// ProviderMode selects a feature provider implementation
type ProviderMode string

const (
	// ProviderStub is a deterministic stand-in for tests and demos. It is NOT a
	// biometric algorithm: equal credentials give equal vectors, nothing more.
	ProviderStub ProviderMode = "stub"
	// ProviderRemote calls an HTTP inference endpoint
	ProviderRemote ProviderMode = "remote"
	// ProviderCallback delegates to a platform authenticator callback
	ProviderCallback ProviderMode = "callback"
)

const stubDomain = "docvault.stub-features.v1"

// StubProvider expands a BLAKE3 XOF digest of the credential into values in
// [-1, 1]. Different credentials give unrelated vectors.
type StubProvider struct {
	dimensions map[types.BiometricKind]int
}

// NewStubProvider creates a stub producing vectors of the configured length per kind
func NewStubProvider(dimensions map[types.BiometricKind]int) *StubProvider {
	dims := make(map[types.BiometricKind]int, len(dimensions))
	for k, v := range dimensions {
		dims[k] = v
	}
	return &StubProvider{dimensions: dims}
}

// Extract implements interfaces.FeatureProvider
func (p *StubProvider) Extract(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, ok := p.dimensions[kind]
	if !ok || n <= 0 {
		return nil, fmt.Errorf("%w: no dimension configured for %q", types.ErrValidation, kind)
	}

	h := blake3.New()
	h.Write([]byte(stubDomain))
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(credential)

	raw := make([]byte, n*8)
	if _, err := io.ReadFull(h.Digest(), raw); err != nil {
		return nil, fmt.Errorf("failed to expand stub digest: %w", err)
	}

	out := make([]float64, n)
	for i := range out {
		u := binary.LittleEndian.Uint64(raw[i*8:])
		out[i] = float64(u>>11)/float64(1<<53)*2 - 1
	}
	return out, nil
}

// ProviderFunc adapts a platform authenticator callback to interfaces.FeatureProvider
type ProviderFunc func(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error)

// Extract implements interfaces.FeatureProvider
func (f ProviderFunc) Extract(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: callback not configured", types.ErrProviderUnavailable)
	}
	return f(ctx, credential, kind)
}

// RemoteProvider calls an HTTP JSON inference endpoint:
// POST {"kind": ..., "credential": <base64>} -> {"features": [...]}.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRemoteProvider creates a remote provider. client may be nil.
func NewRemoteProvider(endpoint, apiKey string, client *http.Client) (*RemoteProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: remote provider endpoint is required", types.ErrValidation)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteProvider{endpoint: endpoint, apiKey: apiKey, client: client}, nil
}

type remoteRequest struct {
	Kind       types.BiometricKind `json:"kind"`
	Credential []byte              `json:"credential"`
}

type remoteResponse struct {
	Features []float64 `json:"features"`
	Error    string    `json:"error,omitempty"`
}

// Extract implements interfaces.FeatureProvider
func (p *RemoteProvider) Extract(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error) {
	body, err := json.Marshal(remoteRequest{Kind: kind, Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned HTTP %d", types.ErrProviderUnavailable, resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode provider response: %v", types.ErrProviderUnavailable, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrProviderUnavailable, out.Error)
	}
	return out.Features, nil
}

// isProviderTimeout reports whether err came from the provider deadline
func isProviderTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
