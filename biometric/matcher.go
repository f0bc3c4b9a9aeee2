// Package biometric scores credentials against enrolled templates. Feature
// extraction is delegated to a FeatureProvider; this package owns
// normalization, quality gating, similarity and template integrity.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

// Matcher implements interfaces.Matcher
type Matcher struct {
	provider interfaces.FeatureProvider
	store    interfaces.TemplateStore
	config   types.MatcherConfig
	clock    clock.Clock
	logger   zerolog.Logger

	// enrollMu serializes enrollments per owner and kind
	enrollMu sync.Map
}

// NewMatcher creates a matcher
func NewMatcher(provider interfaces.FeatureProvider, store interfaces.TemplateStore, config types.MatcherConfig, clk clock.Clock) (*Matcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: feature provider is required", types.ErrValidation)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: template store is required", types.ErrValidation)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = types.DefaultMatcherConfig().ProviderTimeout
	}
	return &Matcher{
		provider: provider,
		store:    store,
		config:   config,
		clock:    clk,
		logger:   log.With().Str("component", "biometric").Logger(),
	}, nil
}

func (m *Matcher) dimension(kind types.BiometricKind) (int, error) {
	n, ok := m.config.Dimensions[kind]
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: unsupported biometric kind %q", types.ErrValidation, kind)
	}
	return n, nil
}

// ExtractFeatures implements interfaces.Matcher
func (m *Matcher) ExtractFeatures(ctx context.Context, credential []byte, kind types.BiometricKind) (*types.Sample, error) {
	n, err := m.dimension(kind)
	if err != nil {
		return nil, err
	}
	if len(credential) == 0 {
		return nil, fmt.Errorf("%w: empty credential", types.ErrValidation)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	raw, err := m.provider.Extract(callCtx, credential, kind)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isProviderTimeout(err) {
			m.logger.Warn().
				Str("kind", string(kind)).
				Dur("timeout", m.config.ProviderTimeout).
				Msg("Feature provider timed out")
			return nil, fmt.Errorf("%w: timed out after %s", types.ErrProviderUnavailable, m.config.ProviderTimeout)
		}
		if errors.Is(err, types.ErrProviderUnavailable) || errors.Is(err, types.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrProviderUnavailable, err)
	}

	if len(raw) != n {
		return nil, fmt.Errorf("%w: provider returned %d values, %s requires %d", types.ErrDimensionMismatch, len(raw), kind, n)
	}

	vector, quality := Normalize(raw)
	if quality < m.config.QualityFloor {
		return nil, fmt.Errorf("%w: quality %.3f below floor %.3f", types.ErrLowQuality, quality, m.config.QualityFloor)
	}

	return &types.Sample{Kind: kind, Vector: vector, Quality: quality}, nil
}

// Normalize L2 unit-scales v and computes its quality as
// clip(sqrt(N) * stddev(unit vector), 0, 1). Zero or non-finite input has quality 0.
func Normalize(v []float64) (types.FeatureVector, float64) {
	out := make(types.FeatureVector, len(v))
	if len(v) == 0 {
		return out, 0
	}

	var sumSq float64
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return out, 0
		}
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 || math.IsInf(norm, 0) {
		return out, 0
	}

	var mean float64
	for i, x := range v {
		out[i] = x / norm
		mean += out[i]
	}
	mean /= float64(len(out))

	var variance float64
	for _, x := range out {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(out))

	quality := math.Sqrt(float64(len(out))) * math.Sqrt(variance)
	return out, math.Max(0, math.Min(1, quality))
}

// Compare implements interfaces.Matcher
func (m *Matcher) Compare(a, b types.FeatureVector, kind types.BiometricKind) (types.Comparison, error) {
	threshold, ok := m.config.Thresholds[kind]
	if !ok {
		return types.Comparison{}, fmt.Errorf("%w: no threshold for %q", types.ErrValidation, kind)
	}
	if len(a) == 0 || len(a) != len(b) {
		return types.Comparison{}, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	sim := CosineSimilarity(a, b)
	return types.Comparison{Similarity: sim, IsMatch: sim >= threshold}, nil
}

// CosineSimilarity returns the cosine of the angle between equal-length vectors,
// clamped to [-1, 1]. A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// Verify implements interfaces.Matcher. A credential that does not reach the
// threshold returns a result with IsMatch false and no error.
func (m *Matcher) Verify(ctx context.Context, credential []byte, template *types.BiometricTemplate) (*types.VerificationResult, error) {
	if template == nil {
		return nil, types.ErrTemplateNotFound
	}
	if err := VerifyIntegrity(template); err != nil {
		m.logger.Error().
			Str("ownerId", template.OwnerID).
			Str("kind", string(template.Kind)).
			Int("version", template.Version).
			Msg("Template integrity check failed")
		return nil, err
	}
	if n, err := m.dimension(template.Kind); err != nil {
		return nil, err
	} else if len(template.FeatureVector) != n {
		return nil, fmt.Errorf("%w: template has %d values, want %d", types.ErrTemplateCorrupted, len(template.FeatureVector), n)
	}

	sample, err := m.ExtractFeatures(ctx, credential, template.Kind)
	if err != nil {
		return nil, err
	}

	cmp, err := m.Compare(sample.Vector, template.FeatureVector, template.Kind)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("ownerId", template.OwnerID).
		Str("kind", string(template.Kind)).
		Float64("similarity", cmp.Similarity).
		Bool("match", cmp.IsMatch).
		Msg("Credential verified against template")

	return &types.VerificationResult{
		Comparison:      cmp,
		Quality:         sample.Quality,
		TemplateVersion: template.Version,
	}, nil
}

// Enroll implements interfaces.Matcher
func (m *Matcher) Enroll(ctx context.Context, ownerID string, kind types.BiometricKind, credential []byte) (*types.BiometricTemplate, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", types.ErrValidation)
	}

	sample, err := m.ExtractFeatures(ctx, credential, kind)
	if err != nil {
		return nil, err
	}

	mu := m.enrollLock(ownerID, kind)
	mu.Lock()
	defer mu.Unlock()

	version := 1
	current, err := m.store.Get(ctx, ownerID, kind)
	switch {
	case err == nil:
		version = current.Version + 1
	case errors.Is(err, types.ErrTemplateNotFound):
	default:
		return nil, fmt.Errorf("failed to load current template: %w", err)
	}

	template := &types.BiometricTemplate{
		OwnerID:       ownerID,
		Kind:          kind,
		FeatureVector: sample.Vector,
		QualityScore:  sample.Quality,
		Version:       version,
		// stores keep millisecond precision
		EnrolledAt: m.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if err := Seal(template); err != nil {
		return nil, err
	}

	stored, err := m.store.Replace(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}

	m.logger.Info().
		Str("ownerId", ownerID).
		Str("kind", string(kind)).
		Int("version", version).
		Float64("quality", sample.Quality).
		Msg("Biometric template enrolled")

	return stored, nil
}

// Remove implements interfaces.Matcher
func (m *Matcher) Remove(ctx context.Context, ownerID string, kind types.BiometricKind) error {
	return m.store.Delete(ctx, ownerID, kind)
}

// RemoveOwner implements interfaces.Matcher
func (m *Matcher) RemoveOwner(ctx context.Context, ownerID string) (int, error) {
	return m.store.DeleteOwner(ctx, ownerID)
}

func (m *Matcher) enrollLock(ownerID string, kind types.BiometricKind) *sync.Mutex {
	mu, _ := m.enrollMu.LoadOrStore(ownerID+"\x00"+string(kind), &sync.Mutex{})
	return mu.(*sync.Mutex)
}
