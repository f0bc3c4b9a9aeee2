package biometric

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/store"
	"github.com/root-sector/docvault/types"
)

var (
	_ interfaces.Matcher         = (*Matcher)(nil)
	_ interfaces.FeatureProvider = (*StubProvider)(nil)
	_ interfaces.FeatureProvider = (*RemoteProvider)(nil)
	_ interfaces.FeatureProvider = ProviderFunc(nil)
)

var enrolledAt = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

func testConfig() types.MatcherConfig {
	cfg := types.DefaultMatcherConfig()
	cfg.Dimensions = map[types.BiometricKind]int{
		types.KindFingerprint: 128,
		types.KindFace:        4,
	}
	cfg.ProviderTimeout = time.Second
	return cfg
}

func fixedProvider(v []float64) ProviderFunc {
	return func(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error) {
		return append([]float64(nil), v...), nil
	}
}

func newTestMatcher(t *testing.T, provider ProviderFunc, cfg types.MatcherConfig) (*Matcher, *store.MemoryTemplateStore) {
	t.Helper()
	templates := store.NewMemoryTemplateStore()
	var p interfaces.FeatureProvider = NewStubProvider(cfg.Dimensions)
	if provider != nil {
		p = provider
	}
	m, err := NewMatcher(p, templates, cfg, clock.Fake(enrolledAt))
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	return m, templates
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		in          []float64
		wantQuality float64
	}{
		{"all equal", []float64{1, 1, 1, 1}, 0},
		{"zero vector", []float64{0, 0, 0, 0}, 0},
		{"nan", []float64{1, math.NaN(), 0, 0}, 0},
		{"one hot", []float64{5, 0, 0, 0}, math.Sqrt(0.75)},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, q := Normalize(tt.in)
			if math.Abs(q-tt.wantQuality) > 1e-12 {
				t.Errorf("quality = %v, want %v", q, tt.wantQuality)
			}
			if len(out) != len(tt.in) {
				t.Errorf("len = %d, want %d", len(out), len(tt.in))
			}
		})
	}

	out, _ := Normalize([]float64{3, 4})
	if math.Abs(out[0]-0.6) > 1e-12 || math.Abs(out[1]-0.8) > 1e-12 {
		t.Errorf("Normalize([3 4]) = %v, want [0.6 0.8]", out)
	}
}

func TestCompare(t *testing.T) {
	m, _ := newTestMatcher(t, nil, testConfig())

	v := types.FeatureVector{0.5, 0.5, 0.5, 0.5}
	got, err := m.Compare(v, v, types.KindFace)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if math.Abs(got.Similarity-1) > 1e-12 || !got.IsMatch {
		t.Errorf("Compare(v, v) = %+v, want similarity 1 and match", got)
	}

	a := types.FeatureVector{1, 0, 0, 0}
	b := types.FeatureVector{0.8, 0.6, 0, 0}
	got, err = m.Compare(a, b, types.KindFingerprint)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if math.Abs(got.Similarity-0.8) > 1e-12 || got.IsMatch {
		t.Errorf("Compare below threshold = %+v, want 0.8 and no match", got)
	}

	got, _ = m.Compare(a, types.FeatureVector{-1, 0, 0, 0}, types.KindFace)
	if got.Similarity != -1 {
		t.Errorf("opposite vectors similarity = %v, want -1", got.Similarity)
	}

	if _, err := m.Compare(a, types.FeatureVector{1, 0}, types.KindFace); !errors.Is(err, types.ErrDimensionMismatch) {
		t.Errorf("length mismatch error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := m.Compare(a, a, types.BiometricKind("iris")); !errors.Is(err, types.ErrValidation) {
		t.Errorf("unknown kind error = %v, want ErrValidation", err)
	}
}

func TestExtractFeaturesErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		provider ProviderFunc
		kind     types.BiometricKind
		cred     []byte
		wantErr  error
	}{
		{
			name:     "all equal vector is low quality",
			provider: fixedProvider([]float64{2, 2, 2, 2}),
			kind:     types.KindFace,
			cred:     []byte("c"),
			wantErr:  types.ErrLowQuality,
		},
		{
			name:     "wrong dimension",
			provider: fixedProvider([]float64{1, 0, 0}),
			kind:     types.KindFace,
			cred:     []byte("c"),
			wantErr:  types.ErrDimensionMismatch,
		},
		{
			name:     "empty credential",
			provider: fixedProvider([]float64{1, 0, 0, 0}),
			kind:     types.KindFace,
			cred:     nil,
			wantErr:  types.ErrValidation,
		},
		{
			name:     "unknown kind",
			provider: fixedProvider([]float64{1, 0, 0, 0}),
			kind:     types.BiometricKind("iris"),
			cred:     []byte("c"),
			wantErr:  types.ErrValidation,
		},
		{
			name: "provider failure",
			provider: func(context.Context, []byte, types.BiometricKind) ([]float64, error) {
				return nil, errors.New("model crashed")
			},
			kind:    types.KindFace,
			cred:    []byte("c"),
			wantErr: types.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMatcher(t, tt.provider, testConfig())
			_, err := m.ExtractFeatures(ctx, tt.cred, tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExtractFeatures() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func blockingProvider(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractFeaturesTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ProviderTimeout = 20 * time.Millisecond
	m, _ := newTestMatcher(t, blockingProvider, cfg)

	_, err := m.ExtractFeatures(context.Background(), []byte("c"), types.KindFace)
	if !errors.Is(err, types.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestExtractFeaturesCallerCancelled(t *testing.T) {
	m, _ := newTestMatcher(t, blockingProvider, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := m.ExtractFeatures(ctx, []byte("c"), types.KindFace)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEnrollAndVerify(t *testing.T) {
	ctx := context.Background()
	m, templates := newTestMatcher(t, nil, testConfig())

	first, err := m.Enroll(ctx, "alice", types.KindFingerprint, []byte("left index"))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if first.Version != 1 {
		t.Errorf("first version = %d, want 1", first.Version)
	}
	if !first.EnrolledAt.Equal(enrolledAt.Truncate(time.Millisecond)) {
		t.Errorf("EnrolledAt = %v", first.EnrolledAt)
	}

	second, err := m.Enroll(ctx, "alice", types.KindFingerprint, []byte("left index"))
	if err != nil {
		t.Fatalf("re-Enroll() error = %v", err)
	}
	if second.Version != 2 {
		t.Errorf("second version = %d, want 2", second.Version)
	}

	stored, err := templates.Get(ctx, "alice", types.KindFingerprint)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := VerifyIntegrity(stored); err != nil {
		t.Fatalf("VerifyIntegrity() error = %v", err)
	}

	res, err := m.Verify(ctx, []byte("left index"), stored)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !res.IsMatch || math.Abs(res.Similarity-1) > 1e-9 || res.TemplateVersion != 2 {
		t.Errorf("Verify same credential = %+v", res)
	}

	res, err = m.Verify(ctx, []byte("right thumb"), stored)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.IsMatch {
		t.Errorf("different credential matched with similarity %v", res.Similarity)
	}
}

func TestVerifyCorruptedTemplate(t *testing.T) {
	ctx := context.Background()
	m, templates := newTestMatcher(t, nil, testConfig())

	if _, err := m.Enroll(ctx, "alice", types.KindFingerprint, []byte("cred")); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	stored, _ := templates.Get(ctx, "alice", types.KindFingerprint)

	tampered := stored.Clone()
	tampered.FeatureVector[0] += 0.01
	if _, err := m.Verify(ctx, []byte("cred"), tampered); !errors.Is(err, types.ErrTemplateCorrupted) {
		t.Errorf("tampered vector error = %v, want ErrTemplateCorrupted", err)
	}

	versioned := stored.Clone()
	versioned.Version = 7
	if _, err := m.Verify(ctx, []byte("cred"), versioned); !errors.Is(err, types.ErrTemplateCorrupted) {
		t.Errorf("tampered version error = %v, want ErrTemplateCorrupted", err)
	}

	short := stored.Clone()
	short.FeatureVector = short.FeatureVector[:10]
	if err := Seal(short); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := m.Verify(ctx, []byte("cred"), short); !errors.Is(err, types.ErrTemplateCorrupted) {
		t.Errorf("short vector error = %v, want ErrTemplateCorrupted", err)
	}

	if _, err := m.Verify(ctx, []byte("cred"), nil); !errors.Is(err, types.ErrTemplateNotFound) {
		t.Errorf("nil template error = %v, want ErrTemplateNotFound", err)
	}
}

func TestEnrollConcurrentVersions(t *testing.T) {
	ctx := context.Background()
	m, templates := newTestMatcher(t, nil, testConfig())

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Enroll(ctx, "alice", types.KindFace, []byte("face")); err != nil {
				t.Errorf("Enroll() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := templates.Get(ctx, "alice", types.KindFace)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Version != n {
		t.Errorf("version = %d, want %d", stored.Version, n)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMatcher(t, nil, testConfig())

	_, _ = m.Enroll(ctx, "alice", types.KindFace, []byte("face"))
	_, _ = m.Enroll(ctx, "alice", types.KindFingerprint, []byte("finger"))

	if err := m.Remove(ctx, "alice", types.KindFace); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(ctx, "alice", types.KindFace); !errors.Is(err, types.ErrTemplateNotFound) {
		t.Errorf("second Remove() error = %v, want ErrTemplateNotFound", err)
	}
	n, err := m.RemoveOwner(ctx, "alice")
	if err != nil || n != 1 {
		t.Errorf("RemoveOwner() = %d, %v; want 1, nil", n, err)
	}
}
