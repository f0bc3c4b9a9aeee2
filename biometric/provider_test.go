package biometric

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/root-sector/docvault/types"
)

func TestStubProviderDeterministic(t *testing.T) {
	ctx := context.Background()
	p := NewStubProvider(map[types.BiometricKind]int{types.KindFace: 16, types.KindFingerprint: 16})

	a, err := p.Extract(ctx, []byte("cred"), types.KindFace)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	b, _ := p.Extract(ctx, []byte("cred"), types.KindFace)
	c, _ := p.Extract(ctx, []byte("cred"), types.KindFingerprint)

	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("stub output differs at %d", i)
		}
		if a[i] < -1 || a[i] > 1 {
			t.Errorf("value %v out of range", a[i])
		}
	}
	if CosineSimilarity(a, c) > 0.99 {
		t.Errorf("kinds are not separated")
	}

	if _, err := p.Extract(ctx, []byte("cred"), types.BiometricKind("iris")); !errors.Is(err, types.ErrValidation) {
		t.Errorf("unknown kind error = %v, want ErrValidation", err)
	}
}

func TestProviderFuncNil(t *testing.T) {
	var f ProviderFunc
	if _, err := f.Extract(context.Background(), []byte("c"), types.KindFace); !errors.Is(err, types.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestRemoteProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch string(req.Credential) {
		case "ok":
			_ = json.NewEncoder(w).Encode(remoteResponse{Features: []float64{1, 0, 0, 0}})
		case "refused":
			_ = json.NewEncoder(w).Encode(remoteResponse{Error: "no face detected"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := NewRemoteProvider(srv.URL, "secret", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteProvider() error = %v", err)
	}

	got, err := p.Extract(ctx, []byte("ok"), types.KindFace)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 4 || got[0] != 1 {
		t.Errorf("features = %v", got)
	}

	for _, cred := range []string{"refused", "boom"} {
		if _, err := p.Extract(ctx, []byte(cred), types.KindFace); !errors.Is(err, types.ErrProviderUnavailable) {
			t.Errorf("Extract(%q) error = %v, want ErrProviderUnavailable", cred, err)
		}
	}

	unauth, _ := NewRemoteProvider(srv.URL, "", srv.Client())
	if _, err := unauth.Extract(ctx, []byte("ok"), types.KindFace); !errors.Is(err, types.ErrProviderUnavailable) {
		t.Errorf("unauthorized error = %v, want ErrProviderUnavailable", err)
	}

	if _, err := NewRemoteProvider("", "", nil); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty endpoint error = %v, want ErrValidation", err)
	}
}

func TestRemoteProviderThroughMatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteResponse{Features: []float64{0, 3, 4, 0}})
	}))
	defer srv.Close()

	p, _ := NewRemoteProvider(srv.URL, "", srv.Client())
	m, err := NewMatcher(p, nil, testConfig(), nil)
	if err == nil || m != nil {
		t.Fatalf("NewMatcher without store should fail")
	}

	m, _ = newTestMatcher(t, p.Extract, testConfig())
	sample, err := m.ExtractFeatures(context.Background(), []byte("c"), types.KindFace)
	if err != nil {
		t.Fatalf("ExtractFeatures() error = %v", err)
	}
	if sample.Vector[1] != 0.6 || sample.Vector[2] != 0.8 {
		t.Errorf("vector = %v, want unit-scaled [0 0.6 0.8 0]", sample.Vector)
	}
}
