package server

import (
	"context"
	"testing"

	"github.com/hoaboard/treasurer/internal/instrumentation"
	"github.com/hoaboard/treasurer/internal/payhoa"
)

// fakeCredentials satisfies payhoa.CredentialResolver for tests.
type fakeCredentials struct {
	available bool
}

func (f fakeCredentials) Resolve(_ context.Context) (payhoa.Credentials, error) {
	return payhoa.Credentials{Email: "treasurer@example.com", Password: "hunter2"}, nil
}

func (f fakeCredentials) Available() bool {
	return f.available
}

// bareCredentials resolves but cannot report availability.
type bareCredentials struct{}

func (bareCredentials) Resolve(_ context.Context) (payhoa.Credentials, error) {
	return payhoa.Credentials{Email: "treasurer@example.com", Password: "hunter2"}, nil
}

func newTestContext(t *testing.T) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), ContextConfig{
		Credentials: fakeCredentials{available: true},
	})
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewServerContext_RequiresCredentials(t *testing.T) {
	_, err := NewServerContext(context.Background(), ContextConfig{})
	if err == nil {
		t.Fatal("NewServerContext() expected error for missing credentials, got nil")
	}
}

func TestServerContext_ClientIsLazyAndCached(t *testing.T) {
	sc := newTestContext(t)

	first, err := sc.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if first == nil {
		t.Fatal("Client() returned nil client")
	}

	second, err := sc.Client()
	if err != nil {
		t.Fatalf("Client() second call error = %v", err)
	}
	if first != second {
		t.Error("Client() created a new client on the second call, want cached instance")
	}
}

func TestServerContext_SetClient(t *testing.T) {
	sc := newTestContext(t)

	sessions, err := sc.Sessions()
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	replacement := payhoa.NewClient(sessions, payhoa.ClientConfig{})
	sc.SetClient(replacement)

	got, err := sc.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if got != replacement {
		t.Error("Client() did not return the client set via SetClient")
	}
}

func TestServerContext_MetricsAccessors(t *testing.T) {
	sc := newTestContext(t)

	if sc.Metrics() != nil {
		t.Error("Metrics() before SetMetrics() = non-nil, want nil")
	}

	metrics := &instrumentation.Metrics{}
	sc.SetMetrics(metrics)
	if sc.Metrics() != metrics {
		t.Error("Metrics() did not return the recorder set via SetMetrics")
	}

	if sc.AuditLogger() != nil {
		t.Error("AuditLogger() before SetAuditLogger() = non-nil, want nil")
	}
	audit := instrumentation.NewAuditLogger(nil)
	sc.SetAuditLogger(audit)
	if sc.AuditLogger() != audit {
		t.Error("AuditLogger() did not return the logger set via SetAuditLogger")
	}
}

func TestServerContext_CredentialsAvailable(t *testing.T) {
	tests := []struct {
		name        string
		credentials payhoa.CredentialResolver
		want        bool
	}{
		{"checker reports available", fakeCredentials{available: true}, true},
		{"checker reports unavailable", fakeCredentials{available: false}, false},
		{"resolver without checker assumed available", bareCredentials{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := NewServerContext(context.Background(), ContextConfig{Credentials: tt.credentials})
			if err != nil {
				t.Fatalf("NewServerContext() error = %v", err)
			}
			defer func() { _ = sc.Shutdown() }()

			if got := sc.CredentialsAvailable(); got != tt.want {
				t.Errorf("CredentialsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestContext(t)

	if sc.IsShutdown() {
		t.Error("IsShutdown() = true before Shutdown()")
	}

	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown()")
	}
	select {
	case <-sc.Context().Done():
	default:
		t.Error("Context() not cancelled after Shutdown()")
	}

	// A second shutdown is a no-op.
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
