package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

func newTestServer(t *testing.T, workspaceLookups *int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/inventory/v1/workspaces/default", func(w http.ResponseWriter, r *http.Request) {
		if workspaceLookups != nil {
			atomic.AddInt64(workspaceLookups, 1)
		}
		if r.URL.Query().Get("org_id") == "" {
			http.Error(w, "org_id required", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ws-" + r.URL.Query().Get("org_id")})
	})
	mux.HandleFunc("POST /api/inventory/v1/integrations", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["integration_id"] == "" {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /api/inventory/v1/integrations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == uuid.Nil.String() {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_RegisterAndDeregister(t *testing.T) {
	t.Parallel()

	var lookups int64
	srv := newTestServer(t, &lookups)
	client, err := NewHTTPClient(srv.URL, "token")
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	id := uuid.New()
	if err := client.Register(context.Background(), "org-1", id); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := client.Deregister(context.Background(), "org-1", id); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}

	// workspace resolved once, then served from cache
	if got := atomic.LoadInt64(&lookups); got != 1 {
		t.Fatalf("workspace lookups = %d, want 1", got)
	}
}

func TestHTTPClient_DeregisterNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	client, err := NewHTTPClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	err = client.Deregister(context.Background(), "org-1", uuid.Nil)
	var ierr *InventoryError
	if !errors.As(err, &ierr) {
		t.Fatalf("Deregister() error = %v, want InventoryError", err)
	}
	if !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("Deregister() error = %v, want ErrIntegrationNotFound", err)
	}
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPClient("  ", ""); err == nil {
		t.Fatal("expected missing base URL error")
	}
}
