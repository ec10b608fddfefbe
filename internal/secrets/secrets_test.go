package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/hookbridge/hookbridge/internal/endpoint"
)

type vaultCall struct {
	op  string
	ref int64
}

type fakeVault struct {
	nextRef int64
	store   map[int64]Secret
	calls   []vaultCall
	failOn  string
}

func newFakeVault() *fakeVault {
	return &fakeVault{nextRef: 100, store: make(map[int64]Secret)}
}

func (v *fakeVault) Create(_ context.Context, _ string, secret Secret) (int64, error) {
	if v.failOn == "create" {
		return 0, errors.New("vault unavailable")
	}
	v.nextRef++
	v.store[v.nextRef] = secret
	v.calls = append(v.calls, vaultCall{op: "create:" + secret.Type, ref: v.nextRef})
	return v.nextRef, nil
}

func (v *fakeVault) Update(_ context.Context, _ string, ref int64, secret Secret) error {
	if v.failOn == "update" {
		return errors.New("vault unavailable")
	}
	if _, ok := v.store[ref]; !ok {
		return fmt.Errorf("unknown reference %d", ref)
	}
	v.store[ref] = secret
	v.calls = append(v.calls, vaultCall{op: "update:" + secret.Type, ref: ref})
	return nil
}

func (v *fakeVault) Delete(_ context.Context, _ string, ref int64) error {
	if v.failOn == "delete" {
		return errors.New("vault unavailable")
	}
	delete(v.store, ref)
	v.calls = append(v.calls, vaultCall{op: "delete", ref: ref})
	return nil
}

func (v *fakeVault) Get(_ context.Context, _ string, ref int64) (Secret, error) {
	secret, ok := v.store[ref]
	if !ok {
		return Secret{}, fmt.Errorf("unknown reference %d", ref)
	}
	return secret, nil
}

func strPtr(s string) *string { return &s }

func TestSync_CreatesAbsentFields(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)

	target := &endpoint.SecretFields{
		BasicAuth:   &endpoint.BasicAuth{Username: "svc", Password: "pw"},
		SecretToken: strPtr("tok"),
	}
	if err := sync.Sync(context.Background(), "org-1", uuid.New(), nil, target); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if target.BasicAuthRef == nil || target.SecretTokenRef == nil {
		t.Fatalf("expected references assigned, got %+v", target)
	}
	if target.BearerTokenRef != nil {
		t.Fatal("absent bearer token must not gain a reference")
	}
	// fixed field order: basic auth before secret token
	if len(vault.calls) != 2 || vault.calls[0].op != "create:basic_auth" || vault.calls[1].op != "create:secret_token" {
		t.Fatalf("calls = %+v", vault.calls)
	}
}

func TestSync_UpdateKeepsReference(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)
	id := uuid.New()

	old := &endpoint.SecretFields{SecretToken: strPtr("old-token")}
	if err := sync.Sync(context.Background(), "org-1", id, nil, old); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	ref := *old.SecretTokenRef

	updated := &endpoint.SecretFields{SecretToken: strPtr("new-token")}
	if err := sync.Sync(context.Background(), "org-1", id, old, updated); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if updated.SecretTokenRef == nil || *updated.SecretTokenRef != ref {
		t.Fatalf("reference changed on update: old %d, new %v", ref, updated.SecretTokenRef)
	}
	if vault.store[ref].Password != "new-token" {
		t.Fatalf("vault value = %q, want new-token", vault.store[ref].Password)
	}
}

func TestSync_UnchangedValueSkipsVaultCall(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)
	id := uuid.New()

	old := &endpoint.SecretFields{BasicAuth: &endpoint.BasicAuth{Username: "svc", Password: "pw"}}
	if err := sync.Sync(context.Background(), "org-1", id, nil, old); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	callCount := len(vault.calls)

	same := &endpoint.SecretFields{BasicAuth: &endpoint.BasicAuth{Username: "svc", Password: "pw"}}
	if err := sync.Sync(context.Background(), "org-1", id, old, same); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(vault.calls) != callCount {
		t.Fatalf("unchanged value issued vault calls: %+v", vault.calls[callCount:])
	}
	if same.BasicAuthRef == nil || *same.BasicAuthRef != *old.BasicAuthRef {
		t.Fatal("reference must carry over for unchanged value")
	}
}

func TestSync_RemovedFieldDeletesAndClears(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)
	id := uuid.New()

	old := &endpoint.SecretFields{BearerToken: strPtr("bearer")}
	if err := sync.Sync(context.Background(), "org-1", id, nil, old); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	ref := *old.BearerTokenRef

	removed := &endpoint.SecretFields{}
	if err := sync.Sync(context.Background(), "org-1", id, old, removed); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if removed.BearerTokenRef != nil {
		t.Fatalf("reference not cleared: %v", *removed.BearerTokenRef)
	}
	if _, ok := vault.store[ref]; ok {
		t.Fatal("vault entry not deleted")
	}
}

func TestSync_FailureAbortsRemainingFields(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	vault.failOn = "create"
	sync := NewSynchronizer(vault, nil)

	target := &endpoint.SecretFields{
		BasicAuth:   &endpoint.BasicAuth{Username: "svc", Password: "pw"},
		BearerToken: strPtr("bearer"),
	}
	err := sync.Sync(context.Background(), "org-1", uuid.New(), nil, target)

	var verr *VaultError
	if !errors.As(err, &verr) {
		t.Fatalf("Sync() error = %v, want VaultError", err)
	}
	if len(vault.calls) != 0 {
		t.Fatalf("calls after first failure = %+v", vault.calls)
	}
}

func TestDeleteForEndpoint_AttemptsAllFields(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)

	ep := &endpoint.Endpoint{
		ID:    uuid.New(),
		OrgID: "org-1",
		Kind:  endpoint.KindWebhook,
		Properties: &endpoint.WebhookProperties{
			Secrets: endpoint.SecretFields{
				BasicAuth:   &endpoint.BasicAuth{Username: "svc", Password: "pw"},
				SecretToken: strPtr("tok"),
			},
		},
	}
	if err := sync.CreateForEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("CreateForEndpoint() error = %v", err)
	}
	if err := sync.DeleteForEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("DeleteForEndpoint() error = %v", err)
	}
	if len(vault.store) != 0 {
		t.Fatalf("vault entries remain: %+v", vault.store)
	}
	fields := ep.SecretFields()
	if fields.BasicAuthRef != nil || fields.SecretTokenRef != nil {
		t.Fatalf("references remain after delete: %+v", fields)
	}
}

func TestLoadForEndpoint_PopulatesValues(t *testing.T) {
	t.Parallel()

	vault := newFakeVault()
	sync := NewSynchronizer(vault, nil)

	ep := &endpoint.Endpoint{
		ID:    uuid.New(),
		OrgID: "org-1",
		Kind:  endpoint.KindCamel,
		Properties: &endpoint.CamelProperties{
			Secrets: endpoint.SecretFields{
				BasicAuth:   &endpoint.BasicAuth{Username: "svc", Password: "pw"},
				BearerToken: strPtr("bearer"),
			},
		},
	}
	if err := sync.CreateForEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("CreateForEndpoint() error = %v", err)
	}

	// simulate a fresh load from the store: references only
	loaded := &endpoint.Endpoint{
		ID:    ep.ID,
		OrgID: "org-1",
		Kind:  endpoint.KindCamel,
		Properties: &endpoint.CamelProperties{
			Secrets: endpoint.SecretFields{
				BasicAuthRef:   ep.SecretFields().BasicAuthRef,
				BearerTokenRef: ep.SecretFields().BearerTokenRef,
			},
		},
	}
	if err := sync.LoadForEndpoint(context.Background(), loaded); err != nil {
		t.Fatalf("LoadForEndpoint() error = %v", err)
	}

	fields := loaded.SecretFields()
	if fields.BasicAuth == nil || fields.BasicAuth.Username != "svc" || fields.BasicAuth.Password != "pw" {
		t.Fatalf("basic auth = %+v", fields.BasicAuth)
	}
	if fields.BearerToken == nil || *fields.BearerToken != "bearer" {
		t.Fatalf("bearer token = %v", fields.BearerToken)
	}
}
