// Package secrets keeps an endpoint's credential fields in sync with the
// secrets vault, preserving vault reference identity across updates.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/metrics"
)

// Secret is one credential payload stored in the vault. Basic auth stores
// both username and password as a single entry.
type Secret struct {
	Type     string
	Username string
	Password string
}

const (
	TypeBasicAuth   = "basic_auth"
	TypeSecretToken = "secret_token"
	TypeBearerToken = "bearer_token"
)

// Vault is the remote secrets store. Every call is tenant-scoped and may
// fail with a transport or remote-validation error.
type Vault interface {
	Create(ctx context.Context, orgID string, secret Secret) (int64, error)
	Update(ctx context.Context, orgID string, ref int64, secret Secret) error
	Delete(ctx context.Context, orgID string, ref int64) error
	Get(ctx context.Context, orgID string, ref int64) (Secret, error)
}

// VaultError wraps a failed vault call.
type VaultError struct {
	Call string
	Err  error
}

func (e *VaultError) Error() string { return fmt.Sprintf("vault %s: %v", e.Call, e.Err) }
func (e *VaultError) Unwrap() error { return e.Err }

// Synchronizer diffs credential fields against their persisted reference
// IDs and issues the minimal set of vault calls.
type Synchronizer struct {
	vault Vault
	log   *slog.Logger
}

func NewSynchronizer(vault Vault, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{vault: vault, log: log}
}

// field is one of the three possible credential slots, bound to its value
// and reference accessors on a SecretFields struct.
type field struct {
	name   string
	secret func(*endpoint.SecretFields) (Secret, bool)
	ref    func(*endpoint.SecretFields) *int64
	setRef func(*endpoint.SecretFields, *int64)
	equal  func(old, new *endpoint.SecretFields) bool
}

// fields is iterated in a fixed order (basic auth, secret token, bearer
// token) so that vault call ordering is deterministic for tests. No
// correctness property depends on this order.
var fields = []field{
	{
		name: TypeBasicAuth,
		secret: func(f *endpoint.SecretFields) (Secret, bool) {
			if f.BasicAuth == nil {
				return Secret{}, false
			}
			return Secret{Type: TypeBasicAuth, Username: f.BasicAuth.Username, Password: f.BasicAuth.Password}, true
		},
		ref:    func(f *endpoint.SecretFields) *int64 { return f.BasicAuthRef },
		setRef: func(f *endpoint.SecretFields, ref *int64) { f.BasicAuthRef = ref },
		equal: func(old, new *endpoint.SecretFields) bool {
			return old.BasicAuth != nil && new.BasicAuth != nil && *old.BasicAuth == *new.BasicAuth
		},
	},
	{
		name: TypeSecretToken,
		secret: func(f *endpoint.SecretFields) (Secret, bool) {
			if f.SecretToken == nil {
				return Secret{}, false
			}
			return Secret{Type: TypeSecretToken, Password: *f.SecretToken}, true
		},
		ref:    func(f *endpoint.SecretFields) *int64 { return f.SecretTokenRef },
		setRef: func(f *endpoint.SecretFields, ref *int64) { f.SecretTokenRef = ref },
		equal: func(old, new *endpoint.SecretFields) bool {
			return old.SecretToken != nil && new.SecretToken != nil && *old.SecretToken == *new.SecretToken
		},
	},
	{
		name: TypeBearerToken,
		secret: func(f *endpoint.SecretFields) (Secret, bool) {
			if f.BearerToken == nil {
				return Secret{}, false
			}
			return Secret{Type: TypeBearerToken, Password: *f.BearerToken}, true
		},
		ref:    func(f *endpoint.SecretFields) *int64 { return f.BearerTokenRef },
		setRef: func(f *endpoint.SecretFields, ref *int64) { f.BearerTokenRef = ref },
		equal: func(old, new *endpoint.SecretFields) bool {
			return old.BearerToken != nil && new.BearerToken != nil && *old.BearerToken == *new.BearerToken
		},
	},
}

// Sync reconciles each credential field independently against its stored
// reference:
//
//	absent  -> present   create, store the returned reference
//	present -> absent    delete by reference, clear it
//	present -> changed   update at the same reference (never reallocated)
//	present -> same      no vault call
//
// The first failing field aborts the whole call; fields already applied are
// not rolled back here, that belongs to the caller's transaction.
func (s *Synchronizer) Sync(ctx context.Context, orgID string, endpointID uuid.UUID, old, new *endpoint.SecretFields) error {
	if new == nil {
		return nil
	}
	if old == nil {
		old = &endpoint.SecretFields{}
	}

	for _, f := range fields {
		oldRef := f.ref(old)
		secret, present := f.secret(new)

		switch {
		case oldRef == nil && present:
			ref, err := s.create(ctx, orgID, secret)
			if err != nil {
				return err
			}
			f.setRef(new, &ref)
			s.log.Info("secret created in vault", "endpoint_id", endpointID, "field", f.name, "secret_ref", ref)

		case oldRef != nil && !present:
			if err := s.delete(ctx, orgID, *oldRef); err != nil {
				return err
			}
			f.setRef(new, nil)
			s.log.Info("secret deleted from vault", "endpoint_id", endpointID, "field", f.name, "secret_ref", *oldRef)

		case oldRef != nil && present:
			ref := *oldRef
			f.setRef(new, &ref)
			if f.equal(old, new) {
				continue
			}
			if err := s.update(ctx, orgID, ref, secret); err != nil {
				return err
			}
			s.log.Info("secret updated in vault", "endpoint_id", endpointID, "field", f.name, "secret_ref", ref)
		}
	}
	return nil
}

// CreateForEndpoint creates a vault entry for every populated credential
// value and stores the returned references on the endpoint. Callers that
// invoke this before persisting the endpoint own the cleanup contract: on
// any later failure they must call DeleteForEndpoint before propagating.
func (s *Synchronizer) CreateForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	target := ep.SecretFields()
	if target == nil {
		return nil
	}
	return s.Sync(ctx, ep.OrgID, ep.ID, nil, target)
}

// DeleteForEndpoint deletes every vault entry still referenced by the
// endpoint, clearing references as it goes. All fields are attempted; the
// combined error is returned.
func (s *Synchronizer) DeleteForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	target := ep.SecretFields()
	if target == nil {
		return nil
	}

	var errs []error
	for _, f := range fields {
		ref := f.ref(target)
		if ref == nil {
			continue
		}
		if err := s.delete(ctx, ep.OrgID, *ref); err != nil {
			errs = append(errs, err)
			continue
		}
		f.setRef(target, nil)
		s.log.Info("secret deleted from vault", "endpoint_id", ep.ID, "field", f.name, "secret_ref", *ref)
	}
	return errors.Join(errs...)
}

// LoadForEndpoint fetches the referenced secret values from the vault and
// populates the endpoint's credential fields for read paths.
func (s *Synchronizer) LoadForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	target := ep.SecretFields()
	if target == nil {
		return nil
	}

	if target.BasicAuthRef != nil {
		secret, err := s.get(ctx, ep.OrgID, *target.BasicAuthRef)
		if err != nil {
			return err
		}
		target.BasicAuth = &endpoint.BasicAuth{Username: secret.Username, Password: secret.Password}
	}
	if target.SecretTokenRef != nil {
		secret, err := s.get(ctx, ep.OrgID, *target.SecretTokenRef)
		if err != nil {
			return err
		}
		token := secret.Password
		target.SecretToken = &token
	}
	if target.BearerTokenRef != nil {
		secret, err := s.get(ctx, ep.OrgID, *target.BearerTokenRef)
		if err != nil {
			return err
		}
		token := secret.Password
		target.BearerToken = &token
	}
	return nil
}

func (s *Synchronizer) create(ctx context.Context, orgID string, secret Secret) (int64, error) {
	ref, err := s.vault.Create(ctx, orgID, secret)
	s.observe("create", err)
	if err != nil {
		return 0, &VaultError{Call: "create", Err: err}
	}
	return ref, nil
}

func (s *Synchronizer) update(ctx context.Context, orgID string, ref int64, secret Secret) error {
	err := s.vault.Update(ctx, orgID, ref, secret)
	s.observe("update", err)
	if err != nil {
		return &VaultError{Call: "update", Err: err}
	}
	return nil
}

func (s *Synchronizer) delete(ctx context.Context, orgID string, ref int64) error {
	err := s.vault.Delete(ctx, orgID, ref)
	s.observe("delete", err)
	if err != nil {
		return &VaultError{Call: "delete", Err: err}
	}
	return nil
}

func (s *Synchronizer) get(ctx context.Context, orgID string, ref int64) (Secret, error) {
	secret, err := s.vault.Get(ctx, orgID, ref)
	s.observe("get", err)
	if err != nil {
		return Secret{}, &VaultError{Call: "get", Err: err}
	}
	return secret, nil
}

func (s *Synchronizer) observe(call string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.VaultCallsTotal.WithLabelValues(call, status).Inc()
}
