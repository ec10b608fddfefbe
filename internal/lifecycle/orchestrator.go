package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hookbridge/hookbridge/internal/behaviorgroups"
	"github.com/hookbridge/hookbridge/internal/config"
	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/inventory"
	"github.com/hookbridge/hookbridge/internal/metrics"
	"github.com/hookbridge/hookbridge/internal/secrets"
	"github.com/hookbridge/hookbridge/internal/store"
)

// Orchestrator owns the endpoint lifecycle. Every mutating operation runs
// inside one store transaction; vault and inventory calls happen inside the
// critical section and are compensated explicitly when a later step fails.
type Orchestrator struct {
	db      Store
	secrets *secrets.Synchronizer
	inv     inventory.Client
	groups  *behaviorgroups.Reconciler
	log     *slog.Logger
}

func NewOrchestrator(db Store, sync *secrets.Synchronizer, inv inventory.Client, groups *behaviorgroups.Reconciler, log *slog.Logger) *Orchestrator {
	return &Orchestrator{db: db, secrets: sync, inv: inv, groups: groups, log: log}
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LifecycleOperationsTotal.WithLabelValues(operation, status).Inc()
	metrics.LifecycleOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func kindAllowed(caps config.TenantCapabilities, kind endpoint.Kind) error {
	if caps.EmailsOnlyMode && !kind.IsSystem() {
		return endpoint.NewValidationError("%s %q in emails-only mode", endpoint.UnsupportedKindError, kind)
	}
	return nil
}

// Create validates and persists a new endpoint, registers it in the
// authorization inventory when the tenant is tracked there, and synchronizes
// behavior groups for any requested event type links.
//
// Vault entries for secret values are created by the caller before this is
// invoked; on error the caller must delete them again. No half-created
// endpoint may leave orphaned vault entries behind.
func (o *Orchestrator) Create(ctx context.Context, caps config.TenantCapabilities, ep *endpoint.Endpoint, eventTypeIDs []uuid.UUID) (created *endpoint.Endpoint, err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())

	if err := kindAllowed(caps, ep.Kind); err != nil {
		return nil, err
	}
	if ep.Kind.IsSystem() {
		return nil, endpoint.NewValidationError("system endpoints of kind %q are managed through the subscription path", ep.Kind)
	}
	if err := endpoint.ValidateProperties(ep, nil); err != nil {
		return nil, err
	}

	ep.OrgID = caps.OrgID
	ep.AccountID = caps.AccountID
	ep.Status = endpoint.StatusReady

	err = o.db.InTx(ctx, func(q Queries) error {
		// Links must be validated before the row exists so an invalid
		// link never reaches the store.
		links, err := o.resolveEventTypes(ctx, q, ep.Kind, eventTypeIDs)
		if err != nil {
			return err
		}

		if err := q.CreateEndpoint(ctx, ep); err != nil {
			if store.IsUniqueViolation(err) {
				return &endpoint.ConflictError{Message: fmt.Sprintf("an endpoint named %q already exists", ep.Name)}
			}
			return fmt.Errorf("persist endpoint: %w", err)
		}
		for _, link := range links {
			if err := q.AddEndpointEventType(ctx, ep.ID, link.ID); err != nil {
				return fmt.Errorf("link event type %s: %w", link.ID, err)
			}
		}

		registered := false
		if caps.InventoryEnabled {
			if err := o.inv.Register(ctx, caps.OrgID, ep.ID); err != nil {
				return err
			}
			registered = true
		}

		if len(links) > 0 {
			if err := o.groups.Sync(ctx, q, ep, links); err != nil {
				// The rollback undoes the row but not the remote
				// registration; take that back explicitly.
				if registered {
					o.compensateRegistration(ctx, caps, ep.ID)
				}
				return fmt.Errorf("reconcile behavior groups: %w", err)
			}
		}
		ep.EventTypes = links
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("endpoint created", "endpoint_id", ep.ID, "org_id", caps.OrgID, "kind", ep.Kind)
	return ep, nil
}

// Update loads the stored endpoint, applies the desired field changes,
// propagates a rename to the managed behavior groups, diffs the credential
// fields against the vault and, when a full event type set was supplied,
// reconciles behavior groups against it. A nil eventTypeIDs means "leave
// links unchanged"; an empty non-nil slice clears them.
func (o *Orchestrator) Update(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID, desired *endpoint.Endpoint, eventTypeIDs []uuid.UUID) (updated *endpoint.Endpoint, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())

	err = o.db.InTx(ctx, func(q Queries) error {
		current, err := q.GetEndpoint(ctx, caps.OrgID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &endpoint.NotFoundError{Resource: "endpoint"}
			}
			return err
		}
		if err := kindAllowed(caps, current.Kind); err != nil {
			return err
		}
		if current.Kind.IsSystem() || desired.Kind.IsSystem() {
			return endpoint.NewValidationError("system endpoints cannot be updated")
		}
		if desired.Kind != "" && desired.Kind != current.Kind {
			return endpoint.NewValidationError("endpoint kind cannot be changed from %q to %q", current.Kind, desired.Kind)
		}
		desired.Kind = current.Kind
		if err := endpoint.ValidateProperties(desired, current); err != nil {
			return err
		}

		oldName := current.Name

		next := *current
		next.Name = desired.Name
		next.Description = desired.Description
		next.SubKind = desired.SubKind
		next.Enabled = desired.Enabled
		next.Properties = desired.Properties

		if err := q.UpdateEndpoint(ctx, &next); err != nil {
			if store.IsUniqueViolation(err) {
				return &endpoint.ConflictError{Message: fmt.Sprintf("an endpoint named %q already exists", next.Name)}
			}
			return fmt.Errorf("persist endpoint: %w", err)
		}

		if next.Name != oldName {
			if err := o.groups.Rename(ctx, q, caps.OrgID, oldName, next.Name); err != nil {
				return err
			}
		}

		// The vault diff issues remote calls from inside the transaction:
		// a vault failure rolls back the field changes above.
		if err := o.secrets.Sync(ctx, caps.OrgID, next.ID, current.SecretFields(), next.SecretFields()); err != nil {
			return err
		}
		if err := q.UpdateEndpointProperties(ctx, caps.OrgID, next.ID, next.Properties); err != nil {
			return fmt.Errorf("persist secret references: %w", err)
		}

		if eventTypeIDs != nil {
			links, err := o.resolveEventTypes(ctx, q, next.Kind, eventTypeIDs)
			if err != nil {
				return err
			}
			if err := q.ReplaceEndpointEventTypes(ctx, next.ID, eventTypeIDs); err != nil {
				return fmt.Errorf("replace event type links: %w", err)
			}
			if err := o.groups.Sync(ctx, q, &next, links); err != nil {
				return fmt.Errorf("reconcile behavior groups: %w", err)
			}
			next.EventTypes = links
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("endpoint updated", "endpoint_id", id, "org_id", caps.OrgID)
	return updated, nil
}

// Delete removes the endpoint row, deregisters it from the authorization
// inventory and deletes its vault entries, in that order. A vault failure
// after deregistration rolls the row back and re-registers the endpoint so
// the three systems stay consistent, unless tenant policy says to accept
// orphaned vault entries and let the delete stand.
func (o *Orchestrator) Delete(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	err = o.db.InTx(ctx, func(q Queries) error {
		current, err := q.GetEndpoint(ctx, caps.OrgID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &endpoint.NotFoundError{Resource: "endpoint"}
			}
			return err
		}
		if err := kindAllowed(caps, current.Kind); err != nil {
			return err
		}
		if current.Kind.IsSystem() {
			return endpoint.NewValidationError("system endpoints of kind %q cannot be deleted", current.Kind)
		}
		current.Status = endpoint.StatusDeleting

		// Detach the endpoint from every behavior group first so no
		// empty group survives the row's cascade delete.
		if err := o.groups.Sync(ctx, q, current, nil); err != nil {
			return fmt.Errorf("reconcile behavior groups: %w", err)
		}

		if err := q.DeleteEndpoint(ctx, caps.OrgID, id); err != nil {
			return fmt.Errorf("delete endpoint: %w", err)
		}

		deregistered := false
		if caps.InventoryEnabled {
			if err := o.inv.Deregister(ctx, caps.OrgID, id); err != nil {
				if !errors.Is(err, inventory.ErrIntegrationNotFound) {
					return err
				}
			} else {
				deregistered = true
			}
		}

		if err := o.secrets.DeleteForEndpoint(ctx, current); err != nil {
			if caps.IgnoreVaultErrorsOnDelete {
				// Orphaned vault entries accepted by tenant policy.
				o.log.Warn("ignoring vault deletion failure", "endpoint_id", id, "org_id", caps.OrgID, "error", err)
				return nil
			}
			if deregistered {
				if regErr := o.inv.Register(ctx, caps.OrgID, id); regErr != nil {
					metrics.CompensationsTotal.WithLabelValues("delete", "inventory", "error").Inc()
					o.log.Error("endpoint left unregistered after failed delete", "endpoint_id", id, "org_id", caps.OrgID, "error", regErr)
					return errors.Join(err, fmt.Errorf("re-register in inventory: %w", regErr))
				}
				metrics.CompensationsTotal.WithLabelValues("delete", "inventory", "success").Inc()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.log.Info("endpoint deleted", "endpoint_id", id, "org_id", caps.OrgID)
	return nil
}

// SetEnabled flips the endpoint's orthogonal enabled flag without touching
// its lifecycle status. System endpoints stay enabled; their subscriptions
// are managed through the dedicated path.
func (o *Orchestrator) SetEnabled(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID, enabled bool) (err error) {
	operation := "disable"
	if enabled {
		operation = "enable"
	}
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	return o.db.InTx(ctx, func(q Queries) error {
		current, err := q.GetEndpoint(ctx, caps.OrgID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &endpoint.NotFoundError{Resource: "endpoint"}
			}
			return err
		}
		if err := kindAllowed(caps, current.Kind); err != nil {
			return err
		}
		if current.Kind.IsSystem() {
			return endpoint.NewValidationError("system endpoints of kind %q cannot be %sd", current.Kind, operation)
		}
		if err := q.SetEndpointEnabled(ctx, caps.OrgID, id, enabled); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &endpoint.NotFoundError{Resource: "endpoint"}
			}
			return err
		}
		return nil
	})
}

// Get loads one endpoint with its linked event types.
func (o *Orchestrator) Get(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID) (*endpoint.Endpoint, error) {
	q := o.db.Queries()
	ep, err := q.GetEndpoint(ctx, caps.OrgID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &endpoint.NotFoundError{Resource: "endpoint"}
		}
		return nil, err
	}
	if ep.EventTypes, err = q.ListEndpointEventTypes(ctx, ep.ID); err != nil {
		return nil, err
	}
	return ep, nil
}

// List returns a page of the tenant's endpoints plus the unpaged total.
func (o *Orchestrator) List(ctx context.Context, caps config.TenantCapabilities, p store.ListEndpointsParams) ([]*endpoint.Endpoint, int64, error) {
	q := o.db.Queries()
	eps, err := q.ListEndpoints(ctx, caps.OrgID, p)
	if err != nil {
		return nil, 0, err
	}
	total, err := q.CountEndpoints(ctx, caps.OrgID, p)
	if err != nil {
		return nil, 0, err
	}
	return eps, total, nil
}

// LinkEventType adds one event type link and reconciles behavior groups
// against the resulting full set. Linking an already-linked pair is a no-op.
func (o *Orchestrator) LinkEventType(ctx context.Context, caps config.TenantCapabilities, endpointID, eventTypeID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("link", start, err) }(time.Now())

	return o.db.InTx(ctx, func(q Queries) error {
		ep, err := o.loadForLinking(ctx, q, caps, endpointID)
		if err != nil {
			return err
		}
		if _, err := o.resolveEventTypes(ctx, q, ep.Kind, []uuid.UUID{eventTypeID}); err != nil {
			return err
		}
		if err := q.AddEndpointEventType(ctx, endpointID, eventTypeID); err != nil {
			return err
		}
		return o.resyncGroups(ctx, q, ep)
	})
}

// UnlinkEventType removes one event type link and reconciles behavior
// groups against the remaining set.
func (o *Orchestrator) UnlinkEventType(ctx context.Context, caps config.TenantCapabilities, endpointID, eventTypeID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("unlink", start, err) }(time.Now())

	return o.db.InTx(ctx, func(q Queries) error {
		ep, err := o.loadForLinking(ctx, q, caps, endpointID)
		if err != nil {
			return err
		}
		if err := q.DeleteEndpointEventType(ctx, endpointID, eventTypeID); err != nil {
			return err
		}
		return o.resyncGroups(ctx, q, ep)
	})
}

// ReplaceEventTypes swaps the endpoint's full link set and reconciles
// behavior groups against the new target.
func (o *Orchestrator) ReplaceEventTypes(ctx context.Context, caps config.TenantCapabilities, endpointID uuid.UUID, eventTypeIDs []uuid.UUID) (err error) {
	defer func(start time.Time) { observe("replace_event_types", start, err) }(time.Now())

	return o.db.InTx(ctx, func(q Queries) error {
		ep, err := o.loadForLinking(ctx, q, caps, endpointID)
		if err != nil {
			return err
		}
		links, err := o.resolveEventTypes(ctx, q, ep.Kind, eventTypeIDs)
		if err != nil {
			return err
		}
		if err := q.ReplaceEndpointEventTypes(ctx, endpointID, eventTypeIDs); err != nil {
			return err
		}
		return o.groups.Sync(ctx, q, ep, links)
	})
}

// GetOrCreateSystemSubscription returns the tenant's system endpoint with
// exactly the requested subscription settings, creating it on first use.
// This is the only path that creates email and drawer endpoints.
func (o *Orchestrator) GetOrCreateSystemSubscription(ctx context.Context, caps config.TenantCapabilities, kind endpoint.Kind, props *endpoint.SystemSubscriptionProperties) (out *endpoint.Endpoint, err error) {
	defer func(start time.Time) { observe("system_subscription", start, err) }(time.Now())

	if !kind.IsSystem() {
		return nil, endpoint.NewValidationError("kind %q is not a system subscription kind", kind)
	}
	if props == nil {
		props = &endpoint.SystemSubscriptionProperties{}
	}
	if props.GroupID != nil && props.OnlyAdmins {
		return nil, endpoint.NewValidationError("a group-scoped subscription cannot also be restricted to admins")
	}

	err = o.db.InTx(ctx, func(q Queries) error {
		existing, err := q.GetSystemSubscriptionEndpoint(ctx, caps.OrgID, kind, props)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		ep := &endpoint.Endpoint{
			OrgID:      caps.OrgID,
			AccountID:  caps.AccountID,
			Name:       systemSubscriptionName(kind, props),
			Kind:       kind,
			Enabled:    true,
			Status:     endpoint.StatusReady,
			Properties: props,
		}
		if err := q.CreateEndpoint(ctx, ep); err != nil {
			if store.IsUniqueViolation(err) {
				return &endpoint.ConflictError{Message: fmt.Sprintf("subscription endpoint %q already exists", ep.Name)}
			}
			return fmt.Errorf("persist subscription endpoint: %w", err)
		}
		o.log.Info("system subscription endpoint created", "endpoint_id", ep.ID, "org_id", caps.OrgID, "kind", kind)
		out = ep
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func systemSubscriptionName(kind endpoint.Kind, props *endpoint.SystemSubscriptionProperties) string {
	base := "Email subscription"
	if kind == endpoint.KindDrawer {
		base = "Drawer subscription"
	}
	switch {
	case props.GroupID != nil:
		return fmt.Sprintf("%s for group %s", base, props.GroupID)
	case props.OnlyAdmins:
		return base + " (admins only)"
	default:
		return base
	}
}

// resolveEventTypes loads the requested event types and checks them against
// the endpoint kind. Recipients-restricted event types may only be linked
// to recipients-capable kinds.
func (o *Orchestrator) resolveEventTypes(ctx context.Context, q Queries, kind endpoint.Kind, ids []uuid.UUID) ([]endpoint.LinkedEventType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	links, err := q.GetEventTypesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve event types: %w", err)
	}

	found := make(map[uuid.UUID]bool, len(links))
	for _, link := range links {
		found[link.ID] = true
		if link.RestrictToRecipients && !kind.IsRecipients() {
			return nil, endpoint.NewValidationError("event type %q cannot be linked to endpoints of kind %q", link.Name, kind)
		}
	}
	for _, id := range ids {
		if !found[id] {
			return nil, &endpoint.NotFoundError{Resource: fmt.Sprintf("event type %s", id)}
		}
	}
	return links, nil
}

func (o *Orchestrator) loadForLinking(ctx context.Context, q Queries, caps config.TenantCapabilities, endpointID uuid.UUID) (*endpoint.Endpoint, error) {
	ep, err := q.GetEndpoint(ctx, caps.OrgID, endpointID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &endpoint.NotFoundError{Resource: "endpoint"}
		}
		return nil, err
	}
	return ep, nil
}

func (o *Orchestrator) resyncGroups(ctx context.Context, q Queries, ep *endpoint.Endpoint) error {
	links, err := q.ListEndpointEventTypes(ctx, ep.ID)
	if err != nil {
		return err
	}
	return o.groups.Sync(ctx, q, ep, links)
}

// compensateRegistration takes back an inventory registration after a later
// step failed. Best effort: a compensation failure is logged and counted,
// the original error still wins.
func (o *Orchestrator) compensateRegistration(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID) {
	if err := o.inv.Deregister(ctx, caps.OrgID, id); err != nil && !errors.Is(err, inventory.ErrIntegrationNotFound) {
		metrics.CompensationsTotal.WithLabelValues("create", "inventory", "error").Inc()
		o.log.Error("endpoint left registered after failed create", "endpoint_id", id, "org_id", caps.OrgID, "error", err)
		return
	}
	metrics.CompensationsTotal.WithLabelValues("create", "inventory", "success").Inc()
}
