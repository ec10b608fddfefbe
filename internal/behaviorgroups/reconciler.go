// Package behaviorgroups keeps the per-integration behavior groups in step
// with an endpoint's linked event types. Groups are bundle-scoped, so one
// endpoint linked across several bundles owns one managed group per bundle,
// all carrying the same derived display name.
package behaviorgroups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/metrics"
	"github.com/hookbridge/hookbridge/internal/store"
)

// GroupName derives the display name of the groups managed for an
// integration. The name is the only marker tying a group to its
// integration, so renaming the integration must rename the groups.
func GroupName(integrationName string) string {
	return fmt.Sprintf("Integration %q behavior group", integrationName)
}

// Store is the slice of the query layer the reconciler needs. Satisfied by
// *store.Queries.
type Store interface {
	FindBehaviorGroupByName(ctx context.Context, orgID string, bundleID uuid.UUID, displayName string) (*store.BehaviorGroup, error)
	ListBehaviorGroupsByEndpoint(ctx context.Context, orgID string, endpointID uuid.UUID) ([]*store.BehaviorGroup, error)
	CreateBehaviorGroup(ctx context.Context, orgID, accountID string, bundleID uuid.UUID, displayName string) (uuid.UUID, error)
	AddBehaviorGroupAction(ctx context.Context, groupID, endpointID uuid.UUID, position int32) error
	AddEventTypeBehavior(ctx context.Context, groupID, eventTypeID uuid.UUID) error
	DeleteBehaviorGroupAction(ctx context.Context, groupID, endpointID uuid.UUID) error
	DeleteBehaviorGroup(ctx context.Context, groupID uuid.UUID) error
	RenameBehaviorGroups(ctx context.Context, orgID, oldName, newName string) (int64, error)
}

// Reconciler converges the managed behavior groups of an endpoint onto a
// target set of linked event types. All operations are set-based and
// idempotent; re-running a sync with the same target is a no-op.
type Reconciler struct {
	log *slog.Logger
}

func NewReconciler(log *slog.Logger) *Reconciler {
	return &Reconciler{log: log}
}

// Sync makes the managed groups match the full target link set. Event types
// are partitioned by bundle; each bundle gets one managed group holding the
// endpoint as an action and the bundle's event types as behaviors. Any group
// still linking the endpoint in a bundle that dropped out of the target is
// unlinked, and deleted entirely when the endpoint was its only action.
func (r *Reconciler) Sync(ctx context.Context, db Store, ep *endpoint.Endpoint, links []endpoint.LinkedEventType) error {
	name := GroupName(ep.Name)

	byBundle := make(map[uuid.UUID][]endpoint.LinkedEventType)
	for _, link := range links {
		byBundle[link.BundleID] = append(byBundle[link.BundleID], link)
	}

	for bundleID, bundleLinks := range byBundle {
		if err := r.syncBundle(ctx, db, ep, name, bundleID, bundleLinks); err != nil {
			return fmt.Errorf("bundle %s: %w", bundleID, err)
		}
	}

	return r.prune(ctx, db, ep, byBundle)
}

func (r *Reconciler) syncBundle(ctx context.Context, db Store, ep *endpoint.Endpoint, name string, bundleID uuid.UUID, links []endpoint.LinkedEventType) error {
	group, err := db.FindBehaviorGroupByName(ctx, ep.OrgID, bundleID, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		groupID, err := db.CreateBehaviorGroup(ctx, ep.OrgID, ep.AccountID, bundleID, name)
		if err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		if err := db.AddBehaviorGroupAction(ctx, groupID, ep.ID, 0); err != nil {
			return fmt.Errorf("add action: %w", err)
		}
		metrics.BehaviorGroupChangesTotal.WithLabelValues("group_created").Inc()
		r.log.Debug("created behavior group", "group_id", groupID, "bundle_id", bundleID, "endpoint_id", ep.ID)
		group = &store.BehaviorGroup{ID: groupID}
	case err != nil:
		return fmt.Errorf("find group: %w", err)
	default:
		if !hasAction(group, ep.ID) {
			position := int32(0)
			for _, a := range group.Actions {
				if a.Position >= position {
					position = a.Position + 1
				}
			}
			if err := db.AddBehaviorGroupAction(ctx, group.ID, ep.ID, position); err != nil {
				return fmt.Errorf("add action: %w", err)
			}
			metrics.BehaviorGroupChangesTotal.WithLabelValues("action_added").Inc()
		}
	}

	have := make(map[uuid.UUID]bool, len(group.EventTypeIDs))
	for _, id := range group.EventTypeIDs {
		have[id] = true
	}
	for _, link := range links {
		if have[link.ID] {
			continue
		}
		if err := db.AddEventTypeBehavior(ctx, group.ID, link.ID); err != nil {
			return fmt.Errorf("add behavior %s: %w", link.ID, err)
		}
		metrics.BehaviorGroupChangesTotal.WithLabelValues("behavior_added").Inc()
	}
	return nil
}

// prune detaches the endpoint from every group whose bundle is no longer in
// the target set, regardless of who created the group. A group whose only
// action was this endpoint is removed outright so no empty group lingers.
func (r *Reconciler) prune(ctx context.Context, db Store, ep *endpoint.Endpoint, keep map[uuid.UUID][]endpoint.LinkedEventType) error {
	groups, err := db.ListBehaviorGroupsByEndpoint(ctx, ep.OrgID, ep.ID)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, group := range groups {
		if _, ok := keep[group.BundleID]; ok {
			continue
		}
		if len(group.Actions) == 1 && group.Actions[0].EndpointID == ep.ID {
			if err := db.DeleteBehaviorGroup(ctx, group.ID); err != nil {
				return fmt.Errorf("delete group %s: %w", group.ID, err)
			}
			metrics.BehaviorGroupChangesTotal.WithLabelValues("group_deleted").Inc()
			r.log.Debug("deleted behavior group", "group_id", group.ID, "endpoint_id", ep.ID)
			continue
		}
		if err := db.DeleteBehaviorGroupAction(ctx, group.ID, ep.ID); err != nil {
			return fmt.Errorf("remove action from group %s: %w", group.ID, err)
		}
		metrics.BehaviorGroupChangesTotal.WithLabelValues("action_removed").Inc()
	}
	return nil
}

// Rename propagates an integration rename onto its managed groups across
// every bundle of the tenant.
func (r *Reconciler) Rename(ctx context.Context, db Store, orgID, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	n, err := db.RenameBehaviorGroups(ctx, orgID, GroupName(oldName), GroupName(newName))
	if err != nil {
		return fmt.Errorf("rename groups: %w", err)
	}
	if n > 0 {
		metrics.BehaviorGroupChangesTotal.WithLabelValues("group_renamed").Add(float64(n))
		r.log.Debug("renamed behavior groups", "org_id", orgID, "count", n)
	}
	return nil
}

func hasAction(group *store.BehaviorGroup, endpointID uuid.UUID) bool {
	for _, a := range group.Actions {
		if a.EndpointID == endpointID {
			return true
		}
	}
	return false
}
