package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BehaviorGroup ties a set of event types (behaviors) in one bundle to an
// ordered set of endpoints (actions).
type BehaviorGroup struct {
	ID          uuid.UUID
	OrgID       string
	AccountID   string
	BundleID    uuid.UUID
	DisplayName string

	// Actions is ordered by position ascending.
	Actions      []BehaviorGroupAction
	EventTypeIDs []uuid.UUID
}

// BehaviorGroupAction is one endpoint slot in a group's ordered action list.
type BehaviorGroupAction struct {
	EndpointID uuid.UUID
	Position   int32
}

const findBehaviorGroupByName = `
SELECT id, org_id, account_id, bundle_id, display_name
FROM behavior_groups
WHERE org_id = $1 AND bundle_id = $2 AND display_name = $3
ORDER BY created_at
LIMIT 1
`

// FindBehaviorGroupByName looks a group up by its display name within one
// bundle, with actions and behaviors loaded.
func (q *Queries) FindBehaviorGroupByName(ctx context.Context, orgID string, bundleID uuid.UUID, displayName string) (*BehaviorGroup, error) {
	var g BehaviorGroup
	err := q.db.QueryRow(ctx, findBehaviorGroupByName, orgID, bundleID, displayName).
		Scan(&g.ID, &g.OrgID, &g.AccountID, &g.BundleID, &g.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := q.loadBehaviorGroupDetails(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

const listBehaviorGroupsByEndpoint = `
SELECT g.id, g.org_id, g.account_id, g.bundle_id, g.display_name
FROM behavior_groups g
JOIN behavior_group_actions a ON a.behavior_group_id = g.id
WHERE g.org_id = $1 AND a.endpoint_id = $2
ORDER BY g.created_at
`

// ListBehaviorGroupsByEndpoint returns every group of the tenant that has
// the endpoint among its actions, with actions and behaviors loaded.
func (q *Queries) ListBehaviorGroupsByEndpoint(ctx context.Context, orgID string, endpointID uuid.UUID) ([]*BehaviorGroup, error) {
	rows, err := q.db.Query(ctx, listBehaviorGroupsByEndpoint, orgID, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BehaviorGroup
	for rows.Next() {
		var g BehaviorGroup
		if err := rows.Scan(&g.ID, &g.OrgID, &g.AccountID, &g.BundleID, &g.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, g := range out {
		if err := q.loadBehaviorGroupDetails(ctx, g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const listBehaviorGroupActions = `
SELECT endpoint_id, position
FROM behavior_group_actions
WHERE behavior_group_id = $1
ORDER BY position
`

const listBehaviorGroupEventTypes = `
SELECT event_type_id
FROM event_type_behaviors
WHERE behavior_group_id = $1
`

func (q *Queries) loadBehaviorGroupDetails(ctx context.Context, g *BehaviorGroup) error {
	rows, err := q.db.Query(ctx, listBehaviorGroupActions, g.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a BehaviorGroupAction
		if err := rows.Scan(&a.EndpointID, &a.Position); err != nil {
			return err
		}
		g.Actions = append(g.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	etRows, err := q.db.Query(ctx, listBehaviorGroupEventTypes, g.ID)
	if err != nil {
		return err
	}
	defer etRows.Close()
	for etRows.Next() {
		var id uuid.UUID
		if err := etRows.Scan(&id); err != nil {
			return err
		}
		g.EventTypeIDs = append(g.EventTypeIDs, id)
	}
	return etRows.Err()
}

const createBehaviorGroup = `
INSERT INTO behavior_groups (org_id, account_id, bundle_id, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id
`

func (q *Queries) CreateBehaviorGroup(ctx context.Context, orgID, accountID string, bundleID uuid.UUID, displayName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createBehaviorGroup, orgID, accountID, bundleID, displayName).Scan(&id)
	return id, err
}

const addBehaviorGroupAction = `
INSERT INTO behavior_group_actions (behavior_group_id, endpoint_id, position)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
`

func (q *Queries) AddBehaviorGroupAction(ctx context.Context, groupID, endpointID uuid.UUID, position int32) error {
	_, err := q.db.Exec(ctx, addBehaviorGroupAction, groupID, endpointID, position)
	return err
}

const addEventTypeBehavior = `
INSERT INTO event_type_behaviors (behavior_group_id, event_type_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

func (q *Queries) AddEventTypeBehavior(ctx context.Context, groupID, eventTypeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, addEventTypeBehavior, groupID, eventTypeID)
	return err
}

const deleteBehaviorGroupAction = `
DELETE FROM behavior_group_actions
WHERE behavior_group_id = $1 AND endpoint_id = $2
`

func (q *Queries) DeleteBehaviorGroupAction(ctx context.Context, groupID, endpointID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteBehaviorGroupAction, groupID, endpointID)
	return err
}

const deleteBehaviorGroup = `
DELETE FROM behavior_groups
WHERE id = $1
`

func (q *Queries) DeleteBehaviorGroup(ctx context.Context, groupID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteBehaviorGroup, groupID)
	return err
}

const renameBehaviorGroups = `
UPDATE behavior_groups
SET display_name = $3
WHERE org_id = $1 AND display_name = $2
`

// RenameBehaviorGroups rewrites the display name of every group of the
// tenant carrying the old name, across all bundles. Returns the number of
// groups renamed.
func (q *Queries) RenameBehaviorGroups(ctx context.Context, orgID, oldName, newName string) (int64, error) {
	tag, err := q.db.Exec(ctx, renameBehaviorGroups, orgID, oldName, newName)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
