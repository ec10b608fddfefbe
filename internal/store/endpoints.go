package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hookbridge/hookbridge/internal/endpoint"
)

const endpointColumns = `id, org_id, account_id, name, description, kind, sub_kind, enabled, status, properties, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*endpoint.Endpoint, error) {
	var (
		ep       endpoint.Endpoint
		kind     string
		status   string
		rawProps []byte
	)
	err := row.Scan(
		&ep.ID, &ep.OrgID, &ep.AccountID, &ep.Name, &ep.Description,
		&kind, &ep.SubKind, &ep.Enabled, &status, &rawProps,
		&ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ep.Kind = endpoint.Kind(kind)
	ep.Status = endpoint.Status(status)
	ep.Properties, err = endpoint.UnmarshalProperties(ep.Kind, rawProps)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", ep.ID, err)
	}
	return &ep, nil
}

const createEndpoint = `
INSERT INTO endpoints (org_id, account_id, name, description, kind, sub_kind, enabled, status, properties)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, updated_at
`

// CreateEndpoint inserts the endpoint and fills its server-assigned ID and
// timestamps.
func (q *Queries) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	props, err := endpoint.MarshalProperties(ep.Properties)
	if err != nil {
		return err
	}
	row := q.db.QueryRow(ctx, createEndpoint,
		ep.OrgID, ep.AccountID, ep.Name, ep.Description,
		string(ep.Kind), ep.SubKind, ep.Enabled, string(ep.Status), props,
	)
	return row.Scan(&ep.ID, &ep.CreatedAt, &ep.UpdatedAt)
}

const getEndpoint = `
SELECT ` + endpointColumns + `
FROM endpoints
WHERE org_id = $1 AND id = $2
`

func (q *Queries) GetEndpoint(ctx context.Context, orgID string, id uuid.UUID) (*endpoint.Endpoint, error) {
	return scanEndpoint(q.db.QueryRow(ctx, getEndpoint, orgID, id))
}

const updateEndpoint = `
UPDATE endpoints
SET name = $3, description = $4, sub_kind = $5, enabled = $6, properties = $7, updated_at = now()
WHERE org_id = $1 AND id = $2
RETURNING updated_at
`

// UpdateEndpoint persists the mutable endpoint fields. The kind is fixed at
// creation time and never updated.
func (q *Queries) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	props, err := endpoint.MarshalProperties(ep.Properties)
	if err != nil {
		return err
	}
	row := q.db.QueryRow(ctx, updateEndpoint,
		ep.OrgID, ep.ID, ep.Name, ep.Description, ep.SubKind, ep.Enabled, props,
	)
	if err := row.Scan(&ep.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

const updateEndpointProperties = `
UPDATE endpoints
SET properties = $3, updated_at = now()
WHERE org_id = $1 AND id = $2
`

// UpdateEndpointProperties rewrites only the properties document. Used to
// persist credential references after vault synchronization.
func (q *Queries) UpdateEndpointProperties(ctx context.Context, orgID string, id uuid.UUID, props endpoint.Properties) error {
	raw, err := endpoint.MarshalProperties(props)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, updateEndpointProperties, orgID, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const deleteEndpoint = `
DELETE FROM endpoints
WHERE org_id = $1 AND id = $2
`

func (q *Queries) DeleteEndpoint(ctx context.Context, orgID string, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteEndpoint, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const setEndpointEnabled = `
UPDATE endpoints
SET enabled = $3, updated_at = now()
WHERE org_id = $1 AND id = $2
`

func (q *Queries) SetEndpointEnabled(ctx context.Context, orgID string, id uuid.UUID, enabled bool) error {
	tag, err := q.db.Exec(ctx, setEndpointEnabled, orgID, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const listEndpoints = `
SELECT ` + endpointColumns + `
FROM endpoints
WHERE org_id = $1
  AND ($2 = '' OR kind = $2)
  AND ($3 = '' OR sub_kind = $3)
  AND ($4::boolean IS NULL OR enabled = $4)
  AND ($5 = '' OR name ILIKE '%' || $5 || '%')
ORDER BY created_at DESC, id
LIMIT $6 OFFSET $7
`

// ListEndpointsParams filters the tenant's endpoints. Zero values mean "no
// filter"; Active is a tri-state.
type ListEndpointsParams struct {
	Kind    string
	SubKind string
	Active  *bool
	Name    string
	Limit   int32
	Offset  int32
}

func (q *Queries) ListEndpoints(ctx context.Context, orgID string, p ListEndpointsParams) ([]*endpoint.Endpoint, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(ctx, listEndpoints,
		orgID, p.Kind, p.SubKind, p.Active, p.Name, limit, p.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

const countEndpoints = `
SELECT count(*)
FROM endpoints
WHERE org_id = $1
  AND ($2 = '' OR kind = $2)
  AND ($3 = '' OR sub_kind = $3)
  AND ($4::boolean IS NULL OR enabled = $4)
  AND ($5 = '' OR name ILIKE '%' || $5 || '%')
`

func (q *Queries) CountEndpoints(ctx context.Context, orgID string, p ListEndpointsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countEndpoints, orgID, p.Kind, p.SubKind, p.Active, p.Name).Scan(&n)
	return n, err
}

const getSystemSubscriptionEndpoint = `
SELECT ` + endpointColumns + `
FROM endpoints
WHERE org_id = $1 AND kind = $2
  AND (properties->>'only_admins')::boolean = $3
  AND properties->>'group_id' IS NOT DISTINCT FROM $4
ORDER BY created_at
LIMIT 1
`

// GetSystemSubscriptionEndpoint finds the tenant's system endpoint of the
// given kind with exactly the requested subscription settings. A lookup
// without a group never matches a group-scoped endpoint and vice versa.
func (q *Queries) GetSystemSubscriptionEndpoint(ctx context.Context, orgID string, kind endpoint.Kind, props *endpoint.SystemSubscriptionProperties) (*endpoint.Endpoint, error) {
	var groupID *string
	if props.GroupID != nil {
		s := props.GroupID.String()
		groupID = &s
	}
	return scanEndpoint(q.db.QueryRow(ctx, getSystemSubscriptionEndpoint, orgID, string(kind), props.OnlyAdmins, groupID))
}
