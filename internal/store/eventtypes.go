package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hookbridge/hookbridge/internal/endpoint"
)

const linkedEventTypeColumns = `
et.id, et.name, et.display_name, et.restrict_to_recipients_integrations,
a.id, a.display_name,
b.id, b.display_name
`

func scanLinkedEventType(row pgx.Row) (endpoint.LinkedEventType, error) {
	var link endpoint.LinkedEventType
	err := row.Scan(
		&link.ID, &link.Name, &link.DisplayName, &link.RestrictToRecipients,
		&link.ApplicationID, &link.ApplicationDisplayName,
		&link.BundleID, &link.BundleDisplayName,
	)
	return link, err
}

const getEventTypesByIDs = `
SELECT ` + linkedEventTypeColumns + `
FROM event_types et
JOIN applications a ON a.id = et.application_id
JOIN bundles b ON b.id = a.bundle_id
WHERE et.id = ANY ($1)
`

// GetEventTypesByIDs resolves event types with their owning application and
// bundle. Unknown IDs are simply absent from the result; the caller decides
// whether that is an error.
func (q *Queries) GetEventTypesByIDs(ctx context.Context, ids []uuid.UUID) ([]endpoint.LinkedEventType, error) {
	rows, err := q.db.Query(ctx, getEventTypesByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []endpoint.LinkedEventType
	for rows.Next() {
		link, err := scanLinkedEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

const listEndpointEventTypes = `
SELECT ` + linkedEventTypeColumns + `
FROM endpoint_event_types l
JOIN event_types et ON et.id = l.event_type_id
JOIN applications a ON a.id = et.application_id
JOIN bundles b ON b.id = a.bundle_id
WHERE l.endpoint_id = $1
`

// ListEndpointEventTypes returns the event types linked to an endpoint.
func (q *Queries) ListEndpointEventTypes(ctx context.Context, endpointID uuid.UUID) ([]endpoint.LinkedEventType, error) {
	rows, err := q.db.Query(ctx, listEndpointEventTypes, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []endpoint.LinkedEventType
	for rows.Next() {
		link, err := scanLinkedEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

const addEndpointEventType = `
INSERT INTO endpoint_event_types (endpoint_id, event_type_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

func (q *Queries) AddEndpointEventType(ctx context.Context, endpointID, eventTypeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, addEndpointEventType, endpointID, eventTypeID)
	return err
}

const deleteEndpointEventType = `
DELETE FROM endpoint_event_types
WHERE endpoint_id = $1 AND event_type_id = $2
`

func (q *Queries) DeleteEndpointEventType(ctx context.Context, endpointID, eventTypeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteEndpointEventType, endpointID, eventTypeID)
	return err
}

const clearEndpointEventTypes = `
DELETE FROM endpoint_event_types
WHERE endpoint_id = $1
`

// ReplaceEndpointEventTypes swaps the endpoint's link set for the given one.
func (q *Queries) ReplaceEndpointEventTypes(ctx context.Context, endpointID uuid.UUID, eventTypeIDs []uuid.UUID) error {
	if _, err := q.db.Exec(ctx, clearEndpointEventTypes, endpointID); err != nil {
		return err
	}
	for _, id := range eventTypeIDs {
		if err := q.AddEndpointEventType(ctx, endpointID, id); err != nil {
			return err
		}
	}
	return nil
}
