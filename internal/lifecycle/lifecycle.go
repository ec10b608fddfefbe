// Package lifecycle sequences the endpoint create/update/delete saga across
// the relational store, the secrets vault and the authorization inventory.
// The store participates in a real transaction; the two remote systems do
// not, so partial failures are corrected with explicit compensating calls.
package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/hookbridge/hookbridge/internal/behaviorgroups"
	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/store"
)

// Queries is the slice of the query layer the orchestrator drives.
// Satisfied by *store.Queries; tests substitute an in-memory fake.
type Queries interface {
	CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error
	GetEndpoint(ctx context.Context, orgID string, id uuid.UUID) (*endpoint.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error
	UpdateEndpointProperties(ctx context.Context, orgID string, id uuid.UUID, props endpoint.Properties) error
	DeleteEndpoint(ctx context.Context, orgID string, id uuid.UUID) error
	SetEndpointEnabled(ctx context.Context, orgID string, id uuid.UUID, enabled bool) error
	ListEndpoints(ctx context.Context, orgID string, p store.ListEndpointsParams) ([]*endpoint.Endpoint, error)
	CountEndpoints(ctx context.Context, orgID string, p store.ListEndpointsParams) (int64, error)
	GetSystemSubscriptionEndpoint(ctx context.Context, orgID string, kind endpoint.Kind, props *endpoint.SystemSubscriptionProperties) (*endpoint.Endpoint, error)

	GetEventTypesByIDs(ctx context.Context, ids []uuid.UUID) ([]endpoint.LinkedEventType, error)
	ListEndpointEventTypes(ctx context.Context, endpointID uuid.UUID) ([]endpoint.LinkedEventType, error)
	AddEndpointEventType(ctx context.Context, endpointID, eventTypeID uuid.UUID) error
	DeleteEndpointEventType(ctx context.Context, endpointID, eventTypeID uuid.UUID) error
	ReplaceEndpointEventTypes(ctx context.Context, endpointID uuid.UUID, eventTypeIDs []uuid.UUID) error

	behaviorgroups.Store
}

var _ Queries = (*store.Queries)(nil)

// Store opens transactional units of work for the orchestrator.
type Store interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
	Queries() Queries
}

type pgStore struct {
	inner *store.Store
}

// NewStore adapts the pgx-backed store to the orchestrator's Store.
func NewStore(inner *store.Store) Store {
	return pgStore{inner: inner}
}

func (p pgStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return p.inner.InTx(ctx, func(q *store.Queries) error { return fn(q) })
}

func (p pgStore) Queries() Queries {
	return p.inner.Queries()
}
