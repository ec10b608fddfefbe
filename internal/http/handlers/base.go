// Package handlers contains the JSON API handler logic.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/hookbridge/hookbridge/internal/config"
	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/store"
)

const (
	// HeaderOrgID carries the caller's tenant scope, injected by the
	// identity gateway in front of this service.
	HeaderOrgID = "X-Org-Id"
	// HeaderAccountID carries the caller's account within the tenant.
	HeaderAccountID = "X-Account-Id"
)

var errMissingTenant = errors.New("missing " + HeaderOrgID + " header")

// Lifecycle is the orchestrator surface the handlers invoke.
type Lifecycle interface {
	Create(ctx context.Context, caps config.TenantCapabilities, ep *endpoint.Endpoint, eventTypeIDs []uuid.UUID) (*endpoint.Endpoint, error)
	Update(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID, desired *endpoint.Endpoint, eventTypeIDs []uuid.UUID) (*endpoint.Endpoint, error)
	Delete(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID) error
	SetEnabled(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID, enabled bool) error
	Get(ctx context.Context, caps config.TenantCapabilities, id uuid.UUID) (*endpoint.Endpoint, error)
	List(ctx context.Context, caps config.TenantCapabilities, p store.ListEndpointsParams) ([]*endpoint.Endpoint, int64, error)
	LinkEventType(ctx context.Context, caps config.TenantCapabilities, endpointID, eventTypeID uuid.UUID) error
	UnlinkEventType(ctx context.Context, caps config.TenantCapabilities, endpointID, eventTypeID uuid.UUID) error
	ReplaceEventTypes(ctx context.Context, caps config.TenantCapabilities, endpointID uuid.UUID, eventTypeIDs []uuid.UUID) error
	GetOrCreateSystemSubscription(ctx context.Context, caps config.TenantCapabilities, kind endpoint.Kind, props *endpoint.SystemSubscriptionProperties) (*endpoint.Endpoint, error)
}

// SecretStore is the synchronizer surface the handlers invoke directly. The
// create path owns the vault cleanup contract: entries created before the
// orchestrator runs must be deleted again when it fails.
type SecretStore interface {
	CreateForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error
	DeleteForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error
	LoadForEndpoint(ctx context.Context, ep *endpoint.Endpoint) error
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Cfg     config.Config
	Orch    Lifecycle
	Secrets SecretStore
	Log     *slog.Logger
}

// HandleHealthz returns a simple health check response.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) tenant(c *echo.Context) (config.TenantCapabilities, error) {
	orgID := strings.TrimSpace(c.Request().Header.Get(HeaderOrgID))
	if orgID == "" {
		return config.TenantCapabilities{}, errMissingTenant
	}
	accountID := strings.TrimSpace(c.Request().Header.Get(HeaderAccountID))
	return h.Cfg.Capabilities(orgID, accountID), nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Remote-system failures
// deliberately collapse into a generic message so vault and inventory
// internals never leak to clients.
func (h *Handlers) writeError(c *echo.Context, err error) error {
	var (
		validationErr *endpoint.ValidationError
		notFoundErr   *endpoint.NotFoundError
		conflictErr   *endpoint.ConflictError
	)
	switch {
	case errors.Is(err, errMissingTenant):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: validationErr.Message})
	case errors.As(err, &notFoundErr):
		return c.JSON(http.StatusNotFound, errorResponse{Error: notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		return c.JSON(http.StatusConflict, errorResponse{Error: conflictErr.Message})
	case errors.Is(err, endpoint.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, errorResponse{Error: "permission denied"})
	default:
		h.Log.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func uuidParam(c *echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, endpoint.NewValidationError("invalid %s: not a UUID", name)
	}
	return id, nil
}
