package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/hookbridge/hookbridge/internal/endpoint"
	"github.com/hookbridge/hookbridge/internal/store"
)

// endpointRequest is the create/update payload. EventTypeIDs distinguishes
// "omitted" (leave links unchanged on update) from an explicit empty set.
type endpointRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Kind         string          `json:"kind"`
	SubKind      string          `json:"sub_kind"`
	Enabled      *bool           `json:"enabled"`
	Properties   json.RawMessage `json:"properties"`
	EventTypeIDs *[]uuid.UUID    `json:"event_type_ids"`
}

type basicAuthPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// secretsPayload carries inbound secret values. The domain model never
// serializes values, so the wire shape is separate from it.
type secretsPayload struct {
	BasicAuth   *basicAuthPayload `json:"basic_auth"`
	SecretToken *string           `json:"secret_token"`
	BearerToken *string           `json:"bearer_token"`
}

type webhookPropertiesPayload struct {
	URL                    string         `json:"url"`
	Method                 string         `json:"method"`
	DisableSSLVerification bool           `json:"disable_ssl_verification"`
	Secrets                secretsPayload `json:"secrets"`
}

type camelPropertiesPayload struct {
	URL                    string            `json:"url"`
	DisableSSLVerification bool              `json:"disable_ssl_verification"`
	Extras                 map[string]string `json:"extras"`
	Secrets                secretsPayload    `json:"secrets"`
}

func (p secretsPayload) toSecretFields() endpoint.SecretFields {
	var out endpoint.SecretFields
	if p.BasicAuth != nil {
		out.BasicAuth = &endpoint.BasicAuth{Username: p.BasicAuth.Username, Password: p.BasicAuth.Password}
	}
	out.SecretToken = p.SecretToken
	out.BearerToken = p.BearerToken
	return out
}

func (r endpointRequest) toEndpoint() (*endpoint.Endpoint, error) {
	kind, err := endpoint.ParseKind(r.Kind)
	if err != nil {
		return nil, endpoint.NewValidationError("%v", err)
	}
	props, err := decodeProperties(kind, r.Properties)
	if err != nil {
		return nil, err
	}
	ep := &endpoint.Endpoint{
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		Kind:        kind,
		SubKind:     strings.TrimSpace(r.SubKind),
		Enabled:     true,
		Properties:  props,
	}
	if r.Enabled != nil {
		ep.Enabled = *r.Enabled
	}
	if ep.Name == "" {
		return nil, endpoint.NewValidationError("name is required")
	}
	return ep, nil
}

func decodeProperties(kind endpoint.Kind, raw json.RawMessage) (endpoint.Properties, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch kind {
	case endpoint.KindWebhook:
		var payload webhookPropertiesPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, endpoint.NewValidationError("malformed webhook properties: %v", err)
		}
		return &endpoint.WebhookProperties{
			URL:                    payload.URL,
			Method:                 payload.Method,
			DisableSSLVerification: payload.DisableSSLVerification,
			Secrets:                payload.Secrets.toSecretFields(),
		}, nil
	case endpoint.KindCamel:
		var payload camelPropertiesPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, endpoint.NewValidationError("malformed camel properties: %v", err)
		}
		return &endpoint.CamelProperties{
			URL:                    payload.URL,
			DisableSSLVerification: payload.DisableSSLVerification,
			Extras:                 payload.Extras,
			Secrets:                payload.Secrets.toSecretFields(),
		}, nil
	default:
		return nil, endpoint.NewValidationError("properties are not accepted for kind %q", kind)
	}
}

type secretsResponse struct {
	BasicAuth      *basicAuthPayload `json:"basic_auth,omitempty"`
	BasicAuthRef   *int64            `json:"basic_auth_ref,omitempty"`
	SecretToken    *string           `json:"secret_token,omitempty"`
	SecretTokenRef *int64            `json:"secret_token_ref,omitempty"`
	BearerToken    *string           `json:"bearer_token,omitempty"`
	BearerTokenRef *int64            `json:"bearer_token_ref,omitempty"`
}

type webhookPropertiesResponse struct {
	URL                    string          `json:"url"`
	Method                 string          `json:"method,omitempty"`
	DisableSSLVerification bool            `json:"disable_ssl_verification"`
	Secrets                secretsResponse `json:"secrets"`
}

type camelPropertiesResponse struct {
	URL                    string            `json:"url"`
	DisableSSLVerification bool              `json:"disable_ssl_verification"`
	Extras                 map[string]string `json:"extras,omitempty"`
	Secrets                secretsResponse   `json:"secrets"`
}

type systemPropertiesResponse struct {
	OnlyAdmins bool       `json:"only_admins"`
	GroupID    *uuid.UUID `json:"group_id,omitempty"`
}

type eventTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
}

type applicationGroupResponse struct {
	ID          uuid.UUID           `json:"id"`
	DisplayName string              `json:"display_name"`
	EventTypes  []eventTypeResponse `json:"event_types"`
}

type bundleGroupResponse struct {
	ID           uuid.UUID                  `json:"id"`
	DisplayName  string                     `json:"display_name"`
	Applications []applicationGroupResponse `json:"applications"`
}

type endpointResponse struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Kind        string                `json:"kind"`
	SubKind     string                `json:"sub_kind,omitempty"`
	Enabled     bool                  `json:"enabled"`
	Status      string                `json:"status"`
	Properties  any                   `json:"properties"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	EventTypes  []bundleGroupResponse `json:"event_types,omitempty"`
}

type listEndpointsResponse struct {
	Data []endpointResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Count int64 `json:"count"`
}

// toResponse converts a domain endpoint. Credential values must already be
// redacted by the caller; this only reshapes.
func toResponse(ep *endpoint.Endpoint) endpointResponse {
	out := endpointResponse{
		ID:          ep.ID,
		Name:        ep.Name,
		Description: ep.Description,
		Kind:        string(ep.Kind),
		SubKind:     ep.SubKind,
		Enabled:     ep.Enabled,
		Status:      string(ep.Status),
		Properties:  toPropertiesResponse(ep.Properties),
		CreatedAt:   ep.CreatedAt,
		UpdatedAt:   ep.UpdatedAt,
	}
	for _, bundle := range endpoint.GroupEventTypes(ep.EventTypes) {
		bundleOut := bundleGroupResponse{ID: bundle.ID, DisplayName: bundle.DisplayName}
		for _, app := range bundle.Applications {
			appOut := applicationGroupResponse{ID: app.ID, DisplayName: app.DisplayName}
			for _, et := range app.EventTypes {
				appOut.EventTypes = append(appOut.EventTypes, eventTypeResponse(et))
			}
			bundleOut.Applications = append(bundleOut.Applications, appOut)
		}
		out.EventTypes = append(out.EventTypes, bundleOut)
	}
	return out
}

func toPropertiesResponse(props endpoint.Properties) any {
	switch p := props.(type) {
	case *endpoint.WebhookProperties:
		return webhookPropertiesResponse{
			URL:                    p.URL,
			Method:                 p.Method,
			DisableSSLVerification: p.DisableSSLVerification,
			Secrets:                toSecretsResponse(p.Secrets),
		}
	case *endpoint.CamelProperties:
		return camelPropertiesResponse{
			URL:                    p.URL,
			DisableSSLVerification: p.DisableSSLVerification,
			Extras:                 p.Extras,
			Secrets:                toSecretsResponse(p.Secrets),
		}
	case *endpoint.SystemSubscriptionProperties:
		return systemPropertiesResponse{OnlyAdmins: p.OnlyAdmins, GroupID: p.GroupID}
	default:
		return nil
	}
}

func toSecretsResponse(fields endpoint.SecretFields) secretsResponse {
	out := secretsResponse{
		BasicAuthRef:   fields.BasicAuthRef,
		SecretToken:    fields.SecretToken,
		SecretTokenRef: fields.SecretTokenRef,
		BearerToken:    fields.BearerToken,
		BearerTokenRef: fields.BearerTokenRef,
	}
	if fields.BasicAuth != nil {
		out.BasicAuth = &basicAuthPayload{Username: fields.BasicAuth.Username, Password: fields.BasicAuth.Password}
	}
	return out
}

// HandleListEndpoints returns a page of the tenant's endpoints. Filters:
// kind (optionally "kind:subkind"), active, name, limit, offset.
func (h *Handlers) HandleListEndpoints(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}

	var params store.ListEndpointsParams
	if rawKind := strings.TrimSpace(c.QueryParam("kind")); rawKind != "" {
		composite, err := endpoint.ParseCompositeKind(rawKind)
		if err != nil {
			return h.writeError(c, endpoint.NewValidationError("%v", err))
		}
		params.Kind = string(composite.Kind)
		params.SubKind = composite.SubKind
	}
	if rawActive := strings.TrimSpace(c.QueryParam("active")); rawActive != "" {
		active, err := strconv.ParseBool(rawActive)
		if err != nil {
			return h.writeError(c, endpoint.NewValidationError("invalid active filter %q", rawActive))
		}
		params.Active = &active
	}
	params.Name = strings.TrimSpace(c.QueryParam("name"))
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			return h.writeError(c, endpoint.NewValidationError("invalid limit %q", raw))
		}
		params.Limit = int32(n)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			return h.writeError(c, endpoint.NewValidationError("invalid offset %q", raw))
		}
		params.Offset = int32(n)
	}

	eps, total, err := h.Orch.List(c.Request().Context(), caps, params)
	if err != nil {
		return h.writeError(c, err)
	}

	out := listEndpointsResponse{Data: make([]endpointResponse, 0, len(eps)), Meta: listMeta{Count: total}}
	for _, ep := range eps {
		endpoint.RedactSecrets(ep)
		out.Data = append(out.Data, toResponse(ep))
	}
	return c.JSON(http.StatusOK, out)
}

// HandleCreateEndpoint creates an endpoint. Vault entries for any supplied
// secret values are created first; if the orchestrator then fails they are
// deleted again before the error propagates, so no orphaned entries remain.
func (h *Handlers) HandleCreateEndpoint(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req endpointRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return h.writeError(c, endpoint.NewValidationError("malformed request body: %v", err))
	}
	ep, err := req.toEndpoint()
	if err != nil {
		return h.writeError(c, err)
	}

	ctx := c.Request().Context()
	ep.OrgID = caps.OrgID
	if err := h.Secrets.CreateForEndpoint(ctx, ep); err != nil {
		return h.writeError(c, err)
	}

	var eventTypeIDs []uuid.UUID
	if req.EventTypeIDs != nil {
		eventTypeIDs = *req.EventTypeIDs
	}
	created, err := h.Orch.Create(ctx, caps, ep, eventTypeIDs)
	if err != nil {
		if cleanupErr := h.Secrets.DeleteForEndpoint(ctx, ep); cleanupErr != nil {
			h.Log.Error("orphaned vault entries after failed create", "org_id", caps.OrgID, "error", cleanupErr)
		}
		return h.writeError(c, err)
	}

	endpoint.RedactSecrets(created)
	return c.JSON(http.StatusCreated, toResponse(created))
}

// HandleGetEndpoint returns one endpoint with redacted credentials and its
// linked event types grouped bundle > application > event type.
func (h *Handlers) HandleGetEndpoint(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	ctx := c.Request().Context()
	ep, err := h.Orch.Get(ctx, caps, id)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.Secrets.LoadForEndpoint(ctx, ep); err != nil {
		return h.writeError(c, err)
	}
	endpoint.RedactSecrets(ep)
	return c.JSON(http.StatusOK, toResponse(ep))
}

// HandleUpdateEndpoint applies field changes and, when event_type_ids is
// present in the payload, replaces the endpoint's full link set.
func (h *Handlers) HandleUpdateEndpoint(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	var req endpointRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return h.writeError(c, endpoint.NewValidationError("malformed request body: %v", err))
	}
	desired, err := req.toEndpoint()
	if err != nil {
		return h.writeError(c, err)
	}

	var eventTypeIDs []uuid.UUID
	if req.EventTypeIDs != nil {
		eventTypeIDs = *req.EventTypeIDs
		if eventTypeIDs == nil {
			eventTypeIDs = []uuid.UUID{}
		}
	}

	updated, err := h.Orch.Update(c.Request().Context(), caps, id, desired, eventTypeIDs)
	if err != nil {
		return h.writeError(c, err)
	}
	endpoint.RedactSecrets(updated)
	return c.JSON(http.StatusOK, toResponse(updated))
}

func (h *Handlers) HandleDeleteEndpoint(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.Orch.Delete(c.Request().Context(), caps, id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleEnableEndpoint(c *echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *Handlers) HandleDisableEndpoint(c *echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *Handlers) setEnabled(c *echo.Context, enabled bool) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.Orch.SetEnabled(c.Request().Context(), caps, id, enabled); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleLinkEventType(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	eventTypeID, err := uuidParam(c, "eventTypeId")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.Orch.LinkEventType(c.Request().Context(), caps, id, eventTypeID); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleUnlinkEventType(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	eventTypeID, err := uuidParam(c, "eventTypeId")
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.Orch.UnlinkEventType(c.Request().Context(), caps, id, eventTypeID); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type replaceEventTypesRequest struct {
	EventTypeIDs []uuid.UUID `json:"event_type_ids"`
}

// HandleReplaceEventTypes swaps the endpoint's full event type set for the
// one in the payload.
func (h *Handlers) HandleReplaceEventTypes(c *echo.Context) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	var req replaceEventTypesRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return h.writeError(c, endpoint.NewValidationError("malformed request body: %v", err))
	}
	if err := h.Orch.ReplaceEventTypes(c.Request().Context(), caps, id, req.EventTypeIDs); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type systemSubscriptionRequest struct {
	OnlyAdmins bool       `json:"only_admins"`
	GroupID    *uuid.UUID `json:"group_id"`
}

// HandleEmailSubscription resolves (or creates on first use) the tenant's
// email subscription endpoint with the requested settings.
func (h *Handlers) HandleEmailSubscription(c *echo.Context) error {
	return h.systemSubscription(c, endpoint.KindEmailSubscription)
}

// HandleDrawerSubscription is the drawer counterpart of
// HandleEmailSubscription.
func (h *Handlers) HandleDrawerSubscription(c *echo.Context) error {
	return h.systemSubscription(c, endpoint.KindDrawer)
}

func (h *Handlers) systemSubscription(c *echo.Context, kind endpoint.Kind) error {
	caps, err := h.tenant(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req systemSubscriptionRequest
	if c.Request().Body != nil && c.Request().ContentLength != 0 {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return h.writeError(c, endpoint.NewValidationError("malformed request body: %v", err))
		}
	}
	props := &endpoint.SystemSubscriptionProperties{OnlyAdmins: req.OnlyAdmins, GroupID: req.GroupID}
	ep, err := h.Orch.GetOrCreateSystemSubscription(c.Request().Context(), caps, kind, props)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(ep))
}
