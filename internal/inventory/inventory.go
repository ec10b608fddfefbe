// Package inventory talks to the authorization inventory service, which
// must hold one ledger entry per integration so that relationship-based
// permission checks can resolve them.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/hookbridge/hookbridge/internal/metrics"
)

const defaultTimeout = 30 * time.Second

const (
	workspaceCacheTTL     = 5 * time.Minute
	workspaceCacheCleanup = 10 * time.Minute
)

// ErrIntegrationNotFound distinguishes a missing ledger entry from other
// remote failures.
var ErrIntegrationNotFound = errors.New("integration not in inventory")

// Client registers and deregisters integrations in the inventory ledger.
type Client interface {
	Register(ctx context.Context, orgID string, integrationID uuid.UUID) error
	Deregister(ctx context.Context, orgID string, integrationID uuid.UUID) error
}

// InventoryError wraps a failed inventory call.
type InventoryError struct {
	Call       string
	StatusCode int
	Err        error
}

func (e *InventoryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inventory %s: status %d: %v", e.Call, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inventory %s: %v", e.Call, e.Err)
}

func (e *InventoryError) Unwrap() error { return e.Err }

// HTTPClient is the REST implementation. The default workspace of each
// tenant is resolved once and cached; every ledger entry lives in that
// workspace.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	workspaces *gocache.Cache
}

func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("inventory base URL is required")
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTP:       &http.Client{Timeout: defaultTimeout},
		workspaces: gocache.New(workspaceCacheTTL, workspaceCacheCleanup),
	}, nil
}

func (c *HTTPClient) Register(ctx context.Context, orgID string, integrationID uuid.UUID) error {
	workspaceID, err := c.defaultWorkspaceID(ctx, orgID)
	if err != nil {
		c.observe("register", err)
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"org_id":         orgID,
		"workspace_id":   workspaceID,
		"integration_id": integrationID.String(),
	})
	if err != nil {
		return err
	}

	endpoint := c.BaseURL + "/api/inventory/v1/integrations"
	resp, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		c.observe("register", err)
		return &InventoryError{Call: "register", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := remoteError(resp)
		c.observe("register", err)
		return &InventoryError{Call: "register", StatusCode: resp.StatusCode, Err: err}
	}
	c.observe("register", nil)
	return nil
}

func (c *HTTPClient) Deregister(ctx context.Context, orgID string, integrationID uuid.UUID) error {
	workspaceID, err := c.defaultWorkspaceID(ctx, orgID)
	if err != nil {
		c.observe("deregister", err)
		return err
	}

	endpoint := fmt.Sprintf("%s/api/inventory/v1/integrations/%s?%s",
		c.BaseURL, integrationID, url.Values{
			"org_id":       {orgID},
			"workspace_id": {workspaceID},
		}.Encode())
	resp, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		c.observe("deregister", err)
		return &InventoryError{Call: "deregister", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		err := fmt.Errorf("%w: %s", ErrIntegrationNotFound, integrationID)
		c.observe("deregister", err)
		return &InventoryError{Call: "deregister", StatusCode: resp.StatusCode, Err: err}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		err := remoteError(resp)
		c.observe("deregister", err)
		return &InventoryError{Call: "deregister", StatusCode: resp.StatusCode, Err: err}
	}
	c.observe("deregister", nil)
	return nil
}

func (c *HTTPClient) defaultWorkspaceID(ctx context.Context, orgID string) (string, error) {
	if cached, ok := c.workspaces.Get(orgID); ok {
		return cached.(string), nil
	}

	endpoint := fmt.Sprintf("%s/api/inventory/v1/workspaces/default?org_id=%s", c.BaseURL, url.QueryEscape(orgID))
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &InventoryError{Call: "workspace", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &InventoryError{Call: "workspace", StatusCode: resp.StatusCode, Err: remoteError(resp)}
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &InventoryError{Call: "workspace", Err: err}
	}
	if payload.ID == "" {
		return "", &InventoryError{Call: "workspace", Err: errors.New("empty workspace ID")}
	}

	c.workspaces.Set(orgID, payload.ID, gocache.DefaultExpiration)
	return payload.ID, nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTP.Do(req)
}

func (c *HTTPClient) observe(call string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.InventoryCallsTotal.WithLabelValues(call, status).Inc()
}

// NoopClient stands in when no inventory service is configured. It keeps
// the lifecycle wiring uniform; tenants should not carry the inventory
// capability in that setup.
type NoopClient struct{}

func (NoopClient) Register(context.Context, string, uuid.UUID) error   { return nil }
func (NoopClient) Deregister(context.Context, string, uuid.UUID) error { return nil }

func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return errors.New(msg)
}
