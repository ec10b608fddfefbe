// Package endpoint holds the integration data model: endpoint kinds, their
// polymorphic properties, credential fields and the linked event type
// hierarchy.
package endpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the endpoint's delivery mechanism.
type Kind string

const (
	// KindWebhook is a generic HTTP webhook target.
	KindWebhook Kind = "webhook"
	// KindCamel covers the chat/ITSM connector family; the concrete
	// connector is carried in SubKind (slack, servicenow, splunk, ...).
	KindCamel Kind = "camel"
	// KindEmailSubscription is the system-managed email drawer target.
	KindEmailSubscription Kind = "email_subscription"
	// KindDrawer is the system-managed in-app drawer target.
	KindDrawer Kind = "drawer"
)

// Status is the server-assigned lifecycle state of an endpoint. Creation is
// synchronous, so READY is set at creation time; DELETING is observed only
// transiently because rows are removed in the same transaction.
type Status string

const (
	StatusProvisioning Status = "PROVISIONING"
	StatusReady        Status = "READY"
	StatusDeleting     Status = "DELETING"
)

// ParseKind validates a wire-format kind string.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindWebhook, KindCamel, KindEmailSubscription, KindDrawer:
		return k, nil
	default:
		return "", fmt.Errorf("unknown endpoint kind %q", raw)
	}
}

// IsSystem reports whether the kind is managed exclusively through the
// dedicated system subscription path.
func (k Kind) IsSystem() bool {
	return k == KindEmailSubscription || k == KindDrawer
}

// IsRecipients reports whether the kind delivers to per-user recipients.
// Event types restricted to recipients integrations may only be linked to
// these kinds.
func (k Kind) IsRecipients() bool {
	return k.IsSystem()
}

// CompositeKind is a kind plus an optional connector sub kind, in the
// "kind:subkind" wire format used by list filters.
type CompositeKind struct {
	Kind    Kind
	SubKind string
}

func ParseCompositeKind(raw string) (CompositeKind, error) {
	kindPart, subKind, _ := strings.Cut(raw, ":")
	kind, err := ParseKind(kindPart)
	if err != nil {
		return CompositeKind{}, err
	}
	return CompositeKind{Kind: kind, SubKind: strings.TrimSpace(subKind)}, nil
}

func (c CompositeKind) String() string {
	if c.SubKind == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + ":" + c.SubKind
}

// Endpoint is a tenant-scoped notification delivery target. The relational
// store owns the durable copy; instances here are transient working state.
type Endpoint struct {
	ID          uuid.UUID
	OrgID       string
	AccountID   string
	Name        string
	Description string
	Kind        Kind
	SubKind     string
	Enabled     bool
	Status      Status
	Properties  Properties
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// EventTypes carries the linked event types when the load path asked
	// for them; nil otherwise.
	EventTypes []LinkedEventType
}

// SecretFields returns the endpoint's credential fields, or nil when the
// properties variant carries none.
func (e *Endpoint) SecretFields() *SecretFields {
	if e == nil || e.Properties == nil {
		return nil
	}
	return e.Properties.SecretFields()
}

// CompositeKind returns the endpoint's kind plus sub kind.
func (e *Endpoint) CompositeKind() CompositeKind {
	return CompositeKind{Kind: e.Kind, SubKind: e.SubKind}
}
