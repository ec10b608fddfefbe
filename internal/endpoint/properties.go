package endpoint

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Properties is the kind-discriminated payload of an endpoint. Exactly one
// variant exists per kind; pattern matching happens at validation and
// secrets-diff sites instead of through open-ended embedding.
type Properties interface {
	// SecretFields exposes the variant's credential fields, nil when the
	// variant carries none.
	SecretFields() *SecretFields
}

// BasicAuth is a username and password pair stored as a single vault entry.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SecretFields are the three possible credential fields across all
// properties variants. Values are transient and never persisted; only the
// vault reference IDs reach the relational store.
type SecretFields struct {
	BasicAuth      *BasicAuth `json:"-"`
	BasicAuthRef   *int64     `json:"basic_auth_ref,omitempty"`
	SecretToken    *string    `json:"-"`
	SecretTokenRef *int64     `json:"secret_token_ref,omitempty"`
	BearerToken    *string    `json:"-"`
	BearerTokenRef *int64     `json:"bearer_token_ref,omitempty"`
}

// WebhookProperties configures a generic webhook endpoint.
type WebhookProperties struct {
	URL                    string       `json:"url"`
	Method                 string       `json:"method,omitempty"`
	DisableSSLVerification bool         `json:"disable_ssl_verification,omitempty"`
	Secrets                SecretFields `json:"secrets"`
}

func (p *WebhookProperties) SecretFields() *SecretFields { return &p.Secrets }

// CamelProperties configures a chat/ITSM connector endpoint. The concrete
// connector is the endpoint's SubKind.
type CamelProperties struct {
	URL                    string            `json:"url"`
	DisableSSLVerification bool              `json:"disable_ssl_verification,omitempty"`
	Extras                 map[string]string `json:"extras,omitempty"`
	Secrets                SecretFields      `json:"secrets"`
}

func (p *CamelProperties) SecretFields() *SecretFields { return &p.Secrets }

// SystemSubscriptionProperties configures the email and drawer subscription
// endpoints. They carry no credentials.
type SystemSubscriptionProperties struct {
	OnlyAdmins bool       `json:"only_admins"`
	GroupID    *uuid.UUID `json:"group_id,omitempty"`
}

func (p *SystemSubscriptionProperties) SecretFields() *SecretFields { return nil }

// MarshalProperties serializes a properties variant for storage. Secret
// values are excluded by the variant's JSON tags; only reference IDs are
// written.
func MarshalProperties(props Properties) ([]byte, error) {
	if props == nil {
		return nil, fmt.Errorf("properties are required")
	}
	return json.Marshal(props)
}

// UnmarshalProperties deserializes the stored payload into the variant
// matching the endpoint kind.
func UnmarshalProperties(kind Kind, data []byte) (Properties, error) {
	var props Properties
	switch kind {
	case KindWebhook:
		props = &WebhookProperties{}
	case KindCamel:
		props = &CamelProperties{}
	case KindEmailSubscription, KindDrawer:
		props = &SystemSubscriptionProperties{}
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", kind)
	}
	if len(data) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(data, props); err != nil {
		return nil, fmt.Errorf("decode %s properties: %w", kind, err)
	}
	return props, nil
}
