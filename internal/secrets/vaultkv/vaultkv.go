// Package vaultkv implements the secrets vault on HashiCorp Vault's KV v2
// engine. Each credential lives under a tenant-scoped path keyed by an
// opaque numeric reference; references never change across updates.
package vaultkv

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/hookbridge/hookbridge/internal/secrets"
)

type Options struct {
	Address   string
	Token     string
	Namespace string
	Mount     string
}

type Client struct {
	kv    *vaultapi.KVv2
	mount string
}

func New(opts Options) (*Client, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("vault token is required")
	}
	mount := strings.Trim(strings.TrimSpace(opts.Mount), "/")
	if mount == "" {
		return nil, errors.New("vault mount is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	client.SetToken(token)
	if namespace := strings.TrimSpace(opts.Namespace); namespace != "" {
		client.SetNamespace(namespace)
	}

	return &Client{kv: client.KVv2(mount), mount: mount}, nil
}

func (c *Client) Create(ctx context.Context, orgID string, secret secrets.Secret) (int64, error) {
	ref, err := newReference()
	if err != nil {
		return 0, err
	}
	if _, err := c.kv.Put(ctx, secretPath(orgID, ref), payload(secret)); err != nil {
		return 0, fmt.Errorf("create secret: %w", err)
	}
	return ref, nil
}

func (c *Client) Update(ctx context.Context, orgID string, ref int64, secret secrets.Secret) error {
	if _, err := c.kv.Put(ctx, secretPath(orgID, ref), payload(secret)); err != nil {
		return fmt.Errorf("update secret %d: %w", ref, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, orgID string, ref int64) error {
	if err := c.kv.DeleteMetadata(ctx, secretPath(orgID, ref)); err != nil {
		return fmt.Errorf("delete secret %d: %w", ref, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, orgID string, ref int64) (secrets.Secret, error) {
	kvSecret, err := c.kv.Get(ctx, secretPath(orgID, ref))
	if err != nil {
		return secrets.Secret{}, fmt.Errorf("get secret %d: %w", ref, err)
	}
	return fromPayload(kvSecret.Data), nil
}

func secretPath(orgID string, ref int64) string {
	return fmt.Sprintf("%s/%d", strings.TrimSpace(orgID), ref)
}

func payload(secret secrets.Secret) map[string]any {
	return map[string]any{
		"type":     secret.Type,
		"username": secret.Username,
		"password": secret.Password,
	}
}

func fromPayload(data map[string]any) secrets.Secret {
	out := secrets.Secret{}
	if v, ok := data["type"].(string); ok {
		out.Type = v
	}
	if v, ok := data["username"].(string); ok {
		out.Username = v
	}
	if v, ok := data["password"].(string); ok {
		out.Password = v
	}
	return out
}

// newReference allocates a positive random 63-bit reference. Collisions
// within one tenant are vanishingly unlikely at the scale of integrations
// per tenant.
func newReference() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("allocate secret reference: %w", err)
	}
	ref := int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63))
	if ref == 0 {
		ref = 1
	}
	return ref, nil
}
