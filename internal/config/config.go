package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultMetricsAddr = ":9090"
	defaultVaultMount  = "integrations"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	MetricsAddr string

	VaultAddr      string
	VaultToken     string
	VaultNamespace string
	VaultMount     string

	InventoryBaseURL string
	InventoryToken   string

	EmailsOnlyMode bool

	inventoryOrgs         orgSet
	relationsOrgs         orgSet
	ignoreVaultDeleteOrgs orgSet
}

// TenantCapabilities is the immutable per-tenant feature view handed to the
// endpoint lifecycle. It is resolved once per request from the global
// configuration instead of reading flags ad hoc.
type TenantCapabilities struct {
	OrgID                     string
	AccountID                 string
	InventoryEnabled          bool
	RelationsEnabled          bool
	EmailsOnlyMode            bool
	IgnoreVaultErrorsOnDelete bool
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPAddr:         getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:      getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		VaultAddr:        os.Getenv("VAULT_ADDR"),
		VaultToken:       os.Getenv("VAULT_TOKEN"),
		VaultNamespace:   os.Getenv("VAULT_NAMESPACE"),
		VaultMount:       getenvDefault("VAULT_MOUNT", defaultVaultMount),
		InventoryBaseURL: strings.TrimRight(os.Getenv("INVENTORY_BASE_URL"), "/"),
		InventoryToken:   os.Getenv("INVENTORY_TOKEN"),
		EmailsOnlyMode:   getenvBoolDefault("EMAILS_ONLY_MODE", false),

		inventoryOrgs:         parseOrgSet(os.Getenv("INVENTORY_ENABLED_ORGS")),
		relationsOrgs:         parseOrgSet(os.Getenv("RELATIONS_ENABLED_ORGS")),
		ignoreVaultDeleteOrgs: parseOrgSet(os.Getenv("IGNORE_VAULT_DELETE_ERRORS_ORGS")),
	}

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// Capabilities resolves the feature flags that apply to one tenant.
func (c Config) Capabilities(orgID, accountID string) TenantCapabilities {
	return TenantCapabilities{
		OrgID:                     orgID,
		AccountID:                 accountID,
		InventoryEnabled:          c.inventoryOrgs.contains(orgID),
		RelationsEnabled:          c.relationsOrgs.contains(orgID),
		EmailsOnlyMode:            c.EmailsOnlyMode,
		IgnoreVaultErrorsOnDelete: c.ignoreVaultDeleteOrgs.contains(orgID),
	}
}

// orgSet is a tenant allowlist: empty means nobody, "*" means everybody.
type orgSet struct {
	all  bool
	orgs map[string]struct{}
}

func parseOrgSet(raw string) orgSet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return orgSet{}
	}
	if raw == "*" {
		return orgSet{all: true}
	}
	set := orgSet{orgs: make(map[string]struct{})}
	for _, org := range strings.Split(raw, ",") {
		org = strings.TrimSpace(org)
		if org != "" {
			set.orgs[org] = struct{}{}
		}
	}
	return set
}

func (s orgSet) contains(orgID string) bool {
	if s.all {
		return true
	}
	_, ok := s.orgs[strings.TrimSpace(orgID)]
	return ok
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
