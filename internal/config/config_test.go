package config

import "testing"

func TestLoadWithOptions_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: true}); err == nil {
		t.Fatal("expected missing DATABASE_URL error")
	}
	if _, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false}); err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hookbridge")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("VAULT_MOUNT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.VaultMount != "integrations" {
		t.Fatalf("VaultMount = %q, want %q", cfg.VaultMount, "integrations")
	}
}

func TestCapabilities_OrgAllowlists(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hookbridge")
	t.Setenv("INVENTORY_ENABLED_ORGS", "org-1, org-2")
	t.Setenv("RELATIONS_ENABLED_ORGS", "*")
	t.Setenv("IGNORE_VAULT_DELETE_ERRORS_ORGS", "")
	t.Setenv("EMAILS_ONLY_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	caps := cfg.Capabilities("org-1", "acct-1")
	if !caps.InventoryEnabled {
		t.Fatal("expected inventory enabled for org-1")
	}
	if !caps.RelationsEnabled {
		t.Fatal("expected relations enabled via wildcard")
	}
	if caps.IgnoreVaultErrorsOnDelete {
		t.Fatal("expected vault delete errors not ignored by default")
	}
	if !caps.EmailsOnlyMode {
		t.Fatal("expected emails-only mode on")
	}

	caps = cfg.Capabilities("org-3", "acct-3")
	if caps.InventoryEnabled {
		t.Fatal("expected inventory disabled for org-3")
	}
	if caps.OrgID != "org-3" || caps.AccountID != "acct-3" {
		t.Fatalf("tenant identity = %q/%q, want org-3/acct-3", caps.OrgID, caps.AccountID)
	}
}
