package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"invusync/backend/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ALLOWED_ORIGIN", "INVU_ATTEMPTS", "INVU_TIMEOUT_SECONDS", "SYNC_TILING", "MAX_SYNC_DAYS", "BRANCHES", "DB_AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.AllowedOrigin != "*" {
		t.Fatalf("expected allow-all origin, got %q", cfg.AllowedOrigin)
	}
	if cfg.InvuAttempts != 2 || cfg.InvuTimeout != 20*time.Second {
		t.Fatalf("unexpected retry defaults attempts=%d timeout=%s", cfg.InvuAttempts, cfg.InvuTimeout)
	}
	if cfg.DailyTiling() || cfg.MaxSyncDays != 62 {
		t.Fatalf("unexpected sync defaults tiling=%s max=%d", cfg.SyncTiling, cfg.MaxSyncDays)
	}
	if !cfg.DBAutoMigrate {
		t.Fatalf("expected auto migrate on by default")
	}
	if len(cfg.Branches) != 5 {
		t.Fatalf("expected 5 default branches, got %d", len(cfg.Branches))
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("INVU_ATTEMPTS", "zero")
	t.Setenv("SYNC_CONCURRENCY", "-3")
	t.Setenv("SYNC_TILING", "DAILY")

	cfg := Load()
	if cfg.InvuAttempts != 2 || cfg.SyncConcurrency != 4 {
		t.Fatalf("expected fallbacks, got attempts=%d concurrency=%d", cfg.InvuAttempts, cfg.SyncConcurrency)
	}
	if !cfg.DailyTiling() {
		t.Fatalf("expected daily tiling")
	}
}

func TestParseBranches(t *testing.T) {
	got := ParseBranches(" SF:12, museo ,,sf:99,costa-del-este")
	want := []domain.Branch{
		{Key: "sf", SucursalID: "12", TokenEnv: "INVU_TOKEN_SF"},
		{Key: "museo", SucursalID: "museo", TokenEnv: "INVU_TOKEN_MUSEO"},
		{Key: "costa-del-este", SucursalID: "costa-del-este", TokenEnv: "INVU_TOKEN_COSTA_DEL_ESTE"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d branches, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("branch %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestLoadBranchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branches.yaml")
	doc := "branches:\n  - key: sf\n    sucursal_id: \"1\"\n    token_env: SF_SECRET\n  - key: museo\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	branches, err := LoadBranchesFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(branches) != 2 {
		t.Fatalf("expected 2 branches, got %+v", branches)
	}
	if branches[0].TokenEnv != "SF_SECRET" || branches[0].SucursalID != "1" {
		t.Fatalf("unexpected first branch %+v", branches[0])
	}
	if branches[1].TokenEnv != "INVU_TOKEN_MUSEO" {
		t.Fatalf("expected default token env, got %+v", branches[1])
	}
}

func TestLoadBranchesFileRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branches.yaml")
	doc := "branches:\n  - key: sf\n  - key: SF\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBranchesFile(path); err == nil {
		t.Fatalf("expected duplicate keys to be rejected")
	}
}

func TestEnvTokensReadsAtUseTime(t *testing.T) {
	b := ParseBranches("sf")[0]
	t.Setenv("INVU_TOKEN_SF", "")
	if got := (EnvTokens{}).Token(b); got != "" {
		t.Fatalf("expected no token, got %q", got)
	}
	t.Setenv("INVU_TOKEN_SF", " tok ")
	if got := (EnvTokens{}).Token(b); got != "tok" {
		t.Fatalf("expected trimmed token, got %q", got)
	}
}
