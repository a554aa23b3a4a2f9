package main

import (
	"testing"
	"time"

	"invusync/backend/internal/config"
)

func validTestConfig() config.Config {
	return config.Config{
		InvuBaseURL:        "https://api.invu.test/index.php?r=",
		InvuOrdersPath:     "citas/ordenes/fini/{F_INI}/ffin/{F_FIN}",
		InvuAttendancePath: "empleados/movimientos/fini/{F_INI}/ffin/{F_FIN}",
		Branches:           config.ParseBranches("sf:1,museo:2"),
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := validateConfig(validTestConfig()); err != nil {
		t.Fatalf("expected config to pass, got %v", err)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"relative base url":   func(c *config.Config) { c.InvuBaseURL = "api.invu.test" },
		"missing placeholder": func(c *config.Config) { c.InvuOrdersPath = "citas/ordenes/{F_INI}" },
		"no branches":         func(c *config.Config) { c.Branches = nil },
		"shared sucursal id":  func(c *config.Config) { c.Branches = config.ParseBranches("sf:1,museo:1") },
		"attendance no ffin":  func(c *config.Config) { c.InvuAttendancePath = "x/{F_INI}" },
	} {
		cfg := validTestConfig()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestMaxTiles(t *testing.T) {
	cfg := config.Config{SyncTiling: config.TilingDaily, MaxSyncDays: 31, InvuTimeout: time.Second}
	if got := maxTiles(cfg); got != 31 {
		t.Fatalf("expected 31 daily tiles, got %d", got)
	}
	cfg.SyncTiling = config.TilingRange
	if got := maxTiles(cfg); got != 1 {
		t.Fatalf("expected a single tile, got %d", got)
	}
}

func TestSyncBudgetCoversEveryWave(t *testing.T) {
	cfg := config.Config{
		InvuAttempts:    2,
		InvuTimeout:     20 * time.Second,
		InvuBackoff:     500 * time.Millisecond,
		SyncConcurrency: 4,
		SyncTiling:      config.TilingRange,
		Branches:        config.ParseBranches(config.DefaultBranches),
	}
	if got := waves(cfg); got != 2 {
		t.Fatalf("expected 2 waves for 5 branches at concurrency 4, got %d", got)
	}
	if got := syncBudget(cfg); got != 82*time.Second {
		t.Fatalf("expected 82s budget, got %s", got)
	}

	cfg.SyncConcurrency = 5
	if got := syncBudget(cfg); got != 41*time.Second {
		t.Fatalf("expected one wave of 41s, got %s", got)
	}
	cfg.SyncConcurrency = 0
	if got := waves(cfg); got != 5 {
		t.Fatalf("expected one branch per wave when concurrency is unset, got %d", got)
	}
}
