package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"invusync/backend/internal/cache"
	"invusync/backend/internal/config"
	"invusync/backend/internal/httpapi"
	"invusync/backend/internal/invu"
	"invusync/backend/internal/metrics"
	"invusync/backend/internal/service"
	"invusync/backend/internal/store"
	"invusync/backend/internal/store/memory"
	pgstore "invusync/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if cfg.BranchesFile != "" {
		branches, err := config.LoadBranchesFile(cfg.BranchesFile)
		if err != nil {
			log.Fatalf("invalid branches file: %v", err)
		}
		cfg.Branches = branches
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.DBAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Fatalf("schema migration failed: %v", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.New()
		log.Println("repository: in-memory")
	}

	responses := cache.ResponseCache(cache.NoopResponseCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisResponseCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			responses = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	metrics.RegisterDefault()

	client := invu.NewClient(&http.Client{}, invu.Options{
		Timeout:    cfg.InvuTimeout,
		Attempts:   cfg.InvuAttempts,
		Backoff:    cfg.InvuBackoff,
		AuthScheme: cfg.InvuAuthScheme,
		RPS:        cfg.InvuRPS,
		Burst:      cfg.InvuBurst,
	})
	svc := service.New(repo, client, config.EnvTokens{}, responses, service.Options{
		Branches:    cfg.Branches,
		Orders:      invu.Endpoint{Name: "orders", BaseURL: cfg.InvuBaseURL, PathTemplate: cfg.InvuOrdersPath},
		Attendance:  invu.Endpoint{Name: "attendance", BaseURL: cfg.InvuBaseURL, PathTemplate: cfg.InvuAttendancePath},
		Concurrency: cfg.SyncConcurrency,
		DailyTiling: cfg.DailyTiling(),
		MaxDays:     cfg.MaxSyncDays,
		CacheTTL:    cfg.CacheTTL,
		RunTimeout:  syncBudget(cfg),
	})
	api := httpapi.New(svc, cfg.AllowedOrigin, cfg.SyncTriggersPerMinute)

	for _, b := range svc.Branches() {
		if !b.CredentialPresent {
			log.Printf("branch %s has no INVU credential; it will be reported as failed", b.Key)
		} else if b.CredentialExpired {
			log.Printf("branch %s credential expired at %s", b.Key, b.CredentialExpiresAt.Format(time.RFC3339))
		}
	}

	// The run stops fetching at syncBudget; the margin covers the write and
	// the response.
	writeTimeout := syncBudget(cfg) + 30*time.Second

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("INVU sync backend listening on %s (%d branches)", cfg.Address(), len(cfg.Branches))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// syncBudget is the worst case fetch phase of one run: every branch wave
// spends every attempt of every tile.
func syncBudget(cfg config.Config) time.Duration {
	perBranch := time.Duration(cfg.InvuAttempts) * (cfg.InvuTimeout + cfg.InvuBackoff) * time.Duration(maxTiles(cfg))
	return perBranch * time.Duration(waves(cfg))
}

// waves is how many rounds of SYNC_CONCURRENCY branches a full run takes.
func waves(cfg config.Config) int {
	concurrency := max(cfg.SyncConcurrency, 1)
	return max((len(cfg.Branches)+concurrency-1)/concurrency, 1)
}

// maxTiles is how many sequential upstream requests one branch may need.
func maxTiles(cfg config.Config) int {
	if cfg.DailyTiling() {
		return cfg.MaxSyncDays
	}
	return 1
}

func validateConfig(cfg config.Config) error {
	u, err := url.Parse(cfg.InvuBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("INVU_BASE_URL must be an absolute http(s) URL")
	}
	for name, path := range map[string]string{"INVU_ORDERS_PATH": cfg.InvuOrdersPath, "INVU_ATTENDANCE_PATH": cfg.InvuAttendancePath} {
		if !strings.Contains(path, "{F_INI}") || !strings.Contains(path, "{F_FIN}") {
			return fmt.Errorf("%s must contain {F_INI} and {F_FIN}", name)
		}
	}
	if len(cfg.Branches) == 0 {
		return fmt.Errorf("at least one branch must be configured (BRANCHES or BRANCHES_FILE)")
	}
	seen := make(map[string]bool, len(cfg.Branches))
	for _, b := range cfg.Branches {
		if seen[b.SucursalID] {
			return fmt.Errorf("sucursal_id %q is used by more than one branch", b.SucursalID)
		}
		seen[b.SucursalID] = true
	}
	return nil
}
