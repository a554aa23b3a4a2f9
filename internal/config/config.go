package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"invusync/backend/internal/domain"
)

const (
	TilingRange = "range"
	TilingDaily = "daily"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	DBAutoMigrate bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	InvuBaseURL        string
	InvuOrdersPath     string
	InvuAttendancePath string
	InvuAuthScheme     string
	InvuTimeout        time.Duration
	InvuAttempts       int
	InvuBackoff        time.Duration
	InvuRPS            float64
	InvuBurst          int

	SyncConcurrency       int
	SyncTiling            string
	MaxSyncDays           int
	SyncTriggersPerMinute int

	Branches     []domain.Branch
	BranchesFile string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rps, err := strconv.ParseFloat(getEnv("INVU_RPS", "0"), 64)
	if err != nil || rps < 0 {
		rps = 0
	}

	tiling := strings.ToLower(strings.TrimSpace(getEnv("SYNC_TILING", TilingRange)))
	if tiling != TilingDaily {
		tiling = TilingRange
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBAutoMigrate: !strings.EqualFold(strings.TrimSpace(os.Getenv("DB_AUTO_MIGRATE")), "false"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		CacheTTL:      time.Duration(getInt("CACHE_TTL_SECONDS", 60, 1)) * time.Second,

		InvuBaseURL:        strings.TrimSpace(getEnv("INVU_BASE_URL", "https://api6.invupos.com/invuApiPos/index.php?r=")),
		InvuOrdersPath:     getEnv("INVU_ORDERS_PATH", "citas/ordenesAllAdv/fini/{F_INI}/ffin/{F_FIN}/tipo/all"),
		InvuAttendancePath: getEnv("INVU_ATTENDANCE_PATH", "empleados/movimientoEmpleados/fini/{F_INI}/ffin/{F_FIN}"),
		InvuAuthScheme:     os.Getenv("INVU_AUTH_SCHEME"),
		InvuTimeout:        time.Duration(getInt("INVU_TIMEOUT_SECONDS", 20, 1)) * time.Second,
		InvuAttempts:       getInt("INVU_ATTEMPTS", 2, 1),
		InvuBackoff:        time.Duration(getInt("INVU_BACKOFF_MS", 500, 0)) * time.Millisecond,
		InvuRPS:            rps,
		InvuBurst:          getInt("INVU_BURST", 4, 1),

		SyncConcurrency:       getInt("SYNC_CONCURRENCY", 4, 1),
		SyncTiling:            tiling,
		MaxSyncDays:           getInt("MAX_SYNC_DAYS", 62, 1),
		SyncTriggersPerMinute: getInt("SYNC_TRIGGERS_PER_MINUTE", 12, 1),

		Branches:     ParseBranches(getEnv("BRANCHES", DefaultBranches)),
		BranchesFile: strings.TrimSpace(os.Getenv("BRANCHES_FILE")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) DailyTiling() bool {
	return c.SyncTiling == TilingDaily
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is unset, malformed or below floor.
func getInt(key string, fallback int, floor int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getEnv(key, strconv.Itoa(fallback))))
	if err != nil || n < floor {
		return fallback
	}
	return n
}
