package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	LedgerMemory   = "memory"
	LedgerFile     = "file"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

// Settings is everything a process needs besides the domain records.
type Settings struct {
	Env     string          `mapstructure:"env"`
	Log     LogSettings     `mapstructure:"log"`
	Ledger  LedgerSettings  `mapstructure:"ledger"`
	Solvers SolverPaths     `mapstructure:"solvers"`
	Metrics MetricsSettings `mapstructure:"metrics"`
	Engine  Configuration   `mapstructure:"engine"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerSettings struct {
	Backend  string           `mapstructure:"backend"`
	Path     string           `mapstructure:"path"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Postgres PostgresSettings `mapstructure:"postgres"`
}

type RedisSettings struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PostgresSettings struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslMode"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
}

// DSN renders the lib/pq connection string.
func (settings PostgresSettings) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		settings.Host,
		settings.Port,
		settings.User,
		settings.Password,
		settings.Name,
		settings.SSLMode,
	)
}

// SolverPaths locates external solver executables.
type SolverPaths struct {
	KissatPath  string `mapstructure:"kissatPath"`
	CadicalPath string `mapstructure:"cadicalPath"`
}

type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads settings from an optional file, a .env file and COURSETABLE_* variables, in increasing precedence.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coursetable")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("COURSETABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if err := settings.Engine.Validate(); err != nil {
		return nil, err
	}
	switch settings.Ledger.Backend {
	case LedgerMemory, LedgerFile, LedgerRedis, LedgerPostgres:
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", settings.Ledger.Backend)
	}

	return settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ledger.backend", LedgerFile)
	v.SetDefault("ledger.path", "usage_ledger.json")
	v.SetDefault("ledger.redis.addr", "localhost:6379")
	v.SetDefault("ledger.redis.password", "")
	v.SetDefault("ledger.redis.db", 0)
	v.SetDefault("ledger.redis.key", "coursetable:ledger")
	v.SetDefault("ledger.redis.timeout", 5*time.Second)
	v.SetDefault("ledger.postgres.host", "localhost")
	v.SetDefault("ledger.postgres.port", 5432)
	v.SetDefault("ledger.postgres.user", "postgres")
	v.SetDefault("ledger.postgres.password", "")
	v.SetDefault("ledger.postgres.name", "coursetable")
	v.SetDefault("ledger.postgres.sslMode", "disable")
	v.SetDefault("ledger.postgres.maxOpenConns", 4)
	v.SetDefault("ledger.postgres.maxIdleConns", 2)

	v.SetDefault("solvers.kissatPath", "kissat")
	v.SetDefault("solvers.cadicalPath", "cadical")
	v.SetDefault("metrics.enabled", false)

	engine := Default()
	v.SetDefault("engine.maxHoursPerDay", engine.MaxHoursPerDay)
	v.SetDefault("engine.maxLabsPerDay", engine.MaxLabsPerDay)
	v.SetDefault("engine.minGapMinutes", engine.MinGapMinutes)
	v.SetDefault("engine.workingDaysPerWeek", engine.WorkingDaysPerWeek)
	v.SetDefault("engine.earliestStartHour", engine.EarliestStartHour)
	v.SetDefault("engine.noClassesAfterHour", engine.NoClassesAfterHour)
	v.SetDefault("engine.maxDaySpanMinutes", engine.MaxDaySpanMinutes)
	v.SetDefault("engine.allowConsecutiveLabs", engine.AllowConsecutiveLabs)
	v.SetDefault("engine.allowSameSubjectTwicePerDay", engine.AllowSameSubjectTwicePerDay)
	v.SetDefault("engine.allowSubjectOnConsecutiveDays", engine.AllowSubjectOnConsecutiveDays)
	v.SetDefault("engine.enableCohort", engine.EnableCohort)
	v.SetDefault("engine.useUsageLedger", engine.UseUsageLedger)
	v.SetDefault("engine.sectionSeats", engine.SectionSeats)
	v.SetDefault("engine.roomStrategy", engine.RoomStrategy)
	v.SetDefault("engine.solver.backend", engine.Solver.Backend)
	v.SetDefault("engine.solver.maxTimeSeconds", engine.Solver.MaxTimeSeconds)
	v.SetDefault("engine.solver.numSearchWorkers", engine.Solver.NumSearchWorkers)
	v.SetDefault("engine.solver.logSearchProgress", engine.Solver.LogSearchProgress)
	v.SetDefault("engine.solver.useFixedSearch", engine.Solver.UseFixedSearch)
	v.SetDefault("engine.solver.seed", engine.Solver.Seed)
}
