package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "poorlock"

// Config is the resolved command line and environment configuration.
type Config struct {
	Backend     string
	Schema      string
	KeyPrefix   string
	PollDelay   time.Duration
	BackoffMult float64
	BackoffMax  time.Duration
	LogLevel    string
	MetricsAddr string

	RedisURL string

	MySQLDSN         string
	MySQLTable       string
	MySQLCreateTable bool

	MemcacheServers []string

	DynamoTable    string
	DynamoEndpoint string
	DynamoRegion   string
}

func setupFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("backend", "redis", "Lock store: memory, redis, mysql, memcache or dynamodb")
	f.String("schema", "default", "Record field names: default (id/status/locked_at) or legacy (hash_key/locked/locked_at)")
	f.String("key-prefix", "poorlock:", "Prefix for lock keys (redis, memcache)")
	f.Duration("poll-delay", 500*time.Millisecond, "Delay between acquisition attempts while waiting")
	f.Float64("backoff-multiplier", 1, "Grow the poll delay by this factor after each failed attempt")
	f.Duration("backoff-max", 0, "Upper bound for the poll delay when backing off (0 for none)")
	f.String("log-level", "warn", "Log level: debug, info, warn, error")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")

	f.String("redis-url", "redis://localhost:6379/0", "Redis URL")

	f.String("mysql-dsn", "root:pass@tcp(localhost:3306)/test", "MySQL DSN")
	f.String("mysql-table", "poor_locks", "MySQL lock table")
	f.Bool("mysql-create-table", false, "Create the MySQL lock table if it does not exist")

	f.StringSlice("memcache-servers", []string{"127.0.0.1:11211"}, "Memcache servers")

	f.String("dynamo-table", "poor-locker-lock-table", "DynamoDB lock table")
	f.String("dynamo-endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	f.String("dynamo-region", "", "AWS region (defaults to the SDK's resolution)")
}

// initEnv loads .env files and makes every flag settable as POORLOCK_<FLAG>.
func initEnv(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) (Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}

	c := Config{
		Backend:     strings.ToLower(v.GetString("backend")),
		Schema:      strings.ToLower(v.GetString("schema")),
		KeyPrefix:   v.GetString("key-prefix"),
		PollDelay:   v.GetDuration("poll-delay"),
		BackoffMult: v.GetFloat64("backoff-multiplier"),
		BackoffMax:  v.GetDuration("backoff-max"),
		LogLevel:    v.GetString("log-level"),
		MetricsAddr: v.GetString("metrics-addr"),

		RedisURL: v.GetString("redis-url"),

		MySQLDSN:         v.GetString("mysql-dsn"),
		MySQLTable:       v.GetString("mysql-table"),
		MySQLCreateTable: v.GetBool("mysql-create-table"),

		MemcacheServers: v.GetStringSlice("memcache-servers"),

		DynamoTable:    v.GetString("dynamo-table"),
		DynamoEndpoint: v.GetString("dynamo-endpoint"),
		DynamoRegion:   v.GetString("dynamo-region"),
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Backend {
	case "memory", "redis", "mysql", "memcache", "dynamodb":
	default:
		return fmt.Errorf("invalid backend %q", c.Backend)
	}
	switch c.Schema {
	case "default", "legacy":
	default:
		return fmt.Errorf("invalid schema %q", c.Schema)
	}
	if c.PollDelay <= 0 {
		return fmt.Errorf("poll-delay must be positive, got %s", c.PollDelay)
	}
	return nil
}
