package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/service/auth"
	"github.com/nkiryanov/bizmarket/internal/service/auth/tokenmanager"
)

// Where reset tokens are kept
const (
	ResetStorePostgres = "postgres"
	ResetStoreRedis    = "redis"
	ResetStoreMemory   = "memory"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultMetricsAddr  = "localhost:9090"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProd
	defaultIssuer       = "bizmarket"
	defaultAudience     = "bizmarket-web"
	defaultResetStore   = ResetStorePostgres
	defaultResetURL     = "http://localhost:3000/reset-password"

	// Minimal secret length outside of dev environment
	minSecretLength = 32
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the service will be run
	ListenAddr string

	// Address of metrics and health server, empty disables it
	MetricsAddr string

	// Database to connect to
	DatabaseDSN string

	// Independent secrets to sign access and refresh tokens
	// There is no default: service refuses to start without them
	AccessSecret  string
	RefreshSecret string

	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	BcryptCost int

	// Reset token storage: postgres, redis or memory
	ResetStore string
	RedisURL   string

	// Page of the frontend the reset link points to
	ResetURL string

	// Postmark credentials, reset links are only logged if not set
	PostmarkServerToken  string
	PostmarkAccountToken string
	SenderEmail          string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		ListenAddr:  defaultListenAddr,
		MetricsAddr: defaultMetricsAddr,
		Issuer:      defaultIssuer,
		Audience:    defaultAudience,
		AccessTTL:   tokenmanager.DefaultAccessTokenTTL,
		RefreshTTL:  tokenmanager.DefaultRefreshTokenTTL,
		BcryptCost:  auth.DefaultBcryptCost,
		ResetStore:  defaultResetStore,
		ResetURL:    defaultResetURL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"METRICS_ADDRESS":        setString(&c.MetricsAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"ACCESS_SECRET_KEY":      setString(&c.AccessSecret),
		"REFRESH_SECRET_KEY":     setString(&c.RefreshSecret),
		"TOKEN_ISSUER":           setString(&c.Issuer),
		"TOKEN_AUDIENCE":         setString(&c.Audience),
		"ACCESS_TOKEN_TTL":       setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":      setDuration(&c.RefreshTTL),
		"BCRYPT_COST":            setInt(&c.BcryptCost),
		"RESET_STORE":            setString(&c.ResetStore),
		"REDIS_URL":              setString(&c.RedisURL),
		"RESET_URL":              setString(&c.ResetURL),
		"POSTMARK_SERVER_TOKEN":  setString(&c.PostmarkServerToken),
		"POSTMARK_ACCOUNT_TOKEN": setString(&c.PostmarkAccountToken),
		"SENDER_EMAIL":           setString(&c.SenderEmail),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("bizmarket", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.MetricsAddr, "metrics-address", "m", c.MetricsAddr, "Metrics and health listen address, empty to disable")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Secret key to sign access tokens")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Secret key to sign refresh tokens")
	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "Token issuer")
	fs.StringVar(&c.Audience, "audience", c.Audience, "Token audience")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", c.BcryptCost, "Bcrypt cost of password hashes")
	fs.StringVar(&c.ResetStore, "reset-store", c.ResetStore, "Reset token store (postgres, redis, memory)")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis connection url for redis reset token store")
	fs.StringVar(&c.ResetURL, "reset-url", c.ResetURL, "Frontend page the reset link points to")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate fails closed: missing or weak secrets stop the service
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != logger.EnvDev && c.Environment != logger.EnvProd {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database connection string is required"))
	}

	switch {
	case c.AccessSecret == "" || c.RefreshSecret == "":
		errs = append(errs, errors.New("access and refresh secret keys are required"))
	case c.AccessSecret == c.RefreshSecret:
		errs = append(errs, errors.New("access and refresh secret keys must differ"))
	case c.Environment != logger.EnvDev && (len(c.AccessSecret) < minSecretLength || len(c.RefreshSecret) < minSecretLength):
		errs = append(errs, fmt.Errorf("secret keys must be at least %d characters long", minSecretLength))
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch c.ResetStore {
	case ResetStorePostgres, ResetStoreMemory:
	case ResetStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis url is required for redis reset store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reset store %q", c.ResetStore))
	}

	return errors.Join(errs...)
}
