// Package config loads and validates the inspector's environment configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyMongoURI           = "MONGO_URI"
	KeyMongoDB            = "MONGO_DB"
	KeyMongoHostname      = "MONGODB_HOSTNAME"
	KeyMongoPort          = "MONGODB_PORT"
	KeyAssociationsPrefix = "ASSOCIATIONS_PREFIX"
	KeyAppEnv             = "APP_ENV"
	KeyLogLevel           = "LOG_LEVEL"
	KeyHTTPPort           = "HTTP_PORT"

	// Override property names handed to the inspector.
	PropertyHost = "mongodb.host"
	PropertyPort = "mongodb.port"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultMongoURI           = "mongodb://localhost:27017"
	DefaultAssociationsPrefix = "associations_"
	DefaultAppEnv             = EnvProduction
	DefaultLogLevel           = "info"
	DefaultHTTPPort           = 8080

	// Test launchers pass unset variables through as this literal.
	unsetLiteral = "null"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the inspector must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
}

// Contract enumerates the authoritative configuration keys.
// .env loading is only permitted when APP_ENV=development.
var Contract = []VarSpec{
	{
		Key:         KeyMongoURI,
		Example:     DefaultMongoURI,
		Default:     DefaultMongoURI,
		Description: "Base MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     "ogm_test",
		Required:    true,
		Description: "MongoDB database to inspect.",
	},
	{
		Key:         KeyMongoHostname,
		Example:     "mongo.internal",
		Description: "Host override applied to MONGO_URI; empty or \"null\" means unset.",
	},
	{
		Key:         KeyMongoPort,
		Example:     "27017",
		Description: "Port override applied to MONGO_URI; empty or \"null\" means unset.",
	},
	{
		Key:         KeyAssociationsPrefix,
		Example:     DefaultAssociationsPrefix,
		Default:     DefaultAssociationsPrefix,
		Description: "Name prefix of association collections.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/stats port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	MongoURI           string
	MongoDB            string
	AssociationsPrefix string
	AppEnv             string
	LogLevel           string
	HTTPPort           int

	// Overrides holds the host/port overrides captured from the environment,
	// keyed by PropertyHost and PropertyPort. Only set keys are present.
	Overrides map[string]string
}

// Load resolves configuration from the environment (with optional dotenv in
// development). Call it once at process start and pass the result down.
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		MongoURI:           firstNonEmpty(os.Getenv(KeyMongoURI), DefaultMongoURI),
		MongoDB:            strings.TrimSpace(os.Getenv(KeyMongoDB)),
		AssociationsPrefix: firstNonEmpty(os.Getenv(KeyAssociationsPrefix), DefaultAssociationsPrefix),
		LogLevel:           firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		HTTPPort:           DefaultHTTPPort,
		Overrides:          ParseOverrides(os.Getenv),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if cfg.MongoDB == "" {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", KeyMongoDB)
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	if port, ok := cfg.Overrides[PropertyPort]; ok {
		if _, parseErr := strconv.Atoi(port); parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMongoPort, parseErr)
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// ParseOverrides reads the host and port override variables through getenv.
// Values are trimmed first; empty or the literal "null" then counts as unset.
func ParseOverrides(getenv func(string) string) map[string]string {
	overrides := make(map[string]string, 2)
	if getenv == nil {
		return overrides
	}

	if host := strings.TrimSpace(getenv(KeyMongoHostname)); isSet(host) {
		overrides[PropertyHost] = host
	}
	if port := strings.TrimSpace(getenv(KeyMongoPort)); isSet(port) {
		overrides[PropertyPort] = port
	}

	return overrides
}

// ConnectionURI returns MongoURI with any host/port overrides applied.
func (c Config) ConnectionURI() (string, error) {
	host, hasHost := c.Overrides[PropertyHost]
	port, hasPort := c.Overrides[PropertyPort]
	if !hasHost && !hasPort {
		return c.MongoURI, nil
	}

	u, err := url.Parse(c.MongoURI)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", KeyMongoURI, err)
	}

	if u.Scheme == "mongodb+srv" && hasPort {
		return "", fmt.Errorf("%s cannot be combined with a mongodb+srv %s", KeyMongoPort, KeyMongoURI)
	}

	if !hasHost {
		host = u.Hostname()
	}
	if !hasPort {
		port = u.Port()
	}

	if port == "" {
		u.Host = host
	} else {
		u.Host = net.JoinHostPort(host, port)
	}

	return u.String(), nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the configuration with credentials masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"associations_prefix: " + cfg.AssociationsPrefix,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
	}
	if host, ok := cfg.Overrides[PropertyHost]; ok {
		lines = append(lines, "override_host: "+host)
	}
	if port, ok := cfg.Overrides[PropertyPort]; ok {
		lines = append(lines, "override_port: "+port)
	}

	return strings.Join(lines, "\n")
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	u.User = nil
	return u.String()
}

func validateMongoURI(raw string) error {
	if !strings.HasPrefix(raw, "mongodb://") && !strings.HasPrefix(raw, "mongodb+srv://") {
		return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}
	return nil
}

func isSet(value string) bool {
	return value != "" && value != unsetLiteral
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
