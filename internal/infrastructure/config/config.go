package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/services/authorization"
)

// Config represents the application configuration
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Neo4j    Neo4jConfig
	Cache    CacheConfig
	Security SecurityConfig
}

// StoreConfig selects the relation store backend.
type StoreConfig struct {
	Backend string // "postgres" or "neo4j"
}

// CacheConfig represents directory cache configuration
type CacheConfig struct {
	Enabled    bool
	MaxKeys    int // Maximum number of cached entries before LRU eviction
	TTLMinutes int // Time-to-live for cache entries in minutes
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Pool sizing. Authorize resolves a permission map per call, so the
	// pool is sized for many short queries rather than long transactions.
	MaxOpenConns int
	MaxIdleConns int
}

// Neo4jConfig represents Neo4j configuration for the graph store backend.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// SecurityConfig holds the well-known principals and the predicate URIs of
// the five permission levels.
type SecurityConfig struct {
	AdminGroupName    string
	AdminIdentityName string
	AllUsersGroupName string
	GuestIdentityName string
	MembershipURI     string

	CreateAllowURI string
	CreateDenyURI  string
	ReadAllowURI   string
	ReadDenyURI    string
	UpdateAllowURI string
	UpdateDenyURI  string
	DeleteAllowURI string
	DeleteDenyURI  string
	OwnerAllowURI  string
	OwnerDenyURI   string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("STORE_BACKEND", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "zentity")
	viper.SetDefault("DB_NAME", "zentity_security_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)

	viper.SetDefault("NEO4J_URI", "neo4j://localhost:7687")
	viper.SetDefault("NEO4J_USER", "neo4j")
	viper.SetDefault("NEO4J_DATABASE", "neo4j")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_KEYS", 10000)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	// Well-known principals
	viper.SetDefault("ADMIN_GROUP_NAME", "Administrators")
	viper.SetDefault("ADMIN_IDENTITY_NAME", "Administrator")
	viper.SetDefault("ALL_USERS_GROUP_NAME", "AllUsers")
	viper.SetDefault("GUEST_IDENTITY_NAME", "Guest")
	viper.SetDefault("MEMBERSHIP_URI", "urn:zentity:predicate:identity-belongs-to-groups")

	// Permission predicate URIs
	viper.SetDefault("CREATE_ALLOW_URI", "urn:zentity:predicate:has-create-permission")
	viper.SetDefault("CREATE_DENY_URI", "urn:zentity:predicate:denied-create-permission")
	viper.SetDefault("READ_ALLOW_URI", "urn:zentity:predicate:has-read-permission")
	viper.SetDefault("READ_DENY_URI", "urn:zentity:predicate:denied-read-permission")
	viper.SetDefault("UPDATE_ALLOW_URI", "urn:zentity:predicate:has-update-permission")
	viper.SetDefault("UPDATE_DENY_URI", "urn:zentity:predicate:denied-update-permission")
	viper.SetDefault("DELETE_ALLOW_URI", "urn:zentity:predicate:has-delete-permission")
	viper.SetDefault("DELETE_DENY_URI", "urn:zentity:predicate:denied-delete-permission")
	viper.SetDefault("OWNER_ALLOW_URI", "urn:zentity:predicate:has-owner-permission")
	viper.SetDefault("OWNER_DENY_URI", "urn:zentity:predicate:denied-owner-permission")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	backend := viper.GetString("STORE_BACKEND")
	if backend != "postgres" && backend != "neo4j" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or neo4j, got %q", backend)
	}

	// DB_PASSWORD is required for the postgres backend
	dbPassword := viper.GetString("DB_PASSWORD")
	if backend == "postgres" && dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	neo4jPassword := viper.GetString("NEO4J_PASSWORD")
	if backend == "neo4j" && neo4jPassword == "" {
		return nil, fmt.Errorf("NEO4J_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Store: StoreConfig{
			Backend: backend,
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),

			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Neo4j: Neo4jConfig{
			URI:      viper.GetString("NEO4J_URI"),
			User:     viper.GetString("NEO4J_USER"),
			Password: neo4jPassword,
			Database: viper.GetString("NEO4J_DATABASE"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			MaxKeys:    viper.GetInt("CACHE_MAX_KEYS"),
			TTLMinutes: viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Security: SecurityConfig{
			AdminGroupName:    viper.GetString("ADMIN_GROUP_NAME"),
			AdminIdentityName: viper.GetString("ADMIN_IDENTITY_NAME"),
			AllUsersGroupName: viper.GetString("ALL_USERS_GROUP_NAME"),
			GuestIdentityName: viper.GetString("GUEST_IDENTITY_NAME"),
			MembershipURI:     viper.GetString("MEMBERSHIP_URI"),

			CreateAllowURI: viper.GetString("CREATE_ALLOW_URI"),
			CreateDenyURI:  viper.GetString("CREATE_DENY_URI"),
			ReadAllowURI:   viper.GetString("READ_ALLOW_URI"),
			ReadDenyURI:    viper.GetString("READ_DENY_URI"),
			UpdateAllowURI: viper.GetString("UPDATE_ALLOW_URI"),
			UpdateDenyURI:  viper.GetString("UPDATE_DENY_URI"),
			DeleteAllowURI: viper.GetString("DELETE_ALLOW_URI"),
			DeleteDenyURI:  viper.GetString("DELETE_DENY_URI"),
			OwnerAllowURI:  viper.GetString("OWNER_ALLOW_URI"),
			OwnerDenyURI:   viper.GetString("OWNER_DENY_URI"),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// Settings builds the engine directory settings from the configuration.
func (c *SecurityConfig) Settings() authorization.Settings {
	return authorization.Settings{
		AdministratorsGroup: c.AdminGroupName,
		AdministratorName:   c.AdminIdentityName,
		AllUsersGroup:       c.AllUsersGroupName,
		GuestName:           c.GuestIdentityName,
		MembershipURI:       c.MembershipURI,
	}
}

// Predicates builds the permission predicate table from the configured URIs.
func (c *SecurityConfig) Predicates() []*catalog.Predicate {
	return []*catalog.Predicate{
		{Name: catalog.PermissionCreate, Priority: 0, AllowURI: c.CreateAllowURI, DenyURI: c.CreateDenyURI},
		{Name: catalog.PermissionRead, Priority: 1, AllowURI: c.ReadAllowURI, DenyURI: c.ReadDenyURI},
		{Name: catalog.PermissionUpdate, Priority: 2, AllowURI: c.UpdateAllowURI, DenyURI: c.UpdateDenyURI},
		{Name: catalog.PermissionDelete, Priority: 3, AllowURI: c.DeleteAllowURI, DenyURI: c.DeleteDenyURI},
		{Name: catalog.PermissionOwner, Priority: 4, AllowURI: c.OwnerAllowURI, DenyURI: c.OwnerDenyURI},
	}
}
