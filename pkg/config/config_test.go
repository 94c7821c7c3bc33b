package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Clear any existing env vars that might interfere
	envVars := []string{
		"APP_NAME", "APP_ENVIRONMENT", "APP_DEBUG",
		"SERVER_HOST", "SERVER_PORT", "STORAGE_DRIVER",
		"DATABASE_HOST", "DATABASE_PORT", "DATABASE_DBNAME",
		"REDIS_HOST", "REDIS_PORT",
		"JWT_SECRET", "JWT_TOKEN_TTL",
		"LEADS_FOLLOWUP_THRESHOLD", "LEADS_FOLLOWUP_SCAN_INTERVAL", "LEADS_MAX_FOLLOWUPS_PER_LEAD",
		"ANALYTICS_CACHE_TTL", "INSTAGRAM_STATE_TTL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "leadflow" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "leadflow")
	}

	if cfg.App.Environment != "development" {
		t.Errorf("App.Environment = %q, want %q", cfg.App.Environment, "development")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "postgres")
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}

	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want %d", cfg.Redis.Port, 6379)
	}

	if cfg.JWT.TokenTTL != 7*24*time.Hour {
		t.Errorf("JWT.TokenTTL = %v, want %v", cfg.JWT.TokenTTL, 7*24*time.Hour)
	}

	if cfg.Leads.FollowupThreshold != 24*time.Hour {
		t.Errorf("Leads.FollowupThreshold = %v, want %v", cfg.Leads.FollowupThreshold, 24*time.Hour)
	}

	if cfg.Leads.FollowupScanInterval != 15*time.Minute {
		t.Errorf("Leads.FollowupScanInterval = %v, want %v", cfg.Leads.FollowupScanInterval, 15*time.Minute)
	}

	if cfg.Leads.MaxFollowupsPerLead != 2 {
		t.Errorf("Leads.MaxFollowupsPerLead = %d, want %d", cfg.Leads.MaxFollowupsPerLead, 2)
	}

	if cfg.Analytics.CacheTTL != 30*time.Second {
		t.Errorf("Analytics.CacheTTL = %v, want %v", cfg.Analytics.CacheTTL, 30*time.Second)
	}

	if cfg.Instagram.StateTTL != 10*time.Minute {
		t.Errorf("Instagram.StateTTL = %v, want %v", cfg.Instagram.StateTTL, 10*time.Minute)
	}
}

func TestLoad_WithEnvOverride(t *testing.T) {
	os.Setenv("APP_NAME", "test-app")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("DATABASE_HOST", "db.example.com")
	os.Setenv("LEADS_FOLLOWUP_THRESHOLD", "48h")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	os.Setenv("ADMIN_EMAIL", "  Ops@Example.com ")
	defer func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("DATABASE_HOST")
		os.Unsetenv("LEADS_FOLLOWUP_THRESHOLD")
		os.Unsetenv("KAFKA_BROKERS")
		os.Unsetenv("ADMIN_EMAIL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "test-app")
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}

	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.example.com")
	}

	if cfg.Leads.FollowupThreshold != 48*time.Hour {
		t.Errorf("Leads.FollowupThreshold = %v, want %v", cfg.Leads.FollowupThreshold, 48*time.Hour)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}

	if cfg.Admin.Email != "ops@example.com" {
		t.Errorf("Admin.Email = %q, want %q", cfg.Admin.Email, "ops@example.com")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN() = %q, want %q", dsn, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	expected := "redis.example.com:6380"
	if addr := cfg.Addr(); addr != expected {
		t.Errorf("Addr() = %q, want %q", addr, expected)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				App:    AppConfig{Name: "test", Environment: "development"},
				Server: ServerConfig{Port: 8080},
				JWT:    JWTConfig{Secret: "secret"},
			},
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: Config{
				App:    AppConfig{Name: "", Environment: "development"},
				Server: ServerConfig{Port: 8080},
				JWT:    JWTConfig{Secret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "port too high",
			cfg: Config{
				App:    AppConfig{Name: "test", Environment: "development"},
				Server: ServerConfig{Port: 70000},
				JWT:    JWTConfig{Secret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "missing JWT secret",
			cfg: Config{
				App:    AppConfig{Name: "test", Environment: "development"},
				Server: ServerConfig{Port: 8080},
			},
			wantErr: true,
		},
		{
			name: "default JWT secret in production",
			cfg: Config{
				App:    AppConfig{Name: "test", Environment: "production"},
				Server: ServerConfig{Port: 8080},
				JWT:    JWTConfig{Secret: defaultJWTSecret},
			},
			wantErr: true,
		},
		{
			name: "postgres driver without database host",
			cfg: Config{
				App:      AppConfig{Name: "test", Environment: "development"},
				Server:   ServerConfig{Port: 8080},
				JWT:      JWTConfig{Secret: "secret"},
				Storage:  StorageConfig{Driver: "postgres"},
				Database: DatabaseConfig{DBName: "leadflow"},
			},
			wantErr: true,
		},
		{
			name: "memory driver ignores database",
			cfg: Config{
				App:     AppConfig{Name: "test", Environment: "development"},
				Server:  ServerConfig{Port: 8080},
				JWT:     JWTConfig{Secret: "secret"},
				Storage: StorageConfig{Driver: "memory"},
			},
			wantErr: false,
		},
		{
			name: "unknown driver",
			cfg: Config{
				App:     AppConfig{Name: "test", Environment: "development"},
				Server:  ServerConfig{Port: 8080},
				JWT:     JWTConfig{Secret: "secret"},
				Storage: StorageConfig{Driver: "sqlite"},
			},
			wantErr: true,
		},
		{
			name: "negative followup threshold",
			cfg: Config{
				App:    AppConfig{Name: "test", Environment: "development"},
				Server: ServerConfig{Port: 8080},
				JWT:    JWTConfig{Secret: "secret"},
				Leads:  LeadsConfig{FollowupThreshold: -time.Hour},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}

	cfg.App.Environment = "development"
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
}
