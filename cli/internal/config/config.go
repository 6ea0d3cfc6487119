package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// Config holds the application configuration
type Config struct {
	ProjectPath  string
	DatabaseURL  string
	Driver       string
	Isolation    string
	Role         string
	Debug        bool
	MaxOpenConns int
}

// LoadConfig loads configuration from the config file, .env files and the
// CONTENTQL_* environment
func LoadConfig() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName(".contentql")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "contentql"))
	v.SetFs(AppFs)

	v.SetEnvPrefix("CONTENTQL")
	v.AutomaticEnv()

	v.SetDefault("project_path", "contentql.yaml")
	v.SetDefault("driver", "postgres")
	v.SetDefault("isolation", "read-committed")
	v.SetDefault("role", "")
	v.SetDefault("debug", false)
	v.SetDefault("max_open_conns", 10)

	// A missing config file is fine
	_ = v.ReadInConfig()

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	// .env.local wins over .env
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	cfg := &Config{
		ProjectPath:  v.GetString("project_path"),
		DatabaseURL:  v.GetString("database_url"),
		Driver:       v.GetString("driver"),
		Isolation:    v.GetString("isolation"),
		Role:         v.GetString("role"),
		Debug:        v.GetBool("debug"),
		MaxOpenConns: v.GetInt("max_open_conns"),
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	return cfg, nil
}
