package config

import (
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port string

	DataDir      string
	StoreBackend string
	DatabaseURL  string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	Environment string
	LogLevel    string
}

// HTTPAddr is the listen address built from Host and Port.
func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Host:                 getenv("HOST", "0.0.0.0"),
		Port:                 getenv("PORT", "8080"),
		DataDir:              getenv("DATA_DIR", "./data"),
		StoreBackend:         strings.ToLower(getenv("STORE_BACKEND", "json")),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "true") == "true",
		Environment:          getenv("APP_ENV", "development"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
	}

	origins := strings.Split(getenv("ALLOWED_ORIGINS", "*"), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
