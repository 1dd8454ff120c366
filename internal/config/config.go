package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DBConfig paramètres de connexion PostgreSQL
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ConnString construit la chaîne de connexion lib/pq
func (c DBConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Redacted chaîne de connexion sans le mot de passe, pour les logs
func (c DBConfig) Redacted() string {
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Name, c.SSLMode)
}

// Config configuration de l'application, lue depuis l'environnement
type Config struct {
	DB                  DBConfig
	HTTPAddr            string
	RematchWorkers      int
	BomLayoutFile       string
	SiteDecorationsFile string
	PromoTimezone       string
	LogLevel            string
	AutoMigrate         bool
}

// Load charge les fichiers .env indiqués (absents ignorés) puis l'environnement
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv ne remplace pas les variables déjà définies
		_ = godotenv.Load(f)
	}

	workers, err := strconv.Atoi(getEnv("REMATCH_WORKERS", "4"))
	if err != nil || workers <= 0 {
		return nil, fmt.Errorf("REMATCH_WORKERS must be a positive integer, got %q", os.Getenv("REMATCH_WORKERS"))
	}

	autoMigrate, err := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))
	if err != nil {
		return nil, fmt.Errorf("AUTO_MIGRATE: %w", err)
	}

	cfg := &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "orderops"),
			Password: getEnv("DB_PASSWORD", "orderops"),
			Name:     getEnv("DB_NAME", "orderops"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		RematchWorkers:      workers,
		BomLayoutFile:       os.Getenv("BOM_LAYOUT_FILE"),
		SiteDecorationsFile: os.Getenv("SITE_DECORATIONS_FILE"),
		PromoTimezone:       getEnv("PROMO_TIMEZONE", "Asia/Seoul"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		AutoMigrate:         autoMigrate,
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location fuseau des dates de promotion
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.PromoTimezone)
	if err != nil {
		return nil, fmt.Errorf("PROMO_TIMEZONE %q: %w", c.PromoTimezone, err)
	}
	return loc, nil
}

// SiteDecorations lit les motifs de décoration par site (YAML: site -> [regex]).
// Sans fichier configuré, aucun motif spécifique n'est appliqué.
func (c *Config) SiteDecorations() (map[string][]string, error) {
	if c.SiteDecorationsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.SiteDecorationsFile)
	if err != nil {
		return nil, fmt.Errorf("read site decorations: %w", err)
	}
	var patterns map[string][]string
	if err := yaml.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("parse site decorations %s: %w", c.SiteDecorationsFile, err)
	}
	return patterns, nil
}

// getEnv récupère une variable d'environnement avec fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
