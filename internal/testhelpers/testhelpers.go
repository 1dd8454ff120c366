package testhelpers

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"orderops/database"
	bominfra "orderops/internal/bom/infrastructure"
	cataloginfra "orderops/internal/catalog/infrastructure"
	"orderops/internal/config"
	exportinfra "orderops/internal/export/infrastructure"
	matchinginfra "orderops/internal/matching/infrastructure"
	ordersinfra "orderops/internal/orders/infrastructure"
	promoinfra "orderops/internal/promotion/infrastructure"
)

// TestContext contient toutes les dépendances pour les tests d'intégration
// Note: Ne contient PAS les services pour éviter les import cycles
// Les tests doivent créer leurs propres services en utilisant ce contexte
type TestContext struct {
	DB *sql.DB

	// Repositories
	CatalogRepo *cataloginfra.CatalogQueryRepository
	RuleRepo    *matchinginfra.MappingRuleRepository
	LineRepo    *ordersinfra.OrderLineRepository
	BomRepo     *bominfra.BomRepository
	PromoRepo   *promoinfra.PromoRepository
	ExportRepo  *exportinfra.ExportQueryRepository

	Location *time.Location
}

// dbConfig lit la configuration de test (.env à la racine du module)
func dbConfig(tb testing.TB) config.DBConfig {
	tb.Helper()

	for _, p := range []string{"../../.env", "../../../.env"} {
		_ = godotenv.Load(p)
	}
	return config.DBConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "orderops"),
		Password: getEnv("DB_PASSWORD", "orderops"),
		Name:     getEnv("DB_NAME", "orderops_test"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// SetupTestDB initialise une connexion à la base de données de test et applique le schéma
func SetupTestDB(tb testing.TB) *sql.DB {
	tb.Helper()

	cfg := dbConfig(tb)
	db, err := database.Open(context.Background(), cfg.ConnString())
	if err != nil {
		tb.Fatalf("Failed to open database: %v\nConnection string: %s", err, cfg.Redacted())
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		tb.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

// SetupTestContext initialise un contexte de test avec DB vide et repositories
func SetupTestContext(tb testing.TB) *TestContext {
	tb.Helper()

	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}

	ctx := &TestContext{Location: loc}

	// 1. Initialiser la connexion DB
	ctx.DB = SetupTestDB(tb)
	ctx.Truncate(tb)

	// 2. Initialiser les repositories
	ctx.CatalogRepo = cataloginfra.NewCatalogQueryRepository(ctx.DB)
	ctx.RuleRepo = matchinginfra.NewMappingRuleRepository(ctx.DB)
	ctx.LineRepo = ordersinfra.NewOrderLineRepository(ctx.DB)
	ctx.BomRepo = bominfra.NewBomRepository(ctx.DB)
	ctx.PromoRepo = promoinfra.NewPromoRepository(ctx.DB, loc)
	ctx.ExportRepo = exportinfra.NewExportQueryRepository(ctx.DB)

	return ctx
}

// Truncate vide toutes les tables du moteur
func (ctx *TestContext) Truncate(tb testing.TB) {
	tb.Helper()

	_, err := ctx.DB.Exec(`TRUNCATE cm_order_gifts, cm_promo_rules, cm_kit_bom_items,
		cm_raw_mapping_rules, cm_raw_order_lines, cm_erp_products, cm_kits RESTART IDENTITY CASCADE`)
	if err != nil {
		tb.Fatalf("Failed to truncate tables: %v", err)
	}
}

// SeedKits insère des kits dans le catalogue
func (ctx *TestContext) SeedKits(tb testing.TB, ids ...string) {
	tb.Helper()

	for _, id := range ids {
		if _, err := ctx.DB.Exec(`INSERT INTO cm_kits (kit_id, kit_name) VALUES ($1, $1) ON CONFLICT DO NOTHING`, id); err != nil {
			tb.Fatalf("Failed to seed kit %s: %v", id, err)
		}
	}
}

// Cleanup libère les ressources du contexte de test
func (ctx *TestContext) Cleanup() {
	if ctx.DB != nil {
		ctx.DB.Close()
	}
}

// getEnv récupère une variable d'environnement avec fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// SkipIfNoDatabase skip le test/benchmark si la DB n'est pas disponible
func SkipIfNoDatabase(tb testing.TB) {
	tb.Helper()

	if testing.Short() {
		tb.Skip("Skipping database test in short mode")
	}

	db, err := sql.Open("postgres", dbConfig(tb).ConnString())
	if err != nil {
		tb.Skip("Database not available:", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		tb.Skip("Database not available:", err)
	}
}
