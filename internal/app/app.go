package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderops/database"
	bomapp "orderops/internal/bom/application"
	bominfra "orderops/internal/bom/infrastructure"
	cataloginfra "orderops/internal/catalog/infrastructure"
	"orderops/internal/config"
	exportapp "orderops/internal/export/application"
	exportinfra "orderops/internal/export/infrastructure"
	matchingapp "orderops/internal/matching/application"
	matchingdomain "orderops/internal/matching/domain"
	matchinginfra "orderops/internal/matching/infrastructure"
	ordersinfra "orderops/internal/orders/infrastructure"
	promoapp "orderops/internal/promotion/application"
	promoinfra "orderops/internal/promotion/infrastructure"
	reconapp "orderops/internal/reconciliation/application"
	sharedinfra "orderops/internal/shared/infrastructure"
)

// App regroupe les services câblés sur une même connexion
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Location *time.Location

	Matching       *matchingapp.MatchingService
	Bom            *bomapp.BomService
	Reconciliation *reconapp.ReconciliationService
	Promotions     *promoapp.PromotionService
	Exports        *exportapp.ExportService
}

// New ouvre la base, applique le schéma si AUTO_MIGRATE (ou migrate) est vrai
// et construit tous les services
func New(ctx context.Context, cfg *config.Config, migrate bool) (*App, error) {
	logger, err := sharedinfra.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	decorations, err := cfg.SiteDecorations()
	if err != nil {
		return nil, err
	}
	normalizer, err := matchingdomain.NewNormalizer(decorations)
	if err != nil {
		return nil, fmt.Errorf("site decorations: %w", err)
	}
	layout, err := bominfra.LoadSlotLayout(cfg.BomLayoutFile)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DB.ConnString())
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", zap.String("dsn", cfg.DB.Redacted()))

	if migrate || cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("schema migrated")
	}

	catalog := cataloginfra.NewCatalogQueryRepository(db)
	rules := matchinginfra.NewMappingRuleRepository(db)
	lines := ordersinfra.NewOrderLineRepository(db)
	boms := bominfra.NewBomRepository(db)
	promos := promoinfra.NewPromoRepository(db, loc)
	exportRows := exportinfra.NewExportQueryRepository(db)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Location: loc,
		Matching: matchingapp.NewMatchingService(rules, lines, catalog, normalizer,
			logger.Named("matching"), matchingapp.Options{RematchWorkers: cfg.RematchWorkers}),
		Bom:            bomapp.NewBomService(boms, layout, logger.Named("bom")).WithProducts(catalog),
		Reconciliation: reconapp.NewReconciliationService(boms, lines, logger.Named("reconciliation")),
		Promotions:     promoapp.NewPromotionService(promos, lines, loc, logger.Named("promotion")),
		Exports:        exportapp.NewExportService(boms, exportRows, logger.Named("export")),
	}, nil
}

// Close ferme la connexion et vide les logs en attente
func (a *App) Close() error {
	err := a.DB.Close()
	_ = a.Logger.Sync()
	return err
}
