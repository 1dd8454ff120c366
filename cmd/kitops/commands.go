package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"orderops/database"
	"orderops/internal/app"
	bomdomain "orderops/internal/bom/domain"
	bominfra "orderops/internal/bom/infrastructure"
	"orderops/internal/config"
	exportdomain "orderops/internal/export/domain"
	ordersdomain "orderops/internal/orders/domain"
	recondomain "orderops/internal/reconciliation/domain"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Crée les tables et index manquants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				if err := database.Migrate(ctx, a.DB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

type importBomOptions struct {
	replace bool
	dryRun  bool
}

func newImportBomCmd(opts *rootOptions) *cobra.Command {
	var o importBomOptions

	cmd := &cobra.Command{
		Use:   "import-bom <sheet.csv>",
		Short: "Importe une feuille BOM puis vérifie le rapprochement des comptes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := bominfra.ReadSheetFile(args[0])
			if err != nil {
				return err
			}
			if o.dryRun {
				return dryRunBom(cmd, opts, rows)
			}

			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Bom.Import(ctx, rows, o.replace)
				if err != nil {
					return err
				}
				recon, err := a.Reconciliation.VerifyBomImport(ctx, report.Stats, report.KitIDs)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"import":         report,
					"reconciliation": recon,
				}); err != nil {
					return err
				}
				if !recon.Match {
					return fmt.Errorf("reconciliation failed: %s", recon)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&o.replace, "replace", false, "Remplace les lignes existantes des kits importés")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Analyse la feuille sans rien écrire")
	return cmd
}

// dryRunBom analyse la feuille hors base: le contrôle porte sur les lignes dérivées en mémoire
func dryRunBom(cmd *cobra.Command, opts *rootOptions, rows [][]string) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	layout, err := bominfra.LoadSlotLayout(cfg.BomLayoutFile)
	if err != nil {
		return err
	}

	res := bomdomain.NewImporter(layout).Parse(rows)
	recon := recondomain.Reconcile(recondomain.CountsFromImport(res.Stats, res.Stats.Derived))
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"stats":          res.Stats,
		"warnings":       res.Warnings,
		"kits":           len(res.KitIDs()),
		"reconciliation": recon,
	})
}

func newRematchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rematch",
		Short: "Relance la résolution des lignes en attente contre les règles courantes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Matching.Rematch(ctx)
				if report != nil {
					if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var missingLimit int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Affiche l'état de résolution des commandes et les identifiants sans règle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Reconciliation.OrderStatus(ctx, missingLimit)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Balanced || report.Inconsistent > 0 {
					return fmt.Errorf("order lines are not consistent: balanced=%t inconsistent=%d",
						report.Balanced, report.Inconsistent)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&missingLimit, "missing-limit", 50, "Nombre maximal d'identifiants sans règle listés")
	return cmd
}

func newApplyPromosCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply-promos",
		Short: "Attribue les cadeaux promotionnels (brouillons) aux lignes rapprochées",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Promotions.ApplyPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newExportBomCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-bom <out.csv>",
		Short: "Exporte la BOM nettoyée (kit_id, product_id, multiplier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := exportdomain.NewExportJob(exportdomain.ExportFormatCSV, exportdomain.ExportTypeBom, nil)
			if err != nil {
				return err
			}
			return exportTo(cmd, opts, job, args[0])
		},
	}
}

func newExportOrdersCmd(opts *rootOptions) *cobra.Command {
	var format, status string

	cmd := &cobra.Command{
		Use:   "export-orders <out>",
		Short: "Exporte les lignes de commande en CSV ou Parquet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *ordersdomain.ProcessStatus
			if status != "" {
				s := ordersdomain.ProcessStatus(strings.ToUpper(status))
				if s == "NEW" {
					s = ordersdomain.StatusNew
				}
				filter = &s
			}
			job, err := exportdomain.NewExportJob(exportdomain.ExportFormat(strings.ToLower(format)), exportdomain.ExportTypeOrderLines, filter)
			if err != nil {
				return err
			}
			return exportTo(cmd, opts, job, args[0])
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Format: csv ou parquet")
	cmd.Flags().StringVar(&status, "status", "", "Filtre de statut (NEW, UNMATCHED, MATCHED, GIFT_APPLIED, DONE)")
	return cmd
}

// exportTo écrit l'export dans path; le fichier partiel est supprimé en cas d'erreur
func exportTo(cmd *cobra.Command, opts *rootOptions, job *exportdomain.ExportJob, path string) error {
	return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		bw := bufio.NewWriter(f)

		n, err := a.Exports.Export(ctx, job, bw)
		if err == nil {
			err = bw.Flush()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", n, path)
		return nil
	})
}
