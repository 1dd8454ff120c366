package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"orderops/internal/app"
	"orderops/internal/config"
)

// rootOptions options communes à toutes les commandes
type rootOptions struct {
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "kitops",
		Short:         "Outils d'exploitation: rapprochement des commandes, BOM, promotions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "Fichier .env à charger avant l'environnement")

	root.AddCommand(
		newMigrateCmd(&opts),
		newImportBomCmd(&opts),
		newRematchCmd(&opts),
		newReconcileCmd(&opts),
		newApplyPromosCmd(&opts),
		newExportBomCmd(&opts),
		newExportOrdersCmd(&opts),
	)
	return root
}

// withApp câble les services, exécute fn puis libère la connexion
func withApp(cmd *cobra.Command, opts *rootOptions, migrate bool, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, migrate)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// printJSON écrit un rapport indenté sur la sortie de la commande
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
