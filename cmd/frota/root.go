package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/prefs"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
	"github.com/spf13/cobra"
)

const userAgent = "frota-cli/1.0"

// errReported means the failure was already shown to the user as a notice.
var errReported = errors.New("reported")

type rootOptions struct {
	api       string
	tokenFile string
	delimiter string
	prefsPath string
	dir       string
	logLevel  string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "frota",
		Short:         "Exportar e importar dados de motoristas e veículos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.delimiter != "" {
				if _, err := client.ParseDelimiter(opts.delimiter); err != nil {
					return fmt.Errorf("--delimitador: %w", err)
				}
			}
			// the tui command installs its own file logger
			if cmd.Name() != "tui" {
				logging.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.api, "api", envOr("FROTA_API_URL", "http://localhost:8080"), "endereço do servidor")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", os.Getenv("FROTA_TOKEN_FILE"), "ficheiro com o token de acesso")
	cmd.PersistentFlags().StringVar(&opts.delimiter, "delimitador", "", "delimitador dos ficheiros (; ou ,), guardado nas preferências")
	cmd.PersistentFlags().StringVar(&opts.prefsPath, "prefs", envOr("FROTA_PREFS_FILE", prefs.DefaultPath()), "ficheiro de preferências")
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", os.Getenv("FROTA_DOWNLOAD_DIR"), "pasta das exportações, guardada nas preferências")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("FROTA_LOG_LEVEL", "warn"), "nível de log (debug, info, warn, error)")

	cmd.AddCommand(
		newCamposCmd(opts),
		newExportarCmd(opts),
		newExportarTudoCmd(opts),
		newImportarCmd(opts),
		newHistoricoCmd(opts),
		newTuiCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.api, client.FileTokenSource{Path: o.tokenFile}, client.WithUserAgent(userAgent))
}

// controller builds a controller over the API with the saved preferences
// and applies the --delimitador and --dir overrides.
func (o *rootOptions) controller(notifier reconcile.Notifier) (*reconcile.Controller, error) {
	api, err := o.client()
	if err != nil {
		return nil, err
	}
	ctrl := reconcile.NewController(api, notifier, prefs.NewFileStore(o.prefsPath))

	if o.delimiter != "" {
		if err := ctrl.SetDelimiter(client.Delimiter(o.delimiter)); err != nil {
			return nil, err
		}
	}
	if o.dir != "" {
		if err := ctrl.SetDownloadDir(o.dir); err != nil {
			return nil, err
		}
	}
	return ctrl, nil
}

// printNotices writes controller notices one per line.
func printNotices(w io.Writer) reconcile.Notifier {
	return reconcile.NotifierFunc(func(n reconcile.Notice) {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	})
}
