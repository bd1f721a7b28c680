package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/application"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/handler"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	"github.com/spf13/cobra"
)

type tuiOptions struct {
	importDir string
	logFile   string
}

func newTuiCmd(root *rootOptions) *cobra.Command {
	opts := &tuiOptions{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Abrir o ecrã interativo de exportação e importação",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()
			logging.SetupWriter(logFile, root.logLevel, "json")

			notices := handler.NewNotices(32)
			ctrl, err := root.controller(notices)
			if err != nil {
				return err
			}

			p := tea.NewProgram(application.New(ctrl, notices, opts.importDir), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run tui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.importDir, "pasta", ".", "pasta com os ficheiros a importar")
	cmd.Flags().StringVar(&opts.logFile, "log-file",
		envOr("FROTA_LOG_FILE", filepath.Join(os.TempDir(), "frota.log")), "ficheiro de log")
	return cmd
}
