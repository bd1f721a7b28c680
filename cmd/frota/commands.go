package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/handler"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
	"github.com/spf13/cobra"
)

// ----------------------------------------------------------------------------
// campos
// ----------------------------------------------------------------------------

func newCamposCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "campos [tipo]",
		Short: "Listar os campos exportáveis (* = selecionado por defeito)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tipos := client.Tipos
			if len(args) == 1 {
				tipo, err := client.ParseTipo(args[0])
				if err != nil {
					return err
				}
				tipos = []client.Tipo{tipo}
			}

			api, err := root.client()
			if err != nil {
				return err
			}
			cat, err := api.Catalog(cmd.Context())
			if err != nil {
				return fmt.Errorf("carregar campos: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, tipo := range tipos {
				fmt.Fprintf(w, "%s\n", tipo.Label())
				for _, f := range cat[tipo] {
					mark := " "
					if f.Default {
						mark = "*"
					}
					fmt.Fprintf(w, "  %s %s\t%s\n", mark, f.ID, f.Label)
				}
			}
			return w.Flush()
		},
	}
}

// ----------------------------------------------------------------------------
// exportar / exportar-tudo
// ----------------------------------------------------------------------------

type exportarOptions struct {
	campos []string
}

func newExportarCmd(root *rootOptions) *cobra.Command {
	opts := &exportarOptions{}

	cmd := &cobra.Command{
		Use:   "exportar <tipo>",
		Short: "Exportar motoristas ou veículos para CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tipo, err := client.ParseTipo(args[0])
			if err != nil {
				return err
			}
			ctrl, err := loadController(cmd.Context(), root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("campos") {
				if err := applySelection(ctrl, tipo, opts.campos); err != nil {
					return err
				}
			}

			path, err := ctrl.Export(cmd.Context(), tipo)
			if err != nil {
				return errReported
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.campos, "campos", nil, "campos a exportar, por ordem (ex: nome,nif)")
	return cmd
}

type exportarTudoOptions struct {
	motoristas []string
	veiculos   []string
}

func newExportarTudoCmd(root *rootOptions) *cobra.Command {
	opts := &exportarTudoOptions{}

	cmd := &cobra.Command{
		Use:   "exportar-tudo",
		Short: "Exportar motoristas e veículos num ficheiro ZIP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := loadController(cmd.Context(), root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("motoristas") {
				if err := applySelection(ctrl, client.Motoristas, opts.motoristas); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("veiculos") {
				if err := applySelection(ctrl, client.Veiculos, opts.veiculos); err != nil {
					return err
				}
			}

			path, err := ctrl.ExportAll(cmd.Context())
			if err != nil {
				return errReported
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.motoristas, "motoristas", nil, "campos de motoristas (vazio para nenhum)")
	cmd.Flags().StringSliceVar(&opts.veiculos, "veiculos", nil, "campos de veículos (vazio para nenhum)")
	return cmd
}

func loadController(ctx context.Context, root *rootOptions, notices io.Writer) (*reconcile.Controller, error) {
	ctrl, err := root.controller(printNotices(notices))
	if err != nil {
		return nil, err
	}
	if err := ctrl.LoadCatalog(ctx); err != nil {
		return nil, errReported
	}
	return ctrl, nil
}

// applySelection replaces the selection of tipo with ids, in that order.
func applySelection(ctrl *reconcile.Controller, tipo client.Tipo, ids []string) error {
	if err := ctrl.SelectNone(tipo); err != nil {
		return err
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := ctrl.Toggle(tipo, id); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// importar
// ----------------------------------------------------------------------------

type importarOptions struct {
	confirmar  bool
	mapeamento map[string]string
}

func newImportarCmd(root *rootOptions) *cobra.Command {
	opts := &importarOptions{}

	cmd := &cobra.Command{
		Use:   "importar <tipo> <ficheiro>",
		Short: "Pré-visualizar (e opcionalmente confirmar) a importação de um ficheiro",
		Long: "Envia o ficheiro para análise e mostra os registos que seriam atualizados.\n" +
			"Com --confirmar, aplica as alterações quando existir pelo menos uma.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tipo, err := client.ParseTipo(args[0])
			if err != nil {
				return err
			}
			file, err := handler.LoadFile(args[1])
			if err != nil {
				return err
			}

			ctrl, err := root.controller(printNotices(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mapeamento") {
				if err := ctrl.SetMapping(tipo, opts.mapeamento); err != nil {
					return err
				}
			}

			pv, err := ctrl.SelectFile(cmd.Context(), tipo, file)
			if err != nil {
				return errReported
			}
			printPreview(cmd.OutOrStdout(), tipo, pv)

			if !opts.confirmar || !ctrl.CanConfirm(tipo) {
				return nil
			}
			res, err := ctrl.Confirm(cmd.Context(), tipo)
			if err != nil {
				return errReported
			}
			for _, e := range res.Erros {
				fmt.Fprintf(cmd.OutOrStdout(), "  ! %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.confirmar, "confirmar", false, "aplicar as alterações depois da pré-visualização")
	cmd.Flags().StringToStringVar(&opts.mapeamento, "mapeamento", nil, "cabeçalho=campo, guardado para importações seguintes")
	return cmd
}

func printPreview(w io.Writer, tipo client.Tipo, pv *client.ImportPreview) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, rec := range pv.Preview {
		fmt.Fprintf(tw, "%s\t%s\n", rec.Key(tipo), rec.Name(tipo))
		for _, ch := range rec.Alteracoes {
			fmt.Fprintf(tw, "  %s\t%s -> %s\n", ch.Campo, ch.ValorAtual, ch.ValorNovo)
		}
	}
	tw.Flush()
	for _, e := range pv.Erros {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
}

// ----------------------------------------------------------------------------
// historico
// ----------------------------------------------------------------------------

func newHistoricoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "historico [tipo]",
		Short: "Listar as importações confirmadas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tipo client.Tipo
			if len(args) == 1 {
				t, err := client.ParseTipo(args[0])
				if err != nil {
					return err
				}
				tipo = t
			}

			api, err := root.client()
			if err != nil {
				return err
			}
			items, err := api.History(cmd.Context(), tipo)
			if err != nil {
				return fmt.Errorf("carregar histórico: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATA\tTIPO\tFICHEIRO\tATUALIZADOS\tERROS")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					it.Data.Local().Format("2006-01-02 15:04"), it.Tipo, it.Ficheiro, it.Atualizados, it.NErros)
			}
			return w.Flush()
		},
	}
}
