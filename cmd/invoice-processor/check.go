package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-processor/internal/catalog"
	"github.com/joseph-ayodele/invoice-processor/internal/export"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, field mappings and templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			cat, err := catalog.Load(a.cfg.Paths.FieldMappingsFile)
			if err != nil {
				return err
			}
			schemas, err := export.LoadSchemas(a.cfg.TemplatePaths())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: source=%s provider=%s model=%s workers=%d\n",
				a.cfg.Mail.Source, a.cfg.LLM.Provider, a.cfg.LLM.Model, a.cfg.Run.Workers)
			fmt.Fprintf(out, "accounts: %s\n", strings.Join(cat.Accounts(), ", "))
			fmt.Fprintf(out, "projects: %s\n", strings.Join(cat.Projects(), ", "))
			for _, s := range schemas {
				fmt.Fprintf(out, "template %s (%s): %s\n", s.Name, s.Source, strings.Join(s.Columns, ", "))
			}
			return nil
		},
	}
}
