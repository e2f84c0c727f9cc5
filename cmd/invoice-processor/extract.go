package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
)

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Extract and validate the fields of a local invoice PDF without filing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateExtraction(); err != nil {
				return err
			}
			client, err := a.extractionClient(nil)
			if err != nil {
				return err
			}

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return common.NewIOError("stat "+path, err)
			}
			sum, err := ingest.HashFile(path)
			if err != nil {
				return common.NewIOError("hash "+path, err)
			}
			doc := entity.Document{
				Path:     path,
				Filename: filepath.Base(path),
				SHA256:   sum,
				Size:     int(info.Size()),
			}

			result, err := client.ExtractFields(cmd.Context(), doc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
