package main

import (
	"errors"
	"io"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type templateSummary struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Fields []string `json:"fields" yaml:"fields"`
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the templates found in the templates directory",
	Long: `List the templates found in the templates directory.

Use -o table for a human readable listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TemplatesDir == "" {
			return errors.New("no templates directory; set --templates-dir or EXTRACT_TEMPLATES_DIR")
		}
		store, err := schema.LoadDir(cmd.Context(), cfg.TemplatesDir)
		if err != nil {
			return err
		}

		out := []templateSummary{}
		for _, id := range store.IDs() {
			sch, err := store.Schema(cmd.Context(), id)
			if err != nil {
				return err
			}
			summary := templateSummary{ID: id, Name: sch.Name()}
			for _, field := range sch.Fields() {
				summary.Fields = append(summary.Fields, field.Name)
			}
			out = append(out, summary)
		}

		if strings.EqualFold(outputFormat, "table") {
			writeTemplateTable(cmd.OutOrStdout(), out)
			return nil
		}
		return writeOutput(cmd.OutOrStdout(), out)
	},
}

func writeTemplateTable(w io.Writer, summaries []templateSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Fields"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, summary := range summaries {
		table.Append([]string{summary.ID, summary.Name, strings.Join(summary.Fields, ", ")})
	}
	table.Render()
}
