package main

import (
	"errors"
	"fmt"

	"github.com/jonathan/feedback-reviews/internal/db"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage feedback templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Create or update templates from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateImport,
}

func init() {
	templateCmd.AddCommand(templateImportCmd)
	rootCmd.AddCommand(templateCmd)
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	templates, err := loadTemplates(args[0])
	if err != nil {
		return err
	}
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	database, err := db.Connect(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	for i := range templates {
		id, err := database.UpsertTemplate(cmd.Context(), &templates[i])
		if err != nil {
			return fmt.Errorf("failed to import template %s: %w", templates[i].Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", templates[i].Name, id)
	}
	return nil
}
