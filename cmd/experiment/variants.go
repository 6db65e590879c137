package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/ostracism-lab/internal/config"
)

func newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the built-in experiment variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-24s %-10s %-10s %s\n", "VARIANT", "CONDITION", "NECESSITY", "TITLE")
			for _, id := range config.Variants() {
				cfg, err := config.NewConfig(config.Options{Variant: id})
				if err != nil {
					return err
				}
				v := cfg.Variant
				necessity := v.Condition.Necessity
				if necessity == "" {
					necessity = "-"
				}
				marker := ""
				if id == config.DefaultVariant {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%-24s %-10s %-10s %s\n", id+marker, v.Condition.TaskCondition, necessity, v.Title)
			}
			return nil
		},
	}
}
