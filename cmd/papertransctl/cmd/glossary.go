package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/glossary"
)

func newGlossaryCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Inspect the terminology glossaries",
	}
	cmd.AddCommand(
		newGlossaryDomainsCommand(cfg, log),
		newGlossaryQueryCommand(cfg, log),
	)
	return cmd
}

func newGlossaryDomainsCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List glossary domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := glossary.NewStore((*cfg).Storage.GlossaryDir(), *log)
			domains, err := store.Domains()
			if err != nil {
				return err
			}
			for _, d := range domains {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func newGlossaryQueryCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "query [term]",
		Short: "Search glossary entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			store := glossary.NewStore((*cfg).Storage.GlossaryDir(), *log)
			entries, err := store.Search(query, domain)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "restrict the search to one domain")
	return cmd
}
