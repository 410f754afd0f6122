package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/paper"
)

func newPapersCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "papers",
		Short: "Inspect the translated paper index",
	}
	cmd.AddCommand(newPapersSearchCommand(cfg, log))
	return cmd
}

func newPapersSearchCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	var (
		domain  string
		keyword string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed papers by full text, domain or keyword",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cleanup, err := paper.Provide(*cfg, *log)
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					(*log).Warn("paper repository cleanup failed", zap.Error(err))
				}
			}()

			ctx := cmd.Context()
			var metas []*paper.Metadata
			switch {
			case len(args) == 1 && args[0] != "":
				metas, err = repo.Search(ctx, args[0])
			case domain != "":
				metas, err = repo.SearchByDomain(ctx, domain)
			case keyword != "":
				metas, err = repo.SearchByKeyword(ctx, keyword)
			default:
				metas, err = repo.List(ctx, limit)
			}
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(metas, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "filter by research domain")
	cmd.Flags().StringVar(&keyword, "keyword", "", "filter by keyword")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum papers to list without a query")
	return cmd
}
