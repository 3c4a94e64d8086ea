package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/entityscan/pkg/geonames"
)

func geonamesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geonames",
		Short: "Manage the geonames dataset used to resolve locations",
	}

	download := &cobra.Command{
		Use:   "download",
		Short: "Download the geonames dataset unless it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			if err := geonames.EnsureDataset(cmd.Context(), s.Geonames.Path, s.Geonames.URL, a.logger); err != nil {
				return err
			}
			idx, err := geonames.Open(s.Geonames.Path, s.Geonames.MinPopulation, s.Geonames.MinSimilarity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d places\n", s.Geonames.Path, idx.Len())
			return nil
		},
	}
	download.Flags().String("path", a.v.GetString("geonames.path"), "Where to store the dataset")
	download.Flags().String("url", a.v.GetString("geonames.url"), "Dataset to download, a GeoNames dump (.zip or .txt)")
	a.bindOnRun(download, map[string]string{
		"geonames.path": "path",
		"geonames.url":  "url",
	})

	cmd.AddCommand(download)
	return cmd
}
