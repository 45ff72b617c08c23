package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/spf13/cobra"
)

func newImagesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the image catalog",
	}
	cmd.AddCommand(newImagesAddCommand(opts), newImagesGetCommand(opts))
	return cmd
}

func newImagesAddCommand(opts *rootOptions) *cobra.Command {
	var id, uri, species string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an image for annotation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := domain.NewImage(id, uri, species)
			if err != nil {
				return err
			}

			stores, err := openStores(cmd.Context(), opts.cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			if stores.db == nil {
				opts.logger.Warn("image stored in memory only and will be lost on exit")
			}
			if err := stores.catalog.SaveImage(cmd.Context(), img); err != nil {
				return fmt.Errorf("failed to save image %s: %w", img.ID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", color.GreenString("added"), img.ID, img.Species)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Image ID referenced by batches")
	cmd.Flags().StringVar(&uri, "uri", "", "Image location: a local path or an http(s)/gs URI")
	cmd.Flags().StringVar(&species, "species", "", "Species depicted in the image")
	for _, name := range []string{"id", "uri", "species"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newImagesGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a catalog entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStores(cmd.Context(), opts.cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			img, err := stores.catalog.GetImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(img)
		},
	}
}
