package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/nodule-extract/internal/imageindex"
)

var indexImages string

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the DICOM image tree",
	Long: `Index reads the header of every image file under the image directory and
reports how many studies, patients and images were found. Nothing is written.

Use it to check that an image tree is readable before running extract.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexImages, "images", "D", "", "DICOM image directory")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("images") {
		cfg.Paths.Images = indexImages
	}
	pcfg := cfg.ToPipelineConfig(dir)

	ix, err := imageindex.NewIndexer(pcfg.ImagePatterns, pcfg.IgnorePatterns, newLogger(cfg))
	if err != nil {
		return err
	}
	result, err := ix.Build(pcfg.ImagesDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Image directory: %s\n", pcfg.ImagesDir)
	fmt.Fprintf(out, "  Files:      %s\n", formatNumber(result.Files))
	fmt.Fprintf(out, "  Images:     %s\n", formatNumber(result.Index.Len()))
	fmt.Fprintf(out, "  Studies:    %s\n", formatNumber(result.Index.Studies()))
	fmt.Fprintf(out, "  Patients:   %s\n", formatNumber(len(result.Index.Patients())))
	fmt.Fprintf(out, "  Duplicates: %s\n", formatNumber(result.Duplicates))
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "\n⚠ %s files could not be read:\n", formatNumber(len(result.Failed)))
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  %s\n", f.Error())
		}
	}
	return nil
}
