package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/nodule-extract/internal/prepare"
)

var (
	prepareSize   int
	prepareSigned bool
)

// prepareCmd represents the prepare command
var prepareCmd = &cobra.Command{
	Use:   "prepare DIR",
	Short: "Rescale extracted images to a fixed square size",
	Long: `Prepare letterboxes every image directly inside DIR to SIZE x SIZE pixels
and writes the results to DIR/{SIZE}x{SIZE}. The aspect ratio is kept and
the short side is padded with black.

Images extracted from signed DICOM series store two's complement samples;
pass --signed (or set prepare.signed) so they are resampled by value.

The default size comes from prepare.size in the configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

func init() {
	prepareCmd.Flags().IntVar(&prepareSize, "size", 0, "target width and height in pixels")
	prepareCmd.Flags().BoolVar(&prepareSigned, "signed", false, "treat 16-bit samples as two's complement")
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	size := cfg.Prepare.Size
	if cmd.Flags().Changed("size") {
		size = prepareSize
	}

	scaler := prepare.NewScaler(newLogger(cfg))
	scaler.Signed = cfg.Prepare.Signed
	if cmd.Flags().Changed("signed") {
		scaler.Signed = prepareSigned
	}

	result, err := scaler.Scale(args[0], size)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Scaled %s images to %dx%d in %s\n", formatNumber(result.Scaled), size, size, result.Dir)
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "⚠ %s files could not be scaled:\n", formatNumber(len(result.Failed)))
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  %s\n", f.Error())
		}
	}
	return nil
}
