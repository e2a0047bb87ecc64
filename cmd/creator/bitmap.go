package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakesimonds/Creator/internal/bitmap"
)

func newBitmapCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "bitmap <image>",
		Short: "Convert a PNG or JPEG into a display bitmap",
		Long: fmt.Sprintf(`Fit the image into %dx%d keeping its aspect ratio, convert it to
grayscale, dither it to 1-bit and save it as BMP.`, bitmap.MaxWidth, bitmap.MaxHeight),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := bitmap.ConvertFile(fsys, args[0], output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Image successfully converted and saved to: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: input with .bmp extension)")
	return cmd
}
