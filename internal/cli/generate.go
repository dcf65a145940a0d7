package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ratio1/fmdata_sdk_go/internal/codegen"
)

type generateOptions struct {
	layouts []string
	pkg     string
	out     string
	diff    bool
}

func newGenerateCmd(configPath *string) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Go structs for layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, *configPath, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.layouts, "layout", nil, "layout to generate (repeatable); all layouts when omitted")
	cmd.Flags().StringVar(&opts.pkg, "package", "models", "package name of the generated file")
	cmd.Flags().StringVar(&opts.out, "out", "", "output file; stdout when empty")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, "print a diff against --out instead of writing it")
	return cmd
}

func runGenerate(cmd *cobra.Command, configPath string, opts *generateOptions) error {
	if opts.diff && opts.out == "" {
		return errors.New("--diff requires --out")
	}
	ctx := cmd.Context()
	client, release, err := connect(ctx, configPath)
	if err != nil {
		return err
	}
	defer release()

	names := opts.layouts
	if len(names) == 0 {
		if names, err = client.Layouts(ctx); err != nil {
			return err
		}
	}
	layouts := make([]codegen.Layout, 0, len(names))
	for _, name := range names {
		meta, err := client.Layout(name).Metadata(ctx)
		if err != nil {
			return fmt.Errorf("layout %q: %w", name, err)
		}
		layouts = append(layouts, codegen.Layout{Name: name, Metadata: meta})
	}

	src, err := codegen.Generate(opts.pkg, layouts)
	if err != nil {
		return err
	}

	switch {
	case opts.diff:
		current, err := os.ReadFile(opts.out)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		writeDiff(cmd.OutOrStdout(), string(current), string(src))
		return nil
	case opts.out == "":
		_, err = cmd.OutOrStdout().Write(src)
		return err
	default:
		if err := os.WriteFile(opts.out, src, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d layouts to %s\n", len(layouts), opts.out)
		return nil
	}
}
