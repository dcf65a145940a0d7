// Package cli implements the fmdata-codegen command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
)

// NewRootCmd builds the fmdata-codegen command.
func NewRootCmd(version, buildDate string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fmdata-codegen",
		Short:         "Generate Go types from Data API layouts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML client config; FMDATA_* variables are used when empty")

	root.AddCommand(newVersionCmd(version, buildDate))
	root.AddCommand(newLayoutsCmd(&configPath))
	root.AddCommand(newGenerateCmd(&configPath))
	return root
}

// connect builds a client from the config file or, without one, from the
// environment. The returned release func logs the session out.
func connect(ctx context.Context, configPath string) (*fmdata.Client, func(), error) {
	var (
		client *fmdata.Client
		err    error
	)
	if configPath != "" {
		cfg, lerr := fmdata.LoadConfig(configPath)
		if lerr != nil {
			return nil, nil, lerr
		}
		client, err = fmdata.NewFromConfig(cfg)
	} else {
		client, _, err = fmdata.NewFromEnv()
	}
	if err != nil {
		return nil, nil, err
	}
	release := func() { _ = client.Logout(ctx) }
	return client, release, nil
}
