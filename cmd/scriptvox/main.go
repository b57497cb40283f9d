// Command scriptvox is the main entry point for the scripted voice bot server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptvox/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code.
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "scriptvox: %v\n", err)
		return 1
	}
	return 0
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "scriptvox",
		Short:         "Scripted voice bot: speaks a line, listens, advances the script",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files loaded before the config (default .env)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newMigrateCmd(flags))
	root.AddCommand(newClassifyCmd(flags))
	return root
}

// loadConfig reads the dotenv files and then the config file.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(f.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", f.configPath)
		}
		return nil, err
	}
	return cfg, nil
}
