package main

import (
	"fmt"
	"os"

	"github.com/saskenuba/dbml-language-server/internal/config"
	"github.com/saskenuba/dbml-language-server/internal/server"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

const name = "dbml-language-server"

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

type options struct {
	logfile    string
	verbosity  int
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	serve := func(cmd *cobra.Command, args []string) error {
		var logfile *string
		if opts.logfile != "" {
			logfile = &opts.logfile
		}
		commonlog.Configure(opts.verbosity, logfile)

		cfg, err := loadConfig(opts.configPath)
		if err != nil {
			return err
		}

		s, err := server.New(name, Version, cfg)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return s.RunStdio()
	}

	root := &cobra.Command{
		Use:           name,
		Short:         "Language server for DBML schema files",
		Long:          "Serves completion, rename, references and symbols for DBML over stdio.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&opts.logfile, "logfile", "", "path to log file (default stderr)")
	root.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "log verbosity, repeat for more")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a "+config.FileName+" file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the language server over stdio",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newDumpCmd(),
		newCompleteCmd(),
	)
	return root
}

// loadConfig returns the defaults overlaid with the file at path, if any.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path == "" {
		return cfg, nil
	}
	cfg, err := config.LoadFile(cfg, path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
