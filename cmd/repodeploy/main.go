// main.go bootstraps repodeploy: it builds the root Cobra command, binds
// Viper configuration, and executes with signal-aware contexts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/pipeline"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	logLevel := "info"
	cmd := &cobra.Command{
		Use:           "repodeploy",
		Short:         "Deploy a three-tier repository with zero configuration",
		Long:          "repodeploy clones a repository, detects its frontend, backend, and database stack, generates container build and orchestration files, launches them, and waits until the app answers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for repodeploy output (debug, info, warn, error)")
	opts.BindFlags(cmd.PersistentFlags())

	deployCmd := newDeployCommand(opts, &logLevel)
	detectCmd := newDetectCommand()
	renderCmd := newRenderCommand(opts)
	serveCmd := newServeCommand(opts, &logLevel)
	runsCmd := newRunsCommand(opts)
	cmd.AddCommand(
		deployCmd,
		detectCmd,
		renderCmd,
		serveCmd,
		runsCmd,
		newVersionCommand(),
	)
	cmd.Example = `  # Deploy a repository and wait until it answers on localhost:8080
  repodeploy deploy https://github.com/acme/shop

  # Inspect a local checkout without touching the container engine
  repodeploy detect ./shop -o yaml

  # Show what would change in a previously rendered checkout
  repodeploy render ./shop --diff

  # Accept deploy requests over HTTP
  repodeploy serve --listen :5000`
	decorateCommandHelp(cmd, "Global Flags")
	bindViper(cmd, deployCmd, detectCmd, renderCmd, serveCmd, runsCmd)
	return cmd
}

func bindViper(commands ...*cobra.Command) {
	if len(commands) == 0 {
		return
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("REPODEPLOY")
	v.AutomaticEnv()
	configFile := os.Getenv("REPODEPLOY_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
			for _, fs := range flagSets {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					val := fmt.Sprintf("%v", v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	if hint := pipeline.Hint(err); hint != "" {
		message = fmt.Sprintf("%s\nHint: %s.", err, hint)
	} else if errors.Is(err, context.Canceled) {
		message = fmt.Sprintf("%s\nHint: the run was interrupted; its working directory has been removed.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "repodeploy"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "repodeploy"))
		add(filepath.Join(home, ".repodeploy"))
	}
	return dirs
}
