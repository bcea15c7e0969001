// Package main implements idlectl, a small command-line harness for the
// idle-coordination runtime: it resolves a configuration, builds a pool, and
// either drives a demo workload through it or prints the resolved
// configuration back out.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmesh/idlecore/config"
	"github.com/taskmesh/idlecore/errors"
	"github.com/taskmesh/idlecore/logger"
)

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) (*cobra.Command, *bool) {
	var configFile string
	var logPath string
	var jsonErrors bool

	rc := &cobra.Command{
		Use:   "idlectl",
		Short: "idlectl drives and inspects the idle-coordination worker pool.",
		Long: `idlectl is a small harness around the idle-coordination runtime: it builds
a worker pool from a resolved configuration and either runs a demo
fork/join workload through it, or prints the configuration that would be
used.`,
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file to read from")
	rc.PersistentFlags().StringVar(&logPath, "log-file", "", "write transition/stats logging to this file instead of stderr; reopened on SIGHUP for rotation")
	rc.PersistentFlags().BoolVar(&jsonErrors, "json-errors", false, "report the top-level command error as a coded JSON object instead of plain text")
	config.BindFlags(rc.PersistentFlags())

	rc.AddCommand(newRunCommand(stdout, stderr, &configFile, &logPath))
	rc.AddCommand(newConfigCommand(stdout, &configFile))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc, &jsonErrors
}

// setupLogOutput resolves where the run command's logging goes. An empty
// logPath keeps logging on stderr. A non-empty path opens a reopenable file
// and arms a SIGHUP handler that reopens it, so an external log rotator can
// rename the file out from under the process and send SIGHUP to make it
// start writing to a fresh inode without a restart. The returned closer
// should be closed (if non-nil) when the command returns.
func setupLogOutput(logPath string, stderr io.Writer) (io.Writer, io.Closer, error) {
	if logPath == "" {
		return stderr, nil, nil
	}
	f, err := logger.NewFileWriter(logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := f.Reopen(); err != nil {
				fmt.Fprintf(stderr, "reopen %s: %s\n", logPath, err)
			}
		}
	}()
	return f, f, nil
}

func resolveConfig(cmd *cobra.Command, configFile string) (config.Config, error) {
	v := viper.New()
	return config.Load(v, cmd.Flags(), configFile)
}

func newConfigCommand(stdout io.Writer, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as TOML.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			enc := toml.NewEncoder(stdout)
			return enc.Encode(cfg)
		},
	}
}

func main() {
	rc, jsonErrors := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rc.Execute(); err != nil {
		if *jsonErrors {
			fmt.Fprintln(os.Stderr, errors.MarshalJSON(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
