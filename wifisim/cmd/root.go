// Package cmd provides the command-line interface of wifisim.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

// envPrefix prefixes the environment variables that supply flag defaults.
const envPrefix = "WIFISIM_"

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wifisim",
	Short: "Discrete-event simulator for Wi-Fi networks",
	Long: `wifisim runs Wi-Fi network scenarios described in YAML files and ` +
		`reports per-flow delay, jitter, loss and throughput.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}

		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Variables in a .env file of the working directory are loaded
// first.
func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("cannot load .env")
	}

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
}

// applyEnv sets every flag that was not given on the command line from its
// environment variable, if present. The flag --log-level reads
// WIFISIM_LOG_LEVEL.
func applyEnv(flags *pflag.FlagSet) error {
	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}

		v, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}

		if setErr := f.Value.Set(v); setErr != nil {
			err = fmt.Errorf("%s: %w", envName(f.Name), setErr)
		}
	})

	return err
}

func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
