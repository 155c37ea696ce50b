package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pwmledd",
	Short: "Multichannel PWM LED controller daemon",
	Long: `pwmledd drives logical LEDs whose brightness is fanned out over
weighted PWM channels. Channels can live on sysfs pwmchips, plain GPIO
lines or PCA9685 I2C expanders. State is exposed over an HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	},
}

// serveCmd is the explicit form of the default action.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/pwmledd.conf", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
