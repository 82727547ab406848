// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"firestige.xyz/usbcmp/internal/config"
	"firestige.xyz/usbcmp/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string
	byteOrder  string
	busNum     int
	devNum     int
)

// rootCmd compares captures when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "usbcmp [flags] <capture> [<capture>...]",
	Short: "usbcmp - compare usbmon captures frame by frame",
	Long: `usbcmp reads two or more usbmon captures (pcap or pcapng, link type
LINUX_USB_MMAPPED) of the same USB traffic and walks them in lockstep.

For each frame it prints one line per capture: the payload hex dump for data
frames or the decoded SETUP packet for control requests. Lines that disagree
with the first non-empty value of the frame are marked with '#'.

The first capture is the reference: the run ends when it is exhausted.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCompareCmd,
	Version:       "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path (defaults and USBCMP_* env when empty)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug/info/warn/error")
	pf.StringVar(&byteOrder, "byte-order", "", "byte order of multi-byte header fields: little/big")
	pf.IntVar(&busNum, "bus", 0, "only use records from this bus number (0 = any)")
	pf.IntVar(&devNum, "device", 0, "only use records from this device address (0 = any)")

	addCompareFlags(rootCmd.Flags())

	// Add subcommands
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(rewriteCmd)
}

// loadConfig reads the config file, applies command-line overrides and
// initializes logging.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("byte-order") {
		order, err := config.ParseByteOrder(byteOrder)
		if err != nil {
			return nil, err
		}
		cfg.Compare.ByteOrder = order
	}
	if flags.Changed("bus") {
		cfg.Filter.Bus = busNum
	}
	if flags.Changed("device") {
		cfg.Filter.Device = devNum
	}
	if flags.Lookup("hexdump-bytes") != nil && flags.Changed("hexdump-bytes") {
		cfg.Compare.HexDumpBytes = hexDumpBytes
	}
	if flags.Lookup("metrics-file") != nil && flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = metricsFile
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
