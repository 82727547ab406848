package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"firestige.xyz/usbcmp/internal/compare"
	"firestige.xyz/usbcmp/internal/config"
	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/log"
	"firestige.xyz/usbcmp/internal/metrics"
	"firestige.xyz/usbcmp/internal/sink/console"
	"firestige.xyz/usbcmp/internal/source/file"
	"firestige.xyz/usbcmp/internal/usbmon"
)

var (
	hexDumpBytes int
	metricsFile  string
)

var compareCmd = &cobra.Command{
	Use:   "compare <capture> [<capture>...]",
	Short: "Compare captures frame by frame (default command)",
	Long: `Compare usbmon captures frame by frame.

Examples:
  usbcmp host.pcap analyzer.pcapng                # compare two captures
  usbcmp compare a.pcap b.pcap c.pcap --bus 3     # only bus 3 records
  usbcmp - b.pcap --hexdump-bytes 16              # read the reference from stdin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompareCmd,
}

func init() {
	addCompareFlags(compareCmd.Flags())
}

func addCompareFlags(fs *pflag.FlagSet) {
	fs.IntVar(&hexDumpBytes, "hexdump-bytes", compare.DefaultHexDumpBytes, "payload bytes compared per data frame")
	fs.StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus textfile format to this path")
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	stats, err := runCompare(cfg, args, cmd.OutOrStdout())
	log.GetLogger().WithFields(map[string]interface{}{
		"frames":           stats.Frames,
		"divergent_frames": stats.DivergentFrames,
		"divergent_lines":  stats.DivergentLines,
	}).Info("comparison finished")

	if cfg.Metrics.Enabled() {
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.GetLogger().WithError(werr).Error("failed to write metrics")
			if err == nil {
				err = werr
			}
		}
	}
	return err
}

// runCompare compares the captures at paths and writes the report to out.
func runCompare(cfg *config.Config, paths []string, out io.Writer) (stats compare.Stats, err error) {
	start := time.Now()
	sources := make([]*file.Source, 0, len(paths))
	defer func() {
		recordMetrics(stats, sources, time.Since(start), err)
	}()

	producers := make([]core.Producer, 0, len(paths))
	for _, path := range paths {
		src, err := openSource(cfg, path)
		if err != nil {
			return compare.Stats{}, err
		}
		defer src.Close()
		sources = append(sources, src)
		producers = append(producers, src)
	}

	sink := console.NewSink(out)
	defer sink.Close()

	c, err := compare.New(producers, sink,
		compare.WithHexDumpBytes(cfg.Compare.HexDumpBytes),
		compare.WithDecodeOptions(usbmon.WithByteOrder(cfg.Compare.ByteOrder.ByteOrder)),
	)
	if err != nil {
		return compare.Stats{}, err
	}

	stats, err = c.Run()
	if err != nil {
		return stats, fmt.Errorf("comparison aborted: %w", err)
	}
	return stats, nil
}

func recordMetrics(stats compare.Stats, sources []*file.Source, elapsed time.Duration, err error) {
	metrics.FramesTotal.Add(float64(stats.Frames))
	metrics.DivergentFramesTotal.Add(float64(stats.DivergentFrames))
	metrics.DivergentLinesTotal.Add(float64(stats.DivergentLines))
	for i, src := range sources {
		stream := strconv.Itoa(i)
		metrics.SourceRecordsTotal.WithLabelValues(stream, src.Name()).Add(float64(src.Read()))
		metrics.SourceSkippedTotal.WithLabelValues(stream, src.Name()).Add(float64(src.Skipped()))
	}
	metrics.RunDurationSeconds.Set(elapsed.Seconds())
	if err != nil {
		metrics.RunStatus.Set(metrics.RunStatusFailed)
	} else {
		metrics.RunStatus.Set(metrics.RunStatusCompleted)
	}
}

func openSource(cfg *config.Config, path string) (*file.Source, error) {
	var opts []file.Option
	if cfg.Filter.Enabled() {
		opts = append(opts, file.WithFilter(file.FilterSpec{
			Bus:       cfg.Filter.Bus,
			Device:    cfg.Filter.Device,
			ByteOrder: cfg.Compare.ByteOrder.ByteOrder,
		}))
	}
	return file.Open(path, opts...)
}
