package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/usbcmp/internal/config"
	"firestige.xyz/usbcmp/internal/usbmon"
)

var (
	dumpFormat string
	dumpLimit  int
)

var dumpCmd = &cobra.Command{
	Use:   "dump <capture>",
	Short: "Print every header field of each record",
	Long: `Decode each record of a usbmon capture and print all of its fields.
Fields that do not apply to the record's transfer type are shown as '-'
in text output and null in YAML output.

Examples:
  usbcmp dump host.pcap                     # text, all records
  usbcmp dump host.pcap --limit 10          # first 10 records
  usbcmp dump host.pcap --format yaml       # one YAML document per record`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return runDump(cfg, args[0], dumpFormat, dumpLimit, cmd.OutOrStdout())
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format: text/yaml")
	dumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 0, "stop after this many records (0 = all)")
}

// dumpDoc is one record in YAML output. Fields keeps header order.
type dumpDoc struct {
	Record    int        `yaml:"record"`
	Timestamp string     `yaml:"timestamp"`
	Fields    *yaml.Node `yaml:"fields"`
}

func runDump(cfg *config.Config, path, format string, limit int, out io.Writer) error {
	var emit func(n int, v *usbmon.PacketView) error
	switch format {
	case "text":
		emit = func(n int, v *usbmon.PacketView) error { return dumpText(out, n, v) }
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		emit = func(n int, v *usbmon.PacketView) error { return dumpYAML(enc, n, v) }
	default:
		return fmt.Errorf("unknown format %q (must be text/yaml)", format)
	}

	src, err := openSource(cfg, path)
	if err != nil {
		return err
	}
	defer src.Close()

	for n := 1; limit <= 0 || n <= limit; n++ {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		v, err := usbmon.Decode(rec, usbmon.WithByteOrder(cfg.Compare.ByteOrder.ByteOrder))
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := emit(n, v); err != nil {
			return err
		}
	}
	return nil
}

func dumpText(out io.Writer, n int, v *usbmon.PacketView) error {
	dict, err := v.FieldDict()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "record %d  %s  %s\n", n, v.Header().Timestamp.UTC().Format("2006-01-02 15:04:05.000000"), v.Class())
	for _, name := range usbmon.FieldNames() {
		if _, err := fmt.Fprintf(out, "  %-12s %s\n", name, dict[name]); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out)
	return err
}

func dumpYAML(enc *yaml.Encoder, n int, v *usbmon.PacketView) error {
	dict, err := v.FieldDict()
	if err != nil {
		return err
	}

	fields := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range usbmon.FieldNames() {
		var val yaml.Node
		if err := val.Encode(dict[name]); err != nil {
			return fmt.Errorf("record %d field %s: %w", n, name, err)
		}
		fields.Content = append(fields.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			&val,
		)
	}

	return enc.Encode(dumpDoc{
		Record:    n,
		Timestamp: v.Header().Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Fields:    fields,
	})
}
