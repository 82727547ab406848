package cmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/usbcmp/internal/config"
	"firestige.xyz/usbcmp/internal/core"
	"firestige.xyz/usbcmp/internal/log"
	"firestige.xyz/usbcmp/internal/sink/pcapfile"
	"firestige.xyz/usbcmp/internal/usbmon"
)

var rewriteDataByte uint8

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <in> <out>",
	Short: "Patch the first payload byte of every record and write a new capture",
	Long: `Decode every record of <in>, replace the first payload byte of each record
that has a payload, and write the re-encoded records to <out> as pcap.

Re-encoding rewrites the header fields only; the SETUP bytes of control
records are written as zeros.

Examples:
  usbcmp rewrite host.pcap patched.pcap                  # first byte becomes 0x42
  usbcmp rewrite host.pcap patched.pcap --data-byte 0xff`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		n, err := runRewrite(cfg, args[0], args[1], rewriteDataByte)
		if err != nil {
			return err
		}
		log.GetLogger().WithField("records", n).WithField("output", args[1]).Info("rewrite finished")
		return nil
	},
}

func init() {
	rewriteCmd.Flags().Uint8Var(&rewriteDataByte, "data-byte", 0x42, "value written to the first payload byte")
}

// runRewrite copies in to out, patching payloads on the way. It returns the
// number of records written.
func runRewrite(cfg *config.Config, in, out string, b byte) (int, error) {
	src, err := openSource(cfg, in)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := pcapfile.Create(out, pcapfile.DefaultSnaplen, src.LinkType())
	if err != nil {
		return 0, err
	}

	for n := 1; ; n++ {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dst.Close()
			return dst.Count(), err
		}

		encoded, err := patchRecord(rec, cfg.Compare.ByteOrder.ByteOrder, b)
		if err != nil {
			dst.Close()
			return dst.Count(), fmt.Errorf("record %d: %w", n, err)
		}
		if err := dst.Write(rec.Info, encoded); err != nil {
			dst.Close()
			return dst.Count(), err
		}
	}

	return dst.Count(), dst.Close()
}

func patchRecord(rec core.Record, order binary.ByteOrder, b byte) ([]byte, error) {
	v, err := usbmon.Decode(rec, usbmon.WithByteOrder(order))
	if err != nil {
		return nil, err
	}
	if v.DataLen() > 0 {
		data := v.Data()
		data[0] = b
		if err := v.Set(usbmon.FieldData, usbmon.Bytes(data)); err != nil {
			return nil, err
		}
	}
	return v.Encode()
}
