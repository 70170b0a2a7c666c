package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
)

var devicesCmd = &cobra.Command{
	Use:     "devices [DEVICE_ID...]",
	Short:   "Show the status of output devices",
	Long:    paragraph(fmt.Sprintf("\n%s the default output device and any device ids given, and print what each reports.", keyword("Query"))),
	Example: paragraph("sinkpool devices\nsinkpool devices hdmi usb --backend mock"),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPool(cfg)
		if err != nil {
			return err
		}
		defer p.close() //nolint:errcheck

		owner := frame.New()
		owner.AddObserver(frame.NewSinkEvictor(p.cache))
		defer owner.Destroy()

		ids := append([]string{device.DefaultDeviceID}, args...)
		infos := make([]device.Info, 0, len(ids))
		for _, id := range ids {
			infos = append(infos, p.cache.GetSinkInfo(owner.Token(), device.SessionID{}, id))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s backend\n\n", keyword(string(p.backend)))
		return writeTable(cmd.OutOrStdout(), deviceColumns(infos), deviceRows(infos))
	},
}

func deviceColumns(infos []device.Info) []column {
	return []column{
		{Header: "device"},
		{Header: "status", Style: func(row int, s string) string {
			return statusStyle(infos[row].Status).Render(s)
		}},
		{Header: "format"},
		{Header: "buffer"},
		{Header: "rate"},
	}
}

func deviceRows(infos []device.Info) [][]string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		p := info.Params
		rows = append(rows, []string{
			info.DeviceID,
			statusLabel(info.Status),
			fmt.Sprintf("%s Hz, %d ch, %d-bit", humanize.Comma(int64(p.SampleRate)), p.Channels, p.BitDepth),
			p.BufferDuration.Round(time.Millisecond).String(),
			humanize.Bytes(uint64(p.BytesPerSecond())) + "/s", //nolint:gosec
		})
	}
	return rows
}
