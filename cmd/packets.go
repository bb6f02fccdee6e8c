// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

var (
	packetsTown string
	packetsDong string
	packetsHo   string
	packetsDate string
)

var packetsCmd = &cobra.Command{
	Use:   "packets",
	Short: "Print the request frames without connecting",
	Long: `Assemble every request frame the client sends and print it as a hex dump.

The authentication frame is built with zeroed credential blobs so that no
account hash is printed. Energy requests are built for both layouts using the
given site address and date (today by default).

Useful for comparing frames with a packet capture of the official app.`,
	RunE: runPackets,
}

func init() {
	rootCmd.AddCommand(packetsCmd)
	packetsCmd.Flags().StringVar(&packetsTown, "town", "0000", "Town code (4 hex digits)")
	packetsCmd.Flags().StringVar(&packetsDong, "dong", "0000", "Dong code (4 hex digits)")
	packetsCmd.Flags().StringVar(&packetsHo, "ho", "0000", "Ho code (4 hex digits)")
	packetsCmd.Flags().StringVar(&packetsDate, "date", "", "Poll date as YYYY-MM-DD (default today)")
}

func runPackets(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if packetsDate != "" {
		t, err := time.ParseInLocation("2006-01-02", packetsDate, time.Local)
		if err != nil {
			return errors.Wrap(err, "invalid --date")
		}
		now = t
	}
	addr := kocom.SiteAddress{Town: packetsTown, Dong: packetsDong, Ho: packetsHo}

	frames, err := requestFrames(addr, now)
	if err != nil {
		return err
	}
	return printFrames(cmd.OutOrStdout(), frames)
}

// maskedCredentials returns credentials whose blobs are all zero.
func maskedCredentials() (kocom.Credentials, error) {
	return kocom.NewCredentials("0.0.0.0",
		strings.Repeat("0", kocom.UsernameWidth),
		strings.Repeat("0", kocom.PasswordWidth),
		strings.Repeat("0", kocom.PushTokenWidth),
		strings.Repeat("0", kocom.PhoneWidth))
}

// requestFrames assembles every request in session order.
func requestFrames(addr kocom.SiteAddress, now time.Time) ([]kocom.Frame, error) {
	creds, err := maskedCredentials()
	if err != nil {
		return nil, err
	}
	auth, err := kocom.BuildAuthRequest(creds)
	if err != nil {
		return nil, err
	}
	frames := []kocom.Frame{auth, kocom.MenuRequest(), kocom.AddressRequest()}

	for _, d := range []kocom.DisplayType{kocom.DisplayLayout1, kocom.DisplayLayout3} {
		f, err := kocom.BuildEnergyRequest(d, addr, now)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func printFrames(w io.Writer, frames []kocom.Frame) error {
	for _, f := range frames {
		data, err := f.Bytes()
		if err != nil {
			return errors.Wrapf(err, "%s frame", f.Name)
		}
		fmt.Fprintf(w, "%s (%d bytes)\n", strings.ToUpper(f.Name), f.Len())
		fmt.Fprint(w, kocom.FormatHexDump(data))
		fmt.Fprintln(w)
	}
	return nil
}
