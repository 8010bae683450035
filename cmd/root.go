package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zynaudio-engine",
	Short: "Realtime streaming file player and two-tier mixing engine",
	Long: `zynaudio-engine - a streaming file player and channel/mixbus mixing
engine built around a lock-free ring buffer and a realtime audio callback.

Features:
  - Lock-free SPSC ring buffer feeding a realtime audio callback
  - Background reader worker: decode, sample-rate-convert, buffer
  - MIDI Control Change transport, position, volume and loop control
  - Two-tier channel/mixbus mixing with gain ramping, balance, mute,
    solo, mono fold, M/S decode, phase invert, DPM metering and
    pre/post-fader effect sends
  - Support for MP3, FLAC, and WAV audio formats

Commands:
  - play: Play a single audio file directly to an output device
  - engine: Run N file players through a channel/mixbus mixer to one output device
  - transform: Convert audio files to different sample rates and WAV format`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
