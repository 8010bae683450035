package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zynaudio/engine/internal/fakehost"
	"github.com/zynaudio/engine/internal/paeng"
	"github.com/zynaudio/engine/pkg/host"
	"github.com/zynaudio/engine/pkg/meter"
	"github.com/zynaudio/engine/pkg/mixer"
	"github.com/zynaudio/engine/pkg/player"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

var (
	engineDeviceIdx  int
	engineFramesPer  int
	engineSampleRate int
	engineOscHost    string
	engineOscPort    int
	engineVerbose    bool
)

// engineCmd represents the engine command: one channel strip per input
// file, summed through a mixbus to a single output device.
var engineCmd = &cobra.Command{
	Use:   "engine <audio_file> [audio_file...]",
	Short: "Play multiple files through a channel/mixbus mixer to one output device",
	Long: `Run the full two-tier mixing engine: each input file plays through its
own streaming file player and channel strip, summed via the mixbus's
normalise bus onto a single stereo output device.

Examples:
  # Mix two files down to the default device
  zynaudio-engine engine drums.wav bass.flac

  # Subscribe an OSC client to channel meters
  zynaudio-engine engine --osc-host 127.0.0.1 --osc-port 9000 *.wav`,
	Args: cobra.MinimumNArgs(1),
	Run:  runEngine,
}

func init() {
	rootCmd.AddCommand(engineCmd)

	engineCmd.Flags().IntVarP(&engineDeviceIdx, "device", "d", 1, "Audio output device index")
	engineCmd.Flags().IntVarP(&engineFramesPer, "frames", "f", 1024, "Host frames per process block")
	engineCmd.Flags().IntVar(&engineSampleRate, "samplerate", 48000, "Host sample rate in Hz")
	engineCmd.Flags().StringVar(&engineOscHost, "osc-host", "", "Subscribe this OSC client host for strip meters")
	engineCmd.Flags().IntVar(&engineOscPort, "osc-port", 1370, "OSC client port (with --osc-host)")
	engineCmd.Flags().BoolVarP(&engineVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

// routedPlayer ties a file player's own process function to the mixer
// channel strip it feeds, so the composite vbus callback can wire its
// output straight into the strip's input each block.
type routedPlayer struct {
	eng                *player.Engine
	fn                 host.ProcessFunc
	outA, outB         host.Port
	stripInA, stripInB host.Port
}

func runEngine(cmd *cobra.Command, args []string) {
	setupLogging(engineVerbose)

	for _, f := range args {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			slog.Error("File not found", "path", f)
			os.Exit(1)
		}
	}

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	// vbus wires players to mixer strips entirely in-process; only the
	// mixbus main strip's output ever reaches real hardware, bridged
	// below through the paeng stream's own process callback.
	vbus := fakehost.New(engineSampleRate, engineFramesPer)

	mixEngine := mixer.NewEngine(mixer.Mixbus, engineSampleRate, engineFramesPer)
	if err := mixEngine.RegisterMainPorts(vbus); err != nil {
		slog.Error("Failed to register mixbus main ports", "error", err)
		os.Exit(1)
	}
	mainOutA, mainOutB, _ := mixEngine.StripOutputPorts(0)

	var routed []routedPlayer
	for _, fileName := range args {
		eng := player.New(player.DefaultConfig(), engineSampleRate)
		if err := eng.OpenFile(fileName); err != nil {
			slog.Error("Failed to open file", "file", fileName, "error", err)
			continue
		}

		outA, outB, midiIn, err := eng.RegisterPorts(vbus)
		if err != nil {
			slog.Error("Failed to register player ports", "file", fileName, "error", err)
			continue
		}

		idx, err := mixEngine.AddStrip(vbus)
		if err != nil {
			slog.Error("Failed to add mixer strip", "file", fileName, "error", err)
			continue
		}
		stripInA, stripInB, _ := mixEngine.StripInputPorts(idx)
		mixEngine.SetNormalise(idx, true)
		mixEngine.SetInRouted(idx, true)
		mixEngine.SetOutRouted(idx, true)
		mixEngine.EnableDpm(idx, true)

		routed = append(routed, routedPlayer{
			eng:      eng,
			fn:       eng.ProcessFunc(outA, outB, midiIn),
			outA:     outA,
			outB:     outB,
			stripInA: stripInA,
			stripInB: stripInB,
		})
		eng.Start()
		slog.Info("Channel strip added", "file", fileName, "strip", idx)
	}

	if len(routed) == 0 {
		slog.Error("No files could be opened")
		os.Exit(1)
	}

	mixEngine.EnableDpm(0, true)
	if engineOscHost != "" {
		mixEngine.AddOscClient(engineOscHost, engineOscPort)
		meterLoop := meter.New(mixEngine, 0)
		meterLoop.Start()
		defer meterLoop.Stop()
		slog.Info("OSC meter client subscribed", "host", engineOscHost, "port", engineOscPort)
	}

	mixerFn := mixEngine.ProcessFunc()
	vbus.SetProcessCallback(func(ctx host.ProcessContext) {
		for _, rp := range routed {
			rp.fn(ctx)
			copy(ctx.Input(rp.stripInA), ctx.Output(rp.outA))
			copy(ctx.Input(rp.stripInB), ctx.Output(rp.outB))
		}
		mixerFn(ctx)
	})
	vbus.Activate()

	hw := paeng.New(engineDeviceIdx, engineSampleRate, engineFramesPer)
	masterA, err := hw.RegisterAudioOutput("master_a")
	if err != nil {
		slog.Error("Failed to register master output", "error", err)
		os.Exit(1)
	}
	masterB, err := hw.RegisterAudioOutput("master_b")
	if err != nil {
		slog.Error("Failed to register master output", "error", err)
		os.Exit(1)
	}

	hw.SetProcessCallback(func(ctx host.ProcessContext) {
		vbus.Process(ctx.Frames())
		copy(ctx.Output(masterA), vbus.Output(mainOutA))
		copy(ctx.Output(masterB), vbus.Output(mainOutB))
	})

	if err := hw.Activate(); err != nil {
		slog.Error("Failed to activate stream", "error", err)
		os.Exit(1)
	}
	defer hw.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			allStopped := true
			for _, rp := range routed {
				if rp.eng.State() != player.Stopped {
					allStopped = false
					break
				}
			}
			if allStopped {
				slog.Info("All files finished")
				return
			}
		case sig := <-sigChan:
			slog.Info("Signal received, stopping", "signal", sig)
			for _, rp := range routed {
				rp.eng.Stop()
			}
			time.Sleep(100 * time.Millisecond)
			return
		}
	}
}
