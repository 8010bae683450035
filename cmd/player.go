package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zynaudio/engine/internal/paeng"
	"github.com/zynaudio/engine/pkg/player"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	deviceIdx       int
	playFramesPer   int
	playSampleRate  int
	playLoop        bool
	showVersion     bool
	verbose         bool
)

// playerCmd represents the play command
var playerCmd = &cobra.Command{
	Use:   "play <audio_file>",
	Short: "Play an audio file through a single realtime stream",
	Long: `Play an audio file (MP3, FLAC, WAV) directly to an output device, through
the streaming file player: a background reader decodes and sample-rate
converts the file into a ring buffer, and a realtime PortAudio callback
drains it.

Examples:
  # Play an MP3 file
  zynaudio-engine play music.mp3

  # Play a FLAC file on a specific device, looping
  zynaudio-engine play -d 0 --loop music.flac`,
	Args: cobra.ExactArgs(1),
	Run:  runPlayer,
}

func init() {
	rootCmd.AddCommand(playerCmd)

	playerCmd.Flags().IntVarP(&deviceIdx, "device", "d", 1, "Audio output device index")
	playerCmd.Flags().IntVarP(&playFramesPer, "frames", "f", 1024, "Host frames per process block")
	playerCmd.Flags().IntVar(&playSampleRate, "samplerate", 48000, "Host sample rate in Hz")
	playerCmd.Flags().BoolVar(&playLoop, "loop", false, "Loop playback at end of file")
	playerCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	playerCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}

func runPlayer(cmd *cobra.Command, args []string) {
	if showVersion {
		fmt.Printf("zynaudio-engine v%s\n", version)
		os.Exit(0)
	}

	fileName := args[0]
	setupLogging(verbose)

	if _, err := os.Stat(fileName); os.IsNotExist(err) {
		slog.Error("File not found", "path", fileName)
		os.Exit(1)
	}

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		slog.Error("Hint: make sure PortAudio is installed on your system")
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	h := paeng.New(deviceIdx, playSampleRate, playFramesPer)

	eng := player.New(player.DefaultConfig(), playSampleRate)
	eng.SetLoop(playLoop)

	if err := eng.OpenFile(fileName); err != nil {
		slog.Error("Failed to open file", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	outA, outB, midiIn, err := eng.RegisterPorts(h)
	if err != nil {
		slog.Error("Failed to register ports", "error", err)
		os.Exit(1)
	}
	h.SetProcessCallback(eng.ProcessFunc(outA, outB, midiIn))

	if err := h.Activate(); err != nil {
		slog.Error("Failed to activate stream", "error", err)
		os.Exit(1)
	}
	defer h.Close()

	eng.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusDone := make(chan struct{})
	go monitorPlayerStatus(eng, statusDone)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if eng.State() == player.Stopped {
				close(statusDone)
				slog.Info("Playback completed")
				return
			}
		case sig := <-sigChan:
			slog.Info("Signal received, stopping playback", "signal", sig)
			eng.Stop()
			close(statusDone)
			return
		}
	}
}

func monitorPlayerStatus(eng *player.Engine, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			slog.Info("Playback status",
				"state", eng.State().String(),
				"position", fmt.Sprintf("%.1fs", eng.Position()),
				"volume", eng.Volume())
		case <-done:
			return
		}
	}
}

func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}
