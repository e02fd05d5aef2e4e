// Command stepsynth plays, renders and checks step-sequencer songs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	stepsynth "github.com/cbegin/stepsynth-go"
	"github.com/cbegin/stepsynth-go/internal/smfexport"
	"github.com/cbegin/stepsynth-go/internal/song"
	"github.com/cbegin/stepsynth-go/internal/tui"
)

var (
	debug      bool
	sampleRate int

	useTUI    bool
	tempo     float64
	loop      bool
	noLoop    bool
	amplitude float64

	outputFile string
	exportTo   string
	tail       float64
)

var logger = slog.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stepsynth",
	Short: "Step-sequencer synthesizer",
	Long: `stepsynth plays songs written as step sequences, one note per step.

Examples:
  stepsynth play
  stepsynth play song.yaml --tui
  stepsynth export song.yaml -o song.wav
  stepsynth midi song.yaml -o song.mid
  stepsynth check song.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

var playCmd = &cobra.Command{
	Use:   "play [song.yaml]",
	Short: "Play a song on the sound card (the built-in demo without an argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

var exportCmd = &cobra.Command{
	Use:   "export [song.yaml]",
	Short: "Render a song to a 16-bit mono WAV file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var midiCmd = &cobra.Command{
	Use:   "midi [song.yaml]",
	Short: "Write a song as a standard MIDI file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMIDI,
}

var checkCmd = &cobra.Command{
	Use:   "check <song.yaml>",
	Short: "Report every malformed note and instrument in a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in instrument presets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range song.PresetNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVarP(&sampleRate, "sample-rate", "r", stepsynth.DefaultSampleRate, "Output sample rate")

	playCmd.Flags().BoolVarP(&useTUI, "tui", "t", false, "Show the interactive step grid")
	playCmd.Flags().Float64Var(&tempo, "tempo", 0, "Override the song tempo in BPM")
	playCmd.Flags().BoolVar(&loop, "loop", false, "Force looping playback")
	playCmd.Flags().BoolVar(&noLoop, "no-loop", false, "Play the song once")
	playCmd.Flags().Float64Var(&amplitude, "amplitude", -1, "Override the master amplitude (0..1)")
	playCmd.MarkFlagsMutuallyExclusive("loop", "no-loop")
	playCmd.Flags().StringVarP(&exportTo, "output", "o", "stepsynth.wav", "File written by the export key in the TUI")

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output WAV file (default: song name with .wav)")
	exportCmd.Flags().Float64Var(&tail, "tail", -1, "Seconds rendered after the last step (default: longest release)")

	midiCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output MIDI file (default: song name with .mid)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(midiCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(presetsCmd)
}

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func loadSong(args []string) (stepsynth.Song, error) {
	if len(args) == 0 {
		return stepsynth.DefaultSong(), nil
	}
	s, err := stepsynth.LoadSong(args[0])
	if err != nil {
		return stepsynth.Song{}, err
	}
	// Playable but suspicious songs still play; malformed notes are silent.
	if err := s.Validate(); err != nil {
		logger.Warn("song has problems", "file", args[0], "err", err)
	}
	return s, nil
}

func outputPath(args []string, ext string) string {
	if outputFile != "" {
		return outputFile
	}
	if len(args) == 0 {
		return "stepsynth" + ext
	}
	base := filepath.Base(args[0])
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := loadSong(args)
	if err != nil {
		return err
	}
	if tempo > 0 {
		s.Tempo = tempo
	}
	if amplitude >= 0 {
		s.Amplitude = amplitude
	}
	switch {
	case loop:
		s.Loop = true
	case noLoop:
		s.Loop = false
	}

	pl, err := stepsynth.NewPlayer(
		stepsynth.WithSampleRate(sampleRate),
		stepsynth.WithSong(s),
		stepsynth.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer pl.Close()

	if useTUI {
		model := tui.New(pl, tui.Options{
			Export: func(done func(error)) {
				pl.Export(context.Background(), exportTo, done)
			},
		})
		pl.Start()
		_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := pl.Watch()
	pl.Start()
	for {
		select {
		case <-ctx.Done():
			pl.Stop()
			pl.Wait()
			return nil
		case ev := <-ch:
			logger.Debug("playback event", "kind", ev.Kind)
			switch ev.Kind {
			case stepsynth.EventFinished:
				fmt.Fprintln(cmd.OutOrStdout(), "playback completed")
			case stepsynth.EventPlaybackEnded:
				pl.Wait()
				return nil
			}
		}
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := loadSong(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := stepsynth.Export(ctx, s,
		stepsynth.WithExportSampleRate(sampleRate),
		stepsynth.WithTail(tail),
		stepsynth.WithExportLogger(logger),
	)
	if err != nil {
		return err
	}
	path := outputPath(args, ".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func runMIDI(cmd *cobra.Command, args []string) error {
	s, err := loadSong(args)
	if err != nil {
		return err
	}
	data, err := smfexport.Encode(s)
	if err != nil {
		return err
	}
	path := outputPath(args, ".mid")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := song.Load(args[0])
	if err != nil {
		return err
	}
	err = s.Validate()
	var verr *song.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			where := "song"
			if p.Track >= 0 && p.Track < len(s.Tracks) {
				where = fmt.Sprintf("track %d (%s)", p.Track+1, s.Tracks[p.Track].Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", where, p.Err)
		}
		return fmt.Errorf("%s: %d problem(s)", args[0], len(verr.Problems))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tracks, %d steps)\n", args[0], len(s.Tracks), s.StepCount())
	return nil
}
