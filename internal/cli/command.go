package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/setu/internal"
	"codeberg.org/snonux/setu/internal/anki"
	"codeberg.org/snonux/setu/internal/archive"
	"codeberg.org/snonux/setu/internal/bundle"
	"codeberg.org/snonux/setu/internal/curriculum"
	"codeberg.org/snonux/setu/internal/logger"
	"codeberg.org/snonux/setu/internal/models"
	"codeberg.org/snonux/setu/internal/normalize"
	"codeberg.org/snonux/setu/internal/pipeline"
	"codeberg.org/snonux/setu/internal/publish"
)

// Exit codes returned by the setu binary.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
)

// ExitCode maps a command error onto the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var validationErr *curriculum.ValidationError
	if errors.As(err, &validationErr) {
		return ExitValidation
	}
	return ExitFailure
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "setu",
		Short: "Curriculum asset compiler for language courses",
		Long: `setu compiles a leveled vocabulary curriculum into a deployable asset
bundle: one audio file per item plus a JSON manifest with the native
meaning, target text and a pronunciation aid in the learner's script.

Runs are idempotent. Audio that already exists is never synthesized again.

Examples:
  setu                          # Build the built-in Tamil curriculum into ./assets
  setu build -c words.yaml      # Build a curriculum file
  setu validate -c words.yaml   # Check a curriculum without calling any backend
  setu anki                     # Export the built manifest as an Anki deck
  setu publish --bucket my-app  # Upload the asset root to Cloud Storage`,
		Args:          cobra.NoArgs,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize(flags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd)
		},
	}

	setupFlags(rootCmd, flags)

	rootCmd.AddCommand(
		newBuildCommand(),
		newValidateCommand(),
		newAnkiCommand(flags),
		newPublishCommand(flags),
		newArchiveCommand(),
		newModelsCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	pf := cmd.PersistentFlags()

	// Global flags
	pf.StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.setu.yaml or ./.setu.yaml)")
	pf.StringVarP(&flags.AssetsRoot, "assets", "o", flags.AssetsRoot, "Asset root directory")
	pf.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")

	// Build flags, shared by the root command and build
	pf.StringVarP(&flags.Curriculum, "curriculum", "c", "", "Curriculum file (.json, .yaml or .toml; default is the built-in curriculum)")
	pf.StringVar(&flags.AudioProvider, "audio-provider", flags.AudioProvider, "Audio provider: edge, openai, espeak, mms, gemini")
	pf.StringVarP(&flags.AudioFormat, "format", "f", "", "Audio format (default is the provider's native format)")
	pf.StringVar(&flags.Voice, "voice", "", "Provider specific voice (default depends on the language)")
	pf.StringVarP(&flags.Language, "language", "l", flags.Language, "Language code passed to the audio provider")
	pf.IntVarP(&flags.Workers, "workers", "w", flags.Workers, "Parallel transliteration calls")
	pf.StringVar(&flags.MissingAudio, "missing-audio", flags.MissingAudio, "Manifest entry for failed synthesis: keep or omit")

	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	viper.BindPFlag("output.assets_root", pf.Lookup("assets"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("curriculum.path", pf.Lookup("curriculum"))
	viper.BindPFlag("audio.provider", pf.Lookup("audio-provider"))
	viper.BindPFlag("audio.format", pf.Lookup("format"))
	viper.BindPFlag("audio.voice", pf.Lookup("voice"))
	viper.BindPFlag("audio.language", pf.Lookup("language"))
	viper.BindPFlag("transliteration.workers", pf.Lookup("workers"))
	viper.BindPFlag("output.missing_audio", pf.Lookup("missing-audio"))
}

// initialize loads configuration and sets up logging before any command runs.
func initialize(flags *Flags) error {
	if err := InitConfig(flags.CfgFile); err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level: viper.GetString("log.level"),
		File:  viper.GetString("log.file"),
	}); err != nil {
		return err
	}
	if file := viper.ConfigFileUsed(); file != "" {
		logger.L.Debugw("Using config file", "path", file)
	}
	return nil
}

func newBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Compile the curriculum into the asset root (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd)
		},
	}
}

func runBuild(cmd *cobra.Command) error {
	cfg, err := ResolveConfig()
	if err != nil {
		return err
	}
	log := logger.L

	def, err := LoadCurriculum(cfg)
	if err != nil {
		return err
	}
	// Reject a bad curriculum before any backend is constructed.
	if err := curriculum.Validate(def, normalize.Normalize); err != nil {
		return err
	}

	bridge, err := NewBridge(cfg, log)
	if err != nil {
		return err
	}
	synth, closeSynth, err := NewSynthesizer(cfg, log)
	if err != nil {
		return err
	}
	defer closeSynth()

	p, err := NewPipeline(cfg, bridge, synth, log)
	if err != nil {
		return err
	}

	report, err := p.Run(cmd.Context(), def, cfg.AssetsRoot)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), pipeline.RenderReport(report))
	return nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the curriculum without calling any backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolveConfig()
			if err != nil {
				return err
			}
			def, err := LoadCurriculum(cfg)
			if err != nil {
				return err
			}
			if err := curriculum.Validate(def, normalize.Normalize); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Curriculum OK: %d levels, %d items\n", len(def.Levels), def.ItemCount())
			return nil
		},
	}
}

func newAnkiCommand(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anki",
		Short: "Export the built manifest as an Anki deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnki(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.DeckName, "deck", flags.DeckName, "Deck name")
	cmd.Flags().BoolVar(&flags.AnkiCSV, "csv", false, "Write a CSV import file instead of an APKG package")
	cmd.Flags().StringVar(&flags.AnkiOutput, "output", "", "Output file (default is <assets>/<deck>.apkg or .csv)")
	viper.BindPFlag("anki.deck", cmd.Flags().Lookup("deck"))
	return cmd
}

func runAnki(cmd *cobra.Command, flags *Flags) error {
	cfg, err := ResolveConfig()
	if err != nil {
		return err
	}
	log := logger.L

	manifest, err := bundle.Read(cfg.ManifestFile())
	if err != nil {
		return err
	}
	cards, missing := anki.CardsFromManifest(manifest, cfg.AssetsRoot)
	for _, file := range missing {
		log.Warnw("Audio file missing, card exported without sound", "file", file)
	}

	ext := ".apkg"
	if flags.AnkiCSV {
		ext = ".csv"
	}
	output := flags.AnkiOutput
	if output == "" {
		output = filepath.Join(cfg.AssetsRoot, internal.SanitizeFilename(cfg.DeckName)+ext)
	}

	if flags.AnkiCSV {
		err = internal.WriteFileAtomic(output, func(w io.Writer) error {
			return anki.WriteCSV(w, cards, true)
		})
	} else {
		gen := anki.NewAPKGGenerator(cfg.DeckName)
		gen.AddCards(cards...)
		err = gen.GenerateAPKG(output)
	}
	if err != nil {
		return fmt.Errorf("failed to write Anki export: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cards to %s\n", len(cards), output)
	return nil
}

func newPublishCommand(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the manifest and its audio to a Cloud Storage bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd)
		},
	}
	cmd.Flags().StringVar(&flags.Bucket, "bucket", "", "Destination bucket")
	cmd.Flags().StringVar(&flags.Prefix, "prefix", "", "Object name prefix")
	viper.BindPFlag("publish.bucket", cmd.Flags().Lookup("bucket"))
	viper.BindPFlag("publish.prefix", cmd.Flags().Lookup("prefix"))
	return cmd
}

func runPublish(cmd *cobra.Command) error {
	cfg, err := ResolveConfig()
	if err != nil {
		return err
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("no bucket configured: use --bucket or publish.bucket")
	}

	manifestRel, err := filepath.Rel(cfg.AssetsRoot, cfg.ManifestFile())
	if err != nil || strings.HasPrefix(manifestRel, "..") {
		return fmt.Errorf("manifest %s is outside the asset root %s", cfg.ManifestFile(), cfg.AssetsRoot)
	}

	ctx := cmd.Context()
	store, err := publish.NewGCSStore(ctx, cfg.Bucket)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := publish.NewPublisher(store, cfg.Prefix, cfg.Timeout, logger.L).Publish(ctx, cfg.AssetsRoot, manifestRel)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d objects to gs://%s", len(result.Uploaded), cfg.Bucket)
	if len(result.Missing) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), " (%d referenced audio files missing)", len(result.Missing))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func newArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move the asset root aside so the next build starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolveConfig()
			if err != nil {
				return err
			}
			dest, err := archive.ArchiveAssets(cfg.AssetsRoot, time.Now())
			if errors.Is(err, archive.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to archive: %s does not exist\n", cfg.AssetsRoot)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s to %s\n", cfg.AssetsRoot, dest)
			return nil
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List OpenAI models available to the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := models.NewLister(GetOpenAIKey()).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			catalog.Print(cmd.OutOrStdout())
			return nil
		},
	}
}
