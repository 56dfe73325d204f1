package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"scriptcast/internal/app"
	"scriptcast/pkg/config"
)

const maxDescriptionRunes = 5000

var (
	genTitle       string
	genLanguage    string
	genColor       string
	genUpload      bool
	genOffline     bool
	genDescription string
	genTags        []string
	genKeywords    []string
	genPrivacy     string
	genOutput      string
)

var generateCmd = &cobra.Command{
	Use:   "generate <script-file>",
	Short: "Generate a video from a script file",
	Long: `Narrate a script file, render one captioned slide per paragraph and
mux everything into a single MP4. With --upload the result is published to
YouTube; otherwise it is kept in the archive directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genTitle, "title", "t", "", "Video title (required)")
	generateCmd.Flags().StringVarP(&genLanguage, "lang", "l", "en", "Narration language code")
	generateCmd.Flags().StringVarP(&genColor, "color", "c", "#000000", "Slide background color")
	generateCmd.Flags().BoolVarP(&genUpload, "upload", "u", false, "Upload to YouTube after generation")
	generateCmd.Flags().BoolVar(&genOffline, "offline", false, "Use silent placeholder narration")
	generateCmd.Flags().StringVarP(&genDescription, "description", "d", "", "YouTube description (defaults to the script)")
	generateCmd.Flags().StringSliceVar(&genTags, "tags", nil, "YouTube tags")
	generateCmd.Flags().StringSliceVar(&genKeywords, "keywords", nil, "Keywords merged into the tags")
	generateCmd.Flags().StringVar(&genPrivacy, "privacy", "", "public, unlisted or private (defaults to config)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Directory to keep the rendered video in")
	_ = generateCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	script, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	keepOutput(cfg)

	built, err := app.BuildService(ctx, cfg, app.BuildOptions{Offline: genOffline, Publish: genUpload})
	if err != nil {
		return err
	}
	defer func() { _ = built.Close() }()

	req := app.VideoRequest{
		Title:           genTitle,
		Script:          string(script),
		LanguageCode:    genLanguage,
		BackgroundColor: genColor,
	}

	var meta *app.UploadMetadata
	var bar *progressbar.ProgressBar
	if genUpload {
		meta = uploadMetadata(cfg, req)
		meta.Progress = func(sent, total int64) {
			if bar == nil {
				bar = progressbar.DefaultBytes(total, "Uploading")
			}
			_ = bar.Set64(sent)
		}
	}

	fmt.Println(titleStyle.Render("Generating " + genTitle))
	result, err := built.Service.Run(ctx, req, meta, printState)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return reportFailure(ctx, err)
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Video ready: %.1fs, %d segments", result.Duration, len(result.Segments))))
	for _, path := range result.Archived {
		fmt.Println(infoStyle.Render("  Saved: " + path))
	}
	if len(result.Archived) > 0 {
		fmt.Println(infoStyle.Render("  List later with: scriptcast archive list " + result.RunID))
	}
	if result.Published {
		fmt.Println(successStyle.Render("✓ Published: " + result.URL))
	}
	return nil
}

// keepOutput makes sure a generate-only run leaves its video behind, since
// the run workspace is always released.
func keepOutput(cfg *config.Config) {
	if genOutput != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Bucket = ""
		cfg.Archive.Dir = genOutput
		return
	}
	if !genUpload {
		cfg.Archive.Enabled = true
	}
}

func uploadMetadata(cfg *config.Config, req app.VideoRequest) *app.UploadMetadata {
	description := genDescription
	if description == "" {
		description = truncateRunes(strings.TrimSpace(req.Script), maxDescriptionRunes)
	}
	privacy := genPrivacy
	if privacy == "" {
		privacy = cfg.YouTube.PrivacyStatus
	}
	return &app.UploadMetadata{
		Title:        req.Title,
		Description:  description,
		Tags:         genTags,
		Keywords:     genKeywords,
		Privacy:      privacy,
		LanguageCode: req.LanguageCode,
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func printState(runID string, state app.State) {
	fmt.Println(infoStyle.Render(fmt.Sprintf("  [%s] %s", shortID(runID), state)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func reportFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Println(warnStyle.Render("Interrupted, workspace cleaned up"))
		return err
	}

	var stageErr *app.StageError
	if errors.As(err, &stageErr) {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ Failed during %s (%s)", stageErr.Stage, app.Kind(err))))
	} else {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ Failed (%s)", app.Kind(err))))
	}
	if app.Kind(err) == "auth" {
		fmt.Println(infoStyle.Render("  Run: scriptcast auth youtube"))
	}
	return err
}
