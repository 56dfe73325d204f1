package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"scriptcast/internal/app"
	"scriptcast/pkg/config"
)

var (
	serveAddr    string
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the video processing API",
	Long: `Start an HTTP server exposing POST /api/process, which generates a
video from the submitted script and publishes it to YouTube.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (defaults to config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "Use silent placeholder narration")
	rootCmd.AddCommand(serveCmd)
}

type videoRunner interface {
	Run(ctx context.Context, req app.VideoRequest, meta *app.UploadMetadata, observer app.Observer) (*app.RunResult, error)
}

type processRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Script          string   `json:"script"`
	Tags            []string `json:"tags"`
	Keywords        []string `json:"keywords"`
	PrivacyStatus   string   `json:"privacyStatus"`
	LanguageCode    string   `json:"languageCode"`
	BackgroundColor string   `json:"backgroundColor"`
}

type processResponse struct {
	Success    bool     `json:"success"`
	VideoID    string   `json:"videoId,omitempty"`
	YouTubeURL string   `json:"youtubeUrl,omitempty"`
	Duration   float64  `json:"duration,omitempty"`
	Segments   []string `json:"segments,omitempty"`
	Error      string   `json:"error,omitempty"`
	Kind       string   `json:"kind,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	built, err := app.BuildService(ctx, cfg, app.BuildOptions{Offline: serveOffline, Publish: true})
	if err != nil {
		return err
	}
	defer func() { _ = built.Close() }()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(built.Service),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	fmt.Println(successStyle.Render("✓ Listening on " + addr))

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func newRouter(runner videoRunner) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now()})
	})
	router.POST("/api/process", processHandler(runner))
	return router
}

func processHandler(runner videoRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body processRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, processResponse{Error: "invalid request body: " + err.Error(), Kind: "validation"})
			return
		}

		req := app.VideoRequest{
			Title:           body.Title,
			Script:          body.Script,
			LanguageCode:    body.LanguageCode,
			BackgroundColor: body.BackgroundColor,
		}
		meta := &app.UploadMetadata{
			Title:        body.Title,
			Description:  body.Description,
			Tags:         body.Tags,
			Keywords:     body.Keywords,
			Privacy:      body.PrivacyStatus,
			LanguageCode: body.LanguageCode,
		}

		started := time.Now()
		result, err := runner.Run(c.Request.Context(), req, meta, func(runID string, state app.State) {
			slog.Debug("Request run state", "run", runID, "state", state)
		})
		if err != nil {
			kind := app.Kind(err)
			status := http.StatusInternalServerError
			if kind == "validation" {
				status = http.StatusBadRequest
			}
			slog.Error("Processing failed", "kind", kind, "error", err)
			c.JSON(status, processResponse{Error: err.Error(), Kind: kind})
			return
		}

		slog.Info("Processed request", "video", result.VideoID, "elapsed", time.Since(started))
		c.JSON(http.StatusOK, processResponse{
			Success:    true,
			VideoID:    result.VideoID,
			YouTubeURL: result.URL,
			Duration:   result.Duration,
			Segments:   result.Segments,
		})
	}
}
