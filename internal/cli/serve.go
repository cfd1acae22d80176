package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/CageChen/imagediff/internal/browser"
	"github.com/CageChen/imagediff/internal/compare"
	"github.com/CageChen/imagediff/internal/config"
	"github.com/CageChen/imagediff/internal/handler"
	"github.com/CageChen/imagediff/internal/logging"
	"github.com/CageChen/imagediff/internal/metrics"
	"github.com/CageChen/imagediff/internal/render"
	"github.com/CageChen/imagediff/internal/scan"
	"github.com/CageChen/imagediff/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// webAssets is the static browser UI, set by the main package.
var webAssets fs.FS

// SetWebAssets sets the file system served at the root of `imagediff serve`.
func SetWebAssets(assets fs.FS) {
	webAssets = assets
}

type serveOptions struct {
	host      string
	port      int
	open      bool
	watch     bool
	sourceRef string
	destRef   string
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve <source> <destination>",
		Short: "Browse a comparison in the web browser",
		Long: `Serve an interactive comparison of <source> and <destination>. The server
binds 127.0.0.1 unless --host or the host config key says otherwise.

The browser lists every entry colored by status and shows the source image,
the destination image and their difference side by side. The copy action
writes the selected source file over the destination.`,
		Args: rootArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, global, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "address to bind (default from config: 127.0.0.1)")
	f.IntVarP(&opts.port, "port", "p", 0, "port to listen on (default from config: 8080)")
	f.BoolVar(&opts.open, "open", false, "open the browser on start")
	f.BoolVar(&opts.watch, "watch", false, "rescan when images change on disk (default from config: true)")
	f.StringVar(&opts.sourceRef, "source-ref", "", "read <source> from this git revision")
	f.StringVar(&opts.destRef, "dest-ref", "", "read <destination> from this git revision")

	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, opts *serveOptions, args []string) error {
	rs, err := openRoots(args, opts.sourceRef, opts.destRef)
	if err != nil {
		return err
	}

	cfg, logger, err := global.setup(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("open") {
		cfg.Open = opts.open
	}
	if flags.Changed("watch") {
		cfg.Watch = opts.watch
	}
	if err := cfg.Validate(); err != nil {
		return &UsageError{Err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	comparer := compare.NewComparer(scan.New(cfg, logger), logger)
	ctrl := browser.NewController(comparer, rs.src, rs.dst, render.NewRenderer(logger), m, logger)
	wsHandler := handler.NewWSHandler(logger)
	ctrl.OnRefresh(wsHandler.OnComparison)

	result, err := ctrl.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.Info("comparison ready",
		"source", result.Source.Root, "destination", result.Destination.Root,
		"new", result.Counts.New, "common", result.Counts.Common, "deleted", result.Counts.Deleted)

	if cfg.Watch {
		if w := startWatcher(ctx, cfg, args, opts, ctrl, wsHandler, logger); w != nil {
			defer func() { _ = w.Stop() }()
		}
	}

	router, err := newRouter(ctrl, wsHandler, m, logger, webAssets)
	if err != nil {
		return err
	}

	addr := listenAddr(cfg)
	url := "http://" + addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server started", "url", url)

	if cfg.Open {
		go openBrowser(url)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// startWatcher watches the local roots; roots read from a git ref never
// change on disk and are skipped. A watcher failure only disables watching.
func startWatcher(
	ctx context.Context, cfg *config.Config, args []string, opts *serveOptions,
	ctrl *browser.Controller, ws *handler.WSHandler, logger *slog.Logger,
) *watcher.Watcher {
	var dirs []string
	if opts.sourceRef == "" {
		dirs = append(dirs, args[0])
	}
	if opts.destRef == "" {
		dirs = append(dirs, args[1])
	}
	if len(dirs) == 0 {
		return nil
	}

	w, err := watcher.New(cfg, dirs, logger)
	if err != nil {
		logger.Warn("failed to create file watcher", "error", err)
		return nil
	}
	w.OnChange(func(events []watcher.Event) {
		ws.OnFileChange(events)
		if _, err := ctrl.Refresh(ctx); err != nil {
			logger.Warn("refresh after change failed", "error", err)
		}
	})
	if err := w.Start(); err != nil {
		logger.Warn("failed to start file watcher", "error", err)
		_ = w.Stop()
		return nil
	}
	logger.Info("file watcher enabled", "dirs", dirs)
	return w
}

func newRouter(
	ctrl *browser.Controller, ws *handler.WSHandler, m *metrics.Metrics,
	logger *slog.Logger, assets fs.FS,
) (*gin.Engine, error) {
	logger = logging.OrNop(logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	api := r.Group("/api")
	handler.NewCompareHandler(ctrl).Register(api)
	api.GET("/ws", ws.HandleWS)

	r.GET("/metrics", gin.WrapH(m.Handler()))

	if assets != nil {
		webContent, err := fs.Sub(assets, "web")
		if err != nil {
			return nil, fmt.Errorf("failed to load web assets: %w", err)
		}
		r.NoRoute(gin.WrapH(http.FileServer(http.FS(webContent))))
	}
	return r, nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// listenAddr joins the configured host and port. The UI is same-origin, so no
// CORS headers are sent and the default host keeps the copy action off the
// network.
func listenAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		cmd = "open"
		args = []string{url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	_ = exec.Command(cmd, args...).Start()
}
