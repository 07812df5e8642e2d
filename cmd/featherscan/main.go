// cmd/featherscan/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/AlverezYari/featherscan/internal/config"
	"github.com/AlverezYari/featherscan/internal/logging"
	"github.com/AlverezYari/featherscan/internal/server"
	"github.com/AlverezYari/featherscan/internal/tui"
	"github.com/AlverezYari/featherscan/pkg/camera/gocvcam"
	"github.com/AlverezYari/featherscan/pkg/decode"
	"github.com/AlverezYari/featherscan/pkg/preview"
)

// results fans decoded symbols out to the UI and the websocket clients.
type results struct {
	ui     *tui.Bridge
	server *server.Server
	logger *zap.Logger
}

func (r results) OnDecodeResult(res decode.Result) {
	r.logger.Info("barcode", zap.String("format", string(res.Format)), zap.String("text", res.Text))
	r.server.BroadcastResult(res)
	if r.ui != nil {
		r.ui.OnDecodeResult(res)
	}
}

func (r results) OnPipelineException(err error) {
	r.logger.Warn("decode pipeline", zap.Error(err))
	if r.ui != nil {
		r.ui.OnPipelineException(err)
	}
}

type status struct {
	Preview preview.Snapshot `json:"preview"`
	Decode  decode.Stats     `json:"decode"`
}

func main() {
	configPath := flag.String("config", "", "Config file (default ~/.config/featherscan/config.json)")
	headless := flag.Bool("headless", false, "Scan without the terminal UI until interrupted")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.Setup(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Validate has already checked every parsed field.
	sizes, _ := cfg.CameraConfig.Sizes()
	formats, _ := cfg.Scanner.DecodeFormats()
	guide, _ := cfg.Scanner.GuideRect()
	hint, _ := cfg.Scanner.Hint()
	viewport, _ := cfg.Scanner.ViewportSize()

	provider := gocvcam.New(
		gocvcam.WithMaxProbe(cfg.CameraConfig.MaxProbe),
		gocvcam.WithMountOrientation(cfg.CameraConfig.MountOrientation),
		gocvcam.WithPreviewSizes(sizes),
		gocvcam.WithLogger(logger.Named("camera")),
	)

	decoder, err := decode.NewZXingDecoder(formats, cfg.Scanner.TryHarder)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	var bridge *tui.Bridge
	if !headless {
		bridge = tui.NewBridge()
	}
	var (
		ctrl     *preview.Controller
		pipeline *decode.Pipeline
	)
	srvOpts := []server.Option{
		server.WithHost(cfg.ServerIP),
		server.WithLogger(logger.Named("server")),
		server.WithStatus(func() any {
			return status{Preview: ctrl.Snapshot(), Decode: pipeline.Stats()}
		}),
		server.WithAction("start", func() error { return ctrl.Start(ctx) }),
		server.WithAction("stop", func() error { return ctrl.Stop() }),
		server.WithAction("pause", func() error { return ctrl.Pause() }),
		server.WithAction("resume", func() error { return ctrl.Resume() }),
		server.WithAction("focus", func() error { return ctrl.AutoFocus() }),
	}
	if bridge != nil {
		srvOpts = append(srvOpts, server.WithLogCallback(bridge.Log))
	}
	srv := server.New(cfg.ServerPort, srvOpts...)

	pipeline = decode.NewPipeline(decoder, results{ui: bridge, server: srv, logger: logger},
		decode.WithGuide(guide),
		decode.WithLogger(logger.Named("decode")))
	worker := decode.NewWorker(pipeline, logger.Named("worker"))
	go worker.Run(ctx)

	var host preview.Host = preview.LogHost{Logger: logger.Named("host")}
	surface := tui.NewTermSurface()
	if !viewport.IsZero() {
		surface.Resize(viewport)
	}
	orientation := preview.NewManualOrientation(0)
	if bridge != nil {
		host = bridge
	}

	ctrl = preview.New(provider, surface, orientation,
		preview.WithFrontCamera(cfg.Scanner.UseFrontCamera),
		preview.WithContinuousAutoFocus(cfg.Scanner.ContinuousAutoFocus),
		preview.WithAutoFocusInterval(cfg.Scanner.AutoFocusInterval()),
		preview.WithFullBleed(cfg.Scanner.FullBleed),
		preview.WithRecordingHint(hint),
		preview.WithOrientationLock(cfg.Scanner.LockOrientation),
		preview.WithFrameHandler(worker),
		preview.WithHost(host),
		preview.WithLogger(logger.Named("preview")),
	)
	defer ctrl.Stop()

	if err := srv.Start(); err != nil {
		logger.Error("web server", zap.Error(err))
	}
	defer func() {
		if srv.IsRunning() {
			srv.Stop()
		}
	}()

	if headless {
		if err := ctrl.Start(ctx); err != nil {
			return fmt.Errorf("starting camera: %w", err)
		}
		logger.Info("scanning", zap.Stringer("viewport", viewport))
		<-ctx.Done()
		return nil
	}

	p := tea.NewProgram(
		tui.New(ctx, cfg, tui.Deps{
			Scanner:     ctrl,
			Devices:     provider,
			Surface:     surface,
			Orientation: orientation,
			Server:      srv,
		}),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	bridge.Attach(p)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
