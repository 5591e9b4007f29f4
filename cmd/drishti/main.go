package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/config"
	"github.com/ayusman/drishti/internal/control"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/display"
	"github.com/ayusman/drishti/internal/server"
	"github.com/ayusman/drishti/internal/store"
	"github.com/ayusman/drishti/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	withTray := flag.Bool("tray", false, "Show a system tray menu")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	slog.Info("starting drishti",
		"config", *configPath,
		"addr", cfg.Server.Addr,
		"models", len(cfg.Models),
		"debug", *debug)

	if err := run(cfg, *withTray); err != nil {
		slog.Error("drishti failed", "error", err)
		os.Exit(1)
	}
	slog.Info("drishti stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, config.Validate(cfg)
	}
	return config.Load(path)
}

func run(cfg *config.Config, withTray bool) error {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	backend, err := detector.ParseBackend(cfg.Detector.Backend)
	if err != nil {
		return err
	}

	a := app.New(app.Config{
		Store:  st,
		Loader: detector.NewLoader(cfg.LoaderConfig()),
		Coordinator: coordinator.Config{
			Confidence:       cfg.Detector.Confidence,
			NMS:              cfg.Detector.NMS,
			ThrottleInterval: time.Duration(cfg.Detector.ThrottleMs) * time.Millisecond,
			Mode:             detector.Mode(cfg.Detector.Mode),
		},
		Session:        cfg.SessionConfig(),
		Surfaces:       display.NewRegistry(cfg.Outputs),
		DefaultOutput:  cfg.Outputs[0].Name,
		DefaultModel:   cfg.Detector.Model,
		DefaultBackend: backend,
		AutoLoad:       cfg.Detector.AutoLoad,
	})
	defer a.Close()

	facing := a.RestoreSettings()
	if !a.OpenCamera(facing) {
		slog.Warn("camera not started, open it through the API", "facing", facing)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MQTT.Broker != "" {
		stop, err := startMQTT(ctx, cfg.MQTT, a)
		if err != nil {
			slog.Warn("mqtt disabled", "error", err)
		} else {
			defer stop()
		}
	}

	srv := server.New(server.Config{
		StaticDir: findWebDir(cfg.Server.StaticDir),
		App:       a,
	})
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if withTray {
		// The tray owns the main goroutine; quitting it ends the run.
		t := newTray(a, cfg.Server.Addr, cancel)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-errCh:
		slog.Error("http server failed", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}

	return runErr
}

func startMQTT(ctx context.Context, cfg config.MQTTConfig, a *app.App) (func(), error) {
	client, err := control.Connect(control.ClientConfig{Broker: cfg.Broker, ClientID: cfg.ClientID})
	if err != nil {
		return nil, err
	}

	handler := control.NewHandler(control.HandlerConfig{Topic: cfg.Topics.Control, QoS: cfg.QoS}, client, a)
	if err := handler.Start(ctx); err != nil {
		client.Disconnect(250)
		return nil, err
	}

	emitter := control.NewEmitter(control.EmitterConfig{Topic: cfg.Topics.Detections, QoS: cfg.QoS}, client)
	sub := a.Subscribe(app.DefaultSubscriberBuffer)
	go emitter.Run(ctx, sub.C)

	return func() {
		sub.Close()
		handler.Stop()
		client.Disconnect(250)
		slog.Info("mqtt disconnected", "stats", emitter.Stats())
	}, nil
}

type trayRunner struct {
	*tray.Tray
	sub *app.Subscription
}

func newTray(a *app.App, addr string, quit func()) *trayRunner {
	st := a.Status()
	facing := capture.FacingFront
	if f, err := capture.ParseFacing(st.Camera.Facing); err == nil {
		facing = f
	}
	mode := detector.ModeHumanOnly
	if st.Detector.Mode == detector.ModeHumanAndVehicle.String() {
		mode = detector.ModeHumanAndVehicle
	}

	t := tray.New(mode, facing)
	t.OnToggleMode(func(m detector.Mode) bool {
		return a.SetDetectMode(int(m)) == nil
	})
	t.OnSwitchCamera(a.OpenCamera)
	t.OnDashboard(func() { openBrowser(dashboardURL(addr)) })
	t.OnQuit(quit)

	sub := a.Subscribe(1)
	go func() {
		for e := range sub.C {
			t.SetObjects(len(e.Objects), e.FPS)
		}
	}()

	return &trayRunner{Tray: t, sub: sub}
}

// Quit closes the tray menu from outside the menu loop.
func (r *trayRunner) Quit() {
	r.sub.Close()
	tray.Quit()
}

func dashboardURL(addr string) string {
	host := addr
	if strings.HasPrefix(addr, ":") {
		host = "127.0.0.1" + addr
	}
	return "http://" + host + "/"
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Warn("failed to open browser", "url", url, "error", err)
		return
	}
	go cmd.Wait()
}

// findWebDir resolves the configured static directory. It checks the path as
// given, then relative to the parent directories, then ~/.drishti/web.
// Returns an empty string if none is found.
func findWebDir(dir string) string {
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		return ""
	}

	for _, p := range []string{dir, filepath.Join("..", dir), filepath.Join("..", "..", dir)} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".drishti", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
