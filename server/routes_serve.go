// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/detect"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/logutil"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

// Serve startet den HTTP-Server. Die Caption-Artefakte werden im Hintergrund
// geladen, bis dahin beantwortet /caption Anfragen mit 503.
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	paths := caption.PathsFromEnv()
	engine := caption.NewEngine()
	detector := detect.NewLoader(envconfig.DetectionModelDir())

	s, err := New(engine, paths, detector)
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())

	go func() {
		start := time.Now()
		err := engine.Load(ctx, paths)
		captionReady(engine.Status())
		if err != nil {
			// der Server bleibt erreichbar und meldet den Fehler ueber /health
			slog.Error("caption artifacts failed to load", "error", err)
			return
		}
		slog.Info("caption artifacts loaded", "elapsed", time.Since(start))
	}()

	go func() {
		if _, err := detector.Get(); err != nil {
			slog.Warn("detection model not available at startup", "dir", detector.Dir(), "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	// listen for a ctrl+c and release the loaded models
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		if err := detector.Close(); err != nil {
			slog.Warn("closing detection model", "error", err)
		}
		done()
	}()

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !slices.Contains([]error{http.ErrServerClosed}, err) {
		return err
	}
	<-ctx.Done()
	return nil
}
