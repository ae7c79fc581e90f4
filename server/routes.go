// Package server - HTTP-Oberflaeche fuer Captioning und Objekt-Detektion
//
// Dieses Modul enthaelt:
// - Server: haelt Engine, Detektor-Loader, Semaphore und Caption-Cache
// - New: liest Parallelitaet, Timeout und Cache-Groesse aus envconfig
// - GenerateRoutes: erstellt den gin-Router
// - run: fuehrt eine Inferenz mit Slot und Zeitlimit aus
// - guard: faengt einen panic der Inferenz ab
package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/detect"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

// Server beantwortet Caption- und Detektions-Anfragen
type Server struct {
	engine   *caption.Engine
	paths    caption.Paths
	detector *detect.Loader

	sem     *semaphore.Weighted
	timeout time.Duration
	cache   *lru.Cache[string, caption.Result]
}

// New erzeugt einen Server. Die Engine darf noch nicht geladen sein.
func New(engine *caption.Engine, paths caption.Paths, detector *detect.Loader) (*Server, error) {
	s := &Server{
		engine:   engine,
		paths:    paths,
		detector: detector,
		sem:      semaphore.NewWeighted(int64(max(envconfig.NumParallel(), 1))),
		timeout:  envconfig.RequestTimeout(),
	}

	if size := envconfig.CacheSize(); size > 0 && !envconfig.NoCache() {
		cache, err := lru.New[string, caption.Result](int(size))
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	return s, nil
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		requestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	if origins := envconfig.AllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowAllOrigins = false
		corsConfig.AllowWildcard = true
		corsConfig.AllowOrigins = origins
	}

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		requestIDMiddleware(),
		metricsMiddleware(),
		uploadLimitMiddleware(int64(envconfig.MaxUpload())),
	)

	// General
	r.HEAD("/", s.RootHandler)
	r.GET("/", s.RootHandler)
	r.GET("/health", s.HealthHandler)
	r.HEAD("/api/version", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Captioning
	r.POST("/caption", s.CaptionHandler)

	// Objekt-Detektion
	r.POST("/detect", s.DetectHandler)
	r.POST("/detect/base64", s.DetectBase64Handler)
	r.GET("/categories", s.CategoriesHandler)

	return r
}

// run belegt einen Inferenz-Slot und fuehrt fn mit dem Zeitlimit des Servers
// aus. Laeuft das Zeitlimit ab, wird fn aufgegeben: der Aufruf laeuft im
// Hintergrund zu Ende und gibt den Slot erst dann frei.
func (s *Server) run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	inferenceInflight.Inc()

	done := make(chan error, 1)
	go func() {
		defer func() {
			inferenceInflight.Dec()
			s.sem.Release(1)
		}()
		done <- guard(ctx, fn)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// guard fuehrt fn aus und macht aus einem panic errInference. Die
// Inferenz laeuft nicht im Handler-Goroutine, gin.Recovery greift dort nicht.
func guard(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("inference panic", "panic", r, "stack", string(debug.Stack()))
			err = errInference
		}
	}()

	return fn(ctx)
}
