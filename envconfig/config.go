// config.go - Haupt-Konfigurationsfunktionen fuer den Caption-Service
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (CAPTION_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (CAPTION_ORIGINS)
// - ArtifactsDir/WeightsPath/VocabPath/MetadataPath: Artefakt-Pfade
// - DetectionModelDir: Verzeichnis des Objekt-Detektors
// - RequestTimeout: Zeitlimit pro Request (CAPTION_REQUEST_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (CAPTION_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Parallelitaet, Upload-Limit, Cache
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via CAPTION_HOST
// Default: http://127.0.0.1:8000
func Host() *url.URL {
	defaultPort := "8000"

	s := strings.TrimSpace(Var("CAPTION_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt zusaetzliche erlaubte Origins zurueck
// Konfigurierbar via CAPTION_ORIGINS (komma-separiert)
// Leer bedeutet: alle Origins erlaubt
func AllowedOrigins() (origins []string) {
	if s := Var("CAPTION_ORIGINS"); s != "" {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return origins
}

// ArtifactsDir gibt das Verzeichnis der Caption-Artefakte zurueck
// Konfigurierbar via CAPTIONING_ARTIFACTS_DIR
// Default: captioning-model
func ArtifactsDir() string {
	if s := Var("CAPTIONING_ARTIFACTS_DIR"); s != "" {
		return s
	}
	return "captioning-model"
}

// WeightsPath gibt den Pfad der Gewichte zurueck (GGUF oder safetensors)
// Konfigurierbar via CAPTIONING_WEIGHTS_PATH
// Default: <ArtifactsDir>/caption_model.gguf
func WeightsPath() string {
	return pathOr("CAPTIONING_WEIGHTS_PATH", "caption_model.gguf")
}

// VocabPath gibt den Pfad des Vokabulars zurueck
// Konfigurierbar via CAPTIONING_VOCAB_PATH
// Default: <ArtifactsDir>/vocab.json
func VocabPath() string {
	return pathOr("CAPTIONING_VOCAB_PATH", "vocab.json")
}

// MetadataPath gibt den Pfad der Modell-Konfiguration zurueck
// Konfigurierbar via CAPTIONING_METADATA_PATH
// Default: <ArtifactsDir>/metadata.json
func MetadataPath() string {
	return pathOr("CAPTIONING_METADATA_PATH", "metadata.json")
}

func pathOr(key, name string) string {
	if s := Var(key); s != "" {
		return s
	}
	return filepath.Join(ArtifactsDir(), name)
}

// DetectionModelDir gibt das Verzeichnis des Objekt-Detektors zurueck
// Konfigurierbar via DETECTION_MODEL_DIR
// Default: object-detection-model
func DetectionModelDir() string {
	if s := Var("DETECTION_MODEL_DIR"); s != "" {
		return s
	}
	return "object-detection-model"
}

// RequestTimeout gibt das Zeitlimit fuer einen Inferenz-Request zurueck
// Konfigurierbar via CAPTION_REQUEST_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 60 Sekunden
func RequestTimeout() (timeout time.Duration) {
	timeout = 60 * time.Second
	if s := Var("CAPTION_REQUEST_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		}
	}

	if timeout <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return timeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CAPTION_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CAPTION_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
