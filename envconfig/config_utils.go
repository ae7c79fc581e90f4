// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CAPTION_DEBUG":            {"CAPTION_DEBUG", LogLevel(), "Show additional debug information (e.g. CAPTION_DEBUG=1)"},
		"CAPTION_HOST":             {"CAPTION_HOST", Host(), "IP Address for the caption server (default 127.0.0.1:8000)"},
		"CAPTION_ORIGINS":          {"CAPTION_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins (default: all)"},
		"CAPTION_REQUEST_TIMEOUT":  {"CAPTION_REQUEST_TIMEOUT", RequestTimeout(), "Upper bound for a single caption or detection request (default \"60s\")"},
		"CAPTION_NUM_PARALLEL":     {"CAPTION_NUM_PARALLEL", NumParallel(), "Maximum number of concurrent inference calls"},
		"CAPTION_MAX_UPLOAD":       {"CAPTION_MAX_UPLOAD", MaxUpload(), "Maximum upload size in bytes (default 20 MiB)"},
		"CAPTION_CACHE_SIZE":       {"CAPTION_CACHE_SIZE", CacheSize(), "Number of cached captions (default 256, 0 disables)"},
		"CAPTION_NOCACHE":          {"CAPTION_NOCACHE", NoCache(), "Disable the caption cache"},
		"CAPTIONING_ARTIFACTS_DIR": {"CAPTIONING_ARTIFACTS_DIR", ArtifactsDir(), "Directory with weights, vocab.json and metadata.json"},
		"CAPTIONING_WEIGHTS_PATH":  {"CAPTIONING_WEIGHTS_PATH", WeightsPath(), "Path of the caption model weights (.gguf or .safetensors)"},
		"CAPTIONING_VOCAB_PATH":    {"CAPTIONING_VOCAB_PATH", VocabPath(), "Path of the vocabulary"},
		"CAPTIONING_METADATA_PATH": {"CAPTIONING_METADATA_PATH", MetadataPath(), "Path of the model configuration"},
		"DETECTION_MODEL_DIR":      {"DETECTION_MODEL_DIR", DetectionModelDir(), "Directory with the object detector config.json, labels.json and model"},
		"ONNXRUNTIME_LIB":          {"ONNXRUNTIME_LIB", OnnxRuntimeLib(), "Path of the onnxruntime shared library"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
