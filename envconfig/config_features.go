// config_features.go - Parallelitaet, Limits und Cache
//
// Dieses Modul enthaelt:
// - Parallelitaets-Einstellungen fuer Inferenz-Requests
// - Upload-Limit
// - Groesse des Caption-Caches
// - Pfad der ONNX-Runtime-Bibliothek
package envconfig

import "runtime"

// =============================================================================
// Parallelitaets- und Queue-Einstellungen
// =============================================================================

var (
	// NumParallel setzt die Anzahl gleichzeitiger Inferenz-Aufrufe
	// Konfigurierbar via CAPTION_NUM_PARALLEL
	NumParallel = Uint("CAPTION_NUM_PARALLEL", uint(runtime.NumCPU()))
)

// =============================================================================
// Request-Limits und Cache
// =============================================================================

var (
	// MaxUpload begrenzt die Groesse hochgeladener Bilder (in Bytes)
	// Konfigurierbar via CAPTION_MAX_UPLOAD
	MaxUpload = Uint64("CAPTION_MAX_UPLOAD", 20<<20)

	// CacheSize setzt die Anzahl gecachter Captions (0 = deaktiviert)
	// Konfigurierbar via CAPTION_CACHE_SIZE
	CacheSize = Uint("CAPTION_CACHE_SIZE", 256)

	// NoCache deaktiviert den Caption-Cache unabhaengig von CAPTION_CACHE_SIZE
	NoCache = Bool("CAPTION_NOCACHE")
)

// =============================================================================
// ONNX Runtime
// =============================================================================

var (
	// OnnxRuntimeLib setzt den Pfad der onnxruntime Shared Library
	// Konfigurierbar via ONNXRUNTIME_LIB (leer = Suchpfad des Systems)
	OnnxRuntimeLib = String("ONNXRUNTIME_LIB")
)
