// MODUL: errors
// ZWECK: Abbildung von Fehlern auf HTTP-Status-Codes
// INPUT: Fehler aus caption, detect und vision
// OUTPUT: JSON-Fehlerantworten {"error": "..."}
// NEBENEFFEKTE: Loggt unerwartete Fehler mit Request-ID
// ABHAENGIGKEITEN: gin (extern), caption, detect, vision
// HINWEISE: Eingabefehler sind 400, fehlende Modelle 503, Zeitueberschreitung 504,
//           alles andere 500

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/detect"
	"github.com/MichaelCStrahl/vision-voice-project/vision"
)

var (
	errMissingFile  = errors.New("file is required")
	errNotAnImage   = errors.New("file must be an image")
	errInvalidQuery = errors.New("invalid query parameter")

	// errInference ersetzt einen panic waehrend der Inferenz, Details
	// stehen nur im Log
	errInference = errors.New("inference failed")
)

// badRequest sind Fehler der Eingabe
var badRequest = []error{
	errMissingFile,
	errNotAnImage,
	errInvalidQuery,
	vision.ErrDecode,
	vision.ErrUnknownFormat,
	vision.ErrUnsupportedFormat,
	detect.ErrInvalidBase64,
	detect.ErrInvalidDataURL,
	detect.ErrInvalidParams,
}

// statusCode gibt den HTTP-Status fuer einen Fehler zurueck
func statusCode(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, caption.ErrNotReady), errors.Is(err, detect.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// abortWithError schreibt die Fehlerantwort und loggt Serverfehler
func abortWithError(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestID(c), "path", c.FullPath(), "status", code, "error", err)
	} else {
		slog.Debug("request rejected", "request_id", requestID(c), "path", c.FullPath(), "status", code, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
