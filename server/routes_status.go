// routes_status.go - Status-Endpunkte
// Enthaelt: RootHandler(), HealthHandler(), runtimeInfo(), memoryInfo()

package server

import (
	"net/http"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

// RootHandler meldet, dass der Server laeuft
func (s *Server) RootHandler(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}

	c.JSON(http.StatusOK, api.RootResponse{
		Message:  "Captioning API online",
		Status:   "online",
		ModelDir: s.detector.Dir(),
	})
}

// HealthHandler meldet den Lade-Zustand beider Modelle. Die Antwort ist
// immer 200, der Zustand steht in "status".
func (s *Server) HealthHandler(c *gin.Context) {
	st := s.engine.Status()

	resp := api.HealthResponse{
		Status:       string(st.State),
		ArtifactsDir: envconfig.ArtifactsDir(),
		WeightsPath:  s.paths.Weights,
		VocabPath:    s.paths.Vocab,
		MetadataPath: s.paths.Metadata,
		Runtime:      runtimeInfo(),
		Detector:     s.detectorHealth(),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}

	if a, err := s.engine.Artifacts(); err == nil {
		resp.SHA256 = &api.ArtifactHashes{
			Weights:  a.SHA256.Weights,
			Vocab:    a.SHA256.Vocab,
			Metadata: a.SHA256.Metadata,
		}
		resp.Runtime.Format = a.Format
		resp.Runtime.Tensors = a.NumTensors
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) detectorHealth() *api.DetectorHealth {
	st := s.detector.Status()

	h := &api.DetectorHealth{
		Status:       "healthy",
		ModelLoaded:  st.Loaded,
		ConfigLoaded: st.Loaded,
		LabelsLoaded: st.Loaded,
		LabelsCount:  st.LabelsCount,
		Memory:       memoryInfo(),
	}
	if st.Err != nil {
		msg := st.Err.Error()
		h.Status, h.Error = "error", &msg
		modelReady.WithLabelValues("detector").Set(0)
	} else {
		modelReady.WithLabelValues("detector").Set(1)
	}
	return h
}

func runtimeInfo() api.RuntimeInfo {
	return api.RuntimeInfo{
		Version:   version.Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
	}
}

func memoryInfo() api.MemoryInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return api.MemoryInfo{
		SysMB:       float64(m.Sys) / humanize.MiByte,
		HeapAllocMB: float64(m.HeapAlloc) / humanize.MiByte,
	}
}

// captionReady aktualisiert die Metrik nach dem Laden der Engine
func captionReady(st caption.Status) {
	if st.State == caption.StateReady {
		modelReady.WithLabelValues("caption").Set(1)
	} else {
		modelReady.WithLabelValues("caption").Set(0)
	}
}
