// routes_detect.go - Handler fuer die Objekt-Detektion
// Enthaelt: DetectHandler(), DetectBase64Handler(), CategoriesHandler()

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/detect"
)

// detectParams ueberlagert die Standardwerte aus config.json mit den
// Query-Parametern conf, iou, imgsz und max_det
func detectParams(c *gin.Context, defaults detect.Params) (detect.Params, error) {
	p := defaults

	floats := map[string]*float64{"conf": &p.Conf, "iou": &p.IoU}
	for key, dst := range floats {
		if s, ok := c.GetQuery(key); ok && s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return p, fmt.Errorf("%w: %s=%q", errInvalidQuery, key, s)
			}
			*dst = v
		}
	}

	ints := map[string]*int{"imgsz": &p.ImgSz, "max_det": &p.MaxDet}
	for key, dst := range ints {
		if s, ok := c.GetQuery(key); ok && s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return p, fmt.Errorf("%w: %s=%q", errInvalidQuery, key, s)
			}
			*dst = v
		}
	}

	return p, nil
}

// DetectHandler erkennt Objekte in einem hochgeladenen Bild
func (s *Server) DetectHandler(c *gin.Context) {
	data, hdr, err := readUpload(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if ct := hdr.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		abortWithError(c, fmt.Errorf("%w: content type %q", errNotAnImage, ct))
		return
	}

	s.detect(c, data)
}

// DetectBase64Handler erkennt Objekte in einem Base64-Bild oder einer Data-URL
func (s *Server) DetectBase64Handler(c *gin.Context) {
	var req api.DetectBase64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := detect.DecodeBase64Image(req.ImageBase64)
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.detect(c, data)
}

func (s *Server) detect(c *gin.Context, data []byte) {
	d, err := s.detector.Get()
	if err != nil {
		abortWithError(c, err)
		return
	}

	p, err := detectParams(c, d.Config.Params())
	if err != nil {
		abortWithError(c, err)
		return
	}

	var det *detect.Detection
	err = s.run(c.Request.Context(), func(ctx context.Context) (err error) {
		det, err = d.Detect(ctx, data, p)
		return err
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	objects := make([]api.DetectedObject, len(det.Objects))
	for i, o := range det.Objects {
		objects[i] = api.DetectedObject{
			Class:      o.Class,
			Confidence: o.Confidence,
			ClassID:    o.ClassID,
			BBox:       o.BBox,
		}
	}

	slog.Info("detection", "request_id", requestID(c), "objects", len(objects), "elapsed", det.Elapsed)

	c.JSON(http.StatusOK, api.DetectResponse{
		Success:         true,
		Message:         fmt.Sprintf("Detectados %d objetos", len(objects)),
		DetectedObjects: objects,
		AllPredictions:  []any{},
		Categories:      d.Labels,
		Threshold:       det.Params.Conf,
		Count:           len(objects),
		Config: api.DetectConfig{
			Model:        d.Config.Model,
			ImgSz:        det.Params.ImgSz,
			Conf:         det.Params.Conf,
			IoU:          det.Params.IoU,
			MaxDet:       det.Params.MaxDet,
			ReturnBBoxes: d.Config.ReturnBBoxes,
		},
		TimingMS: map[string]float64{"predict": float64(det.Elapsed.Microseconds()) / 1000},
	})
}

// CategoriesHandler gibt die Klassen des Detektors zurueck
func (s *Server) CategoriesHandler(c *gin.Context) {
	d, err := s.detector.Get()
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.CategoriesResponse{Categories: d.Labels, Count: len(d.Labels)})
}
