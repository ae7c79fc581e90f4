// routes_caption.go - Handler fuer POST /caption
// Enthaelt: CaptionHandler(), streamCaption(), readUpload()

package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/caption"
)

// readUpload liest das Multipart-Feld "file"
func readUpload(c *gin.Context) ([]byte, *multipart.FileHeader, error) {
	hdr, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", errMissingFile, err)
	}

	f, err := hdr.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, hdr, nil
}

// queryBool liest einen optionalen Bool-Parameter
func queryBool(c *gin.Context, key string) (bool, error) {
	s, ok := c.GetQuery(key)
	if !ok || s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", errInvalidQuery, key, s)
	}
	return b, nil
}

// CaptionHandler erzeugt die Caption fuer ein hochgeladenes Bild
func (s *Server) CaptionHandler(c *gin.Context) {
	debug, err := queryBool(c, "debug")
	if err != nil {
		abortWithError(c, err)
		return
	}
	stream, err := queryBool(c, "stream")
	if err != nil {
		abortWithError(c, err)
		return
	}

	// vor dem Lesen des Uploads, damit ein startender Server sofort 503 meldet
	a, err := s.engine.Artifacts()
	if err != nil {
		abortWithError(c, err)
		return
	}

	data, hdr, err := readUpload(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	slog.Info("caption request",
		"request_id", requestID(c),
		"file", hdr.Filename,
		"content_type", hdr.Header.Get("Content-Type"),
		"size", len(data),
		"sha256", digest,
	)

	if stream {
		s.streamCaption(c, data)
		return
	}

	key := digest + ":" + a.SHA256.Weights
	res, ok := s.cachedCaption(key)
	if !ok {
		err := s.run(c.Request.Context(), func(ctx context.Context) (err error) {
			res, err = s.engine.Generate(ctx, data, nil)
			return err
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		captionSteps.Observe(float64(res.Steps))
		if s.cache != nil {
			s.cache.Add(key, res)
		}
	}

	resp := api.CaptionResponse{Success: true, Caption: res.Caption}
	if debug {
		summary, err := s.engine.Diagnose(data)
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.Debug = &api.CaptionDebug{
			SHA256:    digest,
			Bytes:     len(data),
			ImageMean: summary.Mean,
			ImageStd:  summary.Std,
			ImageMin:  summary.Min,
			ImageMax:  summary.Max,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) cachedCaption(key string) (caption.Result, bool) {
	if s.cache == nil {
		return caption.Result{}, false
	}

	res, ok := s.cache.Get(key)
	if ok {
		captionCache.WithLabelValues("hit").Inc()
	} else {
		captionCache.WithLabelValues("miss").Inc()
	}
	return res, ok
}

// streamCaption schreibt jedes Token als NDJSON-Zeile und zum Schluss die
// fertige Caption. Fehler vor der ersten Zeile werden als normale
// Fehlerantwort gemeldet, danach als Zeile {"error": "..."}.
func (s *Server) streamCaption(c *gin.Context, data []byte) {
	wrote := false
	write := func(v any) error {
		bts, err := json.Marshal(v)
		if err != nil {
			return err
		}

		if !wrote {
			c.Header("Content-Type", "application/x-ndjson")
			c.Status(http.StatusOK)
			wrote = true
		}
		if _, err := c.Writer.Write(append(bts, '\n')); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	// Zeilen werden direkt aus dem Decoder geschrieben, daher laeuft der
	// Aufruf hier synchron und endet ueber den Kontext zwischen zwei Schritten
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		abortWithError(c, err)
		return
	}
	inferenceInflight.Inc()
	defer func() {
		inferenceInflight.Dec()
		s.sem.Release(1)
	}()

	var res caption.Result
	err := guard(ctx, func(ctx context.Context) (err error) {
		res, err = s.engine.Generate(ctx, data, func(step caption.Step) error {
			return write(api.CaptionStreamResponse{Index: step.Index, Token: step.Token})
		})
		return err
	})
	if err != nil {
		if !wrote {
			abortWithError(c, err)
			return
		}
		slog.Warn("caption stream aborted", "request_id", requestID(c), "error", err)
		write(gin.H{"error": err.Error()})
		return
	}

	captionSteps.Observe(float64(res.Steps))
	if err := write(api.CaptionStreamResponse{
		Index:      res.Steps,
		Done:       true,
		DoneReason: string(res.Reason),
		Caption:    res.Caption,
		Steps:      res.Steps,
	}); err != nil {
		slog.Warn("caption stream write failed", "request_id", requestID(c), "error", err)
	}
}
