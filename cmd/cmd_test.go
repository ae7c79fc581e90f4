package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelCStrahl/vision-voice-project/api"
	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/caption/captiontest"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewCLI()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, captiontest.PNG(t, w, h), 0o644))
	return path
}

func artifactsDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cfg := captiontest.Config()
	captiontest.WriteArtifacts(t, dir, cfg, captiontest.Vocabulary(), captiontest.RandomModel(t, cfg, 3))
	return dir
}

func TestCaptionLocal(t *testing.T) {
	dir := artifactsDir(t)
	img := writeImage(t, t.TempDir(), "a.png", 12, 9)

	a, err := caption.Load(t.Context(), caption.PathsInDir(dir))
	require.NoError(t, err)
	engine := caption.NewEngine()
	engine.Set(a)
	data, err := os.ReadFile(img)
	require.NoError(t, err)
	want, err := engine.GenerateCaption(t.Context(), data)
	require.NoError(t, err)

	out, err := execute(t, "caption", "--local", "--dir", dir, img)
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	out, err = execute(t, "caption", "--local", "--debug", "--dir", dir, img, img)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, img+": "))
	assert.Contains(t, out, "sha256")
	assert.Contains(t, out, "steps")
}

func TestCaptionLocalMissingArtifacts(t *testing.T) {
	img := writeImage(t, t.TempDir(), "a.png", 4, 4)

	_, err := execute(t, "caption", "--local", "--dir", t.TempDir(), img)
	assert.ErrorIs(t, err, caption.ErrArtifactNotFound)
}

func TestInspect(t *testing.T) {
	dir := artifactsDir(t)

	out, err := execute(t, "inspect", "--dir", dir)
	require.NoError(t, err)

	for _, want := range []string{"Artifacts", "gguf", "seq length", "Vocabulary", `"<start>"`, "SHA256"} {
		assert.Contains(t, out, want)
	}
}

func TestInspectDump(t *testing.T) {
	dir := artifactsDir(t)

	a, err := caption.Load(t.Context(), caption.PathsInDir(dir))
	require.NoError(t, err)
	names := a.TensorNames()
	require.NotEmpty(t, names)
	tensor, ok := a.Tensor(names[0])
	require.True(t, ok)

	out, err := execute(t, "inspect", "--dir", dir, "--dump", names[0])
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%s %v", names[0], tensor.Shape))
	assert.Contains(t, out, ml.Dump(tensor))
	assert.NotContains(t, out, "SHA256")

	_, err = execute(t, "inspect", "--dir", dir, "--dump", "missing/kernel")
	assert.ErrorContains(t, err, `tensor "missing/kernel" not found`)
}

func newFakeServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	t.Setenv("CAPTION_HOST", ts.URL)
}

func TestNewerVersion(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"0.2.0", "0.1.9", true},
		{"v1.0.0", "0.9.0", true},
		{"0.1.0", "0.1.0", false},
		{"0.1.0", "0.2.0", false},
		{"", "0.1.0", false},
		{"dev", "0.1.0", false},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, newerVersion(tt.a, tt.b), "%q > %q", tt.a, tt.b)
	}
}

func TestVersionOlderClient(t *testing.T) {
	newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		json.NewEncoder(w).Encode(api.VersionResponse{Version: "99.0.0"}) //nolint:errcheck
	})

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "server version is 99.0.0")
	assert.Contains(t, out, "client version is "+version.Version)
	assert.Contains(t, out, "client is older than the server")
}

func TestCaptionRemote(t *testing.T) {
	newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/caption", r.URL.Path)
		if r.URL.Query().Get("stream") == "true" {
			enc := json.NewEncoder(w)
			enc.Encode(api.CaptionStreamResponse{Index: 0, Token: "a"})
			enc.Encode(api.CaptionStreamResponse{Index: 1, Token: "dog"})
			enc.Encode(api.CaptionStreamResponse{Done: true, Caption: "a dog"})
			return
		}
		json.NewEncoder(w).Encode(api.CaptionResponse{Success: true, Caption: "a dog runs"})
	})
	img := writeImage(t, t.TempDir(), "a.png", 4, 4)

	out, err := execute(t, "caption", img)
	require.NoError(t, err)
	assert.Equal(t, "a dog runs\n", out)

	out, err = execute(t, "caption", "--stream", img)
	require.NoError(t, err)
	assert.Equal(t, "a dog\n", out)
}

func TestDetectRemote(t *testing.T) {
	newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, "0.6", r.URL.Query().Get("conf"))
		assert.False(t, r.URL.Query().Has("imgsz"))

		json.NewEncoder(w).Encode(api.DetectResponse{
			Success: true,
			Message: "Detectados 1 objetos",
			Count:   1,
			DetectedObjects: []api.DetectedObject{
				{Class: "dog", ClassID: 16, Confidence: 0.91, BBox: []float64{1, 2, 3, 4}},
			},
		})
	})
	img := writeImage(t, t.TempDir(), "a.png", 4, 4)

	out, err := execute(t, "detect", "--conf", "0.6", img)
	require.NoError(t, err)
	assert.Contains(t, out, "Detectados 1 objetos")
	assert.Contains(t, out, "dog")
	assert.Contains(t, out, "0.910")
	assert.Contains(t, out, "1.0,2.0,3.0,4.0")
}

func TestServerNotResponding(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	t.Setenv("CAPTION_HOST", ts.URL)

	_, err := execute(t, "caption", filepath.Join(t.TempDir(), "a.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not responding")
}
