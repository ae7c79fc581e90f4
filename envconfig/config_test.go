package envconfig

import (
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":               {"", "127.0.0.1:8000"},
		"only address":        {"1.2.3.4", "1.2.3.4:8000"},
		"only port":           {":1234", ":1234"},
		"address and port":    {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":            {"example.com", "example.com:8000"},
		"hostname and port":   {"example.com:1234", "example.com:1234"},
		"zero port":           {":0", ":0"},
		"too large port":      {":66000", ":8000"},
		"too small port":      {":-1", ":8000"},
		"ipv6 localhost":      {"[::1]", "[::1]:8000"},
		"ipv6 world open":     {"[::]", "[::]:8000"},
		"ipv6 no brackets":    {"::1", "[::1]:8000"},
		"ipv6 + port":         {"[::1]:1337", "[::1]:1337"},
		"extra space":         {" 1.2.3.4 ", "1.2.3.4:8000"},
		"extra quotes":        {"\"1.2.3.4\"", "1.2.3.4:8000"},
		"http scheme":         {"http://example.com", "example.com:80"},
		"https scheme":        {"https://example.com", "example.com:443"},
		"scheme and port":     {"http://1.2.3.4:1234", "1.2.3.4:1234"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CAPTION_HOST", tt.value)
			if host := Host(); host.Host != tt.expect {
				t.Errorf("%s: erwartet %s, erhalten %s", name, tt.expect, host.Host)
			}
		})
	}
}

func TestArtifactPaths(t *testing.T) {
	t.Setenv("CAPTIONING_ARTIFACTS_DIR", "")
	if got := WeightsPath(); got != filepath.Join("captioning-model", "caption_model.gguf") {
		t.Errorf("WeightsPath() = %s", got)
	}

	t.Setenv("CAPTIONING_ARTIFACTS_DIR", "/srv/model")
	if got := VocabPath(); got != filepath.Join("/srv/model", "vocab.json") {
		t.Errorf("VocabPath() = %s", got)
	}

	t.Setenv("CAPTIONING_METADATA_PATH", "/etc/meta.json")
	if got := MetadataPath(); got != "/etc/meta.json" {
		t.Errorf("MetadataPath() = %s", got)
	}
}

func TestOrigins(t *testing.T) {
	t.Setenv("CAPTION_ORIGINS", "")
	if got := AllowedOrigins(); len(got) != 0 {
		t.Errorf("AllowedOrigins() = %v, erwartet leer", got)
	}

	t.Setenv("CAPTION_ORIGINS", "http://a.example, https://b.example,")
	if diff := cmp.Diff([]string{"http://a.example", "https://b.example"}, AllowedOrigins()); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":     60 * time.Second,
		"5s":   5 * time.Second,
		"30":   30 * time.Second,
		"0":    time.Duration(math.MaxInt64),
		"-1s":  time.Duration(math.MaxInt64),
		"junk": 60 * time.Second,
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CAPTION_REQUEST_TIMEOUT", value)
			if got := RequestTimeout(); got != expect {
				t.Errorf("%s: erwartet %s, erhalten %s", value, expect, got)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"t":     slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CAPTION_DEBUG", value)
			if got := LogLevel(); got != expect {
				t.Errorf("%s: erwartet %s, erhalten %s", value, expect, got)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"0":    0,
		"1":    1,
		"junk": 256,
		"":     256,
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CAPTION_CACHE_SIZE", value)
			if got := CacheSize(); got != expect {
				t.Errorf("%s: erwartet %d, erhalten %d", value, expect, got)
			}
		})
	}
}

func TestValues(t *testing.T) {
	vals := Values()
	for _, key := range []string{"CAPTION_HOST", "CAPTIONING_WEIGHTS_PATH", "DETECTION_MODEL_DIR"} {
		if _, ok := vals[key]; !ok {
			t.Errorf("Values() fehlt %s", key)
		}
	}
}
