// Package api - Hauptmodul des API-Clients.
// Dieses Modul enthaelt die Client-Struktur und die Request-Methoden.
// Stream-Methoden sind in client_stream.go.
//
// Package api implements the client-side API for code wishing to interact
// with the caption service. The methods of the [Client] type correspond to
// the routes of the HTTP server. The command-line client itself uses this
// package to interact with a running server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/version"
)

// Client encapsulates client state for interacting with the caption
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from the
// environment variable CAPTION_HOST, which points to the network host and
// port on which the caption service is listening. The format of this
// variable is:
//
//	<scheme>://<host>:<port>
//
// If the variable is not specified, a default host and port will be used.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func userAgent() string {
	return fmt.Sprintf("vision-voice/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, reqBody io.Reader, respData any) error {
	requestURL := c.base.JoinPath(path)
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent())

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// multipartImage baut einen multipart/form-data Body mit dem Feld "file"
func multipartImage(filename string, data []byte) (string, *bytes.Buffer, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename))}
	h["Content-Type"] = []string{http.DetectContentType(data)}

	part, err := w.CreatePart(h)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(data); err != nil {
		return "", nil, err
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}

	return w.FormDataContentType(), &buf, nil
}

// Caption laedt ein Bild hoch und gibt die Caption zurueck. Mit debug=true
// enthaelt die Antwort die Diagnosewerte des vorverarbeiteten Bildes.
func (c *Client) Caption(ctx context.Context, filename string, data []byte, debug bool) (*CaptionResponse, error) {
	contentType, body, err := multipartImage(filename, data)
	if err != nil {
		return nil, err
	}

	var query url.Values
	if debug {
		query = url.Values{"debug": {"true"}}
	}

	var resp CaptionResponse
	if err := c.do(ctx, http.MethodPost, "/caption", query, contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (o DetectOptions) values() url.Values {
	q := url.Values{}
	if o.Conf != nil {
		q.Set("conf", strconv.FormatFloat(*o.Conf, 'g', -1, 64))
	}
	if o.IoU != nil {
		q.Set("iou", strconv.FormatFloat(*o.IoU, 'g', -1, 64))
	}
	if o.ImgSz != nil {
		q.Set("imgsz", strconv.Itoa(*o.ImgSz))
	}
	if o.MaxDet != nil {
		q.Set("max_det", strconv.Itoa(*o.MaxDet))
	}
	return q
}

// Detect laedt ein Bild hoch und gibt die erkannten Objekte zurueck
func (c *Client) Detect(ctx context.Context, filename string, data []byte, opts DetectOptions) (*DetectResponse, error) {
	contentType, body, err := multipartImage(filename, data)
	if err != nil {
		return nil, err
	}

	var resp DetectResponse
	if err := c.do(ctx, http.MethodPost, "/detect", opts.values(), contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DetectBase64 sendet ein Base64-kodiertes Bild (oder eine Data-URL)
func (c *Client) DetectBase64(ctx context.Context, req *DetectBase64Request, opts DetectOptions) (*DetectResponse, error) {
	bts, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp DetectResponse
	if err := c.do(ctx, http.MethodPost, "/detect/base64", opts.values(), "application/json", bytes.NewReader(bts), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Categories gibt die Klassen des Detektors zurueck
func (c *Client) Categories(ctx context.Context) (*CategoriesResponse, error) {
	var resp CategoriesResponse
	if err := c.do(ctx, http.MethodGet, "/categories", nil, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health gibt den Zustand des Servers zurueck
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, "", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, "", nil, nil)
}
