// Package api - Stream-basierte Client-Methoden.
// Dieses Modul enthaelt alle Methoden, die NDJSON-Responses verwenden.

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/dustin/go-humanize"
)

const maxBufferSize = 8 * humanize.MiByte

func (c *Client) stream(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, fn func([]byte) error) error {
	requestURL := c.base.JoinPath(path)
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), body)
	if err != nil {
		return err
	}

	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/x-ndjson")
	request.Header.Set("User-Agent", userAgent())

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	scanner := bufio.NewScanner(response.Body)
	// increase the buffer size to avoid running out of space
	scanBuf := make([]byte, 0, maxBufferSize)
	scanner.Buffer(scanBuf, maxBufferSize)
	for scanner.Scan() {
		var errorResponse struct {
			Error string `json:"error,omitempty"`
		}

		bts := scanner.Bytes()
		if err := json.Unmarshal(bts, &errorResponse); err != nil {
			if response.StatusCode >= http.StatusBadRequest {
				return StatusError{
					StatusCode:   response.StatusCode,
					Status:       response.Status,
					ErrorMessage: string(bts),
				}
			}
			return errors.New(string(bts))
		}

		if response.StatusCode >= http.StatusBadRequest {
			return StatusError{
				StatusCode:   response.StatusCode,
				Status:       response.Status,
				ErrorMessage: errorResponse.Error,
			}
		}

		if errorResponse.Error != "" {
			return errors.New(errorResponse.Error)
		}

		if err := fn(bts); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// CaptionStream laedt ein Bild hoch und ruft fn fuer jedes erzeugte Token
// und abschliessend mit der fertigen Caption (Done) auf
func (c *Client) CaptionStream(ctx context.Context, filename string, data []byte, fn CaptionStreamFunc) error {
	contentType, body, err := multipartImage(filename, data)
	if err != nil {
		return err
	}

	query := url.Values{"stream": {"true"}}
	return c.stream(ctx, http.MethodPost, "/caption", query, contentType, body, func(bts []byte) error {
		var resp CaptionStreamResponse
		if err := json.Unmarshal(bts, &resp); err != nil {
			return err
		}

		return fn(resp)
	})
}
