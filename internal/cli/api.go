package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiTimeout = 2 * time.Minute

// apiError is the error body returned by the scanner API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// postJSON sends body to the scanner API and decodes a 2xx reply into dest.
// Any other status becomes an ExitCommandError carrying the API error code.
func postJSON(ctx context.Context, base, path string, body, dest any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return WrapExitError(ExitCommandError, "encode request", err)
		}
		payload = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	url := strings.TrimRight(base, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return WrapExitError(ExitCommandError, "scanner unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Code == "" {
			e.Code = http.StatusText(resp.StatusCode)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("%s %s: %d %s: %s", http.MethodPost, path, resp.StatusCode, e.Code, e.Message))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return WrapExitError(ExitCommandError, "decode response", err)
	}
	return nil
}
