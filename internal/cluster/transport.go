// Package cluster provides the node-to-node JSON-over-HTTP transport shared
// by every role in the cluster (config server, shard server, router).
// See doc.go for package documentation.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpClient is the shared HTTP client used for all cluster communication.
// Package-level so connections are pooled across calls; 5s timeout bounds
// how long a stuck peer can hold up a caller that passes context.Background.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body JSON-encoded as a POST to url and, if out is
// non-nil, decodes the response body into it. Used by internal/wire's
// command transport, cmd/router's config sync, and internal/repl's
// progress reporter.
func PostJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON sends a GET request to url and decodes the JSON response into
// out. Used by internal/repl's heartbeat monitor to poll members.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
