package firmware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubflash/go-hubflash/protocol"
)

// Fetcher retrieves a packaged firmware archive for a hub type.
// Used by the standard install flow when no archive was pre-supplied.
type Fetcher interface {
	Fetch(ctx context.Context, hub protocol.HubType) ([]byte, error)
}

// HTTPFetcher downloads firmware archives from a release server.
// Archives are addressed by hub name: <BaseURL>/<hubname>-firmware.zip.
type HTTPFetcher struct {
	// BaseURL is the release directory URL, without trailing slash
	BaseURL string

	// Client is the HTTP client to use; nil means a client with a
	// 30 second timeout
	Client *http.Client
}

// Fetch implements Fetcher. A non-2xx response is a FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, hub protocol.HubType) ([]byte, error) {
	url := fmt.Sprintf("%s/%s-firmware.zip", f.BaseURL, hub)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}

	return data, nil
}
