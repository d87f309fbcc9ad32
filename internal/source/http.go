package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent is sent with every adapter request.
const UserAgent = "newscrawl/1.0 (+https://github.com/deusflow/newscrawl)"

// maxBodyBytes bounds how much of a response an adapter reads.
const maxBodyBytes = 8 << 20

// DefaultClient returns the HTTP client adapters share when none is given.
func DefaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Get fetches url and returns the body, mapping transport and status
// failures to *Error.
func Get(ctx context.Context, client *http.Client, sourceID, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(KindParse, sourceID, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		se := Classify(err)
		se.Source = sourceID
		return nil, se
	}
	defer resp.Body.Close()

	if se := FromStatus(sourceID, resp); se != nil {
		return nil, se
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		se := Classify(err)
		se.Source = sourceID
		if se.Kind == KindParse {
			se.Kind = KindTransient
		}
		return nil, se
	}
	return body, nil
}
