package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxMediaBytes = 16 << 20

// MediaFetcher downloads inbound media. Twilio media URLs require account basic auth.
type MediaFetcher struct {
	client   *http.Client
	username string
	password string
}

func NewMediaFetcher(username, password string, timeout time.Duration) *MediaFetcher {
	return &MediaFetcher{
		client:   &http.Client{Timeout: timeout},
		username: username,
		password: password,
	}
}

// Fetch returns the body and content type of url.
func (f *MediaFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
