package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// GetJSON fetches url and decodes the JSON body into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

// FetchStatus queries the /status endpoint of the server at baseURL.
// baseURL may be a full URL or host:port.
func FetchStatus(ctx context.Context, baseURL string) (*Status, error) {
	var st Status
	if err := GetJSON(ctx, normalizeURL(baseURL)+"/status", &st); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	return &st, nil
}

func normalizeURL(addr string) string {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	return strings.TrimRight(url, "/")
}
