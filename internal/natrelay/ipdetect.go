package natrelay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DetectPublicIP asks a small set of IP-echo services in turn and returns
// the first answer, mirroring the teacher's auto-detection fallback chain
// without its DNS-based variants (an HTTP client already gives us a
// deadline and a clear error per attempt).
func DetectPublicIP(ctx context.Context) (string, error) {
	services := []string{
		"https://api.ipify.org",
		"https://icanhazip.com",
		"https://checkip.amazonaws.com",
	}
	client := &http.Client{Timeout: 5 * time.Second}

	var lastErr error
	for _, svc := range services {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		ip := strings.TrimSpace(string(body))
		if ip != "" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("natrelay: could not detect public IP: %w", lastErr)
}
