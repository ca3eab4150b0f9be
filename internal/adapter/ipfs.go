package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/splits-indexer/internal/circuitbreaker"
	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
)

// IPFSFetcher implements ContentFetcher against an IPFS HTTP gateway.
// Documents above the configured size cap are rejected as invalid rather
// than retried.
type IPFSFetcher struct {
	gatewayURL string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	maxBytes   int64
}

// NewIPFSFetcher creates a gateway-backed fetcher from configuration
func NewIPFSFetcher(cfg *config.IPFSConfig) *IPFSFetcher {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxKiB := cfg.MaxDocumentKiB
	if maxKiB <= 0 {
		maxKiB = 512
	}

	return &IPFSFetcher{
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/") + "/",
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("ipfs-gateway")),
		maxBytes:   int64(maxKiB) * 1024,
	}
}

// Fetch downloads the document behind a content hash
func (f *IPFSFetcher) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if cid == "" {
		return nil, indexererr.Validation("IPFS_EMPTY_CID", "empty content hash")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, indexererr.Transport("IPFS_RATE_WAIT", err)
	}

	var body []byte
	err := f.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.gatewayURL+url.PathEscape(cid), nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}

		// Read one byte past the cap to detect oversized documents.
		body, err = io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		return err
	})
	if err != nil {
		return nil, indexererr.Transport("IPFS_FETCH", err)
	}

	if int64(len(body)) > f.maxBytes {
		return nil, indexererr.Validation("IPFS_DOCUMENT_TOO_LARGE", "document %s exceeds %d bytes", cid, f.maxBytes)
	}
	return body, nil
}
