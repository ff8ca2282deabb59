package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AOZdotAG/aoz-explorer/internal/logging"
)

// New returns an HTTP client with a total-request timeout suitable for
// outbound service calls. A zero or negative timeout falls back to 30s.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns an http.Transport clone with the environment proxy policy
// applied, so outbound calls honor HTTPS_PROXY et al.
func Transport(logger logging.Logger) *http.Transport {
	proxy := proxyFunc(logger)

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: proxy}
	}

	transport := base.Clone()
	transport.Proxy = proxy
	return transport
}

func proxyFunc(logger logging.Logger) func(*http.Request) (*url.URL, error) {
	logger = logging.OrNop(logger)
	return func(req *http.Request) (*url.URL, error) {
		proxyURL, err := http.ProxyFromEnvironment(req)
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			logger.Debug("Using proxy %s for %s", proxyURL.Host, req.URL.Host)
		}
		return proxyURL, nil
	}
}

// ResponseTooLargeError reports that the response body exceeded the limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsResponseTooLarge reports whether the error indicates a response limit violation.
func IsResponseTooLarge(err error) bool {
	var limitErr ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// ReadAllWithLimit reads the response body up to the provided limit.
// If limit <= 0, it behaves like io.ReadAll.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
