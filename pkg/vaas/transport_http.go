package vaas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-logr/logr"
)

// userAgent accompanies every HTTP request, matching spec.md §6.
const userAgent = "vaas/go/1.0.0"

// httpTransport is the stateless HTTP realization of C6: every request is
// sent over a shared *http.Client with a bearer token obtained from the
// TokenProvider immediately before the send. No session id is used; polling
// is performed here per spec.md §4.5/§4.6.
type httpTransport struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenProvider
	limiter    *pollLimiter
	metrics    *metrics
	log        logr.Logger
}

func newHTTPTransport(baseURL string, tokens *TokenProvider, httpClient *http.Client, limiter *pollLimiter, m *metrics, log logr.Logger) *httpTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &httpTransport{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    limiter,
		metrics:    m,
		log:        log,
	}
}

func (t *httpTransport) close() error { return nil }

func (t *httpTransport) forSha256(ctx context.Context, sha Sha256, opts Options) (VaasVerdict, error) {
	reqURL := fmt.Sprintf("%s/files/%s/report?useCache=%t&useHashLookup=%t",
		t.baseURL, sha.String(), opts.UseCache, opts.UseHashLookup)
	return t.pollReport(ctx, reqURL, "for_sha256", func(body []byte) (VaasVerdict, error) {
		var r fileReport
		if err := json.Unmarshal(body, &r); err != nil {
			return VaasVerdict{}, newError(ErrInvalidMessage, "decode file report", err)
		}
		return r.toVerdict()
	})
}

func (t *httpTransport) forStream(ctx context.Context, r io.Reader, size int64, opts Options) (VaasVerdict, error) {
	streamOpts := opts.forStream()
	reqURL := fmt.Sprintf("%s/files?useCache=true&useHashLookup=%t", t.baseURL, streamOpts.UseHashLookup)

	resp, err := t.send(ctx, http.MethodPost, reqURL, r, size, "application/octet-stream")
	if err != nil {
		return VaasVerdict{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VaasVerdict{}, newError(ErrIo, "read submit response", err)
	}
	if err := statusToError(resp.StatusCode, body); err != nil {
		t.observe("for_stream", err)
		return VaasVerdict{}, err
	}
	if t.metrics != nil && size > 0 {
		t.metrics.uploadBytesTotal.Add(float64(size))
	}

	var submitted submitIDResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return VaasVerdict{}, newError(ErrInvalidMessage, "decode submit response", err)
	}
	sha, err := ParseSha256(submitted.Sha256)
	if err != nil {
		return VaasVerdict{}, err
	}
	return t.forSha256(ctx, sha, opts)
}

func (t *httpTransport) forURL(ctx context.Context, rawURL string, opts Options) (VaasVerdict, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return VaasVerdict{}, newError(ErrInvalidURL, rawURL, err)
	}
	urlOpts := opts.forURL()
	payload, err := json.Marshal(struct {
		URL           string `json:"url"`
		UseHashLookup bool   `json:"useHashLookup"`
	}{URL: rawURL, UseHashLookup: urlOpts.UseHashLookup})
	if err != nil {
		return VaasVerdict{}, newError(ErrInvalidMessage, "encode url submit request", err)
	}

	resp, err := t.send(ctx, http.MethodPost, t.baseURL+"/urls", bytes.NewReader(payload), int64(len(payload)), "application/json")
	if err != nil {
		return VaasVerdict{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VaasVerdict{}, newError(ErrIo, "read url submit response", err)
	}
	if err := statusToError(resp.StatusCode, body); err != nil {
		t.observe("for_url", err)
		return VaasVerdict{}, err
	}

	var submitted submitIDResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return VaasVerdict{}, newError(ErrInvalidMessage, "decode url submit response", err)
	}

	reportURL := fmt.Sprintf("%s/urls/%s/report", t.baseURL, submitted.ID)
	return t.pollReport(ctx, reportURL, "for_url", func(body []byte) (VaasVerdict, error) {
		var r urlReport
		if err := json.Unmarshal(body, &r); err != nil {
			return VaasVerdict{}, newError(ErrInvalidMessage, "decode url report", err)
		}
		return r.toVerdict()
	})
}

// pollReport issues GET requests against reportURL until a 200 terminal
// report arrives, a non-2xx error status arrives, or ctx is done. A 202
// triggers an immediate re-request (eager polling, §4.5), optionally
// throttled by t.limiter.
func (t *httpTransport) pollReport(ctx context.Context, reportURL, operation string, parse func([]byte) (VaasVerdict, error)) (VaasVerdict, error) {
	for {
		select {
		case <-ctx.Done():
			return VaasVerdict{}, Canceled
		default:
		}

		resp, err := t.send(ctx, http.MethodGet, reportURL, nil, -1, "")
		if err != nil {
			t.observe(operation, err)
			return VaasVerdict{}, err
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			t.observe(operation, readErr)
			return VaasVerdict{}, newError(ErrIo, "read report response", readErr)
		}

		if resp.StatusCode == http.StatusAccepted {
			if err := t.limiter.wait(ctx); err != nil {
				return VaasVerdict{}, Canceled
			}
			continue
		}
		if err := statusToError(resp.StatusCode, body); err != nil {
			t.observe(operation, err)
			return VaasVerdict{}, err
		}

		verdict, err := parse(body)
		t.observe(operation, err)
		return verdict, err
	}
}

// send issues one authenticated request. contentType is sent as-is when
// non-empty; callers with no body (GET) or a body whose type varies by
// endpoint (JSON submit vs. raw upload bytes) pass the right value.
func (t *httpTransport) send(ctx context.Context, method, reqURL string, body io.Reader, contentLength int64, contentType string) (*http.Response, error) {
	token, err := t.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, newError(ErrIo, "build request", err)
	}
	if contentLength >= 0 {
		req.ContentLength = contentLength
		req.Header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Canceled
		}
		return nil, newError(ErrIo, fmt.Sprintf("%s %s", method, reqURL), err)
	}
	return resp, nil
}

func (t *httpTransport) observe(operation string, err error) {
	if t.metrics != nil {
		t.metrics.observe(operation, err)
	}
}

// statusToError maps an HTTP status other than 200/201 to the §7 error
// taxonomy. 200/201 return nil; any other status below 400, 202 included,
// maps to ErrServerError, so pollReport handles 202 before calling
// statusToError.
func statusToError(status int, body []byte) error {
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusUnauthorized:
		return newStatusError(ErrUnauthorized, status, string(body))
	case status >= 400:
		var problem problemDetails
		detail := string(body)
		if err := json.Unmarshal(body, &problem); err == nil && problem.Detail != "" {
			detail = problem.Detail
		}
		if problem.Type == vaasClientExceptionType {
			return newStatusError(ErrClientError, status, detail)
		}
		return newStatusError(ErrServerError, status, detail)
	default:
		return newStatusError(ErrServerError, status, string(body))
	}
}
