package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	registryName = "gazette"

	defaultPageSize = 50
	defaultTimeout  = 30 * time.Second

	// Some registry frontends block default Go user agents outright.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Wire date format used by the gazette query API.
const wireDateFormat = "02/01/2006"

// HTTPClient queries the gazette registry over HTTP. It issues exactly one
// request per Search call and classifies every failure; callers wrap it with
// the backoff policy for retries.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	pageSize int
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient swaps the underlying transport, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithPageSize bounds the number of records requested per call.
func WithPageSize(n int) HTTPOption {
	return func(h *HTTPClient) {
		if n > 0 {
			h.pageSize = n
		}
	}
}

// NewHTTPClient constructs a gazette registry client for the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchEnvelope tolerates the two envelope shapes the registry has been
// observed to serve; the schema is not stable across deployments.
type searchEnvelope struct {
	Items        []json.RawMessage `json:"items"`
	Publications []json.RawMessage `json:"publicacoes"`
	Total        int               `json:"total"`
}

func (e searchEnvelope) records() []json.RawMessage {
	if len(e.Items) > 0 {
		return e.Items
	}
	return e.Publications
}

// Search performs one bounded gazette query.
func (c *HTTPClient) Search(ctx context.Context, q Query) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(q), nil)
	if err != nil {
		return nil, NewFetchError(CategoryBadRequest, registryName, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.8")
	if q.SealedAccessPassword != "" {
		req.Header.Set("X-Sealed-Access", q.SealedAccessPassword)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, NewFetchError(CategoryOutage, registryName, "read response", err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	if looksLikeCaptcha(body) {
		return nil, NewFetchError(CategoryCaptcha, registryName, "captcha interstitial served", nil)
	}
	if looksLikeSoftNotFound(body) {
		return nil, NewFetchError(CategoryNotFound, registryName, "registry served a not-found page", nil)
	}

	var envelope searchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewFetchError(CategoryBadData, registryName, "decode search response", err)
	}

	raws := envelope.records()
	records := make([]RawRecord, 0, len(raws))
	for _, raw := range raws {
		records = append(records, RawRecord{Registry: registryName, Data: raw})
	}
	return records, nil
}

func (c *HTTPClient) searchURL(q Query) string {
	size := q.PageSize
	if size <= 0 {
		size = c.pageSize
	}
	params := url.Values{}
	params.Set("numeroOab", q.BarNumber)
	params.Set("ufOab", strings.ToUpper(q.Jurisdiction))
	params.Set("pagina", "1")
	params.Set("tamanhoPagina", strconv.Itoa(size))
	if !q.WindowStart.IsZero() {
		params.Set("dataDisponibilizacaoInicio", q.WindowStart.Format(wireDateFormat))
	}
	if !q.WindowEnd.IsZero() {
		params.Set("dataDisponibilizacaoFim", q.WindowEnd.Format(wireDateFormat))
	}
	if q.CaseNumber != "" {
		params.Set("numeroProcesso", q.CaseNumber)
	}
	return c.baseURL + "/consulta?" + params.Encode()
}

func classifyTransportError(err error) *FetchError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return NewFetchError(CategoryTimeout, registryName, "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFetchError(CategoryTimeout, registryName, "request timed out", err)
	}
	return NewFetchError(CategoryOutage, registryName, "request failed", err)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return NewFetchError(CategoryRateLimited, registryName, "rate limited", nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewFetchError(CategoryAuthentication, registryName, fmt.Sprintf("status %d", code), nil)
	case code == http.StatusNotFound:
		return NewFetchError(CategoryNotFound, registryName, "status 404", nil)
	case code >= 500:
		return NewFetchError(CategoryOutage, registryName, fmt.Sprintf("status %d", code), nil)
	default:
		return NewFetchError(CategoryBadRequest, registryName, fmt.Sprintf("status %d", code), nil)
	}
}

var captchaIndicators = []string{
	"captcha",
	"recaptcha",
	"g-recaptcha",
	"prove que não é um robô",
	"verificação de segurança",
}

func looksLikeCaptcha(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, indicator := range captchaIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

var softNotFoundIndicators = []string{
	"página não encontrada",
	"page not found",
	"página inexistente",
}

// Some registry frontends serve an HTML not-found page with a 200 status.
func looksLikeSoftNotFound(body []byte) bool {
	if json.Valid(body) {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, indicator := range softNotFoundIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
