// Package client is the typed HTTP client for the fleet exchange API.
//
// Every call reads the bearer token at call time, so a token refreshed by
// another process is picked up on the next request. Calls are never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// FileTokenSource reads the token from a file on every call. A missing file
// yields no token.
type FileTokenSource struct {
	Path string
}

func (f FileTokenSource) Token() (string, error) {
	if f.Path == "" {
		return "", nil
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// APIError is a non-2xx response. Detail holds the server message when the
// body carried one.
type APIError struct {
	Status int
	Detail string
	Code   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, http.StatusText(e.Status))
}

// Client calls the exchange API.
type Client struct {
	base      *url.URL
	tokens    TokenSource
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New builds a client for the API at baseURL. tokens may be nil.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	c := &Client{
		base:      u,
		tokens:    tokens,
		http:      &http.Client{},
		userAgent: "frota-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint joins path to the base URL and appends a pre-encoded query.
func (c *Client) endpoint(path, rawQuery string) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = rawQuery
	return u.String()
}

// do sends req with auth headers and returns the response when it is 2xx.
// The caller closes the body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	slog.Debug("api call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// readAPIError prefers the detail field, then error.
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
		Code   string          `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		var detail string
		if json.Unmarshal(body.Detail, &detail) == nil && detail != "" {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = body.Error
		}
		apiErr.Code = body.Code
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path, rawQuery string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, rawQuery), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// Catalog fetches the exportable fields of every entity type.
func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	var cat Catalog
	if err := c.getJSON(ctx, "/api/exportacao/campos", "", &cat); err != nil {
		return nil, err
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	for _, t := range Tipos {
		if cat[t] == nil {
			cat[t] = []FieldDescriptor{}
		}
	}
	return cat, nil
}

// camposValue joins ids with literal commas, escaping each id.
func camposValue(ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	return strings.Join(escaped, ",")
}

// ExportQuery builds the query of a single-entity export, keeping the
// selection order: campos=nome,nif&delimitador=%3B.
func ExportQuery(ids []string, delim Delimiter) string {
	return "campos=" + camposValue(ids) + "&delimitador=" + url.QueryEscape(string(delim))
}

// ExportAllQuery builds the combined export query. Every entity type is
// sent, with an empty value when nothing is selected.
func ExportAllQuery(sel map[Tipo][]string, delim Delimiter) string {
	var b strings.Builder
	for _, t := range Tipos {
		fmt.Fprintf(&b, "campos_%s=%s&", t, camposValue(sel[t]))
	}
	b.WriteString("delimitador=" + url.QueryEscape(string(delim)))
	return b.String()
}

func (c *Client) download(ctx context.Context, path, rawQuery string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, rawQuery), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Export downloads one entity as CSV. The caller closes the body.
func (c *Client) Export(ctx context.Context, tipo Tipo, ids []string, delim Delimiter) (io.ReadCloser, error) {
	if !tipo.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTipo, tipo)
	}
	if !delim.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelimiter, delim)
	}
	if len(ids) == 0 {
		return nil, ErrNoFields
	}
	return c.download(ctx, "/api/exportacao/"+string(tipo), ExportQuery(ids, delim))
}

// ExportAll downloads a ZIP with one CSV per selected entity type. At least
// one selection must be non-empty.
func (c *Client) ExportAll(ctx context.Context, sel map[Tipo][]string, delim Delimiter) (io.ReadCloser, error) {
	if !delim.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelimiter, delim)
	}
	total := 0
	for _, t := range Tipos {
		total += len(sel[t])
	}
	if total == 0 {
		return nil, ErrNoFields
	}
	return c.download(ctx, "/api/exportacao/completa", ExportAllQuery(sel, delim))
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey makes Confirm send key. Retries of one commit must
// share a key; a new commit needs a new one.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key set by WithIdempotencyKey, or "".
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// NewIdempotencyKey mints a key for one commit.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// postFile sends the multipart import body and decodes the JSON answer.
func (c *Client) postFile(ctx context.Context, path string, file File, delim Delimiter, mapping map[string]string, header http.Header, v any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(file.Data); err != nil {
		return err
	}
	if err := mw.WriteField("delimitador", string(delim)); err != nil {
		return err
	}
	if len(mapping) > 0 {
		raw, err := json.Marshal(mapping)
		if err != nil {
			return fmt.Errorf("encode mapping: %w", err)
		}
		if err := mw.WriteField("mapeamento", string(raw)); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, ""), &buf)
	if err != nil {
		return err
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func checkImport(tipo Tipo, file File, delim Delimiter) error {
	if !tipo.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTipo, tipo)
	}
	if !delim.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, delim)
	}
	if file.Name == "" {
		return errors.New("file name is required")
	}
	return nil
}

// Preview uploads file and returns the changes a commit would apply.
// mapping, when set, maps file headers to field ids.
func (c *Client) Preview(ctx context.Context, tipo Tipo, file File, delim Delimiter, mapping map[string]string) (*ImportPreview, error) {
	if err := checkImport(tipo, file, delim); err != nil {
		return nil, err
	}

	var preview ImportPreview
	path := "/api/exportacao/importar/" + string(tipo) + "/preview"
	if err := c.postFile(ctx, path, file, delim, mapping, nil, &preview); err != nil {
		return nil, err
	}
	if err := preview.validate(); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Confirm re-sends file and applies its changes. It sends the idempotency
// key carried by ctx, or a fresh one, so only a retry of the same commit
// returns the stored result.
func (c *Client) Confirm(ctx context.Context, tipo Tipo, file File, delim Delimiter, mapping map[string]string) (*ImportResult, error) {
	if err := checkImport(tipo, file, delim); err != nil {
		return nil, err
	}

	header := http.Header{}
	key := IdempotencyKeyFrom(ctx)
	if key == "" {
		key = NewIdempotencyKey()
	}
	header.Set("Idempotency-Key", key)

	var result ImportResult
	path := "/api/exportacao/importar/" + string(tipo) + "/confirmar"
	if err := c.postFile(ctx, path, file, delim, mapping, header, &result); err != nil {
		return nil, err
	}
	if err := result.validate(tipo); err != nil {
		return nil, err
	}
	return &result, nil
}

// History lists recent commits, newest first. An empty tipo lists all.
func (c *Client) History(ctx context.Context, tipo Tipo) ([]ImportSummary, error) {
	query := ""
	if tipo != "" {
		if !tipo.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTipo, tipo)
		}
		query = "tipo=" + url.QueryEscape(string(tipo))
	}

	var items []ImportSummary
	if err := c.getJSON(ctx, "/api/exportacao/importacoes", query, &items); err != nil {
		return nil, err
	}
	for _, it := range items {
		if !it.Tipo.Valid() || it.Atualizados < 0 || it.NErros < 0 {
			return nil, fmt.Errorf("%w: history entry %s", ErrInvalidResponse, it.ID)
		}
	}
	return items, nil
}
