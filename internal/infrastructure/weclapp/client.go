// Package weclapp reads entities and their documents from the WeClapp REST API.
package weclapp

import (
	"bytes"
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

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/config"
)

// maxResponseSize caps JSON responses (64MB); downloads are not capped.
const maxResponseSize = 64 * 1024 * 1024

// Document is the metadata of a file attached to a WeClapp entity
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"mediaType"`
	Size        int64  `json:"documentSize"`
}

// Client talks to one WeClapp tenant
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient creates a Client from configuration
func NewClient(cfg *config.WeClappConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("weclapp configuration is required")
	}
	if cfg.APIBase == "" {
		return nil, errors.New("weclapp api base is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("weclapp api token is required")
	}
	if _, err := url.Parse(cfg.APIBase); err != nil {
		return nil, fmt.Errorf("invalid weclapp api base: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.APIBase, "/") + "/",
		token:      cfg.Token,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Count returns the number of entities of doctype
func (c *Client) Count(ctx context.Context, doctype string) (int, error) {
	var out struct {
		Result json.Number `json:"result"`
	}
	if err := c.getJSON(ctx, doctype+"/count", nil, &out); err != nil {
		return 0, err
	}
	n, err := out.Result.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: invalid count for %s: %q", migration.ErrSourceAPI, doctype, out.Result)
	}
	return int(n), nil
}

// Page returns one page of entities; pages start at 1
func (c *Client) Page(ctx context.Context, doctype string, page int) ([]migration.Entity, error) {
	params := url.Values{}
	params.Set("serializeNulls", "true")
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))

	var out struct {
		Result []migration.Entity `json:"result"`
	}
	if err := c.getJSON(ctx, doctype, params, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// All fetches every entity of doctype page by page
func (c *Client) All(ctx context.Context, doctype string) ([]migration.Entity, error) {
	count, err := c.Count(ctx, doctype)
	if err != nil {
		return nil, err
	}
	pages := (count + c.pageSize - 1) / c.pageSize
	result := make([]migration.Entity, 0, count)
	for page := 1; page <= pages; page++ {
		entities, err := c.Page(ctx, doctype, page)
		if err != nil {
			return nil, err
		}
		result = append(result, entities...)
	}
	c.logger.Debug("Fetched entities",
		zap.String("doctype", doctype),
		zap.Int("count", len(result)),
		zap.Int("pages", pages),
	)
	return result, nil
}

// Documents lists the files attached to an entity
func (c *Client) Documents(ctx context.Context, doctype, entityID string) ([]Document, error) {
	params := url.Values{}
	params.Set("entityName", doctype)
	params.Set("entityId", entityID)

	var out struct {
		Result []Document `json:"result"`
	}
	if err := c.getJSON(ctx, "document", params, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Download returns the content of a document. The caller closes the reader.
func (c *Client) Download(ctx context.Context, documentID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "document/id/"+url.PathEscape(documentID)+"/download", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ArchivedEmails lists the e-mails archived for an entity
func (c *Client) ArchivedEmails(ctx context.Context, doctype, entityID string) ([]migration.Entity, error) {
	params := url.Values{}
	params.Set("entityName", doctype)
	params.Set("entityId", entityID)
	params.Set("serializeNulls", "true")

	var out struct {
		Result []migration.Entity `json:"result"`
	}
	if err := c.getJSON(ctx, "archivedEmail", params, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response of %s: %v", migration.ErrSourceAPI, path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response of %s: %v", migration.ErrSourceAPI, path, err)
	}
	return nil
}

// do performs a GET and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AuthenticationToken", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", migration.ErrSourceAPI, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: WeClapp API-Error: %s", migration.ErrSourceAPI, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
