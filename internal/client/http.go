package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// defaultRetryMax is the number of retries for transient HTTP failures.
const defaultRetryMax = 3

// cacheKeySep joins the ETag and Last-Modified halves of an HTTP cache key.
// The assembled key is opaque to callers; only this backend reads it back.
const cacheKeySep = "\n"

// HTTPClient talks to a remote HTTP registry.
type HTTPClient struct {
	baseURL    string
	token      string
	cfg        *config.Config
	httpClient *http.Client
	log        *logrus.Entry
}

// Ensure HTTPClient implements RegistryClient
var _ RegistryClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the registry at baseURL. token, when
// non-empty, is sent as a bearer token on every request.
func NewHTTPClient(baseURL, token string, cfg *config.Config) *HTTPClient {
	baseURL = strings.TrimRight(baseURL, "/")

	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		cfg:        cfg,
		httpClient: newRetryableHTTPClient(cfg.RequestTimeout),
		log:        logrus.WithField("registry", baseURL),
	}
}

// newRetryableHTTPClient builds a http.Client that retries transient
// failures with backoff.
func newRetryableHTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = defaultRetryMax
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

// GetRecords fetches index records with conditional-request semantics: the
// opaque cache key round-trips the server's ETag and Last-Modified
// validators, and a 304 response maps to InCache.
func (c *HTTPClient) GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	var zero RegistryResource[index.IndexRecords]

	if err := beforeNetwork(); err != nil {
		return zero, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/index/%s.json", c.baseURL, pkg.Slug())
	resp, err := c.conditionalGet(ctx, endpoint, cacheKey)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		c.log.WithField("package", pkg).Debug("index records unchanged")
		return InCacheResource[index.IndexRecords](), nil
	case http.StatusNotFound:
		return NotFoundResource[index.IndexRecords](), nil
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(resp.Body)
		return zero, NewRegistryError(ErrNetworkError,
			fmt.Sprintf("fetching index records failed (status %d): %s", resp.StatusCode, string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read index records: %w", err)
	}

	records, err := index.DecodeRecords(data)
	if err != nil {
		return zero, NewRegistryError(ErrInvalidRecords, err.Error())
	}

	newKey := responseCacheKey(resp)
	c.log.WithFields(logrus.Fields{
		"package":   pkg,
		"records":   len(records),
		"cacheable": newKey != "",
	}).Debug("fetched index records")

	return DownloadResource(records, newKey), nil
}

// Download fetches the package archive, staging bytes in a scratch file
// obtained from createScratchFile only after a 200 response is in hand.
func (c *HTTPClient) Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error) {
	var zero RegistryResource[*flock.FileLockGuard]

	if err := beforeNetwork(); err != nil {
		return zero, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/dl/%s", c.baseURL, id.Tarball())
	resp, err := c.conditionalGet(ctx, endpoint, cacheKey)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		c.log.WithField("package", id.String()).Debug("archive unchanged")
		return InCacheResource[*flock.FileLockGuard](), nil
	case http.StatusNotFound:
		return NotFoundResource[*flock.FileLockGuard](), nil
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(resp.Body)
		return zero, NewRegistryError(ErrNetworkError,
			fmt.Sprintf("downloading archive failed (status %d): %s", resp.StatusCode, string(body)))
	}

	guard, err := createScratchFile(c.cfg)
	if err != nil {
		return zero, err
	}

	// A previous failed attempt may have left bytes behind.
	if err := guard.Truncate(); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to reset scratch file: %w", err)
	}

	if _, err := io.Copy(guard.File(), resp.Body); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to write archive to %s: %w", guard.Path(), err)
	}

	if _, err := guard.File().Seek(0, 0); err != nil {
		guard.Discard()
		return zero, err
	}

	c.log.WithField("package", id.String()).Debug("downloaded archive")
	return DownloadResource(guard, responseCacheKey(resp)), nil
}

// SupportsPublish probes the registry's capability document.
func (c *HTTPClient) SupportsPublish(ctx context.Context) (bool, error) {
	resp, err := c.conditionalGet(ctx, c.baseURL+"/api/v1/config.json", "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, NewRegistryError(ErrNetworkError,
			fmt.Sprintf("fetching registry config failed (status %d)", resp.StatusCode))
	}

	var capability struct {
		Publish bool `json:"publish"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&capability); err != nil {
		return false, fmt.Errorf("failed to decode registry config: %w", err)
	}
	return capability.Publish, nil
}

// Publish uploads the package metadata and tarball as a multipart form.
func (c *HTTPClient) Publish(ctx context.Context, pkg core.Package, tarball *flock.FileLockGuard) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("name", pkg.Id.Name.String()); err != nil {
		return err
	}
	if err := writer.WriteField("version", pkg.Id.Version); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("archive", path.Base(tarball.Path()))
	if err != nil {
		return err
	}
	if _, err := tarball.File().Seek(0, 0); err != nil {
		return err
	}
	if _, err := io.Copy(part, tarball.File()); err != nil {
		return fmt.Errorf("failed to read tarball: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/publish", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return NewRegistryError(ErrUnauthorized, "authentication required")
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return NewRegistryError(ErrPublishFailed,
			fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	c.log.WithField("package", pkg.Id.String()).Debug("published package")
	return nil
}

// conditionalGet issues a GET with validators decoded from the opaque cache
// key, when one was supplied.
func (c *HTTPClient) conditionalGet(ctx context.Context, endpoint, cacheKey string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	if cacheKey != "" {
		etag, lastModified := decodeCacheKey(cacheKey)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if lastModified != "" {
			req.Header.Set("If-Modified-Since", lastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		return nil, NewRegistryError(ErrNetworkError, err.Error())
	}
	return resp, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// responseCacheKey assembles the opaque cache key from the response's
// validator headers. Empty when the server offered no validators: such
// responses must not be cached.
func responseCacheKey(resp *http.Response) string {
	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")
	if etag == "" && lastModified == "" {
		return ""
	}
	return etag + cacheKeySep + lastModified
}

func decodeCacheKey(key string) (etag, lastModified string) {
	etag, lastModified, _ = strings.Cut(key, cacheKeySep)
	return etag, lastModified
}
