// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/netutil"
	"github.com/bureau-foundation/lockbox/lib/version"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the hub base URL ("https://hub.example.org").
	URL string

	// Token is the bearer token minted for the local identity.
	Token string

	// HTTPClient defaults to a client with no overall timeout; callers
	// bound each call with a context deadline.
	HTTPClient *http.Client

	// MaxBlobSize bounds blob downloads. Defaults to
	// DefaultMaxBlobSize.
	MaxBlobSize int64

	Logger *slog.Logger
}

// Client talks to a hub. It implements envelope.Storage directly and
// hands out envelope.Directory, envelope.Metadata and envelope.Index
// views. Safe for concurrent use.
type Client struct {
	base        string
	token       string
	httpClient  *http.Client
	maxBlobSize int64
	logger      *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := normalizeBaseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("hub URL: %w", err)
	}
	client := &Client{
		base:        base,
		token:       cfg.Token,
		httpClient:  cfg.HTTPClient,
		maxBlobSize: cfg.MaxBlobSize,
		logger:      cfg.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if client.maxBlobSize <= 0 {
		client.maxBlobSize = DefaultMaxBlobSize
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}
	return client, nil
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("scheme %q is not http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%q has no host", raw)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

// Put uploads ciphertext and returns the address the hub stored it at.
// The address is checked against a local computation.
func (c *Client) Put(ctx context.Context, ciphertext []byte) (cas.Address, error) {
	var response BlobResponse
	if err := c.call(ctx, http.MethodPost, c.base+"/v1/blobs", "application/octet-stream", ciphertext, &response); err != nil {
		return cas.Address{}, err
	}
	if expected := cas.Compute(ciphertext); response.Address != expected {
		return cas.Address{}, failure.New(failure.Internal,
			"hub stored blob at %s, expected %s", response.Address.Short(), expected.Short())
	}
	return response.Address, nil
}

// Get downloads address through gateway, a base URL serving the same
// /v1/blobs route as the hub. An empty gateway means the hub itself.
// The downloaded bytes are verified against address.
func (c *Client) Get(ctx context.Context, address cas.Address, gateway string) ([]byte, error) {
	base := c.base
	if gateway != "" {
		normalized, err := normalizeBaseURL(gateway)
		if err != nil {
			return nil, failure.Wrap(failure.Invalid, err, "gateway URL")
		}
		base = normalized
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/blobs/"+address.String(), nil)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "building blob request")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, failure.Wrap(failure.Transient, err, "fetching blob")
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, responseError(response)
	}
	data, err := netutil.ReadBlob(response.Body, c.maxBlobSize)
	if err != nil {
		return nil, failure.Wrap(failure.Transient, err, "fetching blob")
	}
	if cas.Compute(data) != address {
		return nil, failure.New(failure.Transient, "gateway %s returned bytes that do not hash to %s", base, address.Short())
	}
	return data, nil
}

// Search returns index entries visible to the token's identity whose
// name contains query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]envelope.IndexEntry, error) {
	values := url.Values{}
	values.Set("q", query)
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var response SearchResponse
	if err := c.call(ctx, http.MethodGet, c.base+"/v1/index?"+values.Encode(), "", nil, &response); err != nil {
		return nil, err
	}
	return response.Entries, nil
}

// Directory returns the hub's key directory.
func (c *Client) Directory() *DirectoryClient { return &DirectoryClient{client: c} }

// Metadata returns the hub's envelope store.
func (c *Client) Metadata() *MetadataClient { return &MetadataClient{client: c} }

// Index returns the hub's search index.
func (c *Client) Index() *IndexClient { return &IndexClient{client: c} }

// DirectoryClient implements envelope.Directory against a hub.
type DirectoryClient struct{ client *Client }

func (d *DirectoryClient) Publish(ctx context.Context, identity string, key keywrap.PublicKey) error {
	body, err := codec.Marshal(DirectoryEntry{Identity: identity, PublicKey: key})
	if err != nil {
		return failure.Wrap(failure.Internal, err, "encoding directory entry")
	}
	return d.client.call(ctx, http.MethodPut, d.client.base+"/v1/directory/"+url.PathEscape(identity), codec.ContentType, body, nil)
}

func (d *DirectoryClient) Lookup(ctx context.Context, identity string) (keywrap.PublicKey, error) {
	var entry DirectoryEntry
	if err := d.client.call(ctx, http.MethodGet, d.client.base+"/v1/directory/"+url.PathEscape(identity), "", nil, &entry); err != nil {
		return keywrap.PublicKey{}, err
	}
	return entry.PublicKey, nil
}

// MetadataClient implements envelope.Metadata against a hub.
type MetadataClient struct{ client *Client }

func (m *MetadataClient) Publish(ctx context.Context, env *envelope.Envelope) error {
	body, err := codec.Marshal(env)
	if err != nil {
		return failure.Wrap(failure.Internal, err, "encoding envelope")
	}
	return m.client.call(ctx, http.MethodPost, m.client.base+"/v1/envelopes", codec.ContentType, body, nil)
}

// Fetch ignores requester: the hub checks access against the identity
// the bearer token names.
func (m *MetadataClient) Fetch(ctx context.Context, address cas.Address, _ string) (*envelope.Envelope, error) {
	var env envelope.Envelope
	if err := m.client.call(ctx, http.MethodGet, m.client.base+"/v1/envelopes/"+address.String(), "", nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// IndexClient implements envelope.Index against a hub.
type IndexClient struct{ client *Client }

func (x *IndexClient) Index(ctx context.Context, entry envelope.IndexEntry) error {
	body, err := codec.Marshal(entry)
	if err != nil {
		return failure.Wrap(failure.Internal, err, "encoding index entry")
	}
	return x.client.call(ctx, http.MethodPost, x.client.base+"/v1/index", codec.ContentType, body, nil)
}

// call performs an authenticated API request. A nil result discards
// the response body.
func (c *Client) call(ctx context.Context, method, target, contentType string, body []byte, result any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return failure.Wrap(failure.Invalid, err, "building hub request")
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", codec.ContentType)
	request.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return failure.Wrap(failure.Transient, err, fmt.Sprintf("%s %s", method, request.URL.Path))
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return responseError(response)
	}
	if result == nil {
		io.Copy(io.Discard, io.LimitReader(response.Body, netutil.MaxResponseSize))
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return failure.Wrap(failure.Transient, err, fmt.Sprintf("%s %s", method, request.URL.Path))
	}
	return nil
}

// responseError converts a non-2xx response into a failure. The kind
// comes from the status code; the hub's message is carried when the
// body decodes.
func responseError(response *http.Response) error {
	kind := netutil.KindForStatus(response.StatusCode)
	raw := netutil.ErrorBody(response.Body)
	var body ErrorResponse
	if err := codec.Unmarshal([]byte(raw), &body); err == nil && body.Message != "" {
		return failure.New(kind, "hub: %s", body.Message)
	}
	message := strings.TrimSpace(raw)
	if message == "" {
		message = response.Status
	}
	return failure.New(kind, "HTTP %d: %s", response.StatusCode, message)
}
