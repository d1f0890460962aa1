// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/utils/httputils"
)

// Client talks to a catalog over its REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the catalog at baseURL.
func NewClient(baseURL string, opts httputils.ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog url %q", baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputils.NewClient(opts),
	}, nil
}

type nearResponse struct {
	Records []*record.ExistingRecord `json:"records"`
}

type createResponse struct {
	ID string `json:"id"`
}

type appendTagsRequest struct {
	Tags record.Tags `json:"tags"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// FindNear implements Catalog.
func (c *Client) FindNear(ctx context.Context, lat, lon, radius float64) ([]*record.ExistingRecord, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))

	var resp nearResponse
	if err := c.do(ctx, "find near", http.MethodGet, "/api/records/near?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	return resp.Records, nil
}

// CreateRecord implements Catalog.
func (c *Client) CreateRecord(ctx context.Context, cand *record.ImportCandidate) (string, error) {
	var resp createResponse
	if err := c.do(ctx, "create", http.MethodPost, "/api/records", cand, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		return "", &Error{Op: "create", Message: "response carries no id"}
	}

	return resp.ID, nil
}

// AppendTags implements Catalog.
func (c *Client) AppendTags(ctx context.Context, id string, tags record.Tags) error {
	path := "/api/records/" + url.PathEscape(id) + "/tags"

	return c.do(ctx, "append tags", http.MethodPost, path, appendTagsRequest{Tags: tags}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Cancellation is not a catalog outage.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return &Error{Op: op, Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Temporary: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}

	return nil
}

func statusError(op string, status int, body []byte) error {
	msg := http.StatusText(status)

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		msg = er.Error
	}

	e := &Error{
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Temporary:  status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout,
	}

	if status == http.StatusNotFound {
		e.Err = ErrNotFound
	}

	return e
}

var (
	_ Catalog = (*Client)(nil)
	_ Catalog = (*SQLCatalog)(nil)
)
