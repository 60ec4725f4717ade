// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package client is an HTTP client of the gateway protocol.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gateway "github.com/featurebasedb/sqlgateway"
	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	gwhttp "github.com/featurebasedb/sqlgateway/http"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/tracing"
	"github.com/featurebasedb/sqlgateway/types"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultScheme = "http"

	ErrTransport errors.Code = "Transport"
)

// Config configures a Client.
type Config struct {
	// Address is host:port, optionally with a scheme.
	Address string
	// Retries is the number of times a request failing with a connection
	// error or an unavailable server is retried.
	Retries int
	Timeout time.Duration
	Logger  logger.Logger
}

// Client is an HTTP client that operates on the gateway endpoints.
type Client struct {
	base   string
	client *retryablehttp.Client
	logger logger.Logger
}

var _ gateway.Executor = (*Client)(nil)

// New returns a new instance of Client.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger
	}
	base := strings.TrimSuffix(cfg.Address, "/")
	if !strings.Contains(base, "://") {
		base = defaultScheme + "://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	return &Client{
		base:   base,
		client: rc,
		logger: cfg.Logger,
	}
}

// checkRetry retries connection errors and unavailable servers only.
// Statements are not idempotent, so a response from the gateway itself is
// never retried.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Health returns true if the gateway answers at its /health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	return c.do(ctx, "GET", "/health", nil, nil) == nil
}

// do sends body as JSON and decodes the response into out. Error
// responses are decoded into errors carrying the codes of the server's
// error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshalling request")
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id, ok := gwcontext.RequestID(ctx); ok {
		req.Header.Set(gwhttp.HeaderRequestID, id)
	}
	tracing.GlobalTracer.InjectHTTPHeaders(req.Request)

	c.logger.Debugf("%s %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapc(err, ErrTransport, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.UnmarshalJSON(resp.Body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "reading response body")
	}
	return nil
}

func sessionPath(id string, parts ...string) string {
	var sb strings.Builder
	sb.WriteString("/session/")
	sb.WriteString(url.PathEscape(id))
	for _, p := range parts {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(p))
	}
	return sb.String()
}

func (c *Client) OpenSession(ctx context.Context, id string, env *environment.Environment) (string, error) {
	var resp gwhttp.OpenSessionResponse
	if err := c.do(ctx, "POST", "/session", gwhttp.OpenSessionRequest{ID: id, Environment: env}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", sessionPath(id), nil, nil)
}

func (c *Client) GetSessionProperties(ctx context.Context, id string) (map[string]string, error) {
	props := map[string]string{}
	if err := c.do(ctx, "GET", sessionPath(id, "properties"), nil, &props); err != nil {
		return nil, err
	}
	return props, nil
}

func (c *Client) SetSessionProperty(ctx context.Context, id, key, value string) error {
	return c.do(ctx, "POST", sessionPath(id, "properties"), gwhttp.SetPropertyRequest{Key: key, Value: value}, nil)
}

func (c *Client) ResetSessionProperties(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", sessionPath(id, "properties"), nil, nil)
}

func (c *Client) ResetSessionProperty(ctx context.Context, id, key string) error {
	return c.do(ctx, "DELETE", sessionPath(id, "properties", key), nil, nil)
}

func (c *Client) ExecuteSQL(ctx context.Context, id, sql string) (*gateway.StatementResult, error) {
	res := &gateway.StatementResult{}
	if err := c.do(ctx, "POST", sessionPath(id, "statement"), gwhttp.StatementRequest{SQL: sql}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) ExecuteQuery(ctx context.Context, id, sql string) (*gateway.ResultDescriptor, error) {
	desc := &gateway.ResultDescriptor{}
	if err := c.do(ctx, "POST", sessionPath(id, "query"), gwhttp.StatementRequest{SQL: sql}, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (c *Client) ExecuteUpdate(ctx context.Context, id, sql string) (*gateway.ProgramTarget, error) {
	target := &gateway.ProgramTarget{}
	if err := c.do(ctx, "POST", sessionPath(id, "update"), gwhttp.StatementRequest{SQL: sql}, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (c *Client) SnapshotResult(ctx context.Context, id, resultID string, pageSize int) (*gateway.Snapshot, error) {
	snap := &gateway.Snapshot{}
	if err := c.do(ctx, "POST", sessionPath(id, "result", resultID, "snapshot"), gwhttp.SnapshotRequest{PageSize: pageSize}, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Client) RetrieveResultPage(ctx context.Context, id, resultID string, page int) ([]types.Row, error) {
	var resp gwhttp.PageResponse
	if err := c.do(ctx, "GET", sessionPath(id, "result", resultID, "page", fmt.Sprint(page)), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) RetrieveResultChanges(ctx context.Context, id, resultID string) (*gateway.Changes, error) {
	changes := &gateway.Changes{}
	if err := c.do(ctx, "GET", sessionPath(id, "result", resultID, "changes"), nil, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

func (c *Client) CancelQuery(ctx context.Context, id, resultID string) error {
	return c.do(ctx, "DELETE", sessionPath(id, "result", resultID), nil, nil)
}

func (c *Client) JobStatus(ctx context.Context, id string, jobID processor.JobID) (*gateway.JobInfo, error) {
	info := &gateway.JobInfo{}
	if err := c.do(ctx, "GET", sessionPath(id, "job", string(jobID)), nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) CancelJob(ctx context.Context, id string, jobID processor.JobID) error {
	return c.do(ctx, "DELETE", sessionPath(id, "job", string(jobID)), nil, nil)
}

func (c *Client) ListModules(ctx context.Context, id string) ([]string, error) {
	var resp gwhttp.ModulesResponse
	if err := c.do(ctx, "GET", sessionPath(id, "modules"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

func (c *Client) CompleteStatement(ctx context.Context, id, text string, cursor int) ([]string, error) {
	var resp gwhttp.CompleteResponse
	if err := c.do(ctx, "POST", sessionPath(id, "complete"), gwhttp.CompleteRequest{Text: text, Cursor: cursor}, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Close is a no-op. Sessions opened through the client stay open on the
// gateway until closed one by one.
func (c *Client) Close(ctx context.Context) error { return nil }
