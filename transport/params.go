// Package transport is the master's wire layer: an HTTP client/server pair
// carrying the contested name-claim RPC (the sole cross-node synchronization
// primitive) and the per-node service-runtime RPCs (start/stop/update/
// replace, instance-status push). Grounded on the api/
// package (api/cluster.go, api/daemon.go): a pooled ReqParams/BaseParams
// pair wrapping net/http, used for every outbound call instead of
// constructing *http.Request ad hoc.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/cmn/cos"
)

// BaseParams addresses a single remote master/node incarnation.
type BaseParams struct {
	Client *http.Client
	URL    string
	Method string
	Token  string
}

// ReqParams is a single outbound request, pooled to keep the placement
// reconciler's fan-out of detached per-node RPCs allocation-light: one RPC
// per node per reconciliation pass, every cycle.
type ReqParams struct {
	BaseParams BaseParams
	Path       string
	Query      url.Values
	Header     http.Header
	Body       []byte
}

var rpPool = sync.Pool{New: func() any { return &ReqParams{} }}

func AllocRp() *ReqParams { return rpPool.Get().(*ReqParams) }

func FreeRp(r *ReqParams) {
	*r = ReqParams{}
	rpPool.Put(r)
}

// DoRequest performs the round trip and discards the response body -
// used for fire-and-forget/ack-only RPCs (start/stop/update/replace,
// register_follower).
func (r *ReqParams) DoRequest(ctx context.Context) error {
	_, body, err := r.do(ctx)
	if body != nil {
		_ = body.Close()
	}
	return err
}

// DoReqAny performs the round trip and decodes the JSON response body into
// out.
func (r *ReqParams) DoReqAny(ctx context.Context, out any) error {
	_, body, err := r.do(ctx)
	if err != nil {
		return err
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return cos.UnmarshalInto(b, out)
}

func (r *ReqParams) do(ctx context.Context) (*http.Response, io.ReadCloser, error) {
	u := r.BaseParams.URL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.BaseParams.Method, u, body)
	if err != nil {
		return nil, nil, err
	}
	if r.Header != nil {
		req.Header = r.Header
	}
	if r.BaseParams.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.BaseParams.Token)
	}
	cl := r.BaseParams.Client
	if cl == nil {
		cl = http.DefaultClient
	}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return resp, nil, fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(b))
	}
	return resp, resp.Body, nil
}

// NewBaseParams returns BaseParams addressing host with the master's
// configured RPC timeout.
func NewBaseParams(url string) BaseParams {
	return BaseParams{
		Client: &http.Client{Timeout: cmn.Rom.RPCTimeout()},
		URL:    url,
	}
}
