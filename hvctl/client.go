package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hvgate/hvgate/internal/api"
	"github.com/hvgate/hvgate/internal/rpc"
)

// gatewayClient signs requests the way the gateway's auth gate expects:
// the shared key in x-api-key plus hex(HMAC-SHA256(secret, body||timestamp))
// in x-signature/x-timestamp.
type gatewayClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	secret  string
}

func setup(c *cli.Context) (*gatewayClient, error) {
	addr := c.String("gateway")
	if addr == "" {
		return nil, errors.New("--gateway is required (or set HVGATE_GATEWAY)")
	}

	fingerprint := c.String("fingerprint")
	client := &http.Client{Timeout: c.Duration("timeout")}
	if fingerprint != "" {
		client = rpc.NewPinnedClient(fingerprint, c.Duration("timeout"))
	}

	return &gatewayClient{
		client:  client,
		baseURL: baseURL(addr, fingerprint != ""),
		apiKey:  c.String("api-key"),
		secret:  c.String("hmac-secret"),
	}, nil
}

func baseURL(addr string, https bool) string {
	if strings.Contains(addr, "://") {
		return strings.TrimSuffix(addr, "/")
	}

	scheme := "http"
	if https {
		scheme = "https"
	}
	if !strings.Contains(addr, ":") {
		addr += ":8480"
	}
	return scheme + "://" + addr
}

func (g *gatewayClient) get(ctx context.Context, path string, out any) error {
	return g.do(ctx, "GET", path, nil, out)
}

func (g *gatewayClient) post(ctx context.Context, path string, out any) error {
	return g.do(ctx, "POST", path, []byte{}, out)
}

func (g *gatewayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set(api.KeyHeader, g.apiKey)
	if g.secret != "" {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(g.secret))
		mac.Write(body)
		mac.Write([]byte(timestamp))
		req.Header.Set(api.SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
		req.Header.Set(api.TimestampHeader, timestamp)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return responseError(resp.StatusCode, buf)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(buf, out)
}

func responseError(status int, body []byte) error {
	e := &api.ErrorResponse{}
	if err := json.Unmarshal(body, e); err != nil || e.Error == "" {
		return fmt.Errorf("server error status %d", status)
	}
	if len(e.KnownVMs) > 0 {
		return fmt.Errorf("%s (known VMs: %s)", e.Error, strings.Join(e.KnownVMs, ", "))
	}
	return errors.New(e.Error)
}
