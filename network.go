package cachetx

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/always-cache/cachetx/rfc9111"
)

// NetworkLayer creates network transactions.
type NetworkLayer interface {
	NewTransaction() NetworkTransaction
}

// NetworkTransaction sends one request and streams its response body.
type NetworkTransaction interface {
	// Start sends the request and returns once the response headers arrived.
	Start(ctx context.Context, req *http.Request) error
	// Response returns the response headers after a successful Start.
	Response() *http.Response
	// Read reads the response body. It returns io.EOF at the end of the body.
	Read(p []byte) (int, error)
	// RestartWithAuth resends the request with credentials after a
	// 401 or 407 response.
	RestartWithAuth(ctx context.Context, user, password string) error
	Close() error
}

// HTTPNetwork sends requests to a single origin server.
type HTTPNetwork struct {
	client *http.Client
	scheme string
	host   string
	// hostHeader is sent as the Host of every request
	hostHeader string
	// ModifyResponse is applied to every response before it is processed,
	// e.g. to add caching headers.
	ModifyResponse func(*http.Response) error
}

// NewHTTPNetwork creates a network layer for the origin.
// The originHost, if not empty, is used for the Host header and TLS
// negotiation, e.g. when the origin URL is just an IP address.
func NewHTTPNetwork(originURL url.URL, originHost string) *HTTPNetwork {
	hostHeader := originURL.Host
	transport := http.DefaultTransport
	if originHost != "" {
		hostHeader = originHost
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return &HTTPNetwork{
		client: &http.Client{
			Transport: transport,
			// redirects are responses like any other
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme:     originURL.Scheme,
		host:       originURL.Host,
		hostHeader: hostHeader,
	}
}

func (n *HTTPNetwork) NewTransaction() NetworkTransaction {
	return &httpTransaction{network: n}
}

type httpTransaction struct {
	network *HTTPNetwork
	req     *http.Request
	res     *http.Response
}

func (t *httpTransaction) Start(ctx context.Context, req *http.Request) error {
	out := rfc9111.GetForwardRequest(req).WithContext(ctx)
	out.URL = &url.URL{
		Scheme:   t.network.scheme,
		Host:     t.network.host,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}
	out.Host = t.network.hostHeader
	out.RequestURI = ""
	t.req = out
	return t.do()
}

func (t *httpTransaction) do() error {
	res, err := t.network.client.Do(t.req)
	if err != nil {
		return err
	}
	// §  A recipient with a clock that receives a response message without a
	// §  Date header field MUST add one if it is cached or forwarded downstream.
	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", rfc9111.ToHttpDate(time.Now()))
	}
	if t.network.ModifyResponse != nil {
		if err := t.network.ModifyResponse(res); err != nil {
			res.Body.Close()
			return fmt.Errorf("modify response: %w", err)
		}
	}
	t.res = res
	return nil
}

func (t *httpTransaction) Response() *http.Response {
	return t.res
}

func (t *httpTransaction) Read(p []byte) (int, error) {
	if t.res == nil {
		return 0, io.EOF
	}
	n, err := t.res.Body.Read(p)
	if n > 0 && err == io.EOF {
		return n, nil
	}
	return n, err
}

func (t *httpTransaction) RestartWithAuth(ctx context.Context, user, password string) error {
	if t.req == nil || t.res == nil {
		return fmt.Errorf("%w: no request to authenticate", ErrUnexpected)
	}
	challenge := t.res.StatusCode
	t.Close()
	req := t.req.Clone(ctx)
	if challenge == http.StatusProxyAuthRequired {
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
		req.Header.Set("Proxy-Authorization", "Basic "+credentials)
	} else {
		req.SetBasicAuth(user, password)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return err
		}
		req.Body = body
	}
	t.req = req
	t.res = nil
	return t.do()
}

func (t *httpTransaction) Close() error {
	if t.res == nil {
		return nil
	}
	return t.res.Body.Close()
}
