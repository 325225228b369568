package netclient

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// FirstNonEmpty returns the first non-empty header value among keys, or "?".
func FirstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// TracedClient is a keep-alive HTTP client that records per-request
// connection timings. One instance is shared per remote host.
type TracedClient struct {
	client  *http.Client
	warmURL string
}

func New(warmURL string) *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		warmURL: warmURL,
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

type traceState struct {
	metrics *NetworkMetrics

	getConnStart, dnsStart, tcpStart, tlsStart     time.Time
	gotConn, wroteHeaders, wroteRequest, firstByte time.Time
}

func (s *traceState) clientTrace() *httptrace.ClientTrace {
	m := s.metrics
	return &httptrace.ClientTrace{
		GetConn: func(_ string) { s.getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			s.gotConn = time.Now()
			m.ConnWait = s.gotConn.Sub(s.getConnStart)
			m.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { s.dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { m.DNS = time.Since(s.dnsStart) },
		ConnectStart:      func(_, _ string) { s.tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.TCP = time.Since(s.tcpStart) },
		TLSHandshakeStart: func() { s.tlsStart = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			m.TLS = time.Since(s.tlsStart)
			m.TLSProtocol = cs.NegotiatedProtocol
		},
		WroteHeaders: func() {
			s.wroteHeaders = time.Now()
			m.ReqHeaders = s.wroteHeaders.Sub(s.gotConn)
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			s.wroteRequest = time.Now()
			m.ReqBody = s.wroteRequest.Sub(s.wroteHeaders)
		},
		GotFirstResponseByte: func() {
			s.firstByte = time.Now()
			m.TTFB = s.firstByte.Sub(s.wroteRequest)
		},
	}
}

// Do sends req and reads the whole body. Transport failures are returned
// unclassified; callers wrap them with Network.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	st := &traceState{metrics: &NetworkMetrics{}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), st.clientTrace()))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !st.firstByte.IsZero() {
		st.metrics.Download = time.Since(st.firstByte)
	}
	st.metrics.Total = time.Since(reqStart)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    st.metrics,
	}, nil
}

// HTTPDoer matches the client interface expected by SDKs such as go-openai.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type tracedTransport struct {
	base http.RoundTripper
	fn   func(*NetworkMetrics)
}

func (t tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	st := &traceState{metrics: &NetworkMetrics{}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), st.clientTrace()))
	reqStart := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	st.metrics.Total = time.Since(reqStart)
	if t.fn != nil {
		t.fn(st.metrics)
	}
	return resp, nil
}

// HTTPClient exposes the pooled connections to SDKs that take a concrete
// *http.Client (genai). fn receives the timings up to the response
// headers; the body is left for the SDK to read.
func (c *TracedClient) HTTPClient(fn func(*NetworkMetrics)) *http.Client {
	return &http.Client{Transport: tracedTransport{base: c.client.Transport, fn: fn}}
}

// Doer is HTTPClient for SDKs that accept any HTTPDoer (go-openai).
func (c *TracedClient) Doer(fn func(*NetworkMetrics)) HTTPDoer {
	return c.HTTPClient(fn)
}

// Warm opens a connection to the service host so the TLS handshake is done
// before the real request. Returns the handshake time, 0 on failure.
func (c *TracedClient) Warm() time.Duration {
	if c.warmURL == "" {
		return 0
	}
	var tlsStart time.Time
	var tlsDuration time.Duration

	trace := &httptrace.ClientTrace{
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(_ tls.ConnectionState, _ error) { tlsDuration = time.Since(tlsStart) },
	}

	req, err := http.NewRequest("HEAD", c.warmURL, nil)
	if err != nil {
		return 0
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return tlsDuration
}
