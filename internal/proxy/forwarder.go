// Package proxy builds and sends the upstream request for a picked
// target, relays its response, and classifies failures into a small
// error taxonomy the listener maps onto HTTP status codes.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/edgelb/internal/lb"
)

// ErrUpstreamConnect covers connection refused, DNS failure, and
// connection reset before any response was read.
var ErrUpstreamConnect = errors.New("proxy: upstream connect failure")

// ErrUpstreamTimeout covers the configured connection timeout being
// exceeded.
var ErrUpstreamTimeout = errors.New("proxy: upstream timeout")

// hopByHopHeaders are stripped from both the outbound request and the
// relayed response.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade",
	"Proxy-Authenticate", "Proxy-Authorization", "Te", "Trailer",
}

func stripHopByHop(h http.Header) {
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}

// Forwarder issues the upstream request for a single pick and relays
// the response byte-faithfully. It round-trips through a plain
// http.Client rather than httputil.ReverseProxy so the call site can
// distinguish a connect failure from a timeout from an upstream status
// that just happens to be a 5xx.
type Forwarder struct {
	client              *http.Client
	proxyHeadersEnabled bool
	listenerPort        int
}

// NewForwarder builds a Forwarder with the given per-request timeout,
// which covers connect plus the full response.
func NewForwarder(timeout time.Duration, proxyHeadersEnabled bool, listenerPort int) *Forwarder {
	return &Forwarder{
		client:              &http.Client{Timeout: timeout},
		proxyHeadersEnabled: proxyHeadersEnabled,
		listenerPort:        listenerPort,
	}
}

// Forward sends the upstream request for target at rewrittenPath and
// relays the response onto w. It returns the time-to-first-byte for
// the round trip (measured from just before the request is sent to
// the moment response headers arrive) and ErrUpstreamConnect or
// ErrUpstreamTimeout on failure; the caller is responsible for writing
// the corresponding status. On success it has already written the
// relayed response and returns a nil error — including when upstream
// answered with a 5xx, which is relayed verbatim rather than treated
// as an error.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target *lb.Target, rewrittenPath string) (time.Duration, error) {
	upstreamReq, err := f.buildRequest(r, target, rewrittenPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamConnect, err)
	}

	dispatched := time.Now()
	resp, err := f.client.Do(upstreamReq)
	ttfb := time.Since(dispatched)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ttfb, ErrUpstreamTimeout
		}
		return ttfb, fmt.Errorf("%w: %v", ErrUpstreamConnect, err)
	}
	defer resp.Body.Close()

	relay(w, resp)
	return ttfb, nil
}

func (f *Forwarder) buildRequest(r *http.Request, target *lb.Target, rewrittenPath string) (*http.Request, error) {
	scheme := "http"
	host := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))

	u := *r.URL
	u.Scheme = scheme
	u.Host = host
	u.Path = rewrittenPath
	// The query string is preserved verbatim: u.RawQuery is already
	// copied by the struct copy above. Fragments are never forwarded.
	u.Fragment = ""

	ctx := r.Context()
	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}
	upstreamReq.Header = r.Header.Clone()
	stripHopByHop(upstreamReq.Header)
	upstreamReq.Header.Del("Host")
	upstreamReq.ContentLength = r.ContentLength

	if f.proxyHeadersEnabled {
		clientIP := clientIP(r)
		if existing := upstreamReq.Header.Get("X-Forwarded-For"); existing != "" {
			upstreamReq.Header.Set("X-Forwarded-For", existing+", "+clientIP)
		} else {
			upstreamReq.Header.Set("X-Forwarded-For", clientIP)
		}
		upstreamReq.Header.Set("X-Forwarded-Host", r.Host)
		upstreamReq.Header.Set("X-Forwarded-Port", strconv.Itoa(f.listenerPort))
		upstreamReq.Header.Set("X-Forwarded-Proto", "http")
		upstreamReq.Header.Set("X-Real-IP", clientIP)
		upstreamReq.Header.Set("X-Request-Id", uuid.NewString())
	}

	return upstreamReq, nil
}

// relay copies the upstream response onto w verbatim: status, headers
// minus hop-by-hop, and body bytes, with no re-encoding.
func relay(w http.ResponseWriter, resp *http.Response) {
	stripHopByHop(resp.Header)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// clientIP extracts the peer IP, or the first X-Forwarded-For entry
// if present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientFingerprint is the session-affinity key sticky routing keys
// off: the first X-Forwarded-For entry if present, else the peer IP.
// It is exported separately from clientIP so the listener can compute
// it once per request without depending on proxy headers being
// enabled.
func ClientFingerprint(r *http.Request) string {
	return clientIP(r)
}
