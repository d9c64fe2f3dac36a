package proxy

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/edgelb/internal/lb"
	"github.com/songzhibin97/edgelb/internal/router"
)

// Listener is the single HTTP ingress endpoint: it resolves each
// request's path to a group, picks a target from that group's policy,
// forwards the request, and writes the response. Requests are
// serviced independently and may run concurrently; Listener holds no
// per-request mutable state.
type Listener struct {
	matcher   *router.Matcher
	groups    map[string]*lb.Group
	forwarder *Forwarder
	logger    *zap.Logger
}

// NewListener wires a RuleMatcher, the named groups it can route to,
// and a Forwarder into a single http.Handler.
func NewListener(matcher *router.Matcher, groups map[string]*lb.Group, forwarder *Forwarder, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{matcher: matcher, groups: groups, forwarder: forwarder, logger: logger}
}

// ServeHTTP implements http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rule, err := l.matcher.Match(r.URL.Path)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		l.logger.Debug("no rule matched", zap.String("path", r.URL.Path))
		return
	}

	group, ok := l.groups[rule.Group]
	if !ok {
		// Config validation should make this unreachable; fail closed.
		w.WriteHeader(http.StatusNotFound)
		l.logger.Error("rule references unknown group", zap.String("group", rule.Group))
		return
	}

	pickCtx := lb.PickContext{ClientFingerprint: ClientFingerprint(r)}
	target, err := group.Pick(pickCtx)
	if err != nil {
		// Every Policy implementation returns ErrNoHealthyTargets for an
		// empty eligible set; there is no other failure mode to pick.
		w.WriteHeader(http.StatusServiceUnavailable)
		l.logger.Debug("no eligible targets", zap.String("group", rule.Group))
		return
	}

	rewritten := router.Rewrite(r.URL.Path, rule, target.BaseURI)

	group.RecordDispatch(target)
	ttfb, fwdErr := l.forwarder.Forward(w, r, target, rewritten)
	group.RecordComplete(target, fwdErr == nil, float64(ttfb.Milliseconds()))

	if fwdErr != nil {
		switch {
		case errors.Is(fwdErr, ErrUpstreamTimeout):
			w.WriteHeader(http.StatusGatewayTimeout)
		case errors.Is(fwdErr, ErrUpstreamConnect):
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
		l.logger.Debug("forward failed",
			zap.String("group", rule.Group), zap.String("target", target.ID), zap.Error(fwdErr))
		return
	}

	l.logger.Debug("request forwarded",
		zap.String("path", r.URL.Path), zap.String("group", rule.Group),
		zap.String("target", target.ID), zap.Duration("latency", time.Since(start)))
}
