package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gpio-server/internal/hardware"
	"gpio-server/internal/logger"
	"gpio-server/internal/sensor"
	"gpio-server/internal/types"
)

const (
	unknownBody  = "I don't understand."
	postBody     = "<html><body><h1>POST!</h1></body></html>"
	timeoutBody  = "-1"
	errorPrefix  = "error: "
	shutdownBody = "Shutting down"
)

// Controller is the set of actions the routes trigger.
type Controller interface {
	LedOn() error
	LedOff() error
	Led2On() error
	Led2Off() error
	Distance(ctx context.Context) (float64, error)
	Params() []byte
	Cleanup() error
	SetServerState(state types.ServerState)
}

type route struct {
	prefix string
	handle func(ctx context.Context) (string, error)
}

// Router matches the request path against an ordered list of prefixes.
// The first match wins, so /ledOn also answers /ledOnAnything.
type Router struct {
	ctrl       Controller
	strict     bool
	onShutdown func()
	routes     []route
	logger     *logger.Logger

	// one request touches the pins at a time
	mu sync.Mutex
	// once set, requests still queued on mu run no action
	stopped atomic.Bool
}

// NewRouter builds the route table. onShutdown runs after /shutdown has
// released the pins; it must not block.
func NewRouter(ctrl Controller, strict bool, onShutdown func(), l *logger.Logger) *Router {
	rt := &Router{
		ctrl:       ctrl,
		strict:     strict,
		onShutdown: onShutdown,
		logger:     l,
	}
	rt.routes = []route{
		{"/ledOn", rt.simple(ctrl.LedOn, "led on")},
		{"/ledOff", rt.simple(ctrl.LedOff, "led off")},
		{"/led2On", rt.simple(ctrl.Led2On, "led2 on")},
		{"/led2Off", rt.simple(ctrl.Led2Off, "led2 off")},
		{"/distance", rt.distance},
		{"/params", rt.params},
		{"/cleanup", rt.simple(ctrl.Cleanup, "cleanup")},
		{"/shutdown", rt.shutdown},
	}
	return rt
}

func (rt *Router) simple(action func() error, body string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		if err := action(); err != nil {
			return "", err
		}
		return body, nil
	}
}

func (rt *Router) distance(ctx context.Context) (string, error) {
	d, err := rt.ctrl.Distance(ctx)
	if err != nil {
		return "", err
	}
	return FormatDistance(d), nil
}

func (rt *Router) params(context.Context) (string, error) {
	return string(rt.ctrl.Params()), nil
}

func (rt *Router) shutdown(context.Context) (string, error) {
	rt.Stop()
	if err := rt.ctrl.Cleanup(); err != nil {
		rt.logger.Warnf("Cleanup before shutdown failed: %v", err)
	}
	if rt.onShutdown != nil {
		rt.onShutdown()
	}
	return shutdownBody, nil
}

// Stop makes the router answer every later GET without touching the pins.
func (rt *Router) Stop() {
	rt.stopped.Store(true)
}

// FormatDistance renders a reading with up to 12 significant digits.
func FormatDistance(d float64) string {
	return strconv.FormatFloat(d, 'g', 12, 64)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/html")
	h.Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodGet:
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, postBody)
		return
	default:
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = io.WriteString(w, http.StatusText(http.StatusNotImplemented))
		return
	}

	status, body := rt.dispatch(r.Context(), r.URL.Path)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (rt *Router) dispatch(ctx context.Context, path string) (int, string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.stopped.Load() {
		rt.logger.Debugf("Dropping %q, shutdown in progress", path)
		if rt.strict {
			return http.StatusServiceUnavailable, shutdownBody
		}
		return http.StatusOK, shutdownBody
	}

	for _, rte := range rt.routes {
		if !strings.HasPrefix(path, rte.prefix) {
			continue
		}
		body, err := rte.handle(ctx)
		if err != nil {
			rt.logger.Warnf("%s failed: %v", rte.prefix, err)
			return rt.failure(err)
		}
		return http.StatusOK, body
	}

	rt.logger.Debugf("No route for %q", path)
	if rt.strict {
		return http.StatusNotFound, unknownBody
	}
	return http.StatusOK, unknownBody
}

// failure maps an action error to a status and body. Outside strict mode
// every failure is answered with 200.
func (rt *Router) failure(err error) (int, string) {
	status := http.StatusInternalServerError
	body := errorPrefix + err.Error()
	switch {
	case errors.Is(err, sensor.ErrTimeout):
		status = http.StatusServiceUnavailable
		body = timeoutBody
	case errors.Is(err, hardware.ErrConfiguration):
		status = http.StatusConflict
	}
	if !rt.strict {
		status = http.StatusOK
	}
	return status, body
}
