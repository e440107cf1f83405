package connectivity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 3 * time.Second

var errMissingProbeURL = errors.New("connectivity: probe url required")

// Signal reports whether the backend is believed reachable.
type Signal interface {
	Connected(ctx context.Context) bool
}

// Static is a fixed connectivity answer.
type Static bool

// Connected implements Signal.
func (s Static) Connected(context.Context) bool {
	return bool(s)
}

// ProbeConfig describes how the backend is probed.
type ProbeConfig struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Probe considers the backend reachable when any HTTP response comes back, whatever its
// status.
type Probe struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
	last       atomic.Int32
}

// NewProbe constructs a Probe.
func NewProbe(cfg ProbeConfig) (*Probe, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errMissingProbeURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{url: url, httpClient: httpClient, timeout: timeout, logger: logger}, nil
}

// Connected implements Signal.
func (p *Probe) Connected(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	connected := false
	request, err := http.NewRequestWithContext(probeCtx, http.MethodHead, p.url, nil)
	if err == nil {
		response, doErr := p.httpClient.Do(request)
		if doErr == nil {
			response.Body.Close()
			connected = true
		}
		err = doErr
	}
	p.record(connected, err)
	return connected
}

// record logs transitions only.
func (p *Probe) record(connected bool, err error) {
	state := int32(1)
	if connected {
		state = 2
	}
	previous := p.last.Swap(state)
	if previous == state {
		return
	}
	if connected {
		p.logger.Info("backend reachable", zap.String("url", p.url))
		return
	}
	p.logger.Warn("backend unreachable", zap.String("url", p.url), zap.Error(err))
}
