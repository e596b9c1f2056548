package ppool

import (
	"context"
	"expvar"
	"net/http"
	"sync"
	"time"
)

// ValidationResult pairs a probed candidate with the error from its
// final attempt, if every attempt failed.
type ValidationResult struct {
	Record *Record
	Err    error
}

// Validator probes candidates for reachability, content integrity,
// anonymity, and (optionally) geolocation, bounding total concurrency
// and batching large candidate sets.
type Validator struct {
	cfg          ValidatorConfig
	echo         EchoEndpoints
	metrics      *Metrics
	geo          *GeoLookup
	ownIP        ownIPCache
	directClient *http.Client // no-proxy client, used only to learn our own egress IP

	// failureKinds counts terminal probe failures by ErrorKind name
	// (timeout, connection-refused, http-status, parse-error, other, ...).
	failureKinds *expvar.Map
}

// NewValidator wires a Validator from config. geo may be nil (no
// geolocation database configured).
func NewValidator(cfg ValidatorConfig, echo EchoEndpoints, metrics *Metrics, geo *GeoLookup) *Validator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		cfg: cfg, echo: echo, metrics: metrics, geo: geo,
		directClient: &http.Client{Timeout: timeout},
		failureKinds: getVarMap("validator", "default", "failure"),
	}
}

// Validate runs every candidate through the probe sequence, chunking
// into batches of cfg.BatchSize with a cfg.ChunkPause rest between
// chunks and a semaphore bounding cfg.MaxConcurrent probes in flight at
// once.
func (v *Validator) Validate(ctx context.Context, candidates []*Record) []*ValidationResult {
	results := make([]*ValidationResult, 0, len(candidates))

	batchSize := v.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(candidates)
	}
	if batchSize <= 0 {
		return results
	}

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]
		results = append(results, v.validateChunk(ctx, chunk)...)

		if end < len(candidates) && v.cfg.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(v.cfg.ChunkPause):
			}
		}
	}
	return results
}

func (v *Validator) validateChunk(ctx context.Context, chunk []*Record) []*ValidationResult {
	sem := make(chan struct{}, v.cfg.MaxConcurrent)
	out := make([]*ValidationResult, len(chunk))
	var wg sync.WaitGroup

	for i, candidate := range chunk {
		wg.Add(1)
		go func(i int, candidate *Record) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = &ValidationResult{Record: candidate, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			err := v.validateOne(ctx, candidate)
			out[i] = &ValidationResult{Record: candidate, Err: err}
		}(i, candidate)
	}
	wg.Wait()
	return out
}

// validateOne runs the full probe sequence against one candidate with
// up to cfg.RetryCount retries, pausing cfg.RetryDelay between attempts.
// It mutates candidate in place via RecordSuccess/RecordFailure —
// callers must not probe the same record concurrently from elsewhere.
func (v *Validator) validateOne(ctx context.Context, candidate *Record) error {
	log := logger("validator", candidate.String())
	start := time.Now()
	if v.metrics != nil {
		v.metrics.ValidationTotal.Inc()
	}

	timeout := v.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var lastErr error
	attempts := v.cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && v.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				candidate.RecordFailure()
				return ctx.Err()
			case <-time.After(v.cfg.RetryDelay):
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := v.probe(probeCtx, candidate)
		cancel()
		if err == nil {
			candidate.RecordSuccess(candidate.ResponseTimeMs)
			if v.metrics != nil {
				v.metrics.ValidationWorking.Inc()
				v.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
			}
			return nil
		}
		lastErr = err
		log.Debug("probe attempt failed", "attempt", attempt, "error", err)
	}

	candidate.RecordFailure()
	kind := probeErrorKind(lastErr)
	if v.failureKinds != nil {
		v.failureKinds.Add(kind, 1)
	}
	if v.metrics != nil {
		v.metrics.ValidationFailed.WithLabelValues(kind).Inc()
		v.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	}
	return lastErr
}

// probe runs the reachability, anonymity, and optional geolocation
// steps once, writing transient results (latency, anonymity,
// geolocation) directly onto candidate. It does not call
// RecordSuccess/RecordFailure; the retry loop in validateOne owns that.
func (v *Validator) probe(ctx context.Context, candidate *Record) error {
	client, err := newProxyClient(candidate, v.cfg.Timeout)
	if err != nil {
		return err
	}

	echoURL := v.pickEchoIPURL(candidate.Protocol)
	if echoURL == "" {
		return &ConfigError{Field: "echo_endpoints", Reason: "no echo-ip URL configured for protocol " + candidate.Protocol.String()}
	}

	elapsedMs, originIP, err := reachabilityProbe(ctx, client, echoURL)
	if err != nil {
		return err
	}
	candidate.ResponseTimeMs = elapsedMs
	candidate.HasResponseTime = true

	if len(v.echo.HeadersEcho) > 0 {
		ownIP, _ := v.ownIP.get(ctx, v.directClient, v.bareEchoIPURL())
		anonymity, _, err := anonymityProbe(ctx, client, v.echo.HeadersEcho[0], ownIP)
		if err != nil {
			// Reachability already succeeded: the candidate is working,
			// it just couldn't be classified for anonymity this attempt.
			// Don't fail the whole probe over it.
			candidate.Anonymity = AnonymityUnknown
		} else {
			candidate.Anonymity = anonymity
		}
	}

	if v.geo != nil {
		v.geo.annotate(candidate, originIP)
	}
	return nil
}

// pickEchoIPURL selects an echo-ip endpoint matching proto's transport:
// HTTPS candidates prefer the https:// endpoint (so the probe exercises
// TLS through the proxy too), everything else uses the http:// one.
func (v *Validator) pickEchoIPURL(proto Protocol) string {
	if proto == ProtocolHTTPS && len(v.echo.EchoIPHTTPS) > 0 {
		return v.echo.EchoIPHTTPS[0]
	}
	if len(v.echo.EchoIPHTTP) > 0 {
		return v.echo.EchoIPHTTP[0]
	}
	if len(v.echo.EchoIPHTTPS) > 0 {
		return v.echo.EchoIPHTTPS[0]
	}
	return ""
}

// bareEchoIPURL picks any configured echo-ip URL for the one-time,
// no-proxy own-IP lookup; which scheme doesn't matter since it's not
// dialed through a candidate.
func (v *Validator) bareEchoIPURL() string {
	if len(v.echo.EchoIPHTTP) > 0 {
		return v.echo.EchoIPHTTP[0]
	}
	if len(v.echo.EchoIPHTTPS) > 0 {
		return v.echo.EchoIPHTTPS[0]
	}
	return ""
}

func probeErrorKind(err error) string {
	if pe, ok := err.(*ProbeError); ok {
		return pe.Kind.String()
	}
	return ErrOther.String()
}
