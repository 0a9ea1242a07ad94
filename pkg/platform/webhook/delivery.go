package webhook

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/better-auth-go/platform/pkg/platform/dlq"
	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/observability"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
	"github.com/better-auth-go/platform/pkg/platform/store"
)

// shortBackpressureWait is how long enqueue blocks a producer for a
// healthy endpoint when the queue is at its high-water mark. If the
// queue is still full afterwards the job is dropped and a transient
// error is logged; Handle does not return that error to the producer.
const shortBackpressureWait = 50 * time.Millisecond

// Config configures an Engine. The zero value is usable; defaults
// below apply.
type Config struct {
	WorkerCount        int // lanes and workers, default runtime.NumCPU()
	DeliveryTimeout    time.Duration
	QueueHighWater     int
	SignatureTolerance time.Duration
	DefaultRetry       RetryStrategy
	CircuitConfig      CircuitBreakerConfig
	RateLimit          RateLimitConfig
	HTTPClient         *http.Client
	Logger             *slog.Logger
	Transformer        Transformer
	DLQ                dlq.Queue
	MaxDeliveryHistory int
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = runtime.NumCPU()
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	if c.QueueHighWater <= 0 {
		c.QueueHighWater = 10000
	}
	if c.SignatureTolerance <= 0 {
		c.SignatureTolerance = DefaultTolerance
	}
	if c.DefaultRetry == nil {
		c.DefaultRetry = DefaultRetryStrategy
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Transformer == nil {
		c.Transformer = DefaultTransformer{}
	}
	if c.MaxDeliveryHistory <= 0 {
		c.MaxDeliveryHistory = 1000
	}
	return c
}

// Engine is the outbound delivery pipeline: it subscribes to the
// event bus (or is handed events directly via Handle), fans each
// matching event out to a Job per enabled endpoint, and runs a bounded
// set of worker goroutines that drain a priority queue of due jobs.
//
// Jobs are routed into one of WorkerCount lanes by hashing
// (endpoint id, stream id), so that attempts against a single
// (endpoint, stream) pair are always handled by the same worker and
// therefore serialize.
type Engine struct {
	cfg       Config
	endpoints *Registry
	limiter   *RateLimiter

	queues  []*JobQueue
	workers sync.WaitGroup

	breakersMu sync.Mutex
	breakers   map[string]*CircuitBreaker

	jobsMu sync.Mutex
	jobs   map[string]*Job

	deliveriesMu sync.Mutex
	deliveries   []Delivery
}

// NewEngine constructs an Engine bound to endpoints. cfg is completed
// with defaults.
func NewEngine(cfg Config, endpoints *Registry) *Engine {
	cfg = cfg.withDefaults()
	queues := make([]*JobQueue, cfg.WorkerCount)
	for i := range queues {
		queues[i] = NewJobQueue()
	}
	return &Engine{
		cfg:       cfg,
		endpoints: endpoints,
		limiter:   NewRateLimiter(cfg.RateLimit),
		queues:    queues,
		breakers:  make(map[string]*CircuitBreaker),
		jobs:      make(map[string]*Job),
	}
}

// ID satisfies event.Handler so an Engine can be subscribed directly
// on a bus.
func (e *Engine) ID() string { return "webhook-delivery-engine" }

// Handle fans evt out to every matching, enabled endpoint whose
// circuit is not Open, enqueuing one Job per endpoint. It never
// returns derived events: webhook delivery is a pipeline terminus.
func (e *Engine) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	for _, ep := range e.endpoints.MatchingEnabled(evt.Type()) {
		e.ingest(ctx, ep, evt)
	}
	return nil, nil
}

func (e *Engine) ingest(ctx context.Context, ep Endpoint, evt event.Event) {
	breaker := e.breakerFor(ep.ID)
	if breaker.State() == CircuitOpen {
		return
	}

	nextAttempt := time.Now()
	if res := e.limiter.TryAcquire(ep.ID, ep.RateLimit); !res.Allowed {
		nextAttempt = nextAttempt.Add(res.RetryAfter)
	}

	job := &Job{
		ID:          newJobID(),
		EndpointID:  ep.ID,
		Event:       evt,
		NextAttempt: nextAttempt,
		Status:      StatusPending,
		streamKey:   evt.Tags()[store.StreamIDTag],
	}
	e.enqueue(ctx, job, breaker)
}

func (e *Engine) enqueue(ctx context.Context, job *Job, breaker *CircuitBreaker) {
	q := e.queueFor(job)

	if q.Len() >= e.cfg.QueueHighWater {
		if breaker.State() == CircuitOpen {
			if e.cfg.DLQ != nil {
				e.cfg.DLQ.EnqueueFailure(ctx, job.Event, job.EndpointID, fmt.Errorf("queue overflow"))
			}
			return
		}
		select {
		case <-time.After(shortBackpressureWait):
		case <-ctx.Done():
			return
		}
		if q.Len() >= e.cfg.QueueHighWater {
			observability.LogDeliveryResult(e.cfg.Logger, job.ID, job.EndpointID, 0, 0,
				perrors.New(perrors.KindTransient, "webhook.enqueue", fmt.Errorf("try again")))
			return
		}
	}

	e.jobsMu.Lock()
	e.jobs[job.ID] = job
	e.jobsMu.Unlock()

	q.Push(job)
}

func (e *Engine) queueFor(job *Job) *JobQueue {
	return e.queues[laneIndex(job.EndpointID, job.streamKey, len(e.queues))]
}

func laneIndex(endpointID, streamKey string, laneCount int) int {
	if laneCount <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(endpointID))
	h.Write([]byte{'|'})
	h.Write([]byte(streamKey))
	return int(h.Sum32() % uint32(laneCount))
}

func (e *Engine) breakerFor(endpointID string) *CircuitBreaker {
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if b, ok := e.breakers[endpointID]; ok {
		return b
	}
	cfg := e.cfg.CircuitConfig
	cfg.EndpointID = endpointID
	cfg.Logger = e.cfg.Logger
	b := NewCircuitBreaker(cfg)
	e.breakers[endpointID] = b
	return b
}

// Start launches one worker goroutine per lane. It returns
// immediately; workers run until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	for i, q := range e.queues {
		e.workers.Add(1)
		go e.workerLoop(ctx, i, q)
	}
}

// Stop closes every lane and waits for workers to drain.
func (e *Engine) Stop() {
	for _, q := range e.queues {
		q.Close()
	}
	e.workers.Wait()
}

func (e *Engine) workerLoop(ctx context.Context, lane int, q *JobQueue) {
	defer e.workers.Done()
	for {
		job, ok := q.Pop(ctx)
		if !ok {
			return
		}
		e.processJob(ctx, job)
	}
}

func (e *Engine) processJob(ctx context.Context, job *Job) {
	ep, err := e.endpoints.Get(job.EndpointID)
	if err != nil {
		return // endpoint removed since the job was created
	}
	breaker := e.breakerFor(ep.ID)

	if !breaker.Allow() {
		job.NextAttempt = breaker.OpenUntil()
		if job.NextAttempt.IsZero() {
			job.NextAttempt = time.Now().Add(time.Second)
		}
		e.queueFor(job).Push(job)
		return
	}

	job.Attempt++
	job.Status = StatusInFlight
	observability.LogDeliveryAttempt(e.cfg.Logger, job.ID, ep.ID, job.Attempt)

	if !e.cfg.Transformer.ShouldSend(job.Event) {
		breaker.OnSuccess()
		job.Status = StatusSucceeded
		return
	}

	payload := BuildPayload(job.Event)
	if custom := e.cfg.Transformer.TransformPayload(job.Event); custom != nil {
		payload.Data = custom
	}

	body, err := MarshalCanonical(payload)
	if err != nil {
		e.finalize(ctx, job, ep, 0, err)
		return
	}

	ts := time.Now()
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range ep.Headers {
		headers[k] = v
	}
	for k, v := range e.cfg.Transformer.CustomHeaders(job.Event) {
		headers[k] = v
	}
	headers[SignatureHeader] = Sign(ep.Secret, body, ts)

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		e.finalize(ctx, job, ep, 0, err)
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.cfg.HTTPClient.Do(req)
	latency := time.Since(start)

	if err != nil {
		e.recordDelivery(job, ep.ID, 0, latency, nil, err)
		e.retryOrFinalize(ctx, job, ep, breaker, err, 0)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyPrefix))
	e.recordDelivery(job, ep.ID, resp.StatusCode, latency, respBody, nil)

	httpErr := &perrors.HTTPError{
		StatusCode: resp.StatusCode,
		Endpoint:   ep.URL,
		Message:    fmt.Sprintf("endpoint responded %d", resp.StatusCode),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		breaker.OnSuccess()
		job.Status = StatusSucceeded
	case perrors.Categorize(httpErr) == perrors.KindTransient:
		e.retryOrFinalize(ctx, job, ep, breaker, httpErr, parseRetryAfter(resp.Header.Get("Retry-After")))
	default:
		breaker.OnSuccess() // the endpoint answered; it is reachable
		e.finalize(ctx, job, ep, resp.StatusCode, httpErr)
	}
}

func (e *Engine) retryOrFinalize(ctx context.Context, job *Job, ep Endpoint, breaker *CircuitBreaker, cause error, retryAfter time.Duration) {
	breaker.OnFailure()

	decision := e.cfg.DefaultRetry.NextDelay(job.Attempt)
	if decision.GiveUp {
		e.finalize(ctx, job, ep, 0, cause)
		return
	}

	delay := decision.Delay
	if retryAfter > 0 {
		delay = retryAfter
	}

	job.Status = StatusPending
	job.LastError = cause.Error()
	job.NextAttempt = time.Now().Add(delay)
	e.queueFor(job).Push(job)
}

func (e *Engine) finalize(ctx context.Context, job *Job, ep Endpoint, statusCode int, cause error) {
	job.Status = StatusDeadLettered
	job.LastError = cause.Error()
	if e.cfg.DLQ != nil {
		e.cfg.DLQ.EnqueueFailure(ctx, job.Event, ep.ID, cause)
	}
}

func (e *Engine) recordDelivery(job *Job, endpointID string, statusCode int, latency time.Duration, body []byte, err error) {
	d := Delivery{
		JobID:      job.ID,
		EndpointID: endpointID,
		Attempt:    job.Attempt,
		StatusCode: statusCode,
		Latency:    latency,
		At:         time.Now(),
	}
	if body != nil {
		d.ResponseBody = truncateBody(body)
	}
	rec := AttemptRecord{Attempt: job.Attempt, At: d.At, StatusCode: statusCode, Duration: latency}
	if err != nil {
		d.Err = err.Error()
		rec.Err = d.Err
	}
	job.History = append(job.History, rec)
	observability.LogDeliveryResult(e.cfg.Logger, job.ID, endpointID, statusCode, latency, err)

	e.deliveriesMu.Lock()
	e.deliveries = append(e.deliveries, d)
	if len(e.deliveries) > e.cfg.MaxDeliveryHistory {
		e.deliveries = e.deliveries[len(e.deliveries)-e.cfg.MaxDeliveryHistory:]
	}
	e.deliveriesMu.Unlock()
}

// Deliveries returns a snapshot of the most recent recorded delivery
// attempts, oldest first, bounded by Config.MaxDeliveryHistory.
func (e *Engine) Deliveries() []Delivery {
	e.deliveriesMu.Lock()
	defer e.deliveriesMu.Unlock()
	out := make([]Delivery, len(e.deliveries))
	copy(out, e.deliveries)
	return out
}

// Job returns a snapshot of a tracked job by id.
func (e *Engine) Job(id string) (Job, bool) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// QueueDepth returns the total number of queued jobs across all lanes,
// due or not.
func (e *Engine) QueueDepth() int {
	total := 0
	for _, q := range e.queues {
		total += q.Len()
	}
	return total
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func newJobID() string {
	return ulid.Make().String()
}
