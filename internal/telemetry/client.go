// Package telemetry implements a resilient outbound channel combining
// retry, a circuit breaker, and a persistent on-disk queue drained by a
// background flush loop.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nehonix-edge/gatewaysupervisord/internal/breaker"
	"github.com/nehonix-edge/gatewaysupervisord/internal/gwerr"
	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
	"github.com/nehonix-edge/gatewaysupervisord/internal/queue"
	"github.com/nehonix-edge/gatewaysupervisord/internal/retry"
)

// sendChannelCapacity bounds the in-memory hand-off channel between Send()
// callers and the background send worker, so Send never blocks the caller
// beyond pushing one item onto it.
const sendChannelCapacity = 256

// flushBatchSize is the number of queue entries the flush loop attempts per
// tick.
const flushBatchSize = 50

// Config configures a Client.
type Config struct {
	DeviceID      string
	Endpoint      string
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Retry         retry.Policy
}

// Client is the outbound telemetry channel.
type Client struct {
	cfg     Config
	breaker *breaker.Breaker
	queue   *queue.Queue
	metrics *metrics.Registry
	log     zerolog.Logger
	http    *http.Client

	ch chan Payload

	mu        sync.Mutex
	started   bool
	workerWG  sync.WaitGroup
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds a Client. q must already be open.
func New(cfg Config, b *breaker.Breaker, q *queue.Queue, reg *metrics.Registry, log zerolog.Logger) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		breaker: b,
		queue:   q,
		metrics: reg,
		log:     log.With().Str("component", "telemetry_client").Logger(),
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		ch:      make(chan Payload, sendChannelCapacity),
	}
}

// Send is a non-blocking enqueue: it hands the payload to the channel
// feeding the send worker, or — if the channel is full — spills it directly
// to the persistent queue.
func (c *Client) Send(kind string, body map[string]any) {
	p := NewPayload(c.cfg.DeviceID, kind, body)
	select {
	case c.ch <- p:
	default:
		c.spill(p)
		c.metrics.IncCounter("telemetry.spilled", nil, 1)
	}
}

// Start launches the send worker and the flush loop.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.workerWG.Add(2)
	go c.sendWorker(stop)
	go c.flushLoop(stop)

	go func() {
		c.workerWG.Wait()
		close(c.doneCh)
	}()
}

// Stop tears down the background workers, then performs one final
// synchronous flush attempt. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	stop := c.stopCh
	done := c.doneCh
	c.started = false
	c.mu.Unlock()

	close(stop)
	<-done
	c.Flush()
}

func (c *Client) sendWorker(stop <-chan struct{}) {
	defer c.workerWG.Done()
	for {
		select {
		case <-stop:
			return
		case p := <-c.ch:
			c.attemptSend(p)
		}
	}
}

// attemptSend runs the full send pipeline for a single payload:
// retry-wrapped POST through the circuit breaker, spilling to the
// persistent queue on exhaustion or refusal.
func (c *Client) attemptSend(p Payload) {
	err := c.breaker.Call(func() error {
		return retry.Do(c.cfg.Retry, func() error {
			return c.post(p)
		})
	})

	if err != nil {
		c.spill(p)
		c.metrics.IncCounter("telemetry.spilled", nil, 1)
		if _, ok := err.(breaker.ErrOpen); ok {
			c.log.Debug().Str("id", p.ID).Msg("breaker open, spilled to queue")
		} else {
			c.log.Warn().Err(err).Str("id", p.ID).Msg("send failed after retries, spilled to queue")
		}
		return
	}
	c.metrics.IncCounter("telemetry.sent", nil, 1)
}

func (c *Client) spill(p Payload) {
	data, err := json.Marshal(p)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal payload for spill, dropping")
		return
	}
	if _, err := c.queue.Enqueue(data, time.Now().Unix()); err != nil {
		c.log.Error().Err(err).Msg("persistent queue enqueue failed")
	}
}

// post performs the HTTP POST of the payload's JSON encoding. Non-2xx is
// treated as failure.
func (c *Client) post(p Payload) error {
	const op = "telemetry.post"
	body, err := json.Marshal(p)
	if err != nil {
		return gwerr.Wrap(op, gwerr.KindSendFailed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return gwerr.Wrap(op, gwerr.KindSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gwerr.Wrap(op, gwerr.KindSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gwerr.Wrap(op, gwerr.KindSendFailed, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) flushLoop(stop <-chan struct{}) {
	defer c.workerWG.Done()
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

// Flush drains the persistent queue opportunistically, returning the count
// of entries attempted. If the breaker is Open, it skips entirely; if an
// entry fails or the breaker trips mid-batch, the loop aborts and is
// retried next tick — a repeatedly-failing entry at the head of the queue
// blocks everything behind it until it finally succeeds; only entries whose
// JSON cannot be decoded are dropped.
func (c *Client) Flush() int {
	if c.breaker.State() == breaker.Open {
		return 0
	}

	entries, err := c.queue.Peek(flushBatchSize)
	if err != nil {
		c.log.Error().Err(err).Msg("queue peek failed during flush")
		return 0
	}

	attempted := 0
	for _, e := range entries {
		attempted++
		var p Payload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			c.log.Error().Err(err).Int64("id", e.ID).Msg("corrupt queued payload, dropping")
			_ = c.queue.Remove(e.ID)
			continue
		}

		sendErr := c.breaker.Call(func() error {
			return retry.Do(c.cfg.Retry, func() error {
				return c.post(p)
			})
		})

		if sendErr != nil {
			_ = c.queue.IncrementAttempt(e.ID)
			if _, ok := sendErr.(breaker.ErrOpen); ok {
				c.log.Debug().Msg("breaker opened mid-batch, aborting flush")
			}
			break
		}

		if err := c.queue.Remove(e.ID); err != nil {
			c.log.Error().Err(err).Int64("id", e.ID).Msg("failed to remove flushed entry")
		}
		c.metrics.IncCounter("telemetry.sent", nil, 1)
	}

	return attempted
}
