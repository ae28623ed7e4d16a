package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	webhookQueueSize = 1024
	webhookAttempts  = 2
)

var errCollectorRejected = errors.New("audit collector rejected event")

// webhookEvent is the JSON document sent to the audit collector. Seq grows by
// one per event, including dropped ones, so a collector can spot gaps.
type webhookEvent struct {
	Seq        uint64            `json:"seq"`
	Event      string            `json:"event"`
	Outcome    string            `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// auditWebhook copies audit events to an HTTP collector from a single
// background goroutine. CA operations never wait on it.
type auditWebhook struct {
	endpoint   string
	header     http.Header
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration

	events    chan webhookEvent
	seq       atomic.Uint64
	dropped   atomic.Uint64
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newAuditWebhook starts a forwarder posting to endpoint. authHeader is
// "Name: Value" or empty.
func newAuditWebhook(endpoint, authHeader string, logger *slog.Logger) *auditWebhook {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", "IronPKI-Audit-Webhook/1.0")
	if name, value, ok := strings.Cut(authHeader, ":"); ok {
		header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	w := &auditWebhook{
		endpoint:   endpoint,
		header:     header,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryDelay: time.Second,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	w.start()
	return w
}

func (w *auditWebhook) start() {
	w.wg.Add(1)
	go w.loop()
}

// enqueue numbers evt and queues it, dropping it when the queue is full.
func (w *auditWebhook) enqueue(evt webhookEvent) {
	evt.Seq = w.seq.Add(1)
	select {
	case w.events <- evt:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("audit webhook queue full, event dropped",
			"event", evt.Event, "seq", evt.Seq, "dropped_total", n)
	}
}

// close delivers what is queued and stops the forwarder.
func (w *auditWebhook) close() {
	w.closeOnce.Do(func() {
		close(w.events)
		w.wg.Wait()
	})
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		if err := w.deliver(evt); err != nil {
			w.logger.Warn("audit webhook delivery failed",
				"event", evt.Event, "seq", evt.Seq, "error", err)
		}
	}
}

// deliver posts evt, trying again once after a transport error or 5xx.
func (w *auditWebhook) deliver(evt webhookEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := range webhookAttempts {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}
		retry, err := w.post(body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (w *auditWebhook) post(body []byte) (retry bool, err error) {
	req, err := http.NewRequest(http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header = w.header.Clone()

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("audit collector returned %s", resp.Status)
	default:
		return false, fmt.Errorf("%w: %s", errCollectorRejected, resp.Status)
	}
}
