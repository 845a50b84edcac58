// Package delivery hands every recorded transaction to the orchestrator
// exactly once in intent, through an unreliable live channel.
//
// A transaction is either sent and acknowledged, or it lands in the backlog.
// Replays go through the same send path as live scans, one at a time and in
// backlog order.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
)

const (
	defaultAckTimeout      = 30 * time.Second
	defaultBatchAckTimeout = 60 * time.Second
	defaultDeviceID        = "GM_STATION"
)

// Channel is the live connection to the orchestrator.
type Channel interface {
	Connected() bool
	Send(ctx context.Context, env model.Envelope) error
}

// BatchPoster submits a batch over the bulk endpoint.
type BatchPoster interface {
	PostBatch(ctx context.Context, req model.BatchRequest) (model.BatchResponse, error)
}

// Backlog is the persisted pending queue the coordinator drains.
type Backlog interface {
	Enqueue(ctx context.Context, tx model.Transaction, reason string) (model.QueueEntry, error)
	Snapshot() []model.QueueEntry
	Remove(ctx context.Context, ids []string) error
	MergeOrphans(ctx context.Context) (int, error)
	Len() int
}

// Outcome is the result of Submit.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// FlushReport summarises one replay pass.
type FlushReport struct {
	Skipped   bool `json:"skipped"`
	Aborted   bool `json:"aborted"`
	Attempted int  `json:"attempted"`
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
}

// BatchResult is a confirmed bulk upload.
type BatchResult struct {
	BatchID   string `json:"batchId"`
	Count     int    `json:"count"`
	Processed int    `json:"processedCount"`
	Total     int    `json:"totalCount"`
}

type waiter struct {
	id  string
	key string
	ch  chan model.SubmitResult
}

// Coordinator owns the correlation registry and the single-flight sync flag.
// The backlog itself belongs to the transaction store.
type Coordinator struct {
	channel Channel
	poster  BatchPoster
	backlog Backlog

	deviceID        string
	ackTimeout      time.Duration
	batchAckTimeout time.Duration

	mu      sync.Mutex
	byID    map[string]*waiter
	byKey   map[string][]*waiter
	batches map[string]chan model.BatchAck

	syncing atomic.Bool
	logger  logger.Logger
	now     func() time.Time
}

// New creates a coordinator and merges any orphaned entries into the backlog.
// A failed merge is logged and leaves the orphan slot for the next start.
func New(ctx context.Context, channel Channel, backlog Backlog, opts ...Option) *Coordinator {
	c := &Coordinator{
		channel:         channel,
		backlog:         backlog,
		deviceID:        defaultDeviceID,
		ackTimeout:      defaultAckTimeout,
		batchAckTimeout: defaultBatchAckTimeout,
		byID:            make(map[string]*waiter),
		byKey:           make(map[string][]*waiter),
		batches:         make(map[string]chan model.BatchAck),
		logger:          logger.Nop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := c.MergeOrphaned(ctx); err != nil {
		c.logger.Error(ctx, "orphan merge failed", logger.Error(err))
	}
	return c
}

func correlationKey(tokenID, teamID string) string {
	return tokenID + "|" + teamID
}

// Submit sends tx if the channel is up and waits for its result; otherwise,
// or if the send fails or times out, the transaction is queued.
func (c *Coordinator) Submit(ctx context.Context, tx model.Transaction) (Outcome, error) {
	if !c.channel.Connected() {
		return c.enqueue(ctx, tx, model.ReasonOffline)
	}

	res, err := c.send(ctx, tx)
	if err != nil {
		c.logger.Warn(ctx, "live delivery unconfirmed, queueing",
			logger.String("token_id", tx.TokenID),
			logger.String("team_id", tx.TeamID),
			logger.Error(err))
		return c.enqueue(ctx, tx, model.ReasonUnconfirmed)
	}

	metrics.RecordDelivery("live", res.Status)
	return OutcomeDelivered, nil
}

func (c *Coordinator) enqueue(ctx context.Context, tx model.Transaction, reason string) (Outcome, error) {
	// The scan must reach disk even if the caller gave up waiting.
	if _, err := c.backlog.Enqueue(context.WithoutCancel(ctx), tx, reason); err != nil {
		metrics.RecordDelivery("live", "enqueue_failed")
		return 0, fmt.Errorf("delivery: queue %s: %w", tx.TokenID, err)
	}
	metrics.RecordDelivery("live", "queued_"+reason)
	return OutcomeQueued, nil
}

// send is the one path both live scans and replays use.
func (c *Coordinator) send(ctx context.Context, tx model.Transaction) (model.SubmitResult, error) {
	w := c.register(tx)
	defer c.unregister(w)

	env, err := model.NewEnvelope(model.MsgTransactionSubmit, model.SubmitRequest{
		SubmissionID: w.id,
		Transaction:  tx,
	})
	if err != nil {
		return model.SubmitResult{}, err
	}

	start := c.now()
	if err := c.channel.Send(ctx, env); err != nil {
		return model.SubmitResult{}, fmt.Errorf("delivery: send: %w", err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		metrics.RecordAckLatency(float64(c.now().Sub(start).Milliseconds()))
		return res, nil
	case <-timer.C:
		metrics.RecordAckTimeout()
		return model.SubmitResult{}, ErrAckTimeout
	case <-ctx.Done():
		return model.SubmitResult{}, ctx.Err()
	}
}

func (c *Coordinator) register(tx model.Transaction) *waiter {
	w := &waiter{
		id:  uuid.NewString(),
		key: correlationKey(tx.TokenID, tx.TeamID),
		ch:  make(chan model.SubmitResult, 1),
	}
	c.mu.Lock()
	c.byID[w.id] = w
	c.byKey[w.key] = append(c.byKey[w.key], w)
	c.mu.Unlock()
	return w
}

func (c *Coordinator) unregister(w *waiter) {
	c.mu.Lock()
	c.detach(w)
	c.mu.Unlock()
}

// detach removes w from both indexes. Caller holds c.mu.
func (c *Coordinator) detach(w *waiter) {
	delete(c.byID, w.id)
	list := c.byKey[w.key]
	for i, o := range list {
		if o == w {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.byKey, w.key)
		return
	}
	c.byKey[w.key] = list
}

// resolve hands res to its waiter. A result echoing a submission ID matches
// only that submission; otherwise the oldest waiter for the same token and
// team wins. Results nobody waits for are dropped.
func (c *Coordinator) resolve(res model.SubmitResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var w *waiter
	if res.SubmissionID != "" {
		w = c.byID[res.SubmissionID]
	} else if list := c.byKey[correlationKey(res.TokenID, res.TeamID)]; len(list) > 0 {
		w = list[0]
	}
	if w == nil {
		return false
	}
	c.detach(w)
	w.ch <- res
	return true
}

// Pending returns the number of sends awaiting a result.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Syncing reports whether a flush or backlog upload is running.
func (c *Coordinator) Syncing() bool {
	return c.syncing.Load()
}

// HandleMessage routes results and batch acks to their waiters. It reports
// false for message types it does not consume.
func (c *Coordinator) HandleMessage(ctx context.Context, env model.Envelope) (bool, error) {
	switch env.Type {
	case model.MsgTransactionResult:
		var res model.SubmitResult
		if err := env.Decode(&res); err != nil {
			return true, fmt.Errorf("delivery: decode result: %w", err)
		}
		if !c.resolve(res) {
			c.logger.Debug(ctx, "ignoring uncorrelated result",
				logger.String("submission_id", res.SubmissionID),
				logger.String("token_id", res.TokenID),
				logger.String("team_id", res.TeamID))
		}
		return true, nil
	case model.MsgBatchAck:
		var ack model.BatchAck
		if err := env.Decode(&ack); err != nil {
			return true, fmt.Errorf("delivery: decode batch ack: %w", err)
		}
		if !c.resolveBatch(ack) {
			c.logger.Debug(ctx, "ignoring unknown batch ack", logger.String("batch_id", ack.BatchID))
		}
		return true, nil
	default:
		return false, nil
	}
}

// Flush replays a snapshot of the backlog, strictly in order with one send in
// flight. Overlapping calls return a skipped report. Once every snapshot entry
// has been attempted, all of them leave the backlog whatever their result. If
// the channel drops mid-way, only delivered entries are removed and the rest
// stay for the next flush. Entries queued during the flush are never touched.
func (c *Coordinator) Flush(ctx context.Context) (FlushReport, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		metrics.RecordFlush("skipped")
		return FlushReport{Skipped: true, Remaining: c.backlog.Len()}, nil
	}
	defer c.syncing.Store(false)

	snapshot := c.backlog.Snapshot()
	report := FlushReport{}
	if len(snapshot) == 0 {
		metrics.RecordFlush("empty")
		return report, nil
	}

	c.logger.Info(ctx, "replaying backlog", logger.Int("entries", len(snapshot)))

	attempted := make([]string, 0, len(snapshot))
	delivered := make([]string, 0, len(snapshot))
	for _, entry := range snapshot {
		if ctx.Err() != nil || !c.channel.Connected() {
			report.Aborted = true
			break
		}
		report.Attempted++
		attempted = append(attempted, entry.ID)

		res, err := c.send(ctx, entry.Transaction)
		if err != nil {
			report.Failed++
			metrics.RecordReplay("failed")
			c.logger.Warn(ctx, "replay failed",
				logger.String("entry_id", entry.ID),
				logger.String("token_id", entry.Transaction.TokenID),
				logger.Error(err))
			continue
		}
		report.Delivered++
		delivered = append(delivered, entry.ID)
		metrics.RecordReplay("delivered")
		metrics.RecordDelivery("replay", res.Status)
	}

	remove := attempted
	if report.Aborted {
		remove = delivered
	}
	if err := c.backlog.Remove(context.WithoutCancel(ctx), remove); err != nil {
		metrics.RecordFlush("error")
		return report, fmt.Errorf("delivery: flush: %w", err)
	}
	report.Remaining = c.backlog.Len()

	switch {
	case report.Aborted:
		metrics.RecordFlush("aborted")
	case report.Failed > 0:
		metrics.RecordFlush("partial")
	default:
		metrics.RecordFlush("complete")
	}
	c.logger.Info(ctx, "backlog replay finished",
		logger.Int("attempted", report.Attempted),
		logger.Int("delivered", report.Delivered),
		logger.Int("failed", report.Failed),
		logger.Bool("aborted", report.Aborted),
		logger.Int("remaining", report.Remaining))
	return report, nil
}

// MergeOrphaned moves stranded entries from the orphan slot into the backlog.
// Running it again without new orphans changes nothing.
func (c *Coordinator) MergeOrphaned(ctx context.Context) (int, error) {
	n, err := c.backlog.MergeOrphans(ctx)
	if err != nil {
		return 0, fmt.Errorf("delivery: merge orphans: %w", err)
	}
	if n > 0 {
		metrics.RecordOrphansMerged(n)
		c.logger.Info(ctx, "merged orphaned entries", logger.Int("entries", n))
	}
	return n, nil
}

func (c *Coordinator) newBatchID() string {
	return fmt.Sprintf("%s-%d-%s", c.deviceID, c.now().UnixMilli(), uuid.NewString()[:8])
}

func (c *Coordinator) registerBatch(id string) chan model.BatchAck {
	ch := make(chan model.BatchAck, 1)
	c.mu.Lock()
	c.batches[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) unregisterBatch(id string) {
	c.mu.Lock()
	delete(c.batches, id)
	c.mu.Unlock()
}

func (c *Coordinator) resolveBatch(ack model.BatchAck) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.batches[ack.BatchID]
	if !ok {
		return false
	}
	delete(c.batches, ack.BatchID)
	ch <- ack
	return true
}

// BulkUpload posts txs as one batch and waits for the matching batch:ack on
// the live channel. The waiter is registered before the POST so an early ack
// is not lost.
func (c *Coordinator) BulkUpload(ctx context.Context, txs []model.Transaction) (BatchResult, error) {
	if c.poster == nil {
		return BatchResult{}, ErrNoBatchPoster
	}
	if len(txs) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	id := c.newBatchID()
	ackCh := c.registerBatch(id)
	defer c.unregisterBatch(id)

	resp, err := c.poster.PostBatch(ctx, model.BatchRequest{BatchID: id, Transactions: txs})
	if err != nil {
		metrics.RecordBulkUpload("post_failed", len(txs))
		return BatchResult{}, fmt.Errorf("delivery: post batch %s: %w", id, err)
	}

	timer := time.NewTimer(c.batchAckTimeout)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		metrics.RecordBulkUpload("confirmed", len(txs))
		return BatchResult{
			BatchID:   id,
			Count:     ack.Count,
			Processed: resp.ProcessedCount,
			Total:     resp.TotalCount,
		}, nil
	case <-timer.C:
		metrics.RecordBulkUpload("ack_timeout", len(txs))
		return BatchResult{}, fmt.Errorf("delivery: batch %s: %w", id, ErrBatchAckTimeout)
	case <-ctx.Done():
		metrics.RecordBulkUpload("cancelled", len(txs))
		return BatchResult{}, ctx.Err()
	}
}

// UploadBacklog bulk-uploads a backlog snapshot and removes those entries
// only after the batch is acknowledged.
func (c *Coordinator) UploadBacklog(ctx context.Context) (BatchResult, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		return BatchResult{}, ErrSyncInProgress
	}
	defer c.syncing.Store(false)

	snapshot := c.backlog.Snapshot()
	if len(snapshot) == 0 {
		return BatchResult{}, nil
	}
	txs := make([]model.Transaction, 0, len(snapshot))
	ids := make([]string, 0, len(snapshot))
	for _, e := range snapshot {
		txs = append(txs, e.Transaction)
		ids = append(ids, e.ID)
	}

	result, err := c.BulkUpload(ctx, txs)
	if err != nil {
		return BatchResult{}, err
	}
	if err := c.backlog.Remove(context.WithoutCancel(ctx), ids); err != nil {
		return result, fmt.Errorf("delivery: clear uploaded backlog: %w", err)
	}
	c.logger.Info(ctx, "backlog uploaded",
		logger.String("batch_id", result.BatchID),
		logger.Int("entries", len(ids)))
	return result, nil
}
