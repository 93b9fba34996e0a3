package relayer

import (
	"context"
	"sync"

	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Deliverer moves one bridge message to its destination chain.
type Deliverer interface {
	Deliver(ctx context.Context, msg bridge.Message) error
}

// Queue batches bridge messages and delivers each full batch in the background.
type Queue struct {
	logger    *zap.Logger
	ctx       context.Context
	deliverer Deliverer

	// queue of messages to deliver
	queue      []bridge.Message
	queueSize  int
	queueMutex sync.RWMutex

	statusMutex       sync.RWMutex
	currentlyRelaying int
	relaysCompleted   int
	// messages whose delivery failed, attempted again on the next Flush
	failed []bridge.Message

	errGroup *errgroup.Group
}

func NewQueue(ctx context.Context, logger *zap.Logger, deliverer Deliverer, queueSize int) *Queue {
	if queueSize < 1 {
		queueSize = 1
	}

	return &Queue{
		logger:    logger,
		ctx:       ctx,
		deliverer: deliverer,

		queue:     make([]bridge.Message, 0),
		queueSize: queueSize,

		errGroup: &errgroup.Group{},
	}
}

func (q *Queue) Add(msg bridge.Message) {
	q.queueMutex.Lock()
	defer q.queueMutex.Unlock()

	q.queue = append(q.queue, msg)
	if len(q.queue) >= q.queueSize {
		queueCopy := make([]bridge.Message, len(q.queue))
		copy(queueCopy, q.queue)

		q.errGroup.Go(func() error {
			return q.relay(queueCopy...)
		})
		q.queue = make([]bridge.Message, 0)
	}
}

// HandleLogs queues every bridge message found in a batch of committed logs.
// It has the shape of a chain log subscriber.
func (q *Queue) HandleLogs(logs []ledger.Log) {
	for _, msg := range bridge.MessagesFromLogs(logs) {
		q.logger.Debug("Queued bridge message",
			zap.Uint16("source_chain_id", msg.SourceChainID),
			zap.Uint16("destination_chain_id", msg.DestinationChainID),
			zap.Uint64("nonce", msg.Nonce),
		)
		q.Add(msg)
	}
}

func (q *Queue) Status() (currentInQueue int, currentlyRelaying int, relaysCompleted int) {
	q.queueMutex.RLock()
	defer q.queueMutex.RUnlock()
	q.statusMutex.RLock()
	defer q.statusMutex.RUnlock()

	return len(q.queue), q.currentlyRelaying, q.relaysCompleted
}

// Failed returns the messages whose last delivery attempt failed. They stay
// out of the queue until RetryFailed is called.
func (q *Queue) Failed() []bridge.Message {
	q.statusMutex.RLock()
	defer q.statusMutex.RUnlock()

	return append([]bridge.Message(nil), q.failed...)
}

// RetryFailed delivers the failed messages again. Messages that fail again
// are kept for the next retry.
func (q *Queue) RetryFailed() error {
	q.statusMutex.Lock()
	retry := q.failed
	q.failed = nil
	q.statusMutex.Unlock()

	if len(retry) == 0 {
		return nil
	}
	if err := q.relay(retry...); err != nil {
		return errors.Wrap(err, "failed to retry messages")
	}
	return nil
}

// Flush delivers whatever is left in the queue and waits for every batch in flight.
func (q *Queue) Flush() error {
	q.queueMutex.Lock()
	queueCopy := make([]bridge.Message, len(q.queue))
	copy(queueCopy, q.queue)
	q.queue = make([]bridge.Message, 0)
	q.queueMutex.Unlock()

	var flushErr error
	if len(queueCopy) > 0 {
		if err := q.relay(queueCopy...); err != nil {
			flushErr = errors.Wrap(err, "failed to relay messages")
		}
	}

	return multierr.Append(flushErr, q.Wait())
}

// Wait blocks until the batches started so far are done. Each call reports
// only the failures of those batches.
func (q *Queue) Wait() error {
	q.queueMutex.Lock()
	group := q.errGroup
	q.errGroup = &errgroup.Group{}
	q.queueMutex.Unlock()

	if err := group.Wait(); err != nil {
		return errors.Wrap(err, "failed to wait for relay")
	}
	return nil
}

func (q *Queue) relay(messages ...bridge.Message) error {
	q.statusMutex.Lock()
	q.currentlyRelaying += len(messages)
	q.statusMutex.Unlock()

	q.logger.Info("Relaying messages", zap.Int("num_messages", len(messages)))

	var relayErr error
	var failed []bridge.Message
	for _, msg := range messages {
		if err := q.deliverer.Deliver(q.ctx, msg); err != nil {
			q.logger.Warn("Failed to deliver bridge message",
				zap.Uint16("source_chain_id", msg.SourceChainID),
				zap.Uint16("destination_chain_id", msg.DestinationChainID),
				zap.Uint64("nonce", msg.Nonce),
				zap.Error(err),
			)
			relayErr = multierr.Append(relayErr, errors.Wrapf(err, "failed to deliver nonce %d from chain %d to chain %d", msg.Nonce, msg.SourceChainID, msg.DestinationChainID))
			failed = append(failed, msg)
		}
	}

	q.statusMutex.Lock()
	q.relaysCompleted += len(messages) - len(failed)
	q.currentlyRelaying -= len(messages)
	q.failed = append(q.failed, failed...)
	q.statusMutex.Unlock()

	if relayErr != nil {
		return relayErr
	}

	q.logger.Info("Finished relaying messages", zap.Int("num_messages", len(messages)))
	return nil
}
