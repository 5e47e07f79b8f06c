package inbound

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of goroutines polling the queue.
func WithWorkerCount(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll duration, capped at the SQS limit.
func WithReceiveWaitSeconds(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n < 0 {
			return
		}
		if n > maxWaitSeconds {
			n = maxWaitSeconds
		}
		cfg.receiveWaitSecs = n
	}
}

// WithReceiveBatchSize sets how many messages are pulled per receive.
func WithReceiveBatchSize(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n <= 0 {
			return
		}
		if n > maxReceiveBatchSize {
			n = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = n
	}
}

// Worker drains SNS envelopes of inbound mail from a queue into the engine.
// Messages that fail for a retryable reason stay on the queue for redelivery.
type Worker struct {
	handler *Handler
	queue   queueClient
	logger  *logging.Logger
	cfg     workerConfig

	wg sync.WaitGroup
}

// NewWorker constructs a queue consumer around the inbound handler.
func NewWorker(handler *Handler, queue queueClient, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("inbound: handler cannot be nil")
	}
	if queue == nil {
		panic("inbound: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler: handler,
		queue:   queue,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the configured number of goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	res, err := w.handler.HandleEnvelope(ctx, []byte(msg.Body))
	switch {
	case err == nil:
		w.logger.Debug("inbound message handled", "msg_id", msg.ID, "conversation_id", res.ConversationID, "outcome", res.Outcome)
	case Permanent(err):
		w.logger.Warn("dropping inbound message", "error", err, "msg_id", msg.ID)
	default:
		w.logger.Error("inbound message failed, leaving for redelivery", "error", err, "msg_id", msg.ID)
		return
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound message", "error", err)
	}
}
