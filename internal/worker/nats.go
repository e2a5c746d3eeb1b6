package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultQueueGroup is the NATS queue group shared by every API replica.
const DefaultQueueGroup = "judge-evaluators"

// DefaultAckTimeout bounds how long Dispatch waits for a replica to accept a submission.
const DefaultAckTimeout = 5 * time.Second

// Replies sent by the subscriber once it has tried to enqueue a submission.
const (
	replyAccepted    = "ok"
	replyQueueFull   = "queue_full"
	replyPoolStopped = "stopped"
	replyInvalid     = "invalid"
)

// ErrNotAccepted indicates no replica acknowledged the submission.
var ErrNotAccepted = errors.New("evaluation not accepted")

// NATSDispatcher sends submission IDs as requests on a subject. A queue subscription on
// every replica enqueues each request into exactly one local pool and replies with the
// outcome, so a submission is never reported as dispatched unless a pool took it.
type NATSDispatcher struct {
	conn       *nats.Conn
	subject    string
	queue      string
	pool       *Pool
	ackTimeout time.Duration
	logger     zerolog.Logger
	sub        *nats.Subscription
}

// NewNATSDispatcher constructs a dispatcher backed by conn.
func NewNATSDispatcher(conn *nats.Conn, subject, queue string, pool *Pool, logger zerolog.Logger) (*NATSDispatcher, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats subject is required")
	}
	if pool == nil {
		return nil, errors.New("evaluation pool is required")
	}
	if queue == "" {
		queue = DefaultQueueGroup
	}
	return &NATSDispatcher{
		conn:       conn,
		subject:    subject,
		queue:      queue,
		pool:       pool,
		ackTimeout: DefaultAckTimeout,
		logger:     logger.With().Str("component", "nats_dispatcher").Logger(),
	}, nil
}

// Start subscribes to the evaluation subject until ctx is cancelled.
func (d *NATSDispatcher) Start(ctx context.Context) error {
	sub, err := d.conn.QueueSubscribe(d.subject, d.queue, func(msg *nats.Msg) {
		reply := d.enqueue(ctx, msg.Data)
		if reply != replyAccepted {
			d.logger.Error().Str("payload", string(msg.Data)).Str("reply", reply).Msg("evaluation not enqueued")
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond([]byte(reply)); err != nil {
			d.logger.Warn().Err(err).Str("payload", string(msg.Data)).Msg("failed to acknowledge evaluation")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", d.subject, err)
	}
	d.sub = sub

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to drain evaluation subscription")
		}
	}()
	return nil
}

// Dispatch sends the submission ID and waits until a replica has queued it.
// Without any subscriber, or when every reachable pool refuses it, an error is returned.
func (d *NATSDispatcher) Dispatch(ctx context.Context, submissionID uint) error {
	ctx, cancel := context.WithTimeout(ctx, d.ackTimeout)
	defer cancel()

	payload := strconv.FormatUint(uint64(submissionID), 10)
	msg, err := d.conn.RequestWithContext(ctx, d.subject, []byte(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAccepted, err)
	}
	return decodeReply(string(msg.Data))
}

func (d *NATSDispatcher) enqueue(ctx context.Context, data []byte) string {
	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil || id == 0 {
		return replyInvalid
	}
	return encodeReply(d.pool.Dispatch(ctx, uint(id)))
}

func encodeReply(err error) string {
	switch {
	case err == nil:
		return replyAccepted
	case errors.Is(err, ErrQueueFull):
		return replyQueueFull
	case errors.Is(err, ErrPoolStopped):
		return replyPoolStopped
	default:
		return replyInvalid
	}
}

func decodeReply(reply string) error {
	switch reply {
	case replyAccepted:
		return nil
	case replyQueueFull:
		return ErrQueueFull
	case replyPoolStopped:
		return ErrPoolStopped
	default:
		return fmt.Errorf("%w: replica replied %q", ErrNotAccepted, reply)
	}
}
