package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"voicedoc/internal/model"
	rabbitmqClient "voicedoc/internal/platform/rabbitmq"
)

var errMalformedTurn = errors.New("malformed turn payload")

type TurnRecorder interface {
	RecordTurn(ctx context.Context, turn model.ConversationTurn) error
}

// MemoryTurnWorker drains the turn queue into the memory index.
type MemoryTurnWorker struct {
	conn      *amqp.Connection
	recorder  TurnRecorder
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryTurnWorker(conn *amqp.Connection, recorder TurnRecorder, queueName string, logger *slog.Logger) *MemoryTurnWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryTurnWorker{
		conn:      conn,
		recorder:  recorder,
		queueName: queueName,
		logger:    logger.With("component", "memory_turn_worker", "queue", queueName),
	}
}

func (w *MemoryTurnWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmqClient.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				err := w.handle(workerCtx, d.Body)
				switch {
				case err == nil:
					_ = d.Ack(false)
				case errors.Is(err, errMalformedTurn):
					w.logger.Error("drop turn", "error", err)
					_ = d.Nack(false, false)
				default:
					// one redelivery, then drop
					w.logger.Warn("record turn failed", "redelivered", d.Redelivered, "error", err)
					_ = d.Nack(false, !d.Redelivered)
				}
			}
		}
	}()

	return nil
}

func (w *MemoryTurnWorker) handle(ctx context.Context, body []byte) error {
	var turn model.ConversationTurn
	if err := json.Unmarshal(body, &turn); err != nil {
		return fmt.Errorf("%w: %v", errMalformedTurn, err)
	}
	if turn.ID == "" || turn.UserID == "" {
		return fmt.Errorf("%w: missing id or user", errMalformedTurn)
	}
	return w.recorder.RecordTurn(ctx, turn)
}

func (w *MemoryTurnWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
