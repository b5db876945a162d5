package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"mycareerbox/internal/model"
)

type RecordEventStore interface {
	Create(ctx context.Context, event *model.RecordEvent) error
}

// ChannelOpener is satisfied by *amqp.Connection.
type ChannelOpener interface {
	Channel() (*amqp.Channel, error)
}

// RecordEventWorker drains the record event queue into the activity log.
type RecordEventWorker struct {
	conn      ChannelOpener
	store     RecordEventStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecordEventWorker(conn ChannelOpener, store RecordEventStore, queueName string) *RecordEventWorker {
	return &RecordEventWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *RecordEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker prefetch failed: %w", err)
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
		return fmt.Errorf("consume queue %s failed: %w", w.queueName, err)
	}

	// Only a running consumer marks the worker started.
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

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
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *RecordEventWorker) handle(ctx context.Context, d amqp.Delivery) {
	event, err := decodeRecordEvent(d.Body)
	if err != nil {
		log.Printf("worker decode record event failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.store.Create(ctx, event); err != nil {
		log.Printf("worker persist record event for %s failed: %v", event.UserEmail, err)
		// A redelivered message gets one more attempt.
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	_ = d.Ack(false)
}

func (w *RecordEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func decodeRecordEvent(body []byte) (*model.RecordEvent, error) {
	var event model.RecordEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if event.UserEmail == "" || event.EventType == "" {
		return nil, errors.New("record event missing user or type")
	}
	event.ID = 0
	return &event, nil
}
