package worker

import (
	"context"

	"github.com/example/bdsms/internal/kafka/consumer"
)

// NewRecordFromConsumer converts a Kafka consumer record into a worker record
// whose commit marks the originating offset.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}

	wr := &Record{
		Queue:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
	}
	wr.setCommitFn(commit)
	return wr
}

// KafkaHandler returns a consumer.Handler that feeds Kafka job records to the
// engine.
func KafkaHandler(engine *Engine, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}

		var commitFn func(context.Context) error
		if cons != nil {
			commitFn = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commitFn))
		return nil
	}
}
