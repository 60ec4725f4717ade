// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	gwcontext "github.com/featurebasedb/sqlgateway/context"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/types"
)

// kafkaOptions are the options shared by the kafka source and sink.
type kafkaOptions struct {
	brokers []string
	topic   string
	group   string
}

func (t Table) kafkaOptions() (kafkaOptions, error) {
	var o kafkaOptions
	if f := t.Option("format"); f != "" && !strings.EqualFold(f, "json") {
		return o, errors.Newf(ErrConnector, "Unsupported format '%s' for kafka table '%s'", f, t.Path.Summary())
	}
	topic, err := t.requireOption("topic")
	if err != nil {
		return o, err
	}
	servers, err := t.requireOption("properties.bootstrap.servers")
	if err != nil {
		return o, err
	}
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			o.brokers = append(o.brokers, s)
		}
	}
	o.topic = topic
	o.group = t.Option("properties.group.id")
	return o, nil
}

// kafkaSource reads JSON objects from a topic. Object keys map to columns
// by name.
type kafkaSource struct {
	config segmentio.ReaderConfig
	max    int64 // -1 when unbounded
	schema types.Schema
}

func newKafkaSource(t Table, schema types.Schema, log logger.Logger) (*kafkaSource, error) {
	o, err := t.kafkaOptions()
	if err != nil {
		return nil, err
	}
	max, err := t.intOption("scan.max-messages", -1)
	if err != nil {
		return nil, err
	}
	config := segmentio.ReaderConfig{
		Brokers:     o.brokers,
		Topic:       o.topic,
		GroupID:     o.group,
		Logger:      segmentio.LoggerFunc(log.Debugf),
		ErrorLogger: log,
	}
	switch mode := t.Option("scan.startup.mode"); mode {
	case "", "group-offsets", "earliest-offset":
		config.StartOffset = segmentio.FirstOffset
	case "latest-offset":
		config.StartOffset = segmentio.LastOffset
	default:
		return nil, errors.Newf(ErrConnector, "Unsupported startup mode '%s' for kafka table '%s'", mode, t.Path.Summary())
	}
	return &kafkaSource{config: config, max: max, schema: schema}, nil
}

func (s *kafkaSource) Bounded() bool { return s.max >= 0 }

func (s *kafkaSource) Read(ctx context.Context, emit func(types.Row) error) (err error) {
	reader := segmentio.NewReader(s.config)
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing kafka consumer")
		}
	}()

	blocker := gwcontext.BlockerFrom(ctx)
	for n := int64(0); s.max < 0 || n < s.max; n++ {
		blocker.Block()
		msg, err := reader.FetchMessage(ctx)
		blocker.Unblock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetching kafka message")
		}

		row, err := decodeJSONRow(msg.Value, s.schema)
		if err != nil {
			return errors.Wrapf(err, "decoding message at offset %d of partition %d", msg.Offset, msg.Partition)
		}
		if err := emit(row); err != nil {
			return err
		}
		if s.config.GroupID != "" {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, "failed to commit messages")
			}
		}
	}
	return nil
}

func decodeJSONRow(buf []byte, schema types.Schema) (types.Row, error) {
	message := map[string]interface{}{}
	if err := json.Unmarshal(buf, &message); err != nil {
		if jsonError, ok := err.(*json.SyntaxError); ok {
			return types.Row{}, errors.Wrapf(err, "unmarshaling message at character offset %v: %s", jsonError.Offset, string(buf))
		}
		return types.Row{}, errors.Wrapf(err, "unmarshaling message: %s", string(buf))
	}
	values := make([]interface{}, len(schema))
	for i, col := range schema {
		v, ok := message[col.Name]
		if !ok {
			for k, kv := range message {
				if strings.EqualFold(k, col.Name) {
					v = kv
					break
				}
			}
		}
		values[i] = v
	}
	return coerceRow(values, schema)
}

// kafkaSink writes rows as JSON objects. Kafka topics are append only, so
// retractions are rejected.
type kafkaSink struct {
	name   string
	writer *segmentio.Writer
	schema types.Schema
	log    logger.Logger
}

func newKafkaSink(t Table, schema types.Schema, log logger.Logger) (*kafkaSink, error) {
	o, err := t.kafkaOptions()
	if err != nil {
		return nil, err
	}
	return &kafkaSink{
		name: t.Path.Summary(),
		writer: &segmentio.Writer{
			Addr:         segmentio.TCP(o.brokers...),
			Topic:        o.topic,
			Balancer:     &segmentio.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
		schema: schema,
		log:    log,
	}, nil
}

func (s *kafkaSink) Write(ctx context.Context, row types.Row) error {
	if row.Kind.IsRetraction() {
		return errors.Newf(ErrConnector, "Table sink '%s' doesn't support consuming update and delete changes", s.name)
	}
	obj := make(map[string]interface{}, len(s.schema))
	for i, col := range s.schema {
		if i < len(row.Values) {
			obj[col.Name] = row.Values[i]
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, "marshaling row")
	}

	blocker := gwcontext.BlockerFrom(ctx)
	blocker.Block()
	defer blocker.Unblock()
	return writeWithBackoff(ctx, s.writer, s.log, 100*time.Millisecond, time.Second, segmentio.Message{Value: b})
}

func (s *kafkaSink) Close() error {
	return errors.Wrap(s.writer.Close(), "closing kafka producer")
}

func writeWithBackoff(ctx context.Context, writer *segmentio.Writer, log logger.Logger, interval, maxInterval time.Duration, messages ...segmentio.Message) error {
	var berr error
	tries := 0
retry:
	for {
		tries++
		err := writer.WriteMessages(ctx, messages...)
		switch err := err.(type) {
		case nil:
			return nil
		case segmentio.Error:
			berr = err
			if !err.Temporary() {
				break retry
			}
		default:
			berr = err
			break retry
		}

		log.Warnf("temporary kafka write error: %v", err)
		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			break retry
		}
	}
	return errors.Wrapf(berr, "failed to deliver messages after %d tries", tries)
}
