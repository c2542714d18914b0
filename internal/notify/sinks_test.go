package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisSink_PublishesOnClinicChannel(t *testing.T) {
	fake := &fakeRedis{}
	sink := NewRedisSink(fake, "clinicflow:clinic")
	evt := event(uuid.New())

	require.NoError(t, sink.Deliver(context.Background(), evt))
	assert.Equal(t, "clinicflow:clinic:"+evt.ClinicID.String(), fake.channel)

	var got Event
	require.NoError(t, json.Unmarshal(fake.payload, &got))
	assert.Equal(t, evt.VisitID, got.VisitID)

	fake.err = errors.New("connection refused")
	assert.Error(t, sink.Deliver(context.Background(), evt))
}

func TestDecodeRelayed(t *testing.T) {
	evt := event(uuid.New())
	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	got, err := decodeRelayed("p", "p:"+evt.ClinicID.String(), string(raw))
	require.NoError(t, err)
	assert.Equal(t, evt.VisitID, got.VisitID)
	assert.True(t, evt.Timestamp.Equal(got.Timestamp))

	_, err = decodeRelayed("p", "p:"+uuid.NewString(), string(raw))
	assert.Error(t, err, "event on another clinic's channel")

	_, err = decodeRelayed("p", "p:x", "{not json")
	assert.Error(t, err)
}

func TestRedisRelay_DeliversToLocalSink(t *testing.T) {
	local := &memorySink{name: "hub"}
	relay := &RedisRelay{prefix: "p", local: local}
	evt := event(uuid.New())
	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	relay.relay(context.Background(), "p:"+evt.ClinicID.String(), string(raw))
	relay.relay(context.Background(), "p:garbage", "nope")

	got := local.received()
	require.Len(t, got, 1)
	assert.Equal(t, evt.VisitID, got[0].VisitID)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_KeysByClinic(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "visits"}
	evt := event(uuid.New())
	evt.Timestamp = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Deliver(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, evt.ClinicID.String(), string(w.msgs[0].Key))
	assert.Equal(t, "event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, EventVisitUpdated, string(w.msgs[0].Headers[0].Value))
	assert.True(t, w.msgs[0].Time.Equal(evt.Timestamp))

	w.err = errors.New("broker unavailable")
	assert.ErrorContains(t, sink.Deliver(context.Background(), evt), "visits")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
