package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/air-monitor/airquality"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type:     TypeFanState,
		Time:     now,
		State:    &airquality.ActuatorState{ID: "a", Desired: true, Source: airquality.SourceAuto, UpdatedAt: now},
		Decision: &airquality.Decision{Desired: true, ShouldPersist: true, Rule: airquality.RuleSwitchOn},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "fan_state", string(w.msgs[0].Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.True(t, decoded.State.Desired)
	assert.Equal(t, airquality.RuleSwitchOn, decoded.Decision.Rule)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), Event{Type: TypeEvaluation})
	assert.ErrorContains(t, err, "broker down")
}
