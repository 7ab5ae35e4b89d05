package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestParseAcks(t *testing.T) {
	cases := []struct {
		in         string
		acks       kgo.Acks
		idempotent bool
	}{
		{"0", kgo.NoAck(), false},
		{"1", kgo.LeaderAck(), false},
		{"all", kgo.AllISRAcks(), true},
		{"", kgo.AllISRAcks(), true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			acks, idempotent := parseAcks(tc.in)
			assert.Equal(t, tc.acks, acks)
			assert.Equal(t, tc.idempotent, idempotent)
		})
	}
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, splitBrokers(" , "))
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: " "}, nil)
	require.Error(t, err)
}

func TestToRecordCopiesHeaders(t *testing.T) {
	rec := toRecord(&Message{
		Topic:   "alerts",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"alert_type": "new_device"},
	})
	assert.Equal(t, "alerts", rec.Topic)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "alert_type", rec.Headers[0].Key)
	assert.Equal(t, "new_device", string(rec.Headers[0].Value))
}

func TestProduceAfterClose(t *testing.T) {
	// kgo.NewClient does not dial until the first request
	p, err := New(Config{Brokers: "127.0.0.1:1"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err = p.Produce(context.Background(), &Message{Topic: "alerts"})
	assert.ErrorIs(t, err, ErrClosed)
}
