package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func snapshot() *market.Snapshot {
	at := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	return market.NewSnapshot(7, at, []market.PricedInstrument{
		{ID: "programming", Symbol: "CODE", Category: instrument.CategoryTechnology, Price: 2050, PercentChange: 2.5, UpdatedAt: at},
		{ID: "gaming", Symbol: "GAME", Category: instrument.CategoryGaming, Price: 900, PercentChange: -0.5, UpdatedAt: at},
	}, 0.5)
}

func TestPublishWritesOneMessagePerInstrument(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "cloutmarket.prices", metrics.New(), nil)

	require.NoError(t, p.Publish(context.Background(), snapshot()))
	require.Len(t, w.msgs, 2)

	// instruments are published in id order
	assert.Equal(t, "GAME", string(w.msgs[0].Key))
	assert.Equal(t, "CODE", string(w.msgs[1].Key))

	var msg PriceMessage
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &msg))
	assert.Equal(t, uint64(7), msg.Cycle)
	assert.Equal(t, "programming", msg.ID)
	assert.Equal(t, "technology", msg.Category)
	assert.Equal(t, 2050.0, msg.Price)
	assert.Equal(t, "bullish", msg.Sentiment)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishErrorIsCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	m := metrics.New()
	p := newKafkaPublisher(w, "cloutmarket.prices", m, nil)

	err := p.Publish(context.Background(), snapshot())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishErrors))
}

func TestPublishEmptySnapshot(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "t", metrics.New(), nil)

	require.NoError(t, p.Publish(context.Background(), nil))
	require.NoError(t, p.Publish(context.Background(), market.NewSnapshot(1, time.Now(), nil, 0.5)))
	assert.Empty(t, w.msgs)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), snapshot()))
	assert.NoError(t, p.Close())
}
