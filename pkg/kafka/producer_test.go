package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	p, err := NewProducer(context.Background(), &ProducerConfig{})
	require.Error(t, err)
	assert.Nil(t, p)

	p, err = NewProducer(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, p)
}

func TestProduce_OnClosedProducer(t *testing.T) {
	p := &Producer{closed: true}
	err := p.Produce(context.Background(), &Message{Topic: "portal-notifications"})
	assert.ErrorIs(t, err, ErrProducerClosed)
}
