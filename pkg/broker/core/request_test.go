package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScopedRequestReturnsValue(t *testing.T) {
	v, err := ScopedRequest(context.Background(), func(reply chan<- int) {
		go func() { reply <- 42 }()
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestScopedRequestRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ScopedRequest(ctx, func(reply chan<- int) {
		// never replies
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
