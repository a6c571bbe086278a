package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEventPublishingAndSubscribing creates EventEmitter objects, subscribes EventHandler callbacks to them, and
// ensures that the events are received only by their own subscribers.
func TestEventPublishingAndSubscribing(t *testing.T) {
	type testEventA struct{ value int }
	type testEventB struct{}

	emitterA := EventEmitter[testEventA]{}
	emitterB := EventEmitter[testEventB]{}

	var sumA, countB int
	emitterA.Subscribe(func(event testEventA) error {
		sumA += event.value
		return nil
	})
	emitterB.Subscribe(func(event testEventB) error {
		countB++
		return nil
	})

	for i := 1; i <= 4; i++ {
		assert.NoError(t, emitterA.Publish(testEventA{value: i}))
	}
	assert.NoError(t, emitterB.Publish(testEventB{}))

	assert.Equal(t, 10, sumA)
	assert.Equal(t, 1, countB)
	assert.Equal(t, 1, emitterA.SubscriptionCount())
}

// TestEventHandlerErrorStopsPublishing verifies a failing handler prevents later handlers from running.
func TestEventHandlerErrorStopsPublishing(t *testing.T) {
	emitter := EventEmitter[string]{}
	stop := errors.New("stop")
	called := false
	emitter.Subscribe(func(string) error { return stop })
	emitter.Subscribe(func(string) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, emitter.Publish("event"), stop)
	assert.False(t, called)
}
