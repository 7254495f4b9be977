package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestSafeGo_RecoversPanic(t *testing.T) {
	recovered := make(chan interface{}, 1)

	SafeGo(arbor.NewLogger(), "panicking", func() {
		panic("boom")
	}, func(r interface{}) {
		recovered <- r
	})

	select {
	case r := <-recovered:
		assert.Equal(t, "boom", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not recovered")
	}
}

func TestSafeGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	before := GetGoroutineCount()

	SafeGo(nil, "plain", func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("function did not run")
	}
	assert.Greater(t, GetGoroutineCount(), before)
}
