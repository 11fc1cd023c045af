package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	kindPing Kind = iota
	kindEcho
)

func TestSubmit_DoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.Submit(NewMessage(kindPing, nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Submit blocked")
	}

	assert.Equal(t, 1, b.Pending())
}

func TestAccept_OrdersBySubmission(t *testing.T) {
	b := New()
	b.Submit(NewMessage(kindEcho, "first"))
	b.Submit(NewMessage(kindEcho, "second"))
	b.Submit(NewMessage(kindEcho, "third"))

	var order []string
	for {
		msg := b.Accept()
		if msg == nil {
			break
		}
		order = append(order, msg.Payload.(string))
	}

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestAccept_EmptyReturnsNil(t *testing.T) {
	b := New()
	assert.Nil(t, b.Accept())
}

func TestExecute_BlocksUntilCompleted(t *testing.T) {
	b := New()
	req := NewRequest(kindPing, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		msg := b.Accept()
		msg.Complete("pong")
	}()

	result := b.Execute(req)
	assert.Equal(t, "pong", result)
}

func TestWake_FiresOnSubmit(t *testing.T) {
	b := New()
	b.Submit(NewMessage(kindPing, nil))

	select {
	case <-b.Wake():
	default:
		t.Fatal("expected a wake signal after Submit")
	}
}

func TestComplete_IsIdempotent(t *testing.T) {
	req := NewRequest(kindPing, nil)
	req.Complete("a")
	assert.NotPanics(t, func() { req.Complete("b") })
	assert.Equal(t, "a", req.Result())
}

func TestComplete_WithoutDoneChannelIsNoop(t *testing.T) {
	msg := NewMessage(kindPing, nil)
	assert.NotPanics(t, func() { msg.Complete("x") })
}
