package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(frameType string, n int) Frame {
	return Frame{
		Type:      frameType,
		Data:      map[string]any{"n": n},
		Timestamp: time.Now(),
	}
}

func TestSendQueueFIFO(t *testing.T) {
	q := newSendQueue(4)
	for i := 0; i < 3; i++ {
		require.True(t, q.push(frameOf("transformation_progress", i)))
	}

	for i := 0; i < 3; i++ {
		f, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, i, f.Data["n"])
	}
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestSendQueueDropsOldestNonTerminal(t *testing.T) {
	q := newSendQueue(3)
	q.push(frameOf("transformation_progress", 0))
	q.push(frameOf("transformation_completed", 1))
	q.push(frameOf("transformation_progress", 2))

	// Queue full: the oldest non-terminal frame (0) gives way.
	q.push(frameOf("transformation_progress", 3))

	var order []int
	for {
		f, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, f.Data["n"].(int))
	}
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 1, q.droppedCount())
}

func TestSendQueueNeverDropsTerminal(t *testing.T) {
	q := newSendQueue(2)
	q.push(frameOf("transformation_completed", 0))
	q.push(frameOf("transformation_failed", 1))

	// Full of terminal frames: an incoming terminal frame still lands.
	require.True(t, q.push(frameOf("transformation_completed", 2)))
	// An incoming non-terminal frame is the drop candidate instead.
	require.True(t, q.push(frameOf("transformation_progress", 3)))

	var types []string
	for {
		f, ok := q.pop()
		if !ok {
			break
		}
		types = append(types, f.Type)
	}
	assert.Equal(t, []string{
		"transformation_completed",
		"transformation_failed",
		"transformation_completed",
	}, types)
	assert.Equal(t, 1, q.droppedCount())
}

func TestSendQueueBackpressureStress(t *testing.T) {
	q := newSendQueue(8)
	terminalPushed := 0
	for i := 0; i < 1000; i++ {
		if i%17 == 0 {
			q.push(frameOf("transformation_completed", i))
			terminalPushed++
		} else {
			q.push(frameOf("transformation_progress", i))
		}
	}

	terminalPopped := 0
	for {
		f, ok := q.pop()
		if !ok {
			break
		}
		if terminalFrame(f.Type) {
			terminalPopped++
		}
	}
	assert.Equal(t, terminalPushed, terminalPopped,
		"every terminal frame survives arbitrary backpressure")
}

func TestSendQueueClosed(t *testing.T) {
	q := newSendQueue(4)
	q.push(frameOf("transformation_progress", 0))
	q.close()

	assert.False(t, q.push(frameOf("transformation_progress", 1)))
	_, ok := q.pop()
	assert.False(t, ok, "closing discards queued frames")
}

func TestSendQueueSignal(t *testing.T) {
	q := newSendQueue(4)
	select {
	case <-q.wait():
		t.Fatal("signal before any push")
	default:
	}

	q.push(frameOf("pong", 0))
	select {
	case <-q.wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after push")
	}
}

func TestParseTopic(t *testing.T) {
	ws := "0191d5d9-dead-beef-0000-000000000001"
	tests := []struct {
		topic  string
		wantOK bool
		user   bool
	}{
		{fmt.Sprintf("ws.%s", ws), true, false},
		{fmt.Sprintf("ws.%s.user.%s", ws, ws), true, true},
		{"ws.not-a-uuid", false, false},
		{"instance.abc", false, false},
		{fmt.Sprintf("ws.%s.group.%s", ws, ws), false, false},
		{"ws", false, false},
	}
	for _, tt := range tests {
		workspaceID, userID, ok := parseTopic(tt.topic)
		assert.Equal(t, tt.wantOK, ok, tt.topic)
		if tt.wantOK {
			assert.Equal(t, ws, workspaceID.String())
			if tt.user {
				assert.Equal(t, ws, userID.String())
			}
		}
	}
}
