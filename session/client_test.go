package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errSocketClosed = errors.New("socket closed")

func countCalls(m *mock.Mock, method string) int {
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func TestClient_ReadPump(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		frames          []string
		expectedPackets []string
	}{
		{
			name:            "routes well formed packets",
			frames:          []string{`{"type":"start"}`, `{"type":"voteSkip","data":{"userId":"someone-else"}}`},
			expectedPackets: []string{PacketStart, PacketVoteSkip},
		},
		{
			name:            "drops malformed frames",
			frames:          []string{`not json`, `{"data":1}`, `{"type":"submitCorrect"}`},
			expectedPackets: []string{PacketSubmitCorrect},
		},
		{
			name:   "nothing before close",
			frames: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			socket := new(MockWebsocketConnection)
			router := new(MockRouter)
			c := NewClient("u1", "naruto", "s1", socket)

			for _, frame := range tc.frames {
				socket.On("Read").Return([]byte(frame), nil).Once()
			}
			socket.On("Read").Return([]byte(nil), errSocketClosed).Once()

			var delivered []string
			router.On("Deliver", "s1", c, mock.Anything).Run(func(args mock.Arguments) {
				delivered = append(delivered, args.Get(2).(ClientPacket).Type)
			}).Return()
			router.On("Detach", "s1", c).Return().Once()

			c.ReadPump(router)

			assert.Equal(t, tc.expectedPackets, delivered)
			socket.AssertExpectations(t)
			socket.AssertNotCalled(t, "Close", mock.Anything)
			router.AssertCalled(t, "Detach", "s1", c)
			assert.ErrorIs(t, c.Send([]byte("{}")), ErrActorStopped)
		})
	}
}

func TestClient_ReadPumpRateLimit(t *testing.T) {
	t.Parallel()
	socket := new(MockWebsocketConnection)
	router := new(MockRouter)
	c := NewClient("u1", "naruto", "s1", socket)

	socket.On("Read").Return([]byte(`{"type":"voteSkip"}`), nil).Times(20)
	socket.On("Read").Return([]byte(nil), errSocketClosed).Once()
	router.On("Deliver", "s1", c, mock.Anything).Return()
	router.On("Detach", "s1", c).Return()

	c.ReadPump(router)

	delivered := countCalls(&router.Mock, "Deliver")
	assert.GreaterOrEqual(t, delivered, 5)
	assert.Less(t, delivered, 20)
}

func TestClient_WritePump(t *testing.T) {
	t.Parallel()

	t.Run("writes queued packets until closed", func(t *testing.T) {
		t.Parallel()
		socket := new(MockWebsocketConnection)
		c := NewClient("u1", "naruto", "s1", socket)
		written := make(chan []byte, 2)
		socket.On("Write", mock.Anything).Run(func(args mock.Arguments) {
			written <- args.Get(0).([]byte)
		}).Return(nil)
		socket.On("Close", "kicked").Return().Once()

		done := make(chan struct{})
		go func() {
			c.WritePump()
			close(done)
		}()

		require.NoError(t, c.Send([]byte("first")))
		require.NoError(t, c.Send([]byte("second")))
		assert.Equal(t, []byte("first"), <-written)
		assert.Equal(t, []byte("second"), <-written)

		c.Close("kicked")
		c.Close("again")

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("write pump did not stop")
		}
		socket.AssertExpectations(t)
	})

	t.Run("write failure closes the client", func(t *testing.T) {
		t.Parallel()
		socket := new(MockWebsocketConnection)
		c := NewClient("u1", "naruto", "s1", socket)
		socket.On("Write", mock.Anything).Return(errSocketClosed).Once()
		socket.On("Close", "").Return().Once()

		require.NoError(t, c.Send([]byte("hello")))
		c.WritePump()

		socket.AssertExpectations(t)
		assert.ErrorIs(t, c.Send([]byte("{}")), ErrActorStopped)
	})

	t.Run("close returns while a write is stuck", func(t *testing.T) {
		t.Parallel()
		socket := new(MockWebsocketConnection)
		c := NewClient("u1", "naruto", "s1", socket)
		writing := make(chan struct{})
		release := make(chan struct{})
		socket.On("Write", mock.Anything).Run(func(mock.Arguments) {
			close(writing)
			<-release
		}).Return(nil).Once()
		socket.On("Close", "send-buffer-full").Return().Once()

		done := make(chan struct{})
		go func() {
			c.WritePump()
			close(done)
		}()
		require.NoError(t, c.Send([]byte("stuck")))
		<-writing

		closed := make(chan struct{})
		go func() {
			c.Close("send-buffer-full")
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(time.Second):
			t.Fatal("close waited for the blocked write")
		}
		assert.ErrorIs(t, c.Send([]byte("{}")), ErrActorStopped)

		close(release)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("write pump did not stop")
		}
		socket.AssertExpectations(t)
	})
}

func TestClient_Send(t *testing.T) {
	t.Parallel()
	c := newTestClient("u1", "naruto", "s1")

	for range sendBufferSize {
		require.NoError(t, c.Send([]byte("{}")))
	}
	assert.ErrorIs(t, c.Send([]byte("{}")), ErrSendBufferFull)

	c.Close("")
	assert.ErrorIs(t, c.Send([]byte("{}")), ErrActorStopped)
}
