package relay

import (
	"encoding/json"
	"testing"
	"time"

	"cardlink/internal/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recvEnv — следующее сообщение из очереди клиента (pumps в этих тестах не
// запускаются, читаем очередь напрямую).
func recvEnv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued message")
		return Envelope{}
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message queued: %s", msg)
		}
	default:
	}
}

type fakeLookup struct {
	byUID map[string]directory.StudentInfo
}

func (f *fakeLookup) StudentByCardUID(uid string) (directory.StudentInfo, bool, error) {
	info, ok := f.byUID[uid]
	return info, ok, nil
}

func newTestClient(h *Hub, role Role) *Client {
	c := newClient(h, nil, role)
	h.Register(c)
	return c
}

func TestBroadcastReachesAllConnected(t *testing.T) {
	h := NewHub(nil, time.Second)
	a := newTestClient(h, RoleClient)
	b := newTestClient(h, RoleClient)
	gone := newTestClient(h, RoleClient)
	h.Unregister(gone)

	h.Broadcast(EventSwipe, map[string]string{"uid": "ABC123"})

	for _, c := range []*Client{a, b} {
		env := recvEnv(t, c)
		assert.Equal(t, EventSwipe, env.Event)
	}
	expectNothing(t, gone)
}

func TestForwardToReaderSkipsBrowserClients(t *testing.T) {
	h := NewHub(nil, time.Second)
	browser := newTestClient(h, RoleClient)
	reader := newTestClient(h, RoleReader)

	h.ForwardToReader(EventWriteToCard, map[string]string{"full_name": "X"})

	env := recvEnv(t, reader)
	assert.Equal(t, EventWriteToCard, env.Event)
	expectNothing(t, browser)
}

func TestGetStatusDeliveredOnlyToRequester(t *testing.T) {
	h := NewHub(nil, time.Second)
	a := newTestClient(h, RoleClient)
	b := newTestClient(h, RoleClient)

	h.Dispatch(a, Envelope{Event: EventGetStatus})

	env := recvEnv(t, a)
	assert.Equal(t, EventReaderStatus, env.Event)

	var st ReaderStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "disconnected", st.Status)
	assert.Nil(t, st.Reader)

	expectNothing(t, b)
}

func TestStatusUpdateBroadcastsMergedValue(t *testing.T) {
	h := NewHub(nil, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)

	h.Dispatch(reader, Envelope{
		Event: EventReaderStatus,
		Data:  json.RawMessage(`{"status":"connected","reader":"R1"}`),
	})

	// broadcast уходит всем, включая отправителя
	for _, c := range []*Client{reader, a} {
		env := recvEnv(t, c)
		require.Equal(t, EventReaderStatus, env.Event)
		var st ReaderStatus
		require.NoError(t, json.Unmarshal(env.Data, &st))
		assert.Equal(t, "connected", st.Status)
		require.NotNil(t, st.Reader)
		assert.Equal(t, "R1", *st.Reader)
	}

	// поздний наблюдатель получает то же значение по запросу
	late := newTestClient(h, RoleClient)
	h.Dispatch(late, Envelope{Event: EventGetStatus})
	env := recvEnv(t, late)
	var st ReaderStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "connected", st.Status)
}

func TestSwipeEnrichedFromDirectory(t *testing.T) {
	lookup := &fakeLookup{byUID: map[string]directory.StudentInfo{
		"ABC123": {RegisterNumber: "2021CS042", Name: "X", FacultyName: "Engineering"},
	}}
	h := NewHub(lookup, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)

	h.Dispatch(reader, Envelope{
		Event: EventSwipe,
		Data:  json.RawMessage(`{"uid":"ABC123","reader":"R1"}`),
	})

	env := recvEnv(t, a)
	require.Equal(t, EventSwipe, env.Event)

	var payload struct {
		UID  string                 `json:"uid"`
		Data *directory.StudentInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "ABC123", payload.UID)
	require.NotNil(t, payload.Data)
	assert.Equal(t, "2021CS042", payload.Data.RegisterNumber)
	assert.Equal(t, "Engineering", payload.Data.FacultyName)
}

func TestSwipeWithUnknownUIDPassedThrough(t *testing.T) {
	h := NewHub(&fakeLookup{byUID: map[string]directory.StudentInfo{}}, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)

	h.Dispatch(reader, Envelope{Event: EventSwipe, Data: json.RawMessage(`{"uid":"NOPE"}`)})

	env := recvEnv(t, a)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "NOPE", payload["uid"])
	_, hasData := payload["data"]
	assert.False(t, hasData)
}

func TestSwipeEndUncorrelatedFanOut(t *testing.T) {
	h := NewHub(nil, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)

	// removal без предшествующего presence — доставляется как есть
	h.Dispatch(reader, Envelope{Event: EventSwipeEnd, Data: json.RawMessage(`{"uid":"GHOST"}`)})

	env := recvEnv(t, a)
	assert.Equal(t, EventSwipeEnd, env.Event)
	assert.JSONEq(t, `{"uid":"GHOST"}`, string(env.Data))
}

func TestWriteRoundTripThroughDispatch(t *testing.T) {
	h := NewHub(nil, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)
	b := newTestClient(h, RoleClient)

	h.Dispatch(a, Envelope{Event: EventWriteToCard, Data: json.RawMessage(`{"full_name":"X"}`)})

	// инструкция ушла только ридеру
	instr := recvEnv(t, reader)
	require.Equal(t, EventWriteToCard, instr.Event)
	var fwd map[string]any
	require.NoError(t, json.Unmarshal(instr.Data, &fwd))
	rid, _ := fwd["request_id"].(string)
	require.NotEmpty(t, rid)
	expectNothing(t, a)
	expectNothing(t, b)

	// ack резолвит слот и доставляется только инициатору
	h.Dispatch(reader, Envelope{
		Event: EventWriteSuccess,
		Data:  json.RawMessage(`{"uid":"ABC123","request_id":"` + rid + `"}`),
	})

	outcome := recvEnv(t, a)
	assert.Equal(t, EventWriteSuccess, outcome.Event)
	expectNothing(t, b)
	expectNothing(t, reader)
}

func TestWriteAckFromBrowserIgnored(t *testing.T) {
	h := NewHub(nil, time.Second)
	reader := newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)
	impostor := newTestClient(h, RoleClient)

	h.Dispatch(a, Envelope{Event: EventWriteToCard, Data: json.RawMessage(`{}`)})
	instr := recvEnv(t, reader)
	var fwd map[string]any
	require.NoError(t, json.Unmarshal(instr.Data, &fwd))
	rid := fwd["request_id"].(string)

	h.Dispatch(impostor, Envelope{
		Event: EventWriteSuccess,
		Data:  json.RawMessage(`{"uid":"FAKE","request_id":"` + rid + `"}`),
	})
	expectNothing(t, a)
	assert.True(t, h.writes.Busy())

	h.Dispatch(reader, Envelope{
		Event: EventWriteSuccess,
		Data:  json.RawMessage(`{"uid":"ABC123","request_id":"` + rid + `"}`),
	})
	env := recvEnv(t, a)
	assert.Equal(t, EventWriteSuccess, env.Event)
}

func TestConcurrentWriteRejectedForSecondCaller(t *testing.T) {
	h := NewHub(nil, time.Second)
	newTestClient(h, RoleReader)
	a := newTestClient(h, RoleClient)
	b := newTestClient(h, RoleClient)

	h.Dispatch(a, Envelope{Event: EventWriteToCard, Data: json.RawMessage(`{}`)})
	h.Dispatch(b, Envelope{Event: EventWriteToCard, Data: json.RawMessage(`{}`)})

	env := recvEnv(t, b)
	require.Equal(t, EventWriteFailed, env.Event)
	var we WriteError
	require.NoError(t, json.Unmarshal(env.Data, &we))
	assert.Equal(t, ErrWriteInProgress.Error(), we.Error)

	expectNothing(t, a)
}
