package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	c := newTestConn(uuid.New(), PersonalScope(), 4)

	require.NoError(t, r.Register(c))
	assert.ErrorIs(t, r.Register(c), ErrDuplicateConnection)
}

func TestRegisterEnforcesPerUserLimit(t *testing.T) {
	t.Parallel()

	r := NewRegistry(2, slog.Default())
	userID := uuid.New()

	require.NoError(t, r.Register(newTestConn(userID, PersonalScope(), 4)))
	require.NoError(t, r.Register(newTestConn(userID, PersonalScope(), 4)))
	assert.ErrorIs(t, r.Register(newTestConn(userID, PersonalScope(), 4)), ErrTooManyConnections)

	// Other users are unaffected.
	assert.NoError(t, r.Register(newTestConn(uuid.New(), PersonalScope(), 4)))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	userID := uuid.New()
	c := newTestConn(userID, PersonalScope(), 4)
	require.NoError(t, r.Register(c))

	r.Unregister(c.ID())
	r.Unregister(c.ID())
	r.Unregister(uuid.New()) // unknown ID is a no-op

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.DeliverToUser(userID, []byte("late")))
}

func TestDeliverToUserReachesAllConnections(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	userID := uuid.New()
	c1 := newTestConn(userID, PersonalScope(), 4)
	c2 := newTestConn(userID, WorkspaceScope(uuid.New()), 4)
	other := newTestConn(uuid.New(), PersonalScope(), 4)
	require.NoError(t, r.Register(c1))
	require.NoError(t, r.Register(c2))
	require.NoError(t, r.Register(other))

	payload := []byte(`{"type":"notification"}`)
	assert.Equal(t, 2, r.DeliverToUser(userID, payload))

	assert.Equal(t, payload, received(c1))
	assert.Equal(t, payload, received(c2))
	assert.Nil(t, received(other))
}

func TestDeliverToScope(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	workspaceID := uuid.New()
	actor := uuid.New()
	member := uuid.New()

	actorConn := newTestConn(actor, WorkspaceScope(workspaceID), 4)
	memberConn := newTestConn(member, WorkspaceScope(workspaceID), 4)
	personalConn := newTestConn(member, PersonalScope(), 4)
	otherScope := newTestConn(member, WorkspaceScope(uuid.New()), 4)
	for _, c := range []*Conn{actorConn, memberConn, personalConn, otherScope} {
		require.NoError(t, r.Register(c))
	}

	payload := []byte(`{"type":"notification"}`)
	delivered := r.DeliverToScope(WorkspaceKey(workspaceID), setOf(actor), payload)

	assert.Equal(t, 1, delivered)
	assert.Equal(t, payload, received(memberConn))
	assert.Nil(t, received(actorConn))
	assert.Nil(t, received(personalConn))
	assert.Nil(t, received(otherScope))
}

func TestDeliverToUsersExcluding(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	c1 := newTestConn(u1, PersonalScope(), 4)
	c2 := newTestConn(u2, PersonalScope(), 4)
	c3 := newTestConn(u3, PersonalScope(), 4)
	for _, c := range []*Conn{c1, c2, c3} {
		require.NoError(t, r.Register(c))
	}

	payload := []byte("x")
	delivered := r.DeliverToUsersExcluding([]uuid.UUID{u1, u2, u3}, setOf(u2), payload)

	assert.Equal(t, 2, delivered)
	assert.Equal(t, payload, received(c1))
	assert.Nil(t, received(c2))
	assert.Equal(t, payload, received(c3))
}

func TestDeliverEvictsStalledConnection(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	userID := uuid.New()
	stalled := newTestConn(userID, PersonalScope(), 1)
	healthy := newTestConn(userID, PersonalScope(), 4)
	require.NoError(t, r.Register(stalled))
	require.NoError(t, r.Register(healthy))

	// First delivery fills the stalled connection's buffer.
	assert.Equal(t, 2, r.DeliverToUser(userID, []byte("1")))

	// Second delivery overflows it; the fault must not abort delivery to the
	// healthy connection.
	assert.Equal(t, 1, r.DeliverToUser(userID, []byte("2")))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.ConnectionCount(userID))
	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled connection was not closed")
	}
}

func TestRegistryClose(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	c := newTestConn(uuid.New(), PersonalScope(), 4)
	require.NoError(t, r.Register(c))

	r.Close()
	r.Close() // idempotent

	assert.Equal(t, 0, r.Len())
	select {
	case <-c.done:
	default:
		t.Fatal("connection was not closed on registry shutdown")
	}
	assert.ErrorIs(t, r.Register(newTestConn(uuid.New(), PersonalScope(), 4)), ErrRegistryClosed)
}

func TestRegistryUnderConcurrentChurn(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	const publishers = 100
	const churners = 100

	// Stable recipients, one connection each, large buffers so every
	// delivery succeeds.
	recipients := make([]uuid.UUID, publishers)
	conns := make([]*Conn, publishers)
	for i := range recipients {
		recipients[i] = uuid.New()
		conns[i] = newTestConn(recipients[i], PersonalScope(), 8)
		require.NoError(t, r.Register(conns[i]))
	}

	var wg sync.WaitGroup
	wg.Add(publishers + churners)

	for i := 0; i < publishers; i++ {
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"n":%d}`, i))
			delivered := r.DeliverToUser(recipients[i], payload)
			assert.Equal(t, 1, delivered)
		}(i)
	}

	// Unrelated users connect and disconnect concurrently.
	for i := 0; i < churners; i++ {
		go func() {
			defer wg.Done()
			c := newTestConn(uuid.New(), WorkspaceScope(uuid.New()), 2)
			if err := r.Register(c); err != nil {
				return
			}
			r.Unregister(c.ID())
		}()
	}

	wg.Wait()

	// Every stable recipient received exactly their payload.
	for i, c := range conns {
		payload := received(c)
		require.NotNil(t, payload, "recipient %d received nothing", i)
		assert.Nil(t, received(c), "recipient %d received extra payloads", i)
	}
	assert.Equal(t, publishers, r.Len())
}
