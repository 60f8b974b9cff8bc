// internal/lobby/service_test.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/models"
)

func newTestService() (*Service, *database.Memory) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mem := database.NewMemory()
	return NewService(mem, logger), mem
}

func TestCreateLobby(t *testing.T) {
	svc, mem := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "app-1", Seats: 3, StakeTon: 2})
	require.NoError(t, err)

	assert.Equal(t, "OPEN", view.Status)
	assert.Equal(t, "Easy", view.Tier)
	assert.Equal(t, 3, view.Seats)
	assert.Equal(t, 6.0, view.PoolTon)
	require.Len(t, view.Participants, 1)

	creator, err := mem.GetUserByAppID(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, creator.ID.String(), view.CreatorID)
	assert.Equal(t, creator.ID.String(), view.Participants[0].ID)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []CreateParams{
		{AppID: "", Seats: 2, StakeTon: 1},
		{AppID: "a", Seats: 1, StakeTon: 1},
		{AppID: "a", Seats: 101, StakeTon: 1},
		{AppID: "a", Seats: 2, StakeTon: -1},
	}
	for _, p := range cases {
		_, err := svc.Create(ctx, p)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestJoinPrivateLobbyPassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{
		AppID: "creator", Seats: 4, StakeTon: 1, IsPrivate: true, Password: "abc",
	})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	_, err = svc.Join(ctx, id, "guest", "xyz")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.Join(ctx, id, "guest", "")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	joined, err := svc.Join(ctx, id, "guest", "abc")
	require.NoError(t, err)
	assert.Len(t, joined.Participants, 2)
}

func TestJoinIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "creator", Seats: 4, StakeTon: 1})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	first, err := svc.Join(ctx, id, "guest", "")
	require.NoError(t, err)
	require.Len(t, first.Participants, 2)

	// Second join by the same user must not add a second seat.
	second, err := svc.Join(ctx, id, "guest", "")
	require.NoError(t, err)
	assert.Len(t, second.Participants, 2)
}

func TestJoinFullLobby(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "creator", Seats: 2, StakeTon: 1})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	joined, err := svc.Join(ctx, id, "guest-1", "")
	require.NoError(t, err)
	require.Len(t, joined.Participants, 2)

	_, err = svc.Join(ctx, id, "guest-2", "")
	assert.ErrorIs(t, err, ErrFull)
}

func TestConcurrentJoinsNeverOverbook(t *testing.T) {
	svc, mem := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "creator", Seats: 3, StakeTon: 1})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	const joiners = 20
	var wg sync.WaitGroup
	results := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Join(ctx, id, fmt.Sprintf("guest-%d", n), "")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrFull):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	// The creator holds one seat, so exactly two joins can win.
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, joiners-2, full)

	active, err := mem.ActiveParticipants(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(active), 3)
}

func TestJoinUnknownLobby(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join(context.Background(), uuid.New(), "guest", "")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestLeaveAndRejoin(t *testing.T) {
	svc, mem := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "creator", Seats: 3, StakeTon: 1})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	_, err = svc.Join(ctx, id, "guest", "")
	require.NoError(t, err)

	left, err := svc.Leave(ctx, id, "guest")
	require.NoError(t, err)
	assert.Len(t, left.Participants, 1)

	// Leaving again is a silent no-op.
	left, err = svc.Leave(ctx, id, "guest")
	require.NoError(t, err)
	assert.Len(t, left.Participants, 1)

	// Rejoining opens a fresh participation row.
	rejoined, err := svc.Join(ctx, id, "guest", "")
	require.NoError(t, err)
	assert.Len(t, rejoined.Participants, 2)

	guest, err := mem.GetUserByAppID(ctx, "guest")
	require.NoError(t, err)
	rounds, err := mem.CountUserRounds(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rounds, "rounds are counted per distinct lobby")
}

func TestFinish(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateParams{AppID: "creator", Seats: 3, StakeTon: 1})
	require.NoError(t, err)
	id := uuid.MustParse(view.ID)

	joined, err := svc.Join(ctx, id, "guest", "")
	require.NoError(t, err)

	_, err = svc.Finish(ctx, id, "guest")
	assert.ErrorIs(t, err, ErrNotCreator)

	finished, err := svc.Finish(ctx, id, "creator")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", finished.Status)
	require.NotEmpty(t, finished.WinnerID)

	ids := make(map[string]bool)
	for _, p := range joined.Participants {
		ids[p.ID] = true
	}
	assert.True(t, ids[finished.WinnerID], "winner must be an active participant")

	// A finished lobby cannot be finished again or joined.
	_, err = svc.Finish(ctx, id, "creator")
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = svc.Join(ctx, id, "late", "")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestPickWinner(t *testing.T) {
	_, err := PickWinner(nil)
	assert.ErrorIs(t, err, ErrNoParticipants)

	only := models.Participant{UserID: uuid.New()}
	winner, err := PickWinner([]models.Participant{only})
	require.NoError(t, err)
	assert.Equal(t, only.UserID, winner)
}

func TestListPublicExcludesPrivate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pub, err := svc.Create(ctx, CreateParams{AppID: "a", Seats: 2, StakeTon: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{AppID: "b", Seats: 2, StakeTon: 1, IsPrivate: true, Password: "pw"})
	require.NoError(t, err)

	views, err := svc.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, pub.ID, views[0].ID)
}

func TestHashPassword(t *testing.T) {
	// Known sha256("abc").
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashPassword("abc"))
}
