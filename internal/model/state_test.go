package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(u uuid.UUID) *uuid.UUID { return &u }

func TestClassify(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name  string
		flags SeatFlags
		want  SeatState
	}{
		{"sold", SeatFlags{IsAvailable: false, LastReserver: ptr(a)}, StateSold},
		{"sold without holder", SeatFlags{}, StateSold},
		{"free", FreeFlags(), StateFree},
		{"free with stale holder", SeatFlags{IsAvailable: true, LastReserver: ptr(b)}, StateFree},
		{"held by self", SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(a)}, StateHeldBySelf},
		{"held by other", SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(b)}, StateHeldByOther},
		{"reserved without holder", SeatFlags{IsAvailable: true, IsReserved: true}, StateHeldByOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.flags, a))
		})
	}
}

func TestToggleReserve_TransitionTable(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	heldA := SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(a)}
	heldB := SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(b)}
	sold := SeatFlags{IsAvailable: false, IsReserved: false, LastReserver: ptr(b)}

	tests := []struct {
		name        string
		from        SeatFlags
		wantState   SeatState
		wantOutcome Outcome
		unchanged   bool
	}{
		{"sold stays sold", sold, StateSold, OutcomeSold, true},
		{"free becomes held", FreeFlags(), StateHeldBySelf, OutcomeReserved, false},
		{"held by other is occupied", heldB, StateHeldByOther, OutcomeOccupied, true},
		{"held by self toggles free", heldA, StateFree, OutcomeUnreserved, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, outcome := ToggleReserve(tt.from, a)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantState, Classify(next, a))
			if tt.unchanged {
				assert.Equal(t, tt.from, next)
			}
		})
	}
}

func TestToggleReserve_RepeatedBySameRequester(t *testing.T) {
	a := uuid.New()
	flags := FreeFlags()
	want := []Outcome{OutcomeReserved, OutcomeUnreserved, OutcomeReserved, OutcomeUnreserved, OutcomeReserved}
	for i, w := range want {
		var got Outcome
		flags, got = ToggleReserve(flags, a)
		require.Equal(t, w, got, "call %d", i+1)
	}
	require.NotNil(t, flags.LastReserver)
	assert.Equal(t, a, *flags.LastReserver)
}

func TestToggleReserve_DoesNotAliasRequester(t *testing.T) {
	a := uuid.New()
	next, _ := ToggleReserve(FreeFlags(), a)
	a[0] ^= 0xff
	assert.NotEqual(t, a, *next.LastReserver)
}

func TestStrictTransitions(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	heldA := SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(a)}
	heldB := SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(b)}
	sold := SeatFlags{LastReserver: ptr(a)}

	tests := []struct {
		name    string
		fn      func(SeatFlags, uuid.UUID) (SeatFlags, error)
		from    SeatFlags
		want    SeatState
		wantErr bool
	}{
		{"hold free", Hold, FreeFlags(), StateHeldBySelf, false},
		{"hold own", Hold, heldA, StateHeldBySelf, true},
		{"hold other", Hold, heldB, StateHeldByOther, true},
		{"hold sold", Hold, sold, StateSold, true},
		{"release own", Release, heldA, StateFree, false},
		{"release other", Release, heldB, StateHeldByOther, true},
		{"release free", Release, FreeFlags(), StateFree, true},
		{"sell own", Sell, heldA, StateSold, false},
		{"sell other", Sell, heldB, StateHeldByOther, true},
		{"sell free", Sell, FreeFlags(), StateFree, true},
		{"sell sold", Sell, sold, StateSold, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tt.fn(tt.from, a)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, tt.from, next)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, Classify(next, a))
		})
	}
}

func TestSell_KeepsBuyer(t *testing.T) {
	a := uuid.New()
	next, err := Sell(SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: ptr(a)}, a)
	require.NoError(t, err)
	require.NotNil(t, next.LastReserver)
	assert.Equal(t, a, *next.LastReserver)
	assert.False(t, next.IsAvailable)
	assert.False(t, next.IsReserved)
}
