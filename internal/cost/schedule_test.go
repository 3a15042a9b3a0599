package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendermint/tpu/types"
)

func TestNewScheduleZeroTicks(t *testing.T) {
	_, err := NewSchedule(0, 0, 100)
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestScheduleReservation(t *testing.T) {
	s, err := NewSchedule(10, 8, 100)
	require.NoError(t, err)

	for tick := uint64(0); tick < 8; tick++ {
		assert.EqualValues(t, 100, s.Reservation(tick), "tick %d", tick)
	}
	assert.EqualValues(t, 0, s.Reservation(8))
	assert.EqualValues(t, 0, s.Reservation(9))
	assert.EqualValues(t, 100, s.Reservation(10))
}

func TestReservedTicks(t *testing.T) {
	testCases := []struct {
		ticks, num, den, want uint64
	}{
		{64, 8, 10, 51},
		{10, 8, 10, 8},
		{10, 0, 10, 0},
		{10, 3, 0, 0},
		{10, 11, 10, 10},
		{^uint64(0), 8, 10, ^uint64(0) / 10 * 8},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ReservedTicks(tc.ticks, tc.num, tc.den), "%+v", tc)
	}
	assert.EqualValues(t, 51, DefaultReservedTicks(64))
}

func TestReservationProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ticksPerSlot := rapid.Uint64Range(1, 1000).Draw(t, "ticksPerSlot").(uint64)
		reserved := rapid.Uint64Range(0, 2000).Draw(t, "reserved").(uint64)
		cost := rapid.Uint64().Draw(t, "cost").(uint64)
		tick := rapid.Uint64Range(0, 1<<40).Draw(t, "tick").(uint64)

		s, err := NewSchedule(ticksPerSlot, reserved, cost)
		if err != nil {
			t.Fatal(err)
		}

		got := s.Reservation(tick)
		want := uint64(0)
		if tick%ticksPerSlot < reserved {
			want = cost
		}
		if got != want {
			t.Fatalf("reservation(%d) = %d, want %d", tick, got, want)
		}
		if s.Reservation(tick) != got {
			t.Fatalf("not idempotent")
		}
		if s.Reservation(tick+ticksPerSlot) != got {
			t.Fatalf("not periodic")
		}
		if reserved == 0 && got != 0 {
			t.Fatalf("zero reserved ticks reserved %d", got)
		}
		if reserved >= ticksPerSlot && got != cost {
			t.Fatalf("full reservation returned %d", got)
		}
	})
}
