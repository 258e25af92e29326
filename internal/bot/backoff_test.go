package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelay_DoublesEachAttempt(t *testing.T) {
	req := require.New(t)

	req.Equal(2*time.Second, Delay(1))
	for n := 2; n <= 10; n++ {
		req.Equal(2*Delay(n-1), Delay(n), "attempt %d", n)
	}
}

func TestDelay_RetryScheduleForDefaultAttempts(t *testing.T) {
	req := require.New(t)

	var schedule []time.Duration
	for attempt := 1; attempt < MaxAttempts; attempt++ {
		schedule = append(schedule, Delay(attempt))
	}

	req.Equal([]time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, schedule)
}

func TestDelay_NonPositiveAttemptIsBaseUnit(t *testing.T) {
	req := require.New(t)

	req.Equal(BaseDelay, Delay(0))
	req.Equal(BaseDelay, Delay(-3))
}

func TestDelay_SaturatesInsteadOfOverflowing(t *testing.T) {
	req := require.New(t)

	req.Equal(BaseDelay<<33, Delay(33))
	req.Equal(MaxDelay, Delay(34))
	req.Equal(MaxDelay, Delay(64))
	req.Equal(MaxDelay, Delay(1000))

	for n := 1; n <= 200; n++ {
		req.Positive(Delay(n), "attempt %d", n)
		req.GreaterOrEqual(Delay(n), Delay(n-1), "attempt %d", n)
	}
}
