package shared

import "time"

// Clock abstracts time so mutations and schedulers can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now().UTC() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// NewRealClock returns the production clock.
func NewRealClock() Clock { return RealClock{} }

// MockClock is a controllable clock for tests. Sleep advances instantly.
type MockClock struct {
	CurrentTime time.Time
}

// NewMockClock starts a mock clock at the given instant, or now if zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &MockClock{CurrentTime: start}
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

func (m *MockClock) Sleep(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }

// Advance moves the clock forward without blocking.
func (m *MockClock) Advance(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }
