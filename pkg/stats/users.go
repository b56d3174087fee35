package stats

// RunningTotal tracks the number of concurrently active users of a scenario
// and the highest value that number ever reached.
type RunningTotal struct {
	current int
	maximum int
}

// Incr registers a user start.
func (r *RunningTotal) Incr() {
	r.current++
	if r.current > r.maximum {
		r.maximum = r.current
	}
}

// Decr registers a user end. The peak is never lowered.
func (r *RunningTotal) Decr() {
	r.current--
}

// Max returns the historical peak of concurrent users.
func (r *RunningTotal) Max() int {
	return r.maximum
}
