package main

import "time"

// fpsCounter averages the frame rate over fixed windows of wall time.
type fpsCounter struct {
	interval float64
	last     float64
	frames   int
}

func newFPSCounter(interval time.Duration, now float64) *fpsCounter {
	return &fpsCounter{interval: interval.Seconds(), last: now}
}

// Frame counts one frame finished at now (seconds). Once a window has
// elapsed it returns the average rate over that window.
func (c *fpsCounter) Frame(now float64) (float64, bool) {
	c.frames++
	elapsed := now - c.last
	if elapsed < c.interval || elapsed <= 0 {
		return 0, false
	}
	rate := float64(c.frames) / elapsed
	c.frames = 0
	c.last = now
	return rate, true
}
