package onion

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// RandomDelay returns a duration sampled uniformly from [0, delayMax],
// the per-hop forwarding jitter spec.md §4.7's timing defense requires.
func RandomDelay(delayMax time.Duration) time.Duration {
	if delayMax <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return delayMax / 2
	}
	n := binary.BigEndian.Uint64(b[:])
	return time.Duration(n % uint64(delayMax+1))
}

// CoverTrafficTicker emits a tick at a constant base rate, driving
// dummy-cell emission regardless of real traffic load (spec.md §4.7
// timing defense). The returned stop func halts emission and blocks
// until the background goroutine has exited; call it when the circuit
// closes.
func CoverTrafficTicker(rate time.Duration, onTick func()) (stop func()) {
	ticker := time.NewTicker(rate)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		defer close(done)
		for {
			select {
			case <-ticker.C:
				onTick()
			case <-quit:
				return
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}
