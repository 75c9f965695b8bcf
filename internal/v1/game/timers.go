package game

import "time"

// scheduleTimerLocked arms a named timer. The callback runs with the room
// lock held; a generation counter keeps a stale fire from touching state
// after the timer was cancelled or rescheduled.
func (r *Room) scheduleTimerLocked(key string, delayMs int64, fn func()) {
	r.cancelTimerLocked(key)
	if delayMs < MinTimerDelayMs {
		delayMs = MinTimerDelayMs
	}
	gen := r.timerGen[key]
	r.timers[key] = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.timerGen[key] != gen {
			return
		}
		delete(r.timers, key)
		fn()
	})
}

func (r *Room) cancelTimerLocked(key string) {
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
	r.timerGen[key]++
}

func (r *Room) clearTimersLocked() {
	for _, key := range []string{
		timerQuestion,
		timerReveal,
		timerTeamReveal,
		timerCaptainVote,
		timerCaptainAuto,
		timerTeamNaming,
		timerHostReconnect,
	} {
		r.cancelTimerLocked(key)
	}
}
