package circuit

// checkHealth is the adaptive monitor tick.
//
// A lifetime failure rate above 50% lowers the failure threshold by one, never below 3.
// A circuit left open for more than twice the reset timeout is forced into half-open,
// so a breaker that sees no traffic still probes again.
func (b *Breaker) checkHealth() {
	b.mu.Lock()

	now := b.sched.Now()
	if b.totalRequests > 0 && b.threshold > minAdaptiveThreshold {
		rate := float64(b.failedRequests) / float64(b.totalRequests)
		if rate > 0.5 {
			b.threshold--
			b.logger.Warnw("msg", "failure rate high, lowering failure threshold",
				"failure_rate", rate,
				"threshold", b.threshold)
		}
	}

	var notes []Notification
	if b.state == StateOpen && now.Sub(b.stateSince) > 2*b.cfg.ResetTimeout {
		notes = b.transitionLocked(StateHalfOpen, ReasonForcedProbe, now)
	}

	b.trimResponseTimesLocked()
	b.mu.Unlock()

	b.notify(notes)
}
