package projector

import (
	"context"
	"time"
)

// markTyping flags userID and (re)starts its clear timer.
func (p *Projector) markTyping(userID string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if t, ok := p.typingTimers[userID]; ok {
		t.Stop()
	}
	p.typingGen[userID]++
	gen := p.typingGen[userID]
	p.typingTimers[userID] = time.AfterFunc(p.typingTimeout, func() {
		p.expireTyping(userID, gen)
	})
	_, already := p.state.TypingUsers[userID]
	p.mu.Unlock()

	if already {
		return
	}
	p.transition(func(s State) State {
		s.TypingUsers[userID] = struct{}{}
		return s
	})
}

// clearTyping cancels the timer and drops the flag immediately.
func (p *Projector) clearTyping(userID string) {
	p.cancelTypingTimer(userID)
	p.transition(func(s State) State {
		delete(s.TypingUsers, userID)
		return s
	})
}

func (p *Projector) cancelTypingTimer(userID string) {
	p.mu.Lock()
	if t, ok := p.typingTimers[userID]; ok {
		t.Stop()
		delete(p.typingTimers, userID)
	}
	p.typingGen[userID]++
	p.mu.Unlock()
}

func (p *Projector) expireTyping(userID string, gen uint64) {
	p.mu.Lock()
	if p.closed || p.typingGen[userID] != gen {
		p.mu.Unlock()
		return
	}
	delete(p.typingTimers, userID)
	sessionID := ""
	if p.state.CurrentSession != nil {
		sessionID = p.state.CurrentSession.ID
	}
	p.mu.Unlock()

	p.transition(func(s State) State {
		delete(s.TypingUsers, userID)
		return s
	})
	if userID == p.me.UserID && sessionID != "" && p.api != nil {
		p.api.SetTyping(context.Background(), sessionID, userID, false)
	}
}

// StartTyping records a keystroke by the local user. The indicator clears
// itself after the typing timeout unless another keystroke arrives first.
// While keystrokes continue the typing flag is re-sent so remote indicators
// stay up.
func (p *Projector) StartTyping(ctx context.Context) {
	sessionID := p.currentSessionID()
	if sessionID == "" {
		return
	}
	p.mu.Lock()
	_, already := p.state.TypingUsers[p.me.UserID]
	now := time.Now()
	// peers run their own timers; refresh them twice per timeout window
	refresh := !already || now.Sub(p.typingSentAt) >= p.typingTimeout/2
	if refresh {
		p.typingSentAt = now
	}
	p.mu.Unlock()

	p.markTyping(p.me.UserID)
	if refresh && p.api != nil {
		p.api.SetTyping(ctx, sessionID, p.me.UserID, true)
	}
}

// StopTyping clears the local user's indicator right away.
func (p *Projector) StopTyping(ctx context.Context) {
	sessionID := p.currentSessionID()
	p.clearTyping(p.me.UserID)
	if sessionID != "" && p.api != nil {
		p.api.SetTyping(ctx, sessionID, p.me.UserID, false)
	}
}
