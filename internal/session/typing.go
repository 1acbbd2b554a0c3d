package session

import "time"

// NotifyTyping is called by the input view on every keystroke. A typing_start
// frame goes out at most once per debounce window of continuous input, and a
// typing_stop follows one debounce window after the last keystroke — or
// immediately on send (see SendMessage). Receivers cannot rely on the stop
// arriving, which is why the tracker also expires entries on its own.
func (s *Session) NotifyTyping(conversationID string) {
	debounce := s.cfg.TypingDebounce
	now := time.Now()

	s.mu.Lock()
	switchedConv := s.typingConv != "" && s.typingConv != conversationID
	prev := s.typingConv
	needStart := switchedConv || !s.typingLive || now.Sub(s.typingSent) >= debounce
	if needStart {
		s.typingSent = now
	}
	s.typingConv = conversationID
	s.typingLive = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
	}
	s.stopTimer = time.AfterFunc(debounce, func() {
		s.flushTypingStop(conversationID)
	})
	s.mu.Unlock()

	if switchedConv {
		s.sock.SendTyping(prev, false)
	}
	if needStart {
		s.sock.SendTyping(conversationID, true)
	}
}

// flushTypingStop sends the stop signal now if a typing window is open for
// the conversation. Safe to call when no typing is pending.
func (s *Session) flushTypingStop(conversationID string) {
	s.mu.Lock()
	live := s.typingLive && s.typingConv == conversationID
	if live {
		s.typingLive = false
		if s.stopTimer != nil {
			s.stopTimer.Stop()
			s.stopTimer = nil
		}
	}
	s.mu.Unlock()

	if live {
		s.sock.SendTyping(conversationID, false)
	}
}
