package telegram

import (
	"sync"
	"time"
)

type profileStep int

const (
	stepNone profileStep = iota
	stepAskName
	stepAskBirthDate
)

type chatState struct {
	userID int64
	// verified is set when userID came from the sender's own shared contact.
	verified bool
	step     profileStep
	tempName string
	lastSeen time.Time
}

// chatStore keeps per-chat conversation state in memory.
type chatStore struct {
	mu    sync.Mutex
	chats map[int64]*chatState
	now   func() time.Time
}

func newChatStore() *chatStore {
	return &chatStore{chats: make(map[int64]*chatState), now: time.Now}
}

func (s *chatStore) get(chatID int64) *chatState {
	st, ok := s.chats[chatID]
	if !ok {
		st = &chatState{}
		s.chats[chatID] = st
	}
	st.lastSeen = s.now()
	return st
}

// cachedUser returns the user resolved earlier in the chat and whether it
// came from a verified contact.
func (s *chatStore) cachedUser(chatID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	return st.userID, st.verified
}

// setUser caches userID. A verified mark survives only while the user stays
// the same.
func (s *chatStore) setUser(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	if st.userID != userID {
		st.verified = false
	}
	st.userID = userID
}

func (s *chatStore) setContactUser(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	st.userID, st.verified = userID, true
}

func (s *chatStore) step(chatID int64) (profileStep, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	return st.step, st.tempName
}

func (s *chatStore) setStep(chatID int64, step profileStep, tempName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	st.step, st.tempName = step, tempName
}

func (s *chatStore) resetStep(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(chatID)
	active := st.step != stepNone
	st.step, st.tempName = stepNone, ""
	return active
}

// evictIdle drops chats not seen for ttl.
func (s *chatStore) evictIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	n := 0
	for id, st := range s.chats {
		if st.lastSeen.Before(cutoff) {
			delete(s.chats, id)
			n++
		}
	}
	return n
}
