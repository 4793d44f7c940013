package clientapp

import (
	"sync"
	"time"

	"github.com/phillip-england/caresuite/internal/apiclient"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/overrides"
)

// adminSession is one signed-in browser: its API client and the editor that
// holds its unsaved time edits.
type adminSession struct {
	id     string
	client *apiclient.Client
	editor *attendance.Editor

	lastSeen time.Time

	inputMu  sync.Mutex
	inputSeq map[inputKey]int64
}

type inputKey struct {
	id    string
	field overrides.Field
}

// acceptInput reports whether keystroke seq for a cell is newer than the
// last one applied. Requests without a sequence number are always applied.
func (s *adminSession) acceptInput(id string, field overrides.Field, seq int64) bool {
	if seq <= 0 {
		return true
	}
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	k := inputKey{id: id, field: field}
	if seq <= s.inputSeq[k] {
		return false
	}
	if s.inputSeq == nil {
		s.inputSeq = map[inputKey]int64{}
	}
	s.inputSeq[k] = seq
	return true
}

// resetInputs forgets keystroke numbers. A freshly rendered page starts
// counting from one again.
func (s *adminSession) resetInputs() {
	s.inputMu.Lock()
	s.inputSeq = nil
	s.inputMu.Unlock()
}

type sessionCache struct {
	base *apiclient.Client
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*adminSession
}

func newSessionCache(base *apiclient.Client, ttl time.Duration) *sessionCache {
	return &sessionCache{
		base:     base,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*adminSession{},
	}
}

// get returns the session for an API session id, creating it on first use.
func (c *sessionCache) get(sessionID string) *adminSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	sess, ok := c.sessions[sessionID]
	if !ok {
		client := c.base.WithSession(sessionID)
		sess = &adminSession{
			id:     sessionID,
			client: client,
			editor: attendance.NewEditor(client, attendance.Filter{}),
		}
		c.sessions[sessionID] = sess
	}
	sess.lastSeen = c.now()
	return sess
}

func (c *sessionCache) put(client *apiclient.Client) *adminSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := &adminSession{
		id:       client.SessionID(),
		client:   client,
		editor:   attendance.NewEditor(client, attendance.Filter{}),
		lastSeen: c.now(),
	}
	c.sessions[sess.id] = sess
	return sess
}

func (c *sessionCache) drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *sessionCache) sweepLocked() {
	if c.ttl <= 0 {
		return
	}
	cutoff := c.now().Add(-c.ttl)
	for id, sess := range c.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(c.sessions, id)
		}
	}
}
