package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timeNow is stubbed in tests.
var timeNow = time.Now

// ChatService is the adapter surface the conversation drives. *Service
// satisfies it; tests substitute a fake.
type ChatService interface {
	History(sessionKey string) ([]Message, error)
	Send(sessionKey, message, thinking, idempotencyKey string) (SendResult, error)
	Abort(sessionKey, runID string) error
}

// Conversation owns the authoritative in-memory message log for one session.
// It folds cached history, remote history, streamed events, and local edits
// into one monotonically ordered sequence. All mutation is serialized behind
// its mutex; streamed events must be handed to Apply from a single goroutine.
type Conversation struct {
	sessionKey string
	thinking   string
	svc        ChatService

	mu        sync.Mutex
	messages  []Message
	runs      map[string]string // runId -> placeholder message id
	lastSeq   map[string]int    // runId -> highest seq observed
	lastRunID string
	errText   string

	onChange func()
}

// NewConversation creates an empty log for sessionKey. thinking is the
// effort hint forwarded on every send.
func NewConversation(sessionKey, thinking string, svc ChatService) *Conversation {
	return &Conversation{
		sessionKey: sessionKey,
		thinking:   thinking,
		svc:        svc,
		runs:       make(map[string]string),
		lastSeq:    make(map[string]int),
	}
}

// OnChange registers a single change hook, invoked outside the lock after
// every visible mutation. The presentation layer consumes it.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Conversation) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SessionKey returns the session this conversation tracks.
func (c *Conversation) SessionKey() string { return c.sessionKey }

// Messages returns a snapshot of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ErrorMessage returns the latest stream-level error, if any. Each new error
// overwrites the slot.
func (c *Conversation) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// Restore seeds the log from the local cache before the first remote load.
func (c *Conversation) Restore(cached []Message) {
	c.mu.Lock()
	c.messages = append([]Message(nil), cached...)
	c.mu.Unlock()
	c.notify()
}

// LoadHistory fetches authoritative remote history and merges it with the
// current log. Runs are tracked by placeholder message id, so active runs
// survive the reorder; a placeholder the merge dropped is forgotten and the
// next delta for its run starts a fresh one.
func (c *Conversation) LoadHistory() error {
	remote, err := c.svc.History(c.sessionKey)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.messages = MergeMessages(remote, c.messages)
	for runID, msgID := range c.runs {
		if c.indexOfLocked(msgID) < 0 {
			delete(c.runs, runID)
		}
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Send appends a pending user message, performs the network send, then flips
// the message to sent and registers an assistant placeholder under the
// returned run id. On failure the user message flips to failed and the error
// is returned; nothing is retried here.
func (c *Conversation) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	user := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		State:     StateSending,
		CreatedAt: timeNow(),
	}
	c.mu.Lock()
	c.messages = append(c.messages, user)
	c.mu.Unlock()
	c.notify()

	result, err := c.svc.Send(c.sessionKey, text, c.thinking, uuid.NewString())

	c.mu.Lock()
	if idx := c.indexOfLocked(user.ID); idx >= 0 {
		if err != nil {
			c.messages[idx].State = StateFailed
		} else {
			c.messages[idx].State = StateSent
		}
	}
	if err == nil {
		placeholder := Message{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			State:     StateSending,
			CreatedAt: timeNow(),
		}
		c.messages = append(c.messages, placeholder)
		c.runs[result.RunID] = placeholder.ID
		c.lastRunID = result.RunID
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// Abort stops the most recent run, if one is known.
func (c *Conversation) Abort() error {
	c.mu.Lock()
	runID := c.lastRunID
	c.mu.Unlock()
	return c.svc.Abort(c.sessionKey, runID)
}

// Apply folds one streamed event into the log. Delivery upstream is
// at-least-once, so regressive seq values are dropped here; events for other
// sessions are ignored.
func (c *Conversation) Apply(ev Event) {
	c.mu.Lock()
	if ev.SessionKey != c.sessionKey {
		c.mu.Unlock()
		return
	}
	if ev.Seq != nil {
		if last, ok := c.lastSeq[ev.RunID]; ok && *ev.Seq < last {
			c.mu.Unlock()
			return
		}
		c.lastSeq[ev.RunID] = *ev.Seq
	}

	changed := false
	switch ev.State {
	case EventDelta:
		if ev.Message != nil {
			c.upsertRunLocked(ev.RunID, ev.Message.Text, StateSending)
			changed = true
		}
	case EventFinal:
		if ev.Message != nil {
			c.upsertRunLocked(ev.RunID, ev.Message.Text, StateSent)
		} else if idx := c.runMessageLocked(ev.RunID); idx >= 0 {
			c.messages[idx].State = StateSent
		}
		delete(c.runs, ev.RunID)
		changed = true
	case EventError:
		if idx := c.runMessageLocked(ev.RunID); idx >= 0 {
			c.messages[idx].State = StateFailed
		}
		delete(c.runs, ev.RunID)
		c.errText = ev.ErrorMessage
		changed = true
	case EventUnknown:
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Edit replaces the text of a message that has not been confirmed sent.
// Returns false (log untouched) for sent messages or empty replacement text.
func (c *Conversation) Edit(id, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	c.mu.Lock()
	idx := c.indexOfLocked(id)
	if idx < 0 || c.messages[idx].State == StateSent {
		c.mu.Unlock()
		return false
	}
	c.messages[idx].Text = text
	c.messages[idx].Edited = true
	c.mu.Unlock()
	c.notify()
	return true
}

// Delete tombstones a message that has not been confirmed sent: the text is
// cleared but the entry stays, so ordering and id stability survive.
func (c *Conversation) Delete(id string) bool {
	c.mu.Lock()
	idx := c.indexOfLocked(id)
	if idx < 0 || c.messages[idx].State == StateSent {
		c.mu.Unlock()
		return false
	}
	c.messages[idx].Text = ""
	c.messages[idx].Deleted = true
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Conversation) upsertRunLocked(runID, text string, state DeliveryState) {
	if idx := c.runMessageLocked(runID); idx >= 0 {
		c.messages[idx].Text = text
		c.messages[idx].State = state
		return
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      text,
		State:     state,
		CreatedAt: timeNow(),
	}
	c.messages = append(c.messages, msg)
	c.runs[runID] = msg.ID
}

// runMessageLocked resolves a run's placeholder to its current position, or
// -1 when the run is unknown or its placeholder is gone.
func (c *Conversation) runMessageLocked(runID string) int {
	msgID, ok := c.runs[runID]
	if !ok {
		return -1
	}
	return c.indexOfLocked(msgID)
}

func (c *Conversation) indexOfLocked(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

type fingerprint struct {
	role Role
	ms   int64
	text string
}

func fingerprintOf(m Message) fingerprint {
	return fingerprint{role: m.Role, ms: m.CreatedAt.UnixMilli(), text: m.Text}
}

// MergeMessages reconciles authoritative remote history with the local log.
// A local message survives when it is not yet confirmed sent, carries
// local-only metadata, or is strictly newer than everything remote. Matching
// is by (role, timestamp-ms, text) fingerprint: a match overwrites the
// remote entry in place when the local copy carries local-only metadata, and
// a not-yet-sent local copy is additionally kept so an in-flight duplicate
// of a just-confirmed send stays visible. The result is sorted by timestamp,
// ties broken by id, and deduplicated by id, so the merge is deterministic
// and idempotent.
func MergeMessages(remote, local []Message) []Message {
	var maxRemote time.Time
	for _, m := range remote {
		if m.CreatedAt.After(maxRemote) {
			maxRemote = m.CreatedAt
		}
	}

	result := append([]Message(nil), remote...)
	byFingerprint := make(map[fingerprint]int, len(remote))
	for i, m := range remote {
		fp := fingerprintOf(m)
		if _, ok := byFingerprint[fp]; !ok {
			byFingerprint[fp] = i
		}
	}

	for _, lm := range local {
		keep := lm.State != StateSent || lm.hasLocalMeta() || lm.CreatedAt.After(maxRemote)
		if !keep {
			continue
		}
		if idx, ok := byFingerprint[fingerprintOf(lm)]; ok {
			if lm.hasLocalMeta() {
				result[idx] = lm
			}
			if lm.State != StateSent {
				result = append(result, lm)
			}
			continue
		}
		result = append(result, lm)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	// the log is unique by id; the overwrite-plus-append path above can
	// produce the same entry twice
	seen := make(map[string]bool, len(result))
	deduped := result[:0]
	for _, m := range result {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		deduped = append(deduped, m)
	}
	return deduped
}
