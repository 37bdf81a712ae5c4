package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event types recorded by the device.
const (
	TypeModeEntered         = "mode.entered"
	TypeUtteranceTranslated = "utterance.translated"
	TypeSentenceFinalized   = "sentence.finalized"
	TypeReplyTranscribed    = "reply.transcribed"
)

// Journal appends events to the session of the current mode. It is safe for
// concurrent use; a nil Journal drops everything.
type Journal struct {
	store  *Store
	nodeID string

	mu      sync.Mutex
	session string
}

func NewJournal(store *Store, nodeID string) *Journal {
	return &Journal{store: store, nodeID: nodeID}
}

// Begin opens a new session for mode and makes it current.
func (j *Journal) Begin(ctx context.Context, mode string) (string, error) {
	if j == nil {
		return "", nil
	}
	id := uuid.NewString()
	if err := j.store.AppendSession(ctx, Session{ID: id, NodeID: j.nodeID, Mode: mode}); err != nil {
		return "", fmt.Errorf("append session: %w", err)
	}
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
	if err := j.Record(ctx, TypeModeEntered, map[string]string{"mode": mode}); err != nil {
		return id, err
	}
	return id, nil
}

// Current returns the active session id, empty before the first Begin.
func (j *Journal) Current() string {
	if j == nil {
		return ""
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// Record appends a JSON encoded payload to the current session.
func (j *Journal) Record(ctx context.Context, eventType string, payload any) error {
	if j == nil {
		return nil
	}
	session := j.Current()
	if session == "" {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return j.store.AppendEvent(ctx, Event{SessionID: session, Type: eventType, Payload: data})
}
