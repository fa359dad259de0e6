package ingest

import "sync"

// TopicStore keeps the last payload seen on each MQTT topic. It backs
// topic-sourced labels.
type TopicStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewTopicStore constructs an empty store.
func NewTopicStore() *TopicStore {
	return &TopicStore{values: make(map[string]string)}
}

// Record stores the latest payload for a topic.
func (s *TopicStore) Record(topic, payload string) {
	if s == nil || topic == "" {
		return
	}
	s.mu.Lock()
	s.values[topic] = payload
	s.mu.Unlock()
}

// Lookup returns the last payload seen on a topic.
func (s *TopicStore) Lookup(topic string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[topic]
	return value, ok
}
