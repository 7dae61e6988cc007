package feed

import "sync"

// ChannelSource is a Source fed programmatically. It is the attachment point
// for whatever transport adapter delivers the realtime stream, and the test
// double for the consumer.
type ChannelSource struct {
	events   chan Event
	statuses chan Status

	closeOnce sync.Once
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSource{
		events:   make(chan Event, buffer),
		statuses: make(chan Status, 8),
	}
}

func (s *ChannelSource) Events() <-chan Event    { return s.events }
func (s *ChannelSource) Statuses() <-chan Status { return s.statuses }

// Publish delivers one event in arrival order; blocks when the buffer is full
// so ordering is preserved under pressure.
func (s *ChannelSource) Publish(ev Event) {
	s.events <- ev
}

// SetStatus reports a subscription health change.
func (s *ChannelSource) SetStatus(st Status) {
	s.statuses <- st
}

func (s *ChannelSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.events)
		close(s.statuses)
	})
	return nil
}
