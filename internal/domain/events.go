package domain

import "time"

// DomainEvent represents a significant occurrence in the domain.
type DomainEvent interface {
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
	// EventType returns the type of event.
	EventType() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	occurredAt time.Time
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

// NewBaseEvent creates a new base event with current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{occurredAt: time.Now()}
}

// SessionsDeletedEvent is raised when sessions are removed from a report.
type SessionsDeletedEvent struct {
	BaseEvent
	Commit     string
	SessionIDs []int
	FilesLeft  int
}

// EventType returns the event type identifier.
func (e SessionsDeletedEvent) EventType() string {
	return "SessionsDeleted"
}

// NewSessionsDeletedEvent creates a new SessionsDeletedEvent.
func NewSessionsDeletedEvent(commit string, ids []int, filesLeft int) SessionsDeletedEvent {
	return SessionsDeletedEvent{
		BaseEvent:  NewBaseEvent(),
		Commit:     commit,
		SessionIDs: ids,
		FilesLeft:  filesLeft,
	}
}

// ReportMergedEvent is raised when an upload is merged into a commit report.
type ReportMergedEvent struct {
	BaseEvent
	Commit    string
	SessionID int
	Files     int
	Coverage  string
}

// EventType returns the event type identifier.
func (e ReportMergedEvent) EventType() string {
	return "ReportMerged"
}

// NewReportMergedEvent creates a new ReportMergedEvent.
func NewReportMergedEvent(commit string, sessionID int, totals ReportTotals) ReportMergedEvent {
	return ReportMergedEvent{
		BaseEvent: NewBaseEvent(),
		Commit:    commit,
		SessionID: sessionID,
		Files:     totals.Files,
		Coverage:  totals.Coverage,
	}
}

// CarryForwardAppliedEvent is raised when a parent's sessions are carried
// into a commit.
type CarryForwardAppliedEvent struct {
	BaseEvent
	Commit   string
	Parent   string
	Flags    []string
	Sessions int
	Shifted  bool
}

// EventType returns the event type identifier.
func (e CarryForwardAppliedEvent) EventType() string {
	return "CarryForwardApplied"
}

// NewCarryForwardAppliedEvent creates a new CarryForwardAppliedEvent.
func NewCarryForwardAppliedEvent(commit, parent string, flags []string, sessions int, shifted bool) CarryForwardAppliedEvent {
	return CarryForwardAppliedEvent{
		BaseEvent: NewBaseEvent(),
		Commit:    commit,
		Parent:    parent,
		Flags:     flags,
		Sessions:  sessions,
		Shifted:   shifted,
	}
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event DomainEvent) error
	PublishAll(events []DomainEvent) error
}

// EventCollector collects domain events for later publishing.
type EventCollector struct {
	events []DomainEvent
}

// NewEventCollector creates a new event collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]DomainEvent, 0),
	}
}

// Record adds an event to the collector.
func (c *EventCollector) Record(event DomainEvent) {
	c.events = append(c.events, event)
}

// Events returns all collected events.
func (c *EventCollector) Events() []DomainEvent {
	return c.events
}

// Clear removes all collected events.
func (c *EventCollector) Clear() {
	c.events = make([]DomainEvent, 0)
}

// HasEvents returns true if there are any collected events.
func (c *EventCollector) HasEvents() bool {
	return len(c.events) > 0
}
