package events

import "context"

// EventType identifies a class of history events.
type EventType string

const (
	// TypeEntriesMerged fires after a fetched page or a live update lands in
	// the history store.
	TypeEntriesMerged EventType = "entries_merged"
	// TypeFetchFailed fires when a page fetch fails terminally.
	TypeFetchFailed EventType = "fetch_failed"
	// TypeSupplyChanged fires when the live listener observes a new pool supply.
	TypeSupplyChanged EventType = "supply_changed"
)

// Event is anything that can travel over the bus.
type Event interface {
	Type() EventType
}

// EntriesMerged reports entries newly added to the history.
type EntriesMerged struct {
	Signatures []string
	Added      int
	Live       bool // true when synthesized by the live listener
}

func (EntriesMerged) Type() EventType { return TypeEntriesMerged }

// FetchFailed reports a terminal page-fetch failure.
type FetchFailed struct {
	Err error
}

func (FetchFailed) Type() EventType { return TypeFetchFailed }

// SupplyChanged reports an observed pool supply transition.
type SupplyChanged struct {
	Pool     string
	Supply   uint64
	Price    uint64
	Previous uint64
}

func (SupplyChanged) Type() EventType { return TypeSupplyChanged }

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Publisher is the producer-side surface. Components receive it by injection
// instead of reaching into ambient global state.
type Publisher interface {
	Publish(event Event) error
}

// Subscription is a handle for removing a handler.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	typ EventType
	bus *Bus
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}
