package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alarms "hmi-core/internal/alarms/domain"
	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
)

// Notifier publishes alarm lifecycle events to outbound sinks.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event is one outbound alarm lifecycle update.
type Event struct {
	Type      string               `json:"type"`
	Entry     *alarms.HistoryEntry `json:"entry,omitempty"`
	BitNumber int                  `json:"bit_number,omitempty"`
	Active    []alarms.ActiveAlarm `json:"active,omitempty"`
	Severity  int                  `json:"severity,omitempty"`
}

// Event types emitted by the engine.
const (
	EventActive   = "active"
	EventInactive = "inactive"
	EventReset    = "reset"
	EventSnapshot = "snapshot"
	EventSeverity = "severity"
)

// ConfigRepository loads alarm sources and their enabled definitions.
type ConfigRepository interface {
	ListSources(ctx context.Context) ([]alarms.Source, error)
}

// HistoryRepository appends and reads alarm history rows.
type HistoryRepository interface {
	Append(ctx context.Context, entry *alarms.HistoryEntry) error
	List(ctx context.Context, limit, offset int) ([]alarms.HistoryEntry, error)
}

// EventPublisher publishes outbound integration events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Engine maintains the live alarm picture from packed status words.
type Engine struct {
	configs  ConfigRepository
	history  HistoryRepository
	notifier Notifier
	ack      EventPublisher
	clock    Clock
	logger   *log.Logger

	mu         sync.Mutex
	sources    map[string]alarms.Source
	lastValues map[string]int64
	active     map[string]alarms.ActiveAlarm
	footer     int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option customizes the engine.
type Option func(*Engine)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithAckPublisher assigns an outbound publisher for acknowledge requests.
func WithAckPublisher(publisher EventPublisher) Option {
	return func(e *Engine) {
		e.ack = publisher
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an alarm engine.
func NewEngine(configs ConfigRepository, history HistoryRepository, opts ...Option) (*Engine, error) {
	if configs == nil {
		return nil, errors.New("alarm engine: nil config repository")
	}
	if history == nil {
		return nil, errors.New("alarm engine: nil history repository")
	}
	engine := &Engine{
		configs:    configs,
		history:    history,
		clock:      systemClock{},
		logger:     log.Default(),
		sources:    make(map[string]alarms.Source),
		lastValues: make(map[string]int64),
		active:     make(map[string]alarms.ActiveAlarm),
		footer:     alarms.FooterLevel(""),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// LoadConfiguration atomically replaces the in-memory source map and
// re-derives the active set from the surviving last values. On a load
// failure all in-memory state is cleared rather than left stale.
func (e *Engine) LoadConfiguration(ctx context.Context) error {
	if e == nil {
		return errors.New("alarm engine: nil engine")
	}
	sources, err := e.configs.ListSources(ctx)
	if err != nil {
		e.mu.Lock()
		e.sources = make(map[string]alarms.Source)
		e.lastValues = make(map[string]int64)
		e.active = make(map[string]alarms.ActiveAlarm)
		e.mu.Unlock()
		e.broadcastState(ctx)
		return fmt.Errorf("alarm engine: load configuration: %w", err)
	}

	byIdentifier := make(map[string]alarms.Source, len(sources))
	for _, source := range sources {
		if source.Identifier == "" || len(source.Definitions) == 0 {
			continue
		}
		byIdentifier[source.Identifier] = source
	}

	e.mu.Lock()
	e.sources = byIdentifier
	for identifier := range e.lastValues {
		if _, ok := byIdentifier[identifier]; !ok {
			delete(e.lastValues, identifier)
		}
	}
	e.reconcileLocked()
	e.mu.Unlock()

	e.broadcastState(ctx)
	return nil
}

// Ingest applies one packed status word for an identifier. Unknown
// identifiers are dropped. Per-identifier processing is serialized;
// distinct identifiers may be ingested concurrently.
func (e *Engine) Ingest(ctx context.Context, identifier string, raw int64) error {
	if e == nil {
		return errors.New("alarm engine: nil engine")
	}
	if identifier == "" {
		return nil
	}
	start := e.clock.Now()

	lock := e.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	source, ok := e.sources[identifier]
	last, known := e.lastValues[identifier]
	e.mu.Unlock()
	if !ok {
		metrics.IncIngestError("unknown_identifier")
		return nil
	}

	type transition struct {
		def    alarms.Definition
		rising bool
		entry  alarms.HistoryEntry
	}

	now := e.clock.Now().UTC()
	var transitions []transition
	for bit := 0; bit < alarms.WordBits; bit++ {
		def, ok := source.Definitions[bit]
		if !ok || !def.Enabled {
			continue
		}
		cur := alarms.BitAt(raw, bit)
		prev := !cur
		if known {
			prev = alarms.BitAt(last, bit)
		}
		if cur == prev {
			continue
		}
		if !cur {
			// A falling edge with nothing active (first observation of a
			// clear bit) must not produce a spurious history row.
			e.mu.Lock()
			_, wasActive := e.active[def.ID]
			e.mu.Unlock()
			if !wasActive {
				continue
			}
		}
		status := alarms.StatusInactive
		if cur {
			status = alarms.StatusActive
		}
		defID := def.ID
		transitions = append(transitions, transition{
			def:    def,
			rising: cur,
			entry: alarms.HistoryEntry{
				DefinitionID: &defID,
				Status:       status,
				Identifier:   identifier,
				RawValue:     raw,
				Priority:     def.Priority,
				TextKey:      def.TextKey,
				OccurredAt:   now,
			},
		})
	}

	// Persist first; the in-memory state change depends on the audit row.
	for i := range transitions {
		if err := e.history.Append(ctx, &transitions[i].entry); err != nil {
			metrics.ObserveIngest(metrics.ResultError, e.clock.Now().Sub(start))
			return fmt.Errorf("alarm engine: history append: %w", err)
		}
	}

	// Re-validate against the current source map: a configuration reload
	// may have raced the history writes, and the write-back must not
	// resurrect state for a deconfigured identifier or definition.
	e.mu.Lock()
	current, stillConfigured := e.sources[identifier]
	if stillConfigured {
		for _, tr := range transitions {
			if tr.rising {
				def, ok := current.Definitions[tr.def.BitNumber]
				if !ok || def.ID != tr.def.ID {
					continue
				}
				e.active[tr.def.ID] = alarms.ActiveAlarm{
					Definition:  tr.def,
					Identifier:  identifier,
					ActivatedAt: now,
				}
			} else {
				delete(e.active, tr.def.ID)
			}
		}
		e.lastValues[identifier] = raw
	}
	e.mu.Unlock()
	if !stillConfigured {
		e.logger.Printf("alarm engine: identifier %s deconfigured during ingest, state unchanged", identifier)
		metrics.ObserveIngest(metrics.ResultSuccess, e.clock.Now().Sub(start))
		return nil
	}

	for _, tr := range transitions {
		entry := tr.entry
		eventType := EventInactive
		if tr.rising {
			eventType = EventActive
		}
		e.notify(ctx, Event{Type: eventType, Entry: &entry, BitNumber: tr.def.BitNumber})
	}
	if len(transitions) > 0 {
		e.broadcastState(ctx)
	}
	metrics.ObserveIngest(metrics.ResultSuccess, e.clock.Now().Sub(start))
	return nil
}

// Acknowledge records a manual reset request. It does not clear the
// active set; clearing happens on the next ingest once the upstream
// system reports the bits as cleared.
func (e *Engine) Acknowledge(ctx context.Context, requestedBy string) (*alarms.HistoryEntry, error) {
	if e == nil {
		return nil, errors.New("alarm engine: nil engine")
	}
	entry := &alarms.HistoryEntry{
		DefinitionID: nil,
		Status:       alarms.StatusReset,
		OccurredAt:   e.clock.Now().UTC(),
	}
	if err := e.history.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("alarm engine: acknowledge: %w", err)
	}
	if e.ack != nil {
		if err := e.ack.Publish(ctx, events.AcknowledgeRequested{
			RequestedBy: requestedBy,
			OccurredAt:  entry.OccurredAt,
		}); err != nil {
			e.logger.Printf("alarm engine: acknowledge publish error: %v", err)
		}
	}
	e.notify(ctx, Event{Type: EventReset, Entry: entry})
	return entry, nil
}

// History returns history rows ordered by timestamp descending.
func (e *Engine) History(ctx context.Context, limit, offset int) ([]alarms.HistoryEntry, error) {
	if e == nil {
		return nil, errors.New("alarm engine: nil engine")
	}
	limit, offset = alarms.ClampHistoryPage(limit, offset)
	return e.history.List(ctx, limit, offset)
}

// ActiveAlarms returns the ordered active-alarm snapshot.
func (e *Engine) ActiveAlarms() []alarms.ActiveAlarm {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	list := make([]alarms.ActiveAlarm, 0, len(e.active))
	for _, alarm := range e.active {
		list = append(list, alarm)
	}
	e.mu.Unlock()
	alarms.SortActive(list)
	return list
}

// FooterSeverity returns the last broadcast footer level.
func (e *Engine) FooterSeverity() int {
	if e == nil {
		return alarms.FooterLevel("")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.footer
}

// reconcileLocked re-derives the active set from current last values
// against the current source map. Caller holds e.mu.
func (e *Engine) reconcileLocked() {
	now := e.clock.Now().UTC()
	next := make(map[string]alarms.ActiveAlarm)
	for identifier, source := range e.sources {
		raw, known := e.lastValues[identifier]
		if !known {
			continue
		}
		for bit, def := range source.Definitions {
			if !def.Enabled || !alarms.BitAt(raw, bit) {
				continue
			}
			activatedAt := now
			if existing, ok := e.active[def.ID]; ok {
				activatedAt = existing.ActivatedAt
			}
			next[def.ID] = alarms.ActiveAlarm{
				Definition:  def,
				Identifier:  identifier,
				ActivatedAt: activatedAt,
			}
		}
	}
	e.active = next
}

func (e *Engine) broadcastState(ctx context.Context) {
	snapshot := e.ActiveAlarms()
	level := alarms.FooterLevel(alarms.HighestPriority(snapshot))

	e.notify(ctx, Event{Type: EventSnapshot, Active: snapshot, Severity: level})

	e.mu.Lock()
	changed := level != e.footer
	e.footer = level
	e.mu.Unlock()
	if changed {
		metrics.SetFooterSeverity(level)
		e.notify(ctx, Event{Type: EventSeverity, Severity: level})
	}
}

func (e *Engine) notify(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	metrics.IncAlarmEvent(event.Type)
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, event)
}

func (e *Engine) identifierLock(identifier string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[identifier] = lock
	}
	return lock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
