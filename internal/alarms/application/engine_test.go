package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	alarms "hmi-core/internal/alarms/domain"
)

type stubConfigRepo struct {
	mu      sync.Mutex
	sources []alarms.Source
	err     error
}

func (s *stubConfigRepo) ListSources(_ context.Context) ([]alarms.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.sources, nil
}

func (s *stubConfigRepo) set(sources []alarms.Source, err error) {
	s.mu.Lock()
	s.sources = sources
	s.err = err
	s.mu.Unlock()
}

type memHistoryRepo struct {
	mu         sync.Mutex
	entries    []alarms.HistoryEntry
	failing    bool
	lastLimit  int
	lastOffset int
	onAppend   func()
}

func (m *memHistoryRepo) Append(_ context.Context, entry *alarms.HistoryEntry) error {
	m.mu.Lock()
	if m.failing {
		m.mu.Unlock()
		return errors.New("history unavailable")
	}
	entry.ID = fmt.Sprintf("h-%d", len(m.entries)+1)
	m.entries = append(m.entries, *entry)
	hook := m.onAppend
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (m *memHistoryRepo) List(_ context.Context, limit, offset int) ([]alarms.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	m.lastOffset = offset
	out := make([]alarms.HistoryEntry, 0, limit)
	for i := len(m.entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memHistoryRepo) all() []alarms.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alarms.HistoryEntry(nil), m.entries...)
}

func (m *memHistoryRepo) setFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

func (m *memHistoryRepo) setOnAppend(hook func()) {
	m.mu.Lock()
	m.onAppend = hook
	m.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingNotifier) byType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingPublisher) Publish(_ context.Context, event any) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func definition(id, configID string, bit int, priority alarms.Priority) alarms.Definition {
	return alarms.Definition{
		ID:        id,
		ConfigID:  configID,
		BitNumber: bit,
		TextKey:   "alarm." + id,
		Priority:  priority,
		Enabled:   true,
	}
}

func singleSource(identifier string, defs ...alarms.Definition) []alarms.Source {
	byBit := make(map[int]alarms.Definition, len(defs))
	for _, def := range defs {
		byBit[def.BitNumber] = def
	}
	return []alarms.Source{{Identifier: identifier, Definitions: byBit}}
}

func newTestEngine(t *testing.T, sources []alarms.Source) (*Engine, *stubConfigRepo, *memHistoryRepo, *recordingNotifier, *fakeClock) {
	t.Helper()
	configs := &stubConfigRepo{sources: sources}
	history := &memHistoryRepo{}
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	engine, err := NewEngine(configs, history, WithNotifier(notifier), WithClock(clock))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.LoadConfiguration(context.Background()); err != nil {
		t.Fatalf("load configuration: %v", err)
	}
	return engine, configs, history, notifier, clock
}

func TestIngestActivationAndClear(t *testing.T) {
	engine, _, history, notifier, clock := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 3, alarms.PriorityPrio1)),
	)
	ctx := context.Background()

	if err := engine.Ingest(ctx, "boiler1", 0); err != nil {
		t.Fatalf("ingest zero: %v", err)
	}
	if got := len(history.all()); got != 0 {
		t.Fatalf("expected no history after clear word, got %d", got)
	}

	clock.Add(time.Second)
	if err := engine.Ingest(ctx, "boiler1", 8); err != nil {
		t.Fatalf("ingest bit 3: %v", err)
	}
	entries := history.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Status != alarms.StatusActive {
		t.Fatalf("expected active entry, got %s", entries[0].Status)
	}
	if entries[0].DefinitionID == nil || *entries[0].DefinitionID != "def-1" {
		t.Fatalf("expected definition id def-1, got %v", entries[0].DefinitionID)
	}
	if entries[0].RawValue != 8 {
		t.Fatalf("expected raw value 8, got %d", entries[0].RawValue)
	}
	if got := len(engine.ActiveAlarms()); got != 1 {
		t.Fatalf("expected 1 active alarm, got %d", got)
	}
	if got := engine.FooterSeverity(); got != 3 {
		t.Fatalf("expected footer severity 3, got %d", got)
	}

	clock.Add(time.Second)
	if err := engine.Ingest(ctx, "boiler1", 0); err != nil {
		t.Fatalf("ingest clear: %v", err)
	}
	entries = history.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[1].Status != alarms.StatusInactive {
		t.Fatalf("expected inactive entry, got %s", entries[1].Status)
	}
	if got := len(engine.ActiveAlarms()); got != 0 {
		t.Fatalf("expected empty active set, got %d", got)
	}
	if got := engine.FooterSeverity(); got != 1 {
		t.Fatalf("expected footer severity 1, got %d", got)
	}

	severities := notifier.byType(EventSeverity)
	if len(severities) != 2 {
		t.Fatalf("expected 2 severity events, got %d", len(severities))
	}
	if severities[0].Severity != 3 || severities[1].Severity != 1 {
		t.Fatalf("expected severity transitions 3 then 1, got %d then %d",
			severities[0].Severity, severities[1].Severity)
	}
}

func TestIngestSetBitAtStartupActivates(t *testing.T) {
	engine, _, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityWarning)),
	)

	if err := engine.Ingest(context.Background(), "boiler1", 1); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	entries := history.all()
	if len(entries) != 1 || entries[0].Status != alarms.StatusActive {
		t.Fatalf("expected a single activation on first observation, got %+v", entries)
	}
	if got := engine.FooterSeverity(); got != 2 {
		t.Fatalf("expected footer severity 2 for warning, got %d", got)
	}
}

func TestIngestRepeatedWordIsIdempotent(t *testing.T) {
	engine, _, history, notifier, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 2, alarms.PriorityPrio2)),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := engine.Ingest(ctx, "boiler1", 4); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	if got := len(history.all()); got != 1 {
		t.Fatalf("expected 1 history entry after repeated word, got %d", got)
	}
	if got := len(engine.ActiveAlarms()); got != 1 {
		t.Fatalf("expected 1 active alarm, got %d", got)
	}
	if got := len(notifier.byType(EventActive)); got != 1 {
		t.Fatalf("expected 1 active event, got %d", got)
	}
}

func TestIngestUnknownIdentifierDropped(t *testing.T) {
	engine, _, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityInfo)),
	)

	if err := engine.Ingest(context.Background(), "unknown", 1); err != nil {
		t.Fatalf("ingest unknown identifier: %v", err)
	}
	if got := len(history.all()); got != 0 {
		t.Fatalf("expected no history for unknown identifier, got %d", got)
	}
}

func TestIngestHistoryFailureLeavesStateUntouched(t *testing.T) {
	engine, _, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityPrio1)),
	)
	ctx := context.Background()

	history.setFailing(true)
	if err := engine.Ingest(ctx, "boiler1", 1); err == nil {
		t.Fatal("expected error when history append fails")
	}
	if got := len(engine.ActiveAlarms()); got != 0 {
		t.Fatalf("expected no active alarms after failed append, got %d", got)
	}

	// The word was not recorded, so the retry must replay the transition.
	history.setFailing(false)
	if err := engine.Ingest(ctx, "boiler1", 1); err != nil {
		t.Fatalf("retry ingest: %v", err)
	}
	entries := history.all()
	if len(entries) != 1 || entries[0].Status != alarms.StatusActive {
		t.Fatalf("expected activation on retry, got %+v", entries)
	}
	if got := len(engine.ActiveAlarms()); got != 1 {
		t.Fatalf("expected 1 active alarm after retry, got %d", got)
	}
}

func TestFooterSeverityLevels(t *testing.T) {
	cases := []struct {
		priority alarms.Priority
		want     int
	}{
		{alarms.PriorityPrio1, 3},
		{alarms.PriorityPrio2, 3},
		{alarms.PriorityPrio3, 1},
		{alarms.PriorityWarning, 2},
		{alarms.PriorityInfo, 1},
	}
	for _, tc := range cases {
		engine, _, _, _, _ := newTestEngine(t,
			singleSource("boiler1", definition("def-1", "cfg-1", 0, tc.priority)),
		)
		if err := engine.Ingest(context.Background(), "boiler1", 1); err != nil {
			t.Fatalf("%s: ingest: %v", tc.priority, err)
		}
		if got := engine.FooterSeverity(); got != tc.want {
			t.Fatalf("%s: expected footer severity %d, got %d", tc.priority, tc.want, got)
		}
	}
}

func TestActiveAlarmOrdering(t *testing.T) {
	engine, _, _, _, clock := newTestEngine(t,
		singleSource("boiler1",
			definition("def-info", "cfg-1", 0, alarms.PriorityInfo),
			definition("def-prio1-old", "cfg-1", 1, alarms.PriorityPrio1),
			definition("def-prio1-new", "cfg-1", 2, alarms.PriorityPrio1),
		),
	)
	ctx := context.Background()

	if err := engine.Ingest(ctx, "boiler1", 0b011); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	clock.Add(time.Minute)
	if err := engine.Ingest(ctx, "boiler1", 0b111); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	active := engine.ActiveAlarms()
	if len(active) != 3 {
		t.Fatalf("expected 3 active alarms, got %d", len(active))
	}
	wantOrder := []string{"def-prio1-new", "def-prio1-old", "def-info"}
	for i, want := range wantOrder {
		if active[i].Definition.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, active[i].Definition.ID)
		}
	}
}

func TestAcknowledgeRecordsResetWithoutClearing(t *testing.T) {
	engine, _, history, notifier, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityPrio1)),
	)
	publisher := &recordingPublisher{}
	WithAckPublisher(publisher)(engine)
	ctx := context.Background()

	if err := engine.Ingest(ctx, "boiler1", 1); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	entry, err := engine.Acknowledge(ctx, "operator-7")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if entry.Status != alarms.StatusReset {
		t.Fatalf("expected reset status, got %s", entry.Status)
	}
	if entry.DefinitionID != nil {
		t.Fatalf("expected nil definition id on reset entry, got %v", entry.DefinitionID)
	}
	if got := len(engine.ActiveAlarms()); got != 1 {
		t.Fatalf("acknowledge must not clear the active set, got %d alarms", got)
	}
	if got := len(history.all()); got != 2 {
		t.Fatalf("expected 2 history entries, got %d", got)
	}
	if got := len(notifier.byType(EventReset)); got != 1 {
		t.Fatalf("expected 1 reset event, got %d", got)
	}
	publisher.mu.Lock()
	published := len(publisher.events)
	publisher.mu.Unlock()
	if published != 1 {
		t.Fatalf("expected 1 published acknowledge request, got %d", published)
	}
}

func TestLoadConfigurationReconcilesActiveSet(t *testing.T) {
	engine, configs, history, _, _ := newTestEngine(t,
		singleSource("boiler1",
			definition("def-keep", "cfg-1", 0, alarms.PriorityPrio2),
			definition("def-drop", "cfg-1", 1, alarms.PriorityWarning),
		),
	)
	ctx := context.Background()

	if err := engine.Ingest(ctx, "boiler1", 0b11); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := len(engine.ActiveAlarms()); got != 2 {
		t.Fatalf("expected 2 active alarms, got %d", got)
	}

	configs.set(singleSource("boiler1", definition("def-keep", "cfg-1", 0, alarms.PriorityPrio2)), nil)
	if err := engine.LoadConfiguration(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	active := engine.ActiveAlarms()
	if len(active) != 1 || active[0].Definition.ID != "def-keep" {
		t.Fatalf("expected only def-keep active after reload, got %+v", active)
	}
	// Reconciliation is derived state only, never history.
	if got := len(history.all()); got != 2 {
		t.Fatalf("expected history untouched by reload, got %d entries", got)
	}
}

func TestReloadDuringIngestDoesNotResurrectState(t *testing.T) {
	engine, configs, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityPrio1)),
	)
	ctx := context.Background()

	// The reload lands between the history append and the state write-back.
	history.setOnAppend(func() {
		configs.set(nil, nil)
		if err := engine.LoadConfiguration(ctx); err != nil {
			t.Errorf("reload: %v", err)
		}
	})

	if err := engine.Ingest(ctx, "boiler1", 1); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := len(engine.ActiveAlarms()); got != 0 {
		t.Fatalf("expected no active alarms for a deconfigured identifier, got %d", got)
	}
	if got := engine.FooterSeverity(); got != 1 {
		t.Fatalf("expected footer severity 1, got %d", got)
	}
	// The activation row had already been persisted and stays in history.
	entries := history.all()
	if len(entries) != 1 || entries[0].Status != alarms.StatusActive {
		t.Fatalf("expected the persisted activation row to stand, got %+v", entries)
	}
}

func TestReloadDuringIngestDropsReplacedDefinition(t *testing.T) {
	engine, configs, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-old", "cfg-1", 0, alarms.PriorityPrio1)),
	)
	ctx := context.Background()

	// Same identifier, same bit, different definition id after the reload.
	history.setOnAppend(func() {
		configs.set(singleSource("boiler1", definition("def-new", "cfg-1", 0, alarms.PriorityPrio1)), nil)
		if err := engine.LoadConfiguration(ctx); err != nil {
			t.Errorf("reload: %v", err)
		}
	})

	if err := engine.Ingest(ctx, "boiler1", 1); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	for _, alarm := range engine.ActiveAlarms() {
		if alarm.Definition.ID == "def-old" {
			t.Fatalf("replaced definition resurrected into the active set: %+v", alarm)
		}
	}
}

func TestLoadConfigurationFailureClearsState(t *testing.T) {
	engine, configs, _, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityPrio1)),
	)
	ctx := context.Background()

	if err := engine.Ingest(ctx, "boiler1", 1); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	configs.set(nil, errors.New("db down"))
	if err := engine.LoadConfiguration(ctx); err == nil {
		t.Fatal("expected error from failed reload")
	}
	if got := len(engine.ActiveAlarms()); got != 0 {
		t.Fatalf("expected cleared active set after failed reload, got %d", got)
	}
	if got := engine.FooterSeverity(); got != 1 {
		t.Fatalf("expected footer severity 1 after failed reload, got %d", got)
	}
}

func TestHistoryClampsPagination(t *testing.T) {
	engine, _, history, _, _ := newTestEngine(t,
		singleSource("boiler1", definition("def-1", "cfg-1", 0, alarms.PriorityInfo)),
	)
	ctx := context.Background()

	if _, err := engine.History(ctx, 0, -5); err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.lastLimit != alarms.HistoryLimitMin || history.lastOffset != 0 {
		t.Fatalf("expected clamp to (%d, 0), got (%d, %d)",
			alarms.HistoryLimitMin, history.lastLimit, history.lastOffset)
	}

	if _, err := engine.History(ctx, 10_000, 40); err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.lastLimit != alarms.HistoryLimitMax || history.lastOffset != 40 {
		t.Fatalf("expected clamp to (%d, 40), got (%d, %d)",
			alarms.HistoryLimitMax, history.lastLimit, history.lastOffset)
	}
}

func TestConcurrentIngestDistinctIdentifiers(t *testing.T) {
	sources := []alarms.Source{
		singleSource("boiler1", definition("def-a", "cfg-1", 0, alarms.PriorityPrio1))[0],
		singleSource("boiler2", definition("def-b", "cfg-2", 0, alarms.PriorityPrio1))[0],
	}
	engine, _, history, _, _ := newTestEngine(t, sources)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, identifier := range []string{"boiler1", "boiler2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = engine.Ingest(ctx, id, int64(i%2))
			}
		}(identifier)
	}
	wg.Wait()

	// Each identifier toggles its bit deterministically despite racing.
	counts := map[string]int{}
	for _, entry := range history.all() {
		counts[entry.Identifier]++
	}
	if counts["boiler1"] == 0 || counts["boiler2"] == 0 {
		t.Fatalf("expected transitions for both identifiers, got %v", counts)
	}
}
