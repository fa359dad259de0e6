package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	alarmapp "hmi-core/internal/alarms/application"
	alarms "hmi-core/internal/alarms/domain"
	"hmi-core/internal/observability/metrics"
)

// ActiveReader reports which alarms are currently raised.
type ActiveReader interface {
	ActiveAlarms() []alarms.ActiveAlarm
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier sends alarm notifications via a channel and handles escalation
// for top-priority alarms that stay active.
type Notifier struct {
	active         ActiveReader
	channel        Channel
	template       *Template
	escalation     time.Duration
	clock          Clock
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(active ActiveReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		active:         active,
		channel:        channel,
		template:       template,
		escalation:     0,
		clock:          systemClock{},
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.Notifier. Snapshot and severity events are
// UI concerns and never leave the process through this channel.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.Event) {
	if n == nil || n.channel == nil || event.Entry == nil {
		return
	}
	switch event.Type {
	case alarmapp.EventActive:
		n.dispatch(ctx, event.Type, *event.Entry)
		n.scheduleEscalation(*event.Entry)
	case alarmapp.EventInactive:
		n.dispatch(ctx, event.Type, *event.Entry)
		n.cancelEscalation(definitionKey(*event.Entry))
	case alarmapp.EventReset:
		n.dispatch(ctx, event.Type, *event.Entry)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, entry alarms.HistoryEntry) {
	content, err := n.template.Render(buildTemplateData(eventType, entry))
	if err != nil {
		return
	}
	key := definitionKey(entry) + "|" + eventType
	if !n.shouldSend(key, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotification("webhook", metrics.ResultError)
		return
	}
	metrics.IncNotification("webhook", metrics.ResultSuccess)
	n.markSent(key, content)
}

func (n *Notifier) scheduleEscalation(entry alarms.HistoryEntry) {
	if n == nil || n.escalation <= 0 {
		return
	}
	if entry.Priority != alarms.PriorityPrio1 {
		return
	}
	key := definitionKey(entry)
	if key == "" {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[key]; ok && existing != nil {
		existing.Stop()
	}
	timer := time.AfterFunc(n.escalation, func() {
		n.runEscalation(entry)
	})
	n.timers[key] = timer
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(key string) {
	if n == nil || key == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[key]
	delete(n.timers, key)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(entry alarms.HistoryEntry) {
	if n == nil {
		return
	}
	key := definitionKey(entry)
	n.mu.Lock()
	delete(n.timers, key)
	n.mu.Unlock()

	if n.active != nil && !n.stillActive(entry) {
		return
	}

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	n.dispatch(ctx, "escalated", entry)
}

func (n *Notifier) stillActive(entry alarms.HistoryEntry) bool {
	if entry.DefinitionID == nil {
		return false
	}
	for _, alarm := range n.active.ActiveAlarms() {
		if alarm.Definition.ID == *entry.DefinitionID {
			return true
		}
	}
	return false
}

func buildTemplateData(eventType string, entry alarms.HistoryEntry) TemplateData {
	return TemplateData{
		Identifier: entry.Identifier,
		TextKey:    entry.TextKey,
		Priority:   string(entry.Priority),
		RawValue:   entry.RawValue,
		Time:       entry.OccurredAt.UTC().Format(time.RFC3339),
		Status:     entry.Status,
		Severity:   alarms.FooterLevel(entry.Priority),
		Event:      eventType,
		EventLabel: eventLabel(eventType),
		Suggestion: suggestionFor(entry.Priority),
	}
}

func eventLabel(event string) string {
	switch event {
	case alarmapp.EventActive:
		return "Triggered"
	case alarmapp.EventInactive:
		return "Cleared"
	case alarmapp.EventReset:
		return "Reset Requested"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(priority alarms.Priority) string {
	switch priority {
	case alarms.PriorityPrio1, alarms.PriorityPrio2:
		return "Investigate immediately and mitigate risk."
	case alarms.PriorityPrio3, alarms.PriorityWarning:
		return "Verify the condition and take action if needed."
	default:
		return "Monitor the alarm condition."
	}
}

func definitionKey(entry alarms.HistoryEntry) string {
	if entry.DefinitionID != nil {
		return *entry.DefinitionID
	}
	return entry.Identifier
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key, content string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
