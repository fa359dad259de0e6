package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	alarmapp "hmi-core/internal/alarms/application"
	alarms "hmi-core/internal/alarms/domain"
	alarmrepo "hmi-core/internal/alarms/infrastructure/postgres"
	alarminterfaces "hmi-core/internal/alarms/interfaces"
	"hmi-core/internal/eventing"
	"hmi-core/internal/eventing/eventbus"
	eventingrepo "hmi-core/internal/eventing/infrastructure/postgres"
	"hmi-core/internal/ingest/events"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlarmClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "alarm_configs") ||
		!tableExists(db, "alarm_definitions") ||
		!tableExists(db, "alarm_history") ||
		!tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	configID := "config-it-boiler1"
	identifier := "it-boiler1"

	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_history")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_definitions WHERE config_id = $1", configID)
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_configs WHERE id = $1", configID)

	if _, err := db.ExecContext(ctx, `
INSERT INTO alarm_configs (id, identifier)
VALUES ($1, $2)`, configID, identifier); err != nil {
		t.Fatalf("insert config: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
INSERT INTO alarm_definitions (id, config_id, bit_number, text_key, priority, enabled)
VALUES ($1, $2, $3, $4, $5, $6)`,
		"def-it-overtemp", configID, 3, "boiler.overtemp", string(alarms.PriorityPrio1), true); err != nil {
		t.Fatalf("insert definition: %v", err)
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.RawValueReceived{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	configRepo := alarmrepo.NewConfigRepository(db)
	historyRepo := alarmrepo.NewHistoryRepository(db)
	engine, err := alarmapp.NewEngine(configRepo, historyRepo)
	if err != nil {
		t.Fatalf("new alarm engine: %v", err)
	}
	if err := engine.LoadConfiguration(ctx); err != nil {
		t.Fatalf("load configuration: %v", err)
	}

	consumer, err := alarminterfaces.NewRawValueReceivedConsumer(engine)
	if err != nil {
		t.Fatalf("new alarm consumer: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.RawValueReceived](), "alarms.raw_value", func(ctx context.Context, event any) error {
		evt, ok := event.(events.RawValueReceived)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return consumer.Consume(ctx, evt)
	}, processedStore)

	start := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	high := events.RawValueReceived{Identifier: identifier, RawValue: 1 << 3, OccurredAt: start}
	if err := publisher.Publish(ctx, high); err != nil {
		t.Fatalf("publish high: %v", err)
	}
	_ = dispatcher.Dispatch(ctx, 10)

	active := engine.ActiveAlarms()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alarm, got %d", len(active))
	}
	if active[0].Definition.ID != "def-it-overtemp" {
		t.Fatalf("unexpected active definition %s", active[0].Definition.ID)
	}
	if engine.FooterSeverity() != 3 {
		t.Fatalf("expected footer severity 3, got %d", engine.FooterSeverity())
	}

	low := events.RawValueReceived{Identifier: identifier, RawValue: 0, OccurredAt: start.Add(time.Minute)}
	if err := publisher.Publish(ctx, low); err != nil {
		t.Fatalf("publish clear: %v", err)
	}
	_ = dispatcher.Dispatch(ctx, 10)

	if got := len(engine.ActiveAlarms()); got != 0 {
		t.Fatalf("expected cleared active set, got %d", got)
	}
	if engine.FooterSeverity() != 1 {
		t.Fatalf("expected footer severity 1, got %d", engine.FooterSeverity())
	}

	entries, err := engine.History(ctx, 10, 0)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].Status != alarms.StatusInactive || entries[1].Status != alarms.StatusActive {
		t.Fatalf("unexpected history order: %s then %s", entries[0].Status, entries[1].Status)
	}

	// Replay of the same word must not produce new history rows.
	if err := publisher.Publish(ctx, low); err != nil {
		t.Fatalf("publish replay: %v", err)
	}
	_ = dispatcher.Dispatch(ctx, 10)
	entries, err = engine.History(ctx, 10, 0)
	if err != nil {
		t.Fatalf("load history after replay: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected replay to be idempotent, got %d entries", len(entries))
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
