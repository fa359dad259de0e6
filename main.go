package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	alarmapp "hmi-core/internal/alarms/application"
	alarmrepo "hmi-core/internal/alarms/infrastructure/postgres"
	alarminterfaces "hmi-core/internal/alarms/interfaces"
	alarmhttp "hmi-core/internal/alarms/interfaces/http"
	alarmnotify "hmi-core/internal/alarms/notify"
	"hmi-core/internal/audit"
	"hmi-core/internal/auth"
	"hmi-core/internal/eventing"
	"hmi-core/internal/eventing/eventbus"
	eventingrepo "hmi-core/internal/eventing/infrastructure/postgres"
	"hmi-core/internal/gateway"
	"hmi-core/internal/ingest"
	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
	ruleapp "hmi-core/internal/rules/application"
	rules "hmi-core/internal/rules/domain"
	rulerepo "hmi-core/internal/rules/infrastructure/postgres"
	ruleinterfaces "hmi-core/internal/rules/interfaces"
	rulehttp "hmi-core/internal/rules/interfaces/http"
	variablerepo "hmi-core/internal/variables/infrastructure/postgres"
	variablehttp "hmi-core/internal/variables/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.RawValueReceived{}, events.VariableChanged{}, events.AcknowledgeRequested{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	alarmConfigRepo := alarmrepo.NewConfigRepository(db)
	alarmHistoryRepo := alarmrepo.NewHistoryRepository(db)
	alarmBroker := alarmhttp.NewSSEBroker()

	variableRepo := variablerepo.NewVariableRepository(db)
	loggingRepo := variablerepo.NewLoggingRepository(db)

	var gatewayClient *gateway.Client
	if cfg.GatewayBaseURL != "" {
		gatewayClient, err = gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayToken)
		if err != nil {
			logger.Fatalf("gateway client error: %v", err)
		}
	}

	// The webhook notifier reads the active set from the engine, so it
	// joins the multi-notifier after the engine exists.
	alarmNotifier := alarmnotify.NewMultiNotifier(alarmBroker)
	alarmEngine, err := alarmapp.NewEngine(
		alarmConfigRepo,
		alarmHistoryRepo,
		alarmapp.WithNotifier(alarmNotifier),
		alarmapp.WithAckPublisher(publisher),
		alarmapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("alarm engine error: %v", err)
	}
	if cfg.AlarmWebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(cfg.AlarmWebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		tpl, err := alarmnotify.NewTemplate(cfg.AlarmNotifyTemplate)
		if err != nil {
			logger.Fatalf("alarm template error: %v", err)
		}
		webhookNotifier, err := alarmnotify.NewNotifier(alarmEngine, channel, tpl,
			alarmnotify.WithEscalation(cfg.AlarmEscalationAfter),
			alarmnotify.WithCooldown(cfg.AlarmNotifyCooldown),
			alarmnotify.WithDedupeWindow(cfg.AlarmNotifyDedupeWindow),
			alarmnotify.WithRequestTimeout(cfg.AlarmNotifyTimeout),
		)
		if err != nil {
			logger.Fatalf("alarm notifier error: %v", err)
		}
		alarmNotifier.Add(webhookNotifier)
	}
	if err := alarmEngine.LoadConfiguration(context.Background()); err != nil {
		logger.Printf("alarm configuration load error: %v", err)
	}

	alarmConsumer, err := alarminterfaces.NewRawValueReceivedConsumer(alarmEngine)
	if err != nil {
		logger.Fatalf("alarm consumer error: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.RawValueReceived](), "alarms.raw_value", func(ctx context.Context, event any) error {
		evt, ok := event.(events.RawValueReceived)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return alarmConsumer.Consume(ctx, evt)
	}, processedStore)

	ruleRepo := rulerepo.NewRuleRepository(db)
	ruleEngine, err := ruleapp.NewEngine(ruleRepo, variableRepo, ruleapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("rule engine error: %v", err)
	}
	var valueWriter ruleapp.ValueWriter = variableRepo
	if gatewayClient != nil {
		valueWriter = teeValueWriter{primary: variableRepo, gateway: gatewayClient, logger: logger}
	}
	registerExecutors(ruleEngine, valueWriter, variableRepo, loggingRepo, publisher, logger)
	if err := ruleEngine.LoadRules(context.Background()); err != nil {
		logger.Printf("rule load error: %v", err)
	}

	ruleConsumer, err := ruleinterfaces.NewVariableChangedConsumer(ruleEngine)
	if err != nil {
		logger.Fatalf("rule consumer error: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.VariableChanged](), "rules.variable_changed", func(ctx context.Context, event any) error {
		evt, ok := event.(events.VariableChanged)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return ruleConsumer.Consume(ctx, evt)
	}, processedStore)
	if gatewayClient != nil {
		ackForwarder, err := gateway.NewAckForwarder(gatewayClient, logger)
		if err != nil {
			logger.Fatalf("ack forwarder error: %v", err)
		}
		eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.AcknowledgeRequested](), "gateway.ack", ackForwarder.HandleAcknowledgeRequested, processedStore)
	} else {
		eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.AcknowledgeRequested](), "alarms.ack_log", func(ctx context.Context, event any) error {
			evt, ok := event.(events.AcknowledgeRequested)
			if !ok {
				return eventbus.ErrInvalidEventType
			}
			logger.Printf("alarm acknowledge requested: by=%s at=%s", evt.RequestedBy, evt.OccurredAt.Format(time.RFC3339))
			return nil
		}, processedStore)
	}

	ingestCfg, err := ingest.LoadConfig()
	if err != nil {
		logger.Fatalf("ingest config error: %v", err)
	}
	ingestHandler, err := ingest.NewHTTPHandler(publisher, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	if ingestCfg.Redis.Enabled {
		redisSub, err := ingest.NewRedisSubscriber(ingestCfg.Redis, publisher, logger)
		if err != nil {
			logger.Fatalf("redis subscriber error: %v", err)
		}
		go func() {
			if err := redisSub.Run(context.Background()); err != nil {
				logger.Printf("redis subscriber stopped: %v", err)
			}
		}()
	}
	topicStore := ingest.NewTopicStore()
	if ingestCfg.MQTT.Enabled {
		mqttSub, err := ingest.NewMQTTSubscriber(ingestCfg.MQTT, publisher, topicStore, logger)
		if err != nil {
			logger.Fatalf("mqtt subscriber error: %v", err)
		}
		if err := mqttSub.Start(context.Background()); err != nil {
			logger.Fatalf("mqtt subscriber error: %v", err)
		}
	}

	alarmHandler, err := alarmhttp.NewHandler(alarmEngine)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}
	ruleHandler, err := rulehttp.NewHandler(ruleEngine)
	if err != nil {
		logger.Fatalf("rule handler error: %v", err)
	}
	variableHandler, err := variablehttp.NewHandler(variableRepo, loggingRepo)
	if err != nil {
		logger.Fatalf("variable handler error: %v", err)
	}
	variableHandler.WithLabelSources(variableRepo, topicStore)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	if ingestCfg.HTTP.Enabled {
		mux.Handle("/ingest/v1/raw", ingestAuth.Wrap(ingestHandler))
		mux.Handle("/ingest/v1/variables", ingestAuth.Wrap(ingestHandler))
	}
	mux.Handle("/api/v1/alarms/stream", alarmhttp.NewStreamHandler(alarmBroker))
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/rules", ruleHandler)
	mux.Handle("/api/v1/variables", variableHandler)
	mux.Handle("/api/v1/logging-topics", variableHandler)
	mux.Handle("/api/v1/labels/resolve", variableHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := loggingMiddleware(authMiddleware.Wrap(auditMiddleware(mux, auditRepo, logger)), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func registerExecutors(engine *ruleapp.Engine, values ruleapp.ValueWriter, variables *variablerepo.VariableRepository, logging *variablerepo.LoggingRepository, publisher *eventing.Publisher, logger *log.Logger) {
	visibility, err := ruleapp.NewVisibilityExecutor(variables)
	if err != nil {
		logger.Fatalf("visibility executor error: %v", err)
	}
	loggingExec, err := ruleapp.NewLoggingExecutor(logging)
	if err != nil {
		logger.Fatalf("logging executor error: %v", err)
	}
	setValue, err := ruleapp.NewSetValueExecutor(values, publisher)
	if err != nil {
		logger.Fatalf("set value executor error: %v", err)
	}
	engine.RegisterExecutor(rules.ActionSetVisibility, visibility)
	engine.RegisterExecutor(rules.ActionSetLoggingEnabled, loggingExec)
	engine.RegisterExecutor(rules.ActionSetValue, setValue)
}

type config struct {
	DatabaseURL             string
	HTTPAddr                string
	AlarmWebhookURL         string
	AlarmNotifyTemplate     string
	AlarmEscalationAfter    time.Duration
	AlarmNotifyCooldown     time.Duration
	AlarmNotifyDedupeWindow time.Duration
	AlarmNotifyTimeout      time.Duration
	GatewayBaseURL          string
	GatewayToken            string
	JWTSecret               string
	IngestSecret            string
	IngestSkewSeconds       int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		AlarmWebhookURL:         getenvDefault("ALARM_WEBHOOK_URL", ""),
		AlarmNotifyTemplate:     getenvDefault("ALARM_NOTIFY_TEMPLATE", ""),
		AlarmEscalationAfter:    getenvDuration("ALARM_ESCALATION_AFTER", 0),
		AlarmNotifyCooldown:     getenvDuration("ALARM_NOTIFY_COOLDOWN", 0),
		AlarmNotifyDedupeWindow: getenvDuration("ALARM_NOTIFY_DEDUP_WINDOW", 0),
		AlarmNotifyTimeout:      getenvDuration("ALARM_NOTIFY_TIMEOUT", 5*time.Second),
		GatewayBaseURL:          getenvDefault("GATEWAY_BASE_URL", ""),
		GatewayToken:            getenvDefault("GATEWAY_TOKEN", ""),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:            getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:       getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func auditMiddleware(next http.Handler, repo *audit.Repository, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if repo == nil {
			return
		}
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			return
		}
		meta, _ := json.Marshal(map[string]string{"method": r.Method, "path": r.URL.Path})
		entry := audit.Entry{
			Actor:        auth.SubjectFromContext(r.Context()),
			Role:         string(auth.RoleFromContext(r.Context())),
			Action:       r.Method + " " + r.URL.Path,
			ResourceType: resourceTypeFromPath(r.URL.Path),
			Metadata:     meta,
			IP:           audit.ClientIP(r),
			UserAgent:    r.UserAgent(),
		}
		if err := repo.Log(r.Context(), entry); err != nil {
			logger.Printf("audit log error: %v", err)
		}
	})
}

func resourceTypeFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	if idx := strings.Index(trimmed, "/"); idx > 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// teeValueWriter stores the value locally and pushes it to the gateway.
// A gateway push failure is logged but does not fail the action; the
// stored value is authoritative.
type teeValueWriter struct {
	primary ruleapp.ValueWriter
	gateway *gateway.Client
	logger  *log.Logger
}

func (t teeValueWriter) SetValue(ctx context.Context, name, value string) error {
	if err := t.primary.SetValue(ctx, name, value); err != nil {
		return err
	}
	if err := t.gateway.WriteVariable(ctx, name, value); err != nil {
		t.logger.Printf("gateway variable write error: name=%s err=%v", name, err)
	}
	return nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
