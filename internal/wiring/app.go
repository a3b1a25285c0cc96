package wiring

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/evplatform/eventplane/internal/api"
	"github.com/evplatform/eventplane/internal/authn"
	"github.com/evplatform/eventplane/internal/config"
	"github.com/evplatform/eventplane/internal/logging"
	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/anc/delivery"
	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/iaf"
	"github.com/evplatform/eventplane/pkg/metrics"
	"github.com/evplatform/eventplane/pkg/sin"
	"github.com/evplatform/eventplane/pkg/storage"

	_ "github.com/evplatform/eventplane/pkg/iaf/adapters/github"
	_ "github.com/evplatform/eventplane/pkg/iaf/adapters/jira"
)

// App bundles every long-lived collaborator the eventplane process holds,
// the composition root cmd/eventplane's subcommands build and shut down.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       *storage.Config
	SQLX     *sqlx.DB
	Policies *config.PolicyStore
	Metrics  *metrics.Server
	Redis    *redis.Client

	Pipeline       *sin.Pipeline
	Registry       *iaf.Registry
	Breakers       *iaf.Manager
	WebhookDeps    *iaf.WebhookHandlerDeps
	ActionExecutor *iaf.ActionExecutor
	Poller         *iaf.Poller
	AlertCore      *anc.Core
	Verifier       *authn.Verifier

	Handler *api.Handler
}

// Build wires every collaborator from cfg, connecting to Postgres and
// Redis, loading the policy bundle and constructing the SIN/IAF/ANC cores
// the same way the teacher's server command assembles its dependency
// graph before starting to serve traffic.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	dbCfg := storage.DefaultConfig()
	dbCfg.LoadFromEnv()
	db, err := storage.Connect(dbCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := storage.Migrate(db.DB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	policies, err := config.LoadPolicyStore(cfg.PolicyBundlePath, log)
	if err != nil {
		return nil, fmt.Errorf("load policy bundle: %w", err)
	}
	if err := policies.WatchForChanges(); err != nil {
		log.WithError(err).Warn("policy bundle hot-reload watch failed to start")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddrFromEnv()})

	httpClient := NewHTTPClient(cfg.HTTP.Timeout)

	producerRepo := storage.NewProducerRepo(db)
	contractRepo := storage.NewContractRepo(db)
	governanceRepo := storage.NewGovernanceRepo(db)
	dlqRepo := storage.NewDLQRepo(db)
	connectionRepo := storage.NewConnectionRepo(db)
	actionRepo := storage.NewActionRepo(db)
	alertRepo := storage.NewAlertRepo(db)
	notificationRepo := storage.NewNotificationRepo(db)
	escalationRepo := storage.NewEscalationRepo(db)
	preferenceRepo := storage.NewPreferenceRepo(db)
	archiveRepo := storage.NewSignalArchiveRepo(db)

	dedupTTL := time.Duration(cfg.Dedup.WindowHours) * time.Hour
	dedupe := envelope.NewDedupeStore(redisClient, dedupTTL)
	sequence := envelope.NewSequenceTracker(redisClient)
	retries := envelope.NewRetryCounter(redisClient, dedupTTL)

	secretStore := iaf.NewSecretTTLCache(&SecretStore{Client: httpClient, BaseURL: cfg.Services.KMSServiceURL}, 5*time.Minute)
	registry := iaf.NewRegistry(&ConnectionStore{Repo: connectionRepo}, secretStore, httpClient)
	breakers := iaf.NewManager(cfg.CircuitBreaker)

	budget := &BudgetChecker{Client: httpClient, BaseURL: cfg.Services.BudgetServiceURL, Logger: log}
	receipts := &ReceiptSink{Client: httpClient, BaseURL: cfg.Services.ERISServiceURL, Logger: log}
	identity := &IdentityResolver{Client: httpClient, BaseURL: cfg.Services.IAMServiceURL}

	verifier := authn.NewVerifier([]byte(cfg.Auth.JWTSigningKey))

	stream := anc.NewBroker(256, 30*time.Second)

	alertCore := &anc.Core{
		Alerts:        &AlertStore{Repo: alertRepo},
		Incidents:     &IncidentStore{Repo: alertRepo},
		Notifications: &NotificationStore{Repo: notificationRepo},
		Escalations:   &EscalationStore{Repo: escalationRepo},
		Preferences:   &PreferenceStore{Repo: preferenceRepo},
		Identity:      identity,
		Senders:       buildSenders(httpClient, cfg),
		Policies:      policies,
		Stream:        stream,
		Logger:        log,
	}

	pipeline := &sin.Pipeline{
		Producers:  &ProducerStore{Repo: producerRepo},
		Contracts:  &ContractStore{Repo: contractRepo},
		Dedupe:     dedupe,
		Sequence:   sequence,
		Retries:    retries,
		DLQ:        &DLQSink{Repo: dlqRepo},
		Consumer:   &AlertingConsumer{Core: alertCore, Archive: archiveRepo, Logger: log},
		Governance: &GovernanceStore{Repo: governanceRepo},
		Rules:      defaultRoutingRules(),
		Logger:     log,
	}

	submitter := &SignalSubmitter{Pipeline: pipeline}

	mapper := iaf.NewSignalMapper(defaultProviderMappings())

	webhookDeps := &iaf.WebhookHandlerDeps{
		Webhooks:            &WebhookStore{Repo: connectionRepo},
		Secrets:             secretStore,
		Signatures:          iaf.NewSignatureCache(redisClient, time.Duration(cfg.Webhook.SignatureCacheTTLSec)*time.Second),
		Registry:            registry,
		Mapper:              mapper,
		Submitter:           submitter,
		TimestampTolerance:  time.Duration(cfg.Webhook.TimestampToleranceSec) * time.Second,
		FutureSkewTolerance: 60 * time.Second,
	}

	actionExecutor := &iaf.ActionExecutor{
		Registry: registry,
		Breakers: breakers,
		Budget:   budget,
		Actions:  &ActionStore{Repo: actionRepo},
		Receipts: receipts,
	}

	poller := &iaf.Poller{
		Connections: &ActiveConnectionLister{Repo: connectionRepo},
		Cursors:     &CursorStore{Repo: connectionRepo},
		Budget:      budget,
		Registry:    registry,
		Breakers:    breakers,
		Mapper:      mapper,
		Submitter:   submitter,
		Receipts:    receipts,
		Logger:      log,
		Concurrency: 16,
	}

	handler := api.NewHandler(
		api.WithPipeline(pipeline),
		api.WithDLQRepo(dlqRepo),
		api.WithProducerRepo(producerRepo),
		api.WithConnectionRepo(connectionRepo),
		api.WithRegistry(registry),
		api.WithBreakerManager(breakers),
		api.WithWebhookDeps(webhookDeps),
		api.WithActionExecutor(actionExecutor),
		api.WithAlertCore(alertCore),
		api.WithAlertRepo(alertRepo),
		api.WithPreferenceRepo(preferenceRepo),
		api.WithLogger(log),
	)

	return &App{
		Config:         cfg,
		Logger:         log,
		DB:             dbCfg,
		SQLX:           db,
		Policies:       policies,
		Metrics:        metrics.NewServer(cfg.Server.MetricsPort, log),
		Redis:          redisClient,
		Pipeline:       pipeline,
		Registry:       registry,
		Breakers:       breakers,
		WebhookDeps:    webhookDeps,
		ActionExecutor: actionExecutor,
		Poller:         poller,
		AlertCore:      alertCore,
		Verifier:       verifier,
		Handler:        handler,
	}, nil
}

// Close releases every collaborator App holds that needs an orderly
// shutdown, tolerating a nil Policies/Redis for partially-built Apps.
func (a *App) Close(ctx context.Context) {
	if a.Metrics != nil {
		_ = a.Metrics.Stop(ctx)
	}
	if a.Policies != nil {
		_ = a.Policies.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.SQLX != nil {
		_ = a.SQLX.Close()
	}
}

func redisAddrFromEnv() string {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		return v
	}
	return "localhost:6379"
}

// buildSenders wires the three channels pkg/anc/delivery implements.
// webhook targets are already absolute URLs in this deployment, so its
// resolveURL is the identity function.
func buildSenders(httpClient *http.Client, cfg *config.Config) map[string]anc.Sender {
	fileDir := os.Getenv("NOTIFICATION_FILE_DIR")
	if fileDir == "" {
		fileDir = "data/notifications"
	}
	fileSender := delivery.NewFileSender(fileDir)
	return map[string]anc.Sender{
		"slack":   delivery.NewSlackSender(os.Getenv("SLACK_BOT_TOKEN")),
		"webhook": delivery.NewWebhookSender(httpClient, func(target string) (string, error) { return target, nil }),
		"file":    fileSender,
		// No email/SMS/voice provider is integrated yet; these channels
		// record evidence files so dispatch/fallback semantics still hold.
		"email": fileSender,
		"sms":   fileSender,
		"voice": fileSender,
	}
}

// defaultRoutingRules fans every event-kind signal out to realtime
// detection in addition to the evidence store, mirroring the teacher's
// "always alert, always archive" default until a tenant narrows it via
// governance configuration.
func defaultRoutingRules() []sin.RoutingRule {
	return []sin.RoutingRule{
		{SignalKind: envelope.SignalKindEvent, Classes: []sin.RoutingClass{sin.RoutingRealtimeDetection, sin.RoutingEvidenceStore}},
		{SignalKind: envelope.SignalKindMetric, Classes: []sin.RoutingClass{sin.RoutingAnalyticsStore}},
		{SignalKind: envelope.SignalKindLog, Classes: []sin.RoutingClass{sin.RoutingEvidenceStore}},
		{SignalKind: envelope.SignalKindTrace, Classes: []sin.RoutingClass{sin.RoutingAnalyticsStore}},
	}
}

// defaultProviderMappings hand-builds the github/jira event_type tables
// original_source's SignalMapper.PROVIDER_TYPE_MAPPINGS carries, since no
// canonical table is wired through either adapter package.
func defaultProviderMappings() map[string]iaf.ProviderTypeMapping {
	return map[string]iaf.ProviderTypeMapping{
		"github": {
			Exact: map[string]iaf.CanonicalType{
				"pull_request.opened":   {SignalType: "pr_opened", SignalKind: envelope.SignalKindEvent},
				"pull_request.closed":   {SignalType: "pr_closed", SignalKind: envelope.SignalKindEvent},
				"pull_request.merged":   {SignalType: "pr_merged", SignalKind: envelope.SignalKindEvent},
				"pull_request.reopened": {SignalType: "pr_reopened", SignalKind: envelope.SignalKindEvent},
				"push":                  {SignalType: "commit_pushed", SignalKind: envelope.SignalKindEvent},
				"issues.opened":         {SignalType: "issue_created", SignalKind: envelope.SignalKindEvent},
				"issues.closed":         {SignalType: "issue_closed", SignalKind: envelope.SignalKindEvent},
				"issue_comment.created": {SignalType: "comment_added", SignalKind: envelope.SignalKindEvent},
				"workflow_run.completed": {SignalType: "ci_run_completed", SignalKind: envelope.SignalKindEvent},
			},
			Prefixes: map[string]iaf.CanonicalType{
				"pull_request_review": {SignalType: "pr_reviewed", SignalKind: envelope.SignalKindEvent},
				"deployment":          {SignalType: "deployment_event", SignalKind: envelope.SignalKindEvent},
			},
		},
		"jira": {
			Exact: map[string]iaf.CanonicalType{
				"jira:issue_created": {SignalType: "issue_created", SignalKind: envelope.SignalKindEvent},
				"jira:issue_updated": {SignalType: "issue_updated", SignalKind: envelope.SignalKindEvent},
				"jira:issue_deleted": {SignalType: "issue_deleted", SignalKind: envelope.SignalKindEvent},
				"comment_created":    {SignalType: "comment_added", SignalKind: envelope.SignalKindEvent},
			},
			Prefixes: map[string]iaf.CanonicalType{
				"sprint_": {SignalType: "sprint_changed", SignalKind: envelope.SignalKindEvent},
			},
		},
	}
}
