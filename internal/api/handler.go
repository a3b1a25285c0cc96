package api

import (
	"github.com/sirupsen/logrus"

	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/iaf"
	"github.com/evplatform/eventplane/pkg/sin"
	"github.com/evplatform/eventplane/pkg/storage"
)

// Handler bundles every collaborator the HTTP surface calls into, built
// with functional options the way the teacher's datastorage server builds
// its handler from a *sql.DB plus repository overrides.
type Handler struct {
	pipeline        *sin.Pipeline
	dlq             *storage.DLQRepo
	producers       *storage.ProducerRepo
	connections     *storage.ConnectionRepo
	registry        *iaf.Registry
	breakers        *iaf.Manager
	webhookDeps     *iaf.WebhookHandlerDeps
	actionExecutor  *iaf.ActionExecutor
	alerts          *anc.Core
	alertRepoRef    *storage.AlertRepo
	preferences     *storage.PreferenceRepo
	log             *logrus.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithPipeline(p *sin.Pipeline) Option { return func(h *Handler) { h.pipeline = p } }
func WithDLQRepo(r *storage.DLQRepo) Option { return func(h *Handler) { h.dlq = r } }
func WithProducerRepo(r *storage.ProducerRepo) Option { return func(h *Handler) { h.producers = r } }
func WithConnectionRepo(r *storage.ConnectionRepo) Option { return func(h *Handler) { h.connections = r } }
func WithRegistry(r *iaf.Registry) Option { return func(h *Handler) { h.registry = r } }
func WithBreakerManager(m *iaf.Manager) Option { return func(h *Handler) { h.breakers = m } }
func WithWebhookDeps(d *iaf.WebhookHandlerDeps) Option { return func(h *Handler) { h.webhookDeps = d } }
func WithActionExecutor(e *iaf.ActionExecutor) Option { return func(h *Handler) { h.actionExecutor = e } }
func WithAlertCore(c *anc.Core) Option { return func(h *Handler) { h.alerts = c } }
func WithAlertRepo(r *storage.AlertRepo) Option { return func(h *Handler) { h.alertRepoRef = r } }
func WithPreferenceRepo(r *storage.PreferenceRepo) Option { return func(h *Handler) { h.preferences = r } }
func WithLogger(l *logrus.Logger) Option { return func(h *Handler) { h.log = l } }

// NewHandler builds a Handler from opts, defaulting to a standard logger
// when none is supplied.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) logger() *logrus.Logger {
	if h.log != nil {
		return h.log
	}
	return logrus.StandardLogger()
}
