package anc

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evplatform/eventplane/internal/config"
)

// Core wires together the collaborators every ANC stage needs: stores,
// the policy bundle, identity resolution, channel senders and the stream
// broker.
type Core struct {
	Alerts        AlertStore
	Incidents     IncidentStore
	Notifications NotificationStore
	Escalations   EscalationStore
	Preferences   PreferenceStore
	Identity      IdentityResolver
	Senders       map[string]Sender
	Policies      *config.PolicyStore
	Stream        *Broker
	Logger        *logrus.Logger
	Now           func() time.Time
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Core) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}
