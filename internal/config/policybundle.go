package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// RetryPolicy describes the retry shape for a channel or severity tier.
type RetryPolicy struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	BackoffStrategy  string  `yaml:"backoff_strategy"`
	BackoffIntervals []int   `yaml:"backoff_intervals"`
}

// EscalationStep is one row of an escalation policy (§3 PolicyBundle).
type EscalationStep struct {
	Order         int      `yaml:"order"`
	DelaySeconds  int      `yaml:"delay_seconds"`
	Channels      []string `yaml:"channels"`
	TargetGroupID string   `yaml:"target_group_id,omitempty"`
}

// EscalationPolicy is a named, ordered list of steps. ContinueAfterAck
// lets pending steps keep firing after the alert is acknowledged; the
// default (false) halts escalation on acknowledgment.
type EscalationPolicy struct {
	ID               string           `yaml:"id"`
	ContinueAfterAck bool             `yaml:"continue_after_ack,omitempty"`
	Steps            []EscalationStep `yaml:"steps"`
}

// MaintenanceWindow suppresses dispatch for a component/severity pair.
type MaintenanceWindow struct {
	ComponentID string `yaml:"component_id"`
	Severity    string `yaml:"severity"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
}

// RateLimit bounds notification volume over a window.
type RateLimit struct {
	MaxNotifications int `yaml:"max_notifications"`
	WindowMinutes    int `yaml:"window_minutes"`
}

// CorrelationRule matches an Alert to an open Incident. Conditions is a
// list of field names ({tenant_id, plane, severity, component_id}); a rule
// matches when the alert and the candidate incident agree on every named
// field. WindowMinutes, when set, narrows the rule to incidents opened
// within its own window, tighter than the global correlation window.
type CorrelationRule struct {
	Conditions      []string `yaml:"conditions"`
	DependencyMatch string   `yaml:"dependency_match,omitempty"`
	WindowMinutes   int      `yaml:"window_minutes,omitempty"`
}

// PolicyBundle is the read-only-to-the-core configuration enumerated in
// spec §3, reloaded atomically from a local YAML file or a config service.
type PolicyBundle struct {
	Dedup struct {
		DefaultWindowMinutes int            `yaml:"defaults"`
		ByCategory           map[string]int `yaml:"by_category"`
		BySeverity           map[string]int `yaml:"by_severity"`
	} `yaml:"dedup"`

	Correlation struct {
		WindowMinutes int               `yaml:"window_minutes"`
		Rules         []CorrelationRule `yaml:"rules"`
	} `yaml:"correlation"`

	Routing struct {
		Defaults        map[string][]string            `yaml:"defaults"`
		TenantOverrides map[string]map[string][]string `yaml:"tenant_overrides"`
	} `yaml:"routing"`

	Escalation struct {
		Policies []EscalationPolicy `yaml:"policies"`
	} `yaml:"escalation"`

	Fatigue struct {
		RateLimits struct {
			PerAlert RateLimit `yaml:"per_alert"`
			PerUser  RateLimit `yaml:"per_user"`
		} `yaml:"rate_limits"`
		Maintenance []MaintenanceWindow `yaml:"maintenance"`
		Suppression struct {
			SuppressFollowupDuringIncident bool `yaml:"suppress_followup_during_incident"`
			SuppressWindowMinutes          int  `yaml:"suppress_window_minutes"`
		} `yaml:"suppression"`
	} `yaml:"fatigue"`

	Retry struct {
		Defaults  RetryPolicy            `yaml:"defaults"`
		ByChannel map[string]RetryPolicy `yaml:"by_channel"`
		BySeverity map[string]RetryPolicy `yaml:"by_severity"`
	} `yaml:"retry"`

	Fallback struct {
		Defaults   []string            `yaml:"defaults"`
		BySeverity map[string][]string `yaml:"by_severity"`
	} `yaml:"fallback"`
}

func parsePolicyBundle(data []byte) (*PolicyBundle, error) {
	bundle := &PolicyBundle{}
	if err := yaml.Unmarshal(data, bundle); err != nil {
		return nil, fmt.Errorf("failed to parse policy bundle: %w", err)
	}
	return bundle, nil
}

// PolicyStore holds the current PolicyBundle behind an atomic pointer so
// readers never block a concurrent reload (spec §5: "single-writer/
// multi-reader lock").
type PolicyStore struct {
	value  atomic.Pointer[PolicyBundle]
	path   string
	logger *logrus.Logger
	watcher *fsnotify.Watcher
}

// LoadPolicyStore reads path once and returns a store whose Current()
// reflects the just-loaded bundle.
func LoadPolicyStore(path string, logger *logrus.Logger) (*PolicyStore, error) {
	store := &PolicyStore{path: path, logger: logger}
	if err := store.reload(); err != nil {
		return nil, err
	}
	return store, nil
}

// Current returns the latest successfully loaded bundle.
func (s *PolicyStore) Current() *PolicyBundle {
	return s.value.Load()
}

func (s *PolicyStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read policy bundle: %w", err)
	}
	bundle, err := parsePolicyBundle(data)
	if err != nil {
		return err
	}
	s.value.Store(bundle)
	return nil
}

// Refresh re-reads the bundle file on demand (the "refresh endpoint" spec
// §5 calls for). Logs and keeps the previous bundle on failure rather than
// leaving readers with a nil pointer.
func (s *PolicyStore) Refresh() error {
	if err := s.reload(); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("policy bundle refresh failed; keeping previous bundle")
		}
		return err
	}
	return nil
}

// WatchForChanges starts an fsnotify watcher that reloads the bundle on
// every write to its file, the hot-reload mechanism the teacher's config
// layer uses for its action/filter YAML. Call Close to stop watching.
func (s *PolicyStore) WatchForChanges() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy bundle watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy bundle: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.reload(); err != nil && s.logger != nil {
					s.logger.WithError(err).Error("policy bundle hot reload failed")
				} else if s.logger != nil {
					s.logger.Info("policy bundle reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if s.logger != nil {
					s.logger.WithError(err).Error("policy bundle watcher error")
				}
			}
		}
	}()

	return nil
}

// Close stops the file watcher, if one was started.
func (s *PolicyStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
