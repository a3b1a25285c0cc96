package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a chainable builder for structured log fields, mirroring the
// field names emitted across SIN/IAF/ANC so log aggregation stays uniform.
type Fields map[string]interface{}

// NewFields returns an empty builder.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, resourceName string) Fields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) TenantID(tenantID string) Fields {
	if tenantID != "" {
		f["tenant_id"] = tenantID
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

func (f Fields) TraceID(id string) Fields {
	if id != "" {
		f["trace_id"] = id
	}
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus converts the builder to logrus.Fields.
func (f Fields) ToLogrus() logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DatabaseFields returns standard fields for a repository call.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields returns standard fields for an inbound or outbound HTTP call.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// SignalFields returns standard fields for a SIN pipeline stage.
func SignalFields(signalID, signalType, tenantID string) Fields {
	f := NewFields().Component("sin").TenantID(tenantID)
	f["signal_id"] = signalID
	f["signal_type"] = signalType
	return f
}

// ConnectionFields returns standard fields for an IAF adapter operation.
func ConnectionFields(connectionID, providerID string) Fields {
	f := NewFields().Component("iaf")
	f["connection_id"] = connectionID
	f["provider_id"] = providerID
	return f
}

// AlertFields returns standard fields for an ANC alert operation.
func AlertFields(alertID, dedupKey string, severity string) Fields {
	f := NewFields().Component("anc")
	f["alert_id"] = alertID
	if dedupKey != "" {
		f["dedup_key"] = dedupKey
	}
	if severity != "" {
		f["severity"] = severity
	}
	return f
}

// NotificationFields returns standard fields for a dispatch attempt.
func NotificationFields(notificationID, channel string, attempt int) Fields {
	f := NewFields().Component("anc.dispatch")
	f["notification_id"] = notificationID
	f["channel"] = channel
	f["attempt"] = attempt
	return f
}

// SecurityFields returns standard fields for auth/signature operations.
func SecurityFields(operation, subject string) Fields {
	f := NewFields().Component("security").Operation(operation)
	f["subject"] = subject
	return f
}

// PerformanceFields returns standard fields for a timed operation outcome.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	f := NewFields().Component("performance").Operation(operation).Duration(d)
	f["success"] = success
	return f
}
