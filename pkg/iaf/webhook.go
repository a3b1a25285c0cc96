package iaf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// WebhookRegistration is the subset of storage.WebhookRegistration the
// webhook handler needs. spec §9 resolves the Open Question on which id is
// the public webhook token in favor of registration_id, never raw
// connection_id, "to reduce guessability" (spec §4.2 step 1).
type WebhookRegistration struct {
	RegistrationID   string
	ConnectionID     string
	SecretRef        string
	EventsSubscribed []string
	Status           string
}

// WebhookStore resolves a WebhookRegistration by its public token.
type WebhookStore interface {
	GetByRegistrationID(ctx context.Context, registrationID string) (*WebhookRegistration, error)
}

// SignatureCache is the shared key/value store backing spec §4.2's
// "nonce/signature cache": rejects a (connection_id, signature_header,
// payload) triple seen again within the signature TTL.
type SignatureCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSignatureCache builds a cache backed by client with the given TTL
// (spec §6 default: SIGNATURE_CACHE_TTL_SEC=3600).
func NewSignatureCache(client *redis.Client, ttl time.Duration) *SignatureCache {
	return &SignatureCache{client: client, ttl: ttl}
}

// computeSignatureHash mirrors original_source's
// WebhookReplayProtection._compute_signature_hash:
// sha256(connection_id ‖ ":" ‖ signature_header ‖ ":" ‖ payload).
func computeSignatureHash(connectionID, signatureHeader string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(connectionID))
	h.Write([]byte(":"))
	h.Write([]byte(signatureHeader))
	h.Write([]byte(":"))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// CheckAndStore reports whether (connectionID, signatureHeader, payload)
// has been seen within the TTL window; if not, it records it so a replay
// is caught on the next attempt.
func (c *SignatureCache) CheckAndStore(ctx context.Context, connectionID, signatureHeader string, payload []byte) (replay bool, err error) {
	key := "webhook-sig:" + computeSignatureHash(connectionID, signatureHeader, payload)
	ok, err := c.client.SetNX(ctx, key, "1", c.ttl).Result()
	if err != nil {
		return false, apperrors.NewDatabaseError("check webhook signature cache", err)
	}
	return !ok, nil
}

// WebhookHandlerDeps are the collaborators the webhook handler needs to
// resolve a connection, fetch its secret, verify the request and submit
// the mapped signal (spec §4.2's full inbound webhook flow).
type WebhookHandlerDeps struct {
	Webhooks         WebhookStore
	Secrets          SecretStore
	Signatures       *SignatureCache
	Registry         *Registry
	Mapper           *SignalMapper
	Submitter        SignalSubmitter
	TimestampTolerance time.Duration // spec default 300s
	FutureSkewTolerance time.Duration // spec default 60s
	Now              func() time.Time
}

func (d *WebhookHandlerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// HandleWebhook implements spec §4.2's webhook ingestion steps 1-6 for one
// inbound HTTP request: resolve the connection by registration_id, fetch
// its secret, verify the provider-specific signature, gate on event
// timestamp age, check the replay cache, map to a SignalEnvelope and
// submit it to SIN.
func (d *WebhookHandlerDeps) HandleWebhook(ctx context.Context, providerID, registrationID string, payload []byte, headers http.Header) error {
	reg, err := d.Webhooks.GetByRegistrationID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.Status != "active" {
		return apperrors.Newf(apperrors.ErrorTypeValidation, "webhook registration %s is not active", registrationID)
	}

	secret, err := d.Secrets.Resolve(ctx, reg.SecretRef)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeAuth, "failed to resolve webhook secret")
	}

	adapter, err := d.Registry.Get(ctx, reg.ConnectionID)
	if err != nil {
		return err
	}

	verifier, ok := adapter.(SignatureVerifier)
	if ok {
		if err := verifier.VerifySignature(payload, headers, secret); err != nil {
			return err
		}
	}

	eventTimestamp, err := extractEventTimestamp(headers, payload, d.now())
	if err != nil {
		return err
	}
	age := d.now().Sub(eventTimestamp)
	tolerance := d.TimestampTolerance
	if tolerance == 0 {
		tolerance = 300 * time.Second
	}
	futureSkew := d.FutureSkewTolerance
	if futureSkew == 0 {
		futureSkew = 60 * time.Second
	}
	if age > tolerance {
		return apperrors.NewTimestampOutOfRange(age.Seconds())
	}
	if age < -futureSkew {
		return apperrors.NewTimestampOutOfRange(age.Seconds())
	}

	sigHeader := headers.Get("X-Hub-Signature-256")
	if sigHeader == "" {
		sigHeader = headers.Get("X-Hub-Signature")
	}
	if sigHeader == "" {
		sigHeader = headers.Get("X-Provider-Token")
	}
	replay, err := d.Signatures.CheckAndStore(ctx, reg.ConnectionID, sigHeader, payload)
	if err != nil {
		return err
	}
	if replay {
		return apperrors.NewReplayDetected(reg.ConnectionID)
	}

	event, err := adapter.ProcessWebhook(ctx, payload, headers)
	if err != nil {
		return err
	}

	conn, err := d.Registry.connections.Get(ctx, reg.ConnectionID)
	if err != nil {
		return err
	}

	envelope, err := d.Mapper.Map(providerID, conn.ConnectionID, conn.TenantID, event.EventType, event.Payload, eventTimestamp)
	if err != nil {
		return err
	}

	return d.Submitter.Submit(ctx, envelope)
}

// SignatureVerifier is an optional adapter capability: an adapter that
// can verify a raw webhook request's signature against a resolved secret,
// independent of extracting the event type (ProcessWebhook still does
// that). HandleWebhook performs no signature check for an adapter that
// does not implement this interface.
type SignatureVerifier interface {
	VerifySignature(payload []byte, headers http.Header, secret string) error
}
