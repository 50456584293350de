package apikey

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/secrets"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// Registry is the immutable table of API keys.
type Registry struct {
	entries []*keyEntry
	tenants tenant.Lookup
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
	skipped []error
}

// Option is a functional option for the registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

// WithClock overrides the time source used by Authenticate.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry builds the registry from cfgs. tenants must already be
// loaded; it is consulted both at load time and on every authentication.
func NewRegistry(cfgs []config.APIKeyConfig, tenants tenant.Lookup, opts ...Option) *Registry {
	r := &Registry{
		entries: make([]*keyEntry, 0, len(cfgs)),
		tenants: tenants,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = GetSharedMetrics()
	}

	seen := make(map[string]struct{}, len(cfgs))
	for i := range cfgs {
		cfg := &cfgs[i]
		entry, err := r.load(cfg, seen)
		if err != nil {
			r.skipped = append(r.skipped, err)
			r.logger.Error("API key excluded from registry",
				observability.String("api_key_id", cfg.ID),
				observability.String("tenant_id", cfg.TenantID),
				observability.Error(err),
			)
			continue
		}
		seen[cfg.ID] = struct{}{}
		r.entries = append(r.entries, entry)
	}

	if len(r.entries) == 0 {
		r.logger.Warn("no API keys configured; every request will be rejected")
	} else {
		r.logger.Info("API key registry loaded",
			observability.Int("keys", len(r.entries)),
			observability.Int("skipped", len(r.skipped)),
		)
	}

	return r
}

func (r *Registry) load(cfg *config.APIKeyConfig, seen map[string]struct{}) (*keyEntry, error) {
	if cfg.ID == "" {
		return nil, &ConfigError{KeyID: cfg.ID, Err: ErrMissingID}
	}
	if _, dup := seen[cfg.ID]; dup {
		return nil, &ConfigError{KeyID: cfg.ID, Err: ErrDuplicateKey}
	}
	if r.tenants == nil {
		return nil, &ConfigError{KeyID: cfg.ID, Err: fmt.Errorf("%w %q", ErrUnknownTenant, cfg.TenantID)}
	}
	if _, ok := r.tenants.Get(cfg.TenantID); !ok {
		return nil, &ConfigError{KeyID: cfg.ID, Err: fmt.Errorf("%w %q", ErrUnknownTenant, cfg.TenantID)}
	}
	if len(cfg.Roles) == 0 {
		return nil, &ConfigError{KeyID: cfg.ID, Err: ErrNoRoles}
	}
	if len(cfg.Secrets) == 0 {
		return nil, &ConfigError{KeyID: cfg.ID, Err: ErrNoSecrets}
	}

	entry := &keyEntry{
		view: Key{
			ID:            cfg.ID,
			Name:          cfg.Name,
			TenantID:      cfg.TenantID,
			Roles:         slices.Clone(cfg.Roles),
			Active:        config.IsActive(cfg.Active),
			ExpiresAt:     r.parseTime(cfg.ID, "expiresAt", cfg.ExpiresAt),
			CreatedAt:     r.parseTime(cfg.ID, "createdAt", cfg.CreatedAt),
			LastRotatedAt: r.parseTime(cfg.ID, "lastRotatedAt", cfg.LastRotatedAt),
			Metadata:      maps.Clone(cfg.Metadata),
		},
		secrets: make([]secretEntry, 0, len(cfg.Secrets)),
	}

	anyActive := false
	for i := range cfg.Secrets {
		sc := &cfg.Secrets[i]
		id := sc.ID
		if id == "" {
			id = strconv.Itoa(i)
		}

		digest, err := digestSecret(fmt.Sprintf("API key %s secret %s", cfg.ID, id), sc.Source)
		if err != nil {
			return nil, &ConfigError{KeyID: cfg.ID, Err: err}
		}

		se := secretEntry{
			view: Secret{
				ID:        id,
				Active:    config.IsActive(sc.Active),
				NotBefore: r.parseTime(cfg.ID, "secrets["+id+"].notBefore", sc.NotBefore),
				ExpiresAt: r.parseTime(cfg.ID, "secrets["+id+"].expiresAt", sc.ExpiresAt),
			},
			digest: digest,
		}
		anyActive = anyActive || se.view.Active
		entry.secrets = append(entry.secrets, se)
	}

	if !anyActive {
		return nil, &ConfigError{KeyID: cfg.ID, Err: ErrNoActiveSecret}
	}

	return entry, nil
}

// digestSecret resolves source, hashes it and wipes the plaintext buffer.
func digestSecret(label string, source secrets.Source) ([sha256.Size]byte, error) {
	plaintext, err := secrets.Resolve(label, source)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	defer secrets.Wipe(plaintext)

	return sha256.Sum256(plaintext), nil
}

// parseTime parses an RFC 3339 timestamp. Empty or unparsable values are
// treated as absent; the latter is logged.
func (r *Registry) parseTime(keyID, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		r.logger.Warn("ignoring unparsable timestamp",
			observability.String("api_key_id", keyID),
			observability.String("field", field),
			observability.Error(err),
		)
		return nil
	}
	return &t
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Skipped returns the load errors of excluded keys.
func (r *Registry) Skipped() []error {
	return slices.Clone(r.skipped)
}

// Keys returns copies of the registered key views in registration order.
func (r *Registry) Keys() []Key {
	out := make([]Key, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.view.clone())
	}
	return out
}

// Authenticate decides whether candidate is a valid credential right now.
func (r *Registry) Authenticate(candidate string) Result {
	start := time.Now()
	res := r.authenticate(candidate)
	r.metrics.RecordValidation(res, time.Since(start))
	return res
}

func (r *Registry) authenticate(candidate string) Result {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return failure(CodeInvalid, msgMissing)
	}

	digest := sha256.Sum256([]byte(candidate))
	now := r.now()

	// The scan always visits every stored digest so timing does not depend
	// on where, or whether, a match occurs.
	var (
		matchedKey    *keyEntry
		matchedSecret *secretEntry
	)
	for _, e := range r.entries {
		for i := range e.secrets {
			s := &e.secrets[i]
			eq := subtle.ConstantTimeCompare(s.digest[:], digest[:]) == 1
			if eq && matchedKey == nil {
				matchedKey, matchedSecret = e, s
			}
		}
	}

	if matchedKey == nil {
		return failure(CodeInvalid, msgNotRecognised)
	}

	res := evaluate(r.tenants, matchedKey, matchedSecret, now)
	if res.OK {
		res.Digest = hex.EncodeToString(digest[:])
	}
	return res
}

// evaluate runs the ordered policy chain for a matched secret.
func evaluate(tenants tenant.Lookup, key *keyEntry, secret *secretEntry, now time.Time) Result {
	reject := func(code FailureCode, message string) Result {
		res := failure(code, message)
		res.TenantID = key.view.TenantID
		res.KeyID = key.view.ID
		res.SecretID = secret.view.ID
		return res
	}

	t, ok := tenants.Get(key.view.TenantID)
	switch {
	case !ok:
		return reject(CodeTenantMissing, msgTenantMissing)
	case !t.Active:
		return reject(CodeTenantInactive, msgTenantInactive)
	case !key.view.Active:
		return reject(CodeKeyInactive, msgKeyInactive)
	case reached(now, key.view.ExpiresAt):
		return reject(CodeKeyExpired, msgKeyExpired)
	case !secret.view.Active:
		return reject(CodeSecretInactive, msgSecretInactive)
	case secret.view.NotBefore != nil && now.Before(*secret.view.NotBefore):
		return reject(CodeSecretNotYetValid, msgSecretNotYet)
	case reached(now, secret.view.ExpiresAt):
		return reject(CodeSecretExpired, msgSecretExpiredMsg)
	}

	keyView := key.view.clone()
	secretView := secret.view.clone()
	return Result{
		OK:       true,
		Tenant:   t,
		Key:      &keyView,
		Secret:   &secretView,
		TenantID: t.ID,
		KeyID:    keyView.ID,
		SecretID: secretView.ID,
	}
}

// reached reports now >= deadline for a set deadline.
func reached(now time.Time, deadline *time.Time) bool {
	return deadline != nil && !now.Before(*deadline)
}
