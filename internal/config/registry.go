// Package config implements the typed configuration registry: declarative
// parameter registration with category grouping, validation, and sensitive
// masking. Values are sourced from the process environment; the loading
// helpers below follow the same GetEnv/GetEnvBool/ParseEnvDuration pattern
// the rest of the pipeline's infrastructure packages use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/solpulse/ingest/infrastructure/logging"
	"github.com/solpulse/ingest/infrastructure/redaction"
	"github.com/solpulse/ingest/internal/model"
)

const maskedValue = "***REDACTED***"

// Registry holds the declared ConfigEntry set plus the last-loaded, coerced
// values. It is read-mostly: writes only happen on Load/Reload.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]model.ConfigEntry
	values  map[string]interface{}
	logger  *logging.Logger
}

// NewRegistry creates an empty registry. Register entries with Register or
// RegisterAll before calling Load.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		entries: make(map[string]model.ConfigEntry),
		values:  make(map[string]interface{}),
		logger:  logger,
	}
}

// Register adds one ConfigEntry declaration to the registry.
func (r *Registry) Register(entry model.ConfigEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Key] = entry
}

// RegisterAll adds many ConfigEntry declarations at once.
func (r *Registry) RegisterAll(entries []model.ConfigEntry) {
	for _, e := range entries {
		r.Register(e)
	}
}

// ValidationReport is returned by Validate.
type ValidationReport struct {
	Valid           bool
	Invalid         []string
	MissingRequired []string
	Warnings        []string
}

// Load reads every registered entry from the environment, coerces it to its
// declared DataType, runs its validator if any, and caches the result.
// Missing required entries without a default are a fatal startup condition
// for the caller to surface (the registry itself only reports them).
func (r *Registry) Load() ValidationReport {
	return r.load(false)
}

// Reload re-reads the environment and logs a diff against the previously
// cached values. On a per-key coercion or validation failure, the previous
// valid value is retained and the invalid one is logged, per the
// configuration-missing/invalid error taxonomy: never fatal at runtime.
func (r *Registry) Reload() ValidationReport {
	return r.load(true)
}

func (r *Registry) load(isReload bool) ValidationReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := ValidationReport{Valid: true}
	newValues := make(map[string]interface{}, len(r.entries))

	for key, entry := range r.entries {
		raw, present := os.LookupEnv(key)

		var value interface{}
		var err error
		switch {
		case present:
			value, err = coerce(entry.DataType, raw)
		case entry.Default != nil:
			value = entry.Default
			if s, isStr := entry.Default.(string); isStr {
				value, err = coerce(entry.DataType, s)
			}
		case entry.Required:
			report.MissingRequired = append(report.MissingRequired, key)
			report.Valid = false
			continue
		default:
			value = nil
		}

		if err == nil && entry.Validator != nil && value != nil {
			err = entry.Validator(value)
		}

		if err != nil {
			report.Invalid = append(report.Invalid, key)
			report.Valid = false
			if isReload {
				if prev, ok := r.values[key]; ok {
					newValues[key] = prev
					r.logger.WithFields(map[string]interface{}{
						"key":        key,
						"raw_value":  maskIfSensitive(entry, raw),
						"error":      err.Error(),
					}).Warn("config reload: invalid value, retaining previous")
					continue
				}
			}
			continue
		}

		if isReload {
			if prev, ok := r.values[key]; ok && prev != value {
				r.logger.WithFields(map[string]interface{}{
					"key":   key,
					"from":  maskValueIfSensitive(entry, prev),
					"to":    maskValueIfSensitive(entry, value),
				}).Info("config reload: value changed")
			}
		}

		newValues[key] = value
	}

	r.values = newValues
	return report
}

func coerce(dataType model.ConfigDataType, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch dataType {
	case model.ConfigString, "":
		return raw, nil
	case model.ConfigInt:
		return strconv.Atoi(raw)
	case model.ConfigFloat:
		return strconv.ParseFloat(raw, 64)
	case model.ConfigBool:
		return parseBool(raw), nil
	case model.ConfigDuration:
		return time.ParseDuration(raw)
	default:
		return nil, fmt.Errorf("unknown config data type %q", dataType)
	}
}

// parseBool accepts true/1/yes/on case-insensitively as true, per spec.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func maskIfSensitive(entry model.ConfigEntry, raw string) string {
	if entry.Sensitive {
		return maskedValue
	}
	return raw
}

func maskValueIfSensitive(entry model.ConfigEntry, value interface{}) interface{} {
	if entry.Sensitive {
		return maskedValue
	}
	return value
}

// Get returns the cached value for key, or fallback if unset. Sensitive
// entries are NOT masked by Get — masking applies only at rendering
// boundaries (Export, String). Get is for internal consumption by other
// components.
func (r *Registry) Get(key string, fallback interface{}) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok && v != nil {
		return v
	}
	return fallback
}

func (r *Registry) GetString(key, fallback string) string {
	if v, ok := r.Get(key, fallback).(string); ok {
		return v
	}
	return fallback
}

func (r *Registry) GetInt(key string, fallback int) int {
	if v, ok := r.Get(key, fallback).(int); ok {
		return v
	}
	return fallback
}

func (r *Registry) GetFloat(key string, fallback float64) float64 {
	if v, ok := r.Get(key, fallback).(float64); ok {
		return v
	}
	return fallback
}

func (r *Registry) GetBool(key string, fallback bool) bool {
	if v, ok := r.Get(key, fallback).(bool); ok {
		return v
	}
	return fallback
}

func (r *Registry) GetDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := r.Get(key, fallback).(time.Duration); ok {
		return v
	}
	return fallback
}

// GetByCategory returns every registered entry's current value, keyed by
// entry key, restricted to the given category.
func (r *Registry) GetByCategory(category string) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]interface{})
	for key, entry := range r.entries {
		if entry.Category != category {
			continue
		}
		out[key] = r.maskedRenderLocked(key, entry)
	}
	return out
}

// Validate re-validates the currently cached values without re-reading the
// environment, returning the same report shape as Load.
func (r *Registry) Validate() ValidationReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := ValidationReport{Valid: true}
	for key, entry := range r.entries {
		value, ok := r.values[key]
		if !ok || value == nil {
			if entry.Required {
				report.MissingRequired = append(report.MissingRequired, key)
				report.Valid = false
			}
			continue
		}
		if entry.Validator != nil {
			if err := entry.Validator(value); err != nil {
				report.Invalid = append(report.Invalid, key)
				report.Valid = false
			}
		}
	}
	return report
}

// Export renders every entry's value with sensitive entries masked, for
// diagnostics/log output. The result is passed through RedactMap as a
// second line of defense: a field whose key looks like a secret (by name)
// is masked even if its ConfigEntry was never marked Sensitive.
func (r *Registry) Export() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]interface{}, len(r.entries))
	for key, entry := range r.entries {
		out[key] = r.maskedRenderLocked(key, entry)
	}
	return redaction.RedactMap(out)
}

func (r *Registry) maskedRenderLocked(key string, entry model.ConfigEntry) interface{} {
	if entry.Sensitive {
		return maskedValue
	}
	if v, ok := r.values[key]; ok {
		if s, isStr := v.(string); isStr {
			return redaction.RedactAll(s)
		}
		return v
	}
	return entry.Default
}
