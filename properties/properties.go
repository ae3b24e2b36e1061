package properties

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known property keys
const (
	KeyProjectName      = "project.name"
	KeyDebugMode        = "logging.debug"
	KeyDiscreteLogging  = "logging.discrete"
	KeyReportsDir       = "report.dir"
	KeySummaryDir       = "report.summary.dir"
	KeyArchiveDir       = "report.archive.dir"
	KeyViewerOpen       = "report.viewer.open"
	KeyHTTPProxy        = "proxy.http"
	KeyHTTPSProxy       = "proxy.https"
	KeyNoProxy          = "proxy.no"
	KeySecretsProvider  = "secrets.provider"
	KeySecretsDir       = "secrets.dir"
	KeySecretsKeyset    = "secrets.keyset"
	KeySecretsKeyName   = "secrets.key"
	KeySecretsKMSRegion = "secrets.region"
	KeyVisionLibrary    = "vision.library"
	KeyJiraURL          = "issues.jira.url"
	KeyJiraIssue        = "issues.jira.issue"
	KeyJiraUser         = "issues.jira.user"
	KeyJiraToken        = "issues.jira.token"
	KeyRedisURL         = "sink.redis.url"
	KeyRedisKey         = "sink.redis.key"
	KeyPostgresURL      = "sink.postgres.url"
)

// Properties is a flat, read-only view of dotted keys to string values
type Properties struct {
	values map[string]string
}

// New creates properties from a flat map. The map is copied.
func New(values map[string]string) *Properties {
	p := &Properties{values: make(map[string]string, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Get returns the raw value of key
func (p *Properties) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[key]
	return v, ok
}

// String returns the value of key or def when unset or empty
func (p *Properties) String(key string, def string) string {
	v, ok := p.Get(key)
	if !ok || v == "" {
		return def
	}
	return v
}

// Bool returns the boolean value of key or def when unset or unparsable
func (p *Properties) Bool(key string, def bool) bool {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Duration returns the duration value of key or def when unset or unparsable
func (p *Properties) Duration(key string, def time.Duration) time.Duration {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

// Keys returns all keys in sorted order
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of properties
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Redacted returns a copy of the values with secret-looking keys masked
func (p *Properties) Redacted() map[string]string {
	out := make(map[string]string)
	for _, k := range p.Keys() {
		v := p.values[k]
		if isSecretKey(k) {
			v = "***"
		}
		out[k] = v
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"token", "password", "secret.", "credential"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// flatten turns nested maps decoded from yaml or toml into dotted keys
func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case map[any]any:
			m := make(map[string]any, len(val))
			for mk, mv := range val {
				m[fmt.Sprint(mk)] = mv
			}
			flatten(key, m, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
