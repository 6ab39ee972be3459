package logger

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer 負責過濾日誌中的敏感資訊
//
// File paths are the payload of every reconciliation log line and are never
// masked. Only credentials are: values under a sensitive key, and
// credential-shaped substrings (password=..., URL userinfo) in any message
// or string value.
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule 單一過濾規則
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// sensitiveKeys are matched as substrings of a lower-cased attribute key
var sensitiveKeys = []string{"password", "passwd", "secret", "token", "apikey", "api_key", "credential"}

// NewSanitizer 建立預設 sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		rules: []SanitizeRule{
			{regexp.MustCompile(`(?i)(password|passwd|token|api[_-]?key)=\S+`), "$1=***"},
			{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},
			// URL userinfo, e.g. a metrics push gateway or database DSN
			{regexp.MustCompile(`://[^/:@\s]+:[^/@\s]+@`), "://***:***@"},
		},
	}
}

// Sanitize applies every rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apply(input)
}

func (s *Sanitizer) apply(input string) string {
	for _, rule := range s.rules {
		input = rule.Pattern.ReplaceAllString(input, rule.Replacement)
	}
	return input
}

// SanitizeArgs returns a copy of slog-style key/value args (and slog.Attr
// values) with sensitive values masked and every string value run through
// the rules.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]any, len(args))
	copy(out, args)

	for i := 0; i < len(out); i++ {
		if attr, ok := out[i].(slog.Attr); ok {
			out[i] = s.sanitizeAttr(attr)
			continue
		}
		key, ok := out[i].(string)
		if !ok || i+1 >= len(out) {
			continue
		}
		out[i+1] = s.sanitizeValue(key, out[i+1])
		i++
	}
	return out
}

func (s *Sanitizer) sanitizeAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		sanitized := make([]any, len(group))
		for i, a := range group {
			sanitized[i] = s.sanitizeAttr(a)
		}
		return slog.Group(attr.Key, sanitized...)
	}
	return slog.Any(attr.Key, s.sanitizeValue(attr.Key, attr.Value.Any()))
}

func (s *Sanitizer) sanitizeValue(key string, value any) any {
	sensitive := isSensitiveKey(key)

	switch v := value.(type) {
	case string:
		if sensitive {
			return maskValue(v)
		}
		return s.apply(v)
	case error:
		if sensitive {
			return maskValue(v.Error())
		}
		return s.apply(v.Error())
	case []string:
		if sensitive {
			return "***"
		}
		return v
	default:
		// Other types are logged as-is
		return value
	}
}

// isSensitiveKey 判斷鍵名是否為敏感鍵
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}

// maskValue 遮蔽值（長值保留前後各1字元）
func maskValue(value string) string {
	switch {
	case len(value) <= 2:
		return "***"
	case len(value) <= 8:
		return value[:1] + "***"
	default:
		return value[:1] + "***" + value[len(value)-1:]
	}
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}
