package llmadapter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bizradar/bizradar/engine/core"
)

// Error codes carried by normalized errors.
const (
	ErrCodeConfig    = "CONFIGURATION_ERROR"
	ErrCodeGuardrail = "GUARDRAIL_VIOLATION"
	ErrCodeProvider  = "PROVIDER_ERROR"
	ErrCodeRateLimit = "RATE_LIMIT_ERROR"
)

// NormalizedError is the single structured error type produced at the
// provider boundary. Downstream layers branch on Retryable without
// re-deriving it.
type NormalizedError struct {
	Provider   core.ProviderName
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *NormalizedError) Error() string {
	code := e.Code
	if code == "" {
		code = "ERROR"
	}
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(e.Provider.String()), code, e.Message)
}

func (e *NormalizedError) Unwrap() error {
	return e.Err
}

// IsNormalizedError extracts a *NormalizedError from anywhere in the chain.
func IsNormalizedError(err error) (*NormalizedError, bool) {
	var norm *NormalizedError
	if errors.As(err, &norm) {
		return norm, true
	}
	return nil, false
}

// IsRetryable reports whether err was classified retryable at the boundary.
func IsRetryable(err error) bool {
	if norm, ok := IsNormalizedError(err); ok {
		return norm.Retryable
	}
	return false
}

// NewConfigError builds a non-retryable configuration error.
func NewConfigError(provider core.ProviderName, message string, err error) *NormalizedError {
	return &NormalizedError{
		Provider:  provider,
		Code:      ErrCodeConfig,
		Message:   message,
		Retryable: false,
		Err:       err,
	}
}

// NewGuardrailError builds a non-retryable pre-dispatch validation error.
func NewGuardrailError(provider core.ProviderName, message string) *NormalizedError {
	return &NormalizedError{
		Provider:  provider,
		Code:      ErrCodeGuardrail,
		Message:   message,
		Retryable: false,
	}
}

// HTTPStatuser is implemented by errors exposing a status field.
type HTTPStatuser interface {
	HTTPStatus() int
}

// StatusCoder is implemented by errors exposing a statusCode field.
type StatusCoder interface {
	StatusCode() int
}

// NormalizerConfig overrides the retryability rules. Rules are provider
// agnostic: the same patterns and statuses apply to every backend.
type NormalizerConfig struct {
	RetryableStatuses []int
	RetryablePatterns []*regexp.Regexp
}

var defaultRetryableStatuses = []int{408, 429, 500, 502, 503, 504}

var defaultRetryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)temporarily unavailable`),
	regexp.MustCompile(`(?i)service unavailable`),
}

var statusCodePattern = regexp.MustCompile(`\b(\d{3})\b`)

// Normalizer classifies raw provider errors into NormalizedError.
type Normalizer struct {
	retryableStatuses map[int]struct{}
	retryablePatterns []*regexp.Regexp
}

func NewNormalizer(cfg *NormalizerConfig) *Normalizer {
	statuses := defaultRetryableStatuses
	patterns := defaultRetryablePatterns
	if cfg != nil && len(cfg.RetryableStatuses) > 0 {
		statuses = cfg.RetryableStatuses
	}
	if cfg != nil && len(cfg.RetryablePatterns) > 0 {
		patterns = cfg.RetryablePatterns
	}
	statusSet := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		statusSet[s] = struct{}{}
	}
	return &Normalizer{
		retryableStatuses: statusSet,
		retryablePatterns: patterns,
	}
}

// Normalize wraps err with provider context and a retryability decision.
// Already-normalized errors pass through unchanged so normalization happens
// exactly once.
func (n *Normalizer) Normalize(err error, provider core.ProviderName) *NormalizedError {
	if err == nil {
		return nil
	}
	if norm, ok := IsNormalizedError(err); ok {
		return norm
	}
	statusCode := n.extractStatusCode(err)
	return &NormalizedError{
		Provider:   provider,
		Code:       ErrCodeProvider,
		Message:    err.Error(),
		Retryable:  n.isRetryable(err, statusCode),
		StatusCode: statusCode,
		Err:        err,
	}
}

func (n *Normalizer) isRetryable(err error, statusCode int) bool {
	message := err.Error()
	for _, pattern := range n.retryablePatterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	if _, ok := n.retryableStatuses[statusCode]; ok && statusCode > 0 {
		return true
	}
	return false
}

// extractStatusCode checks typed status accessors first, then falls back to
// a three-digit run inside the message text.
func (n *Normalizer) extractStatusCode(err error) int {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.HTTPStatus()
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	if match := statusCodePattern.FindStringSubmatch(err.Error()); match != nil {
		if code, convErr := strconv.Atoi(match[1]); convErr == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}
