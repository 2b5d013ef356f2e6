package authn

import (
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
)

// RateLimitError matchea autherr.ErrRateLimited y lleva el tiempo de espera.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", autherr.ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return autherr.ErrRateLimited }

// WeakPasswordError matchea autherr.ErrWeakPassword y lista los motivos
// (too_short, missing_upper, ...).
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%s: %s", autherr.ErrWeakPassword, strings.Join(e.Reasons, ","))
}

func (e *WeakPasswordError) Unwrap() error { return autherr.ErrWeakPassword }
