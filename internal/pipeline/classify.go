package pipeline

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/image"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/meshy"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

// ErrorCategory groups pipeline failures for clients and dashboards.
type ErrorCategory string

const (
	CategoryTimeout ErrorCategory = "timeout"
	CategoryAuth    ErrorCategory = "auth"
	CategoryNetwork ErrorCategory = "network"
	CategoryVendor  ErrorCategory = "vendor"
	CategoryUnknown ErrorCategory = "unknown"
)

// Classify maps a stage error onto a category.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var timeoutErr *poller.TaskTimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if errors.Is(err, meshy.ErrMissingAPIKey) || errors.Is(err, image.ErrMissingAPIKey) {
		return CategoryAuth
	}
	var apiErr *meshy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return CategoryAuth
		}
		return CategoryVendor
	}
	var statusErr *storage.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return CategoryAuth
		}
		return CategoryVendor
	}
	var failedErr *poller.TaskFailedError
	if errors.As(err, &failedErr) || errors.Is(err, domain.ErrProviderFailure) {
		return CategoryVendor
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}
	return CategoryUnknown
}
