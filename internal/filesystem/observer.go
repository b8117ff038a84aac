package filesystem

// Observer records filesystem operation metrics. Implementations are provided
// by the metrics package to break the import cycle between filesystem and metrics.
type Observer interface {
	// ObserveOperation records duration and error status for a filesystem operation.
	// volume is the resolved layout label ("uploads", "proxies", "clips", "thumbnails").
	// operation is "stat", "remove" or "mkdir".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	// Retry-specific metrics for NFS resilience.
	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is silently skipped (safe for tests).
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	defaultObserver = o
}

// noopObserver is used when no observer has been configured.
type noopObserver struct{}

func (noopObserver) ObserveOperation(_, _ string, _ float64, _ error) {}
func (noopObserver) ObserveRetryAttempt(_, _ string)                  {}
func (noopObserver) ObserveRetrySuccess(_, _ string)                  {}
func (noopObserver) ObserveRetryFailure(_, _ string)                  {}
func (noopObserver) ObserveStaleError(_, _ string)                    {}

// observe is a nil-safe helper for the package-level observer.
func observe() Observer {
	if defaultObserver == nil {
		return noopObserver{}
	}
	return defaultObserver
}
