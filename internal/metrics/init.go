package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	kinds := []string{"proxy", "clip"}
	for _, kind := range kinds {
		JobsSubmittedTotal.WithLabelValues(kind)
		JobSubmitFailures.WithLabelValues(kind)
		JobDuration.WithLabelValues(kind)
		JobsInProgress.WithLabelValues(kind)
		for _, status := range []string{"completed", "failed", "vanished", "skipped", "duplicate", "interrupted"} {
			JobsTotal.WithLabelValues(kind, status)
		}
	}

	for _, result := range []string{"success", "no_video_stream", "invalid"} {
		ProbeTotal.WithLabelValues(result)
	}

	for _, op := range []string{"proxy", "clip", "frame"} {
		TranscodeDuration.WithLabelValues(op)
		for _, result := range []string{"success", "engine_failed", "spawn_failed", "timeout"} {
			TranscodeTotal.WithLabelValues(op, result)
		}
	}

	for _, result := range []string{"success", "error"} {
		ThumbnailsTotal.WithLabelValues(result)
		SweepRunsTotal.WithLabelValues(result)
	}

	for _, t := range []string{"file", "asset", "clip"} {
		SweepDeletedTotal.WithLabelValues(t)
	}

	for _, kind := range []string{"asset", "clip"} {
		DBRecordsVanished.WithLabelValues(kind)
	}

	volumes := []string{"uploads", "proxies", "clips", "thumbnails", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "remove", "mkdir"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"create_asset", "create_clip", "get_asset", "get_clip", "update_asset",
		"update_clip", "delete_asset", "delete_clip", "list_expired_assets", "list_expired_clips",
		"list_assets_by_status", "list_clips_by_status", "list_clips_for_asset", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
