// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]
// and returned as an explicit [Config]; components receive their settings
// from it and never read the environment themselves. Supported variables:
//
//   - MEDIA_DIR: Root for uploads, proxies, clips and thumbnails (default: /media)
//   - DATABASE_DIR: Directory holding clipper.db (default: /database)
//   - PORT / METRICS_PORT: HTTP and Prometheus ports (default: 8080 / 9090)
//   - METRICS_ENABLED: Serve /metrics on METRICS_PORT (default: true)
//   - PUBLIC_BASE_URL: Absolute prefix for media URLs in API responses (default: relative)
//   - FFMPEG_PATH / FFPROBE_PATH: Engine binaries (default: ffmpeg / ffprobe on PATH)
//   - ENGINE_TIMEOUT: Limit for one ffmpeg invocation (default: 30m)
//   - TRANSCODE_WORKERS: Dispatcher pool size, 0 for CPU based (default: 0)
//   - JOB_TIMEOUT: Limit for a whole proxy or clip job (default: 45m)
//   - RECOVER_PENDING: Resubmit interrupted work at startup (default: true)
//   - QUEUE_BACKEND: memory or redis (default: memory)
//   - QUEUE_SIZE: Memory queue capacity (default: 256)
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_QUEUE_KEY: Redis queue settings
//   - PROXY_SCALE_MODE: half or height (default: half)
//   - PROXY_HEIGHT: Target height for the height mode (default: 720)
//   - PROXY_VIDEO_CODEC, PROXY_CRF, PROXY_PRESET, PROXY_AUDIO_CODEC, PROXY_AUDIO_BITRATE:
//     Proxy encoder profile (default: libx264, 23, medium, aac, 192k)
//   - RETENTION_MAX_AGE: Age after which media is swept (default: 1h)
//   - SWEEP_INTERVAL: Time between retention sweeps (default: 10m)
//   - THUMBNAILS_ENABLED: Render clip posters (default: true)
//   - MAX_UPLOAD_BYTES: Upload size limit (default: 2 GiB)
//   - MEMORY_LIMIT / MEMORY_RATIO: Container memory limit and Go heap share
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the banner-delimited sections seen at startup
// and shutdown, so every component reports its configuration the same way.
package startup
