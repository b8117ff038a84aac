package startup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"clipper/internal/logging"
	"clipper/internal/transcoder"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Queue backends accepted by QUEUE_BACKEND.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	MediaDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	PublicBaseURL   string
	LogHealthChecks bool

	FFmpegPath    string
	FFprobePath   string
	EngineTimeout time.Duration
	ProxyProfile  transcoder.ProxyProfile
	ScalePolicy   transcoder.ScalePolicy

	// TranscodeWorkers of 0 sizes the pool from the CPU count.
	TranscodeWorkers int
	JobTimeout       time.Duration
	RecoverPending   bool

	QueueBackend  string
	QueueSize     int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueueKey string

	RetentionMaxAge time.Duration
	SweepInterval   time.Duration

	ThumbnailsEnabled bool
	MaxUploadBytes    int64

	// MemoryLimit is the container limit in bytes; 0 leaves GOMEMLIMIT alone.
	MemoryLimit int64
	MemoryRatio float64

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		MediaDir:        getEnv("MEDIA_DIR", "/media"),
		DatabaseDir:     getEnv("DATABASE_DIR", "/database"),
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", ""),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   getEnv("FFPROBE_PATH", "ffprobe"),
		EngineTimeout: getEnvDuration("ENGINE_TIMEOUT", transcoder.DefaultEngineTimeout),

		TranscodeWorkers: getEnvInt("TRANSCODE_WORKERS", 0),
		JobTimeout:       getEnvDuration("JOB_TIMEOUT", 45*time.Minute),
		RecoverPending:   getEnvBool("RECOVER_PENDING", true),

		QueueBackend:  strings.ToLower(getEnv("QUEUE_BACKEND", QueueMemory)),
		QueueSize:     getEnvInt("QUEUE_SIZE", 256),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", "clipper:jobs"),

		RetentionMaxAge: getEnvDuration("RETENTION_MAX_AGE", time.Hour),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),

		ThumbnailsEnabled: getEnvBool("THUMBNAILS_ENABLED", true),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 2<<30),

		MemoryLimit: getEnvInt64("MEMORY_LIMIT", 0),
		MemoryRatio: getEnvFloat("MEMORY_RATIO", 0.85),
	}

	defaults := transcoder.DefaultProxyProfile()
	cfg.ProxyProfile = transcoder.ProxyProfile{
		VideoCodec:   getEnv("PROXY_VIDEO_CODEC", defaults.VideoCodec),
		CRF:          getEnvInt("PROXY_CRF", defaults.CRF),
		Preset:       getEnv("PROXY_PRESET", defaults.Preset),
		AudioCodec:   getEnv("PROXY_AUDIO_CODEC", defaults.AudioCodec),
		AudioBitrate: getEnv("PROXY_AUDIO_BITRATE", defaults.AudioBitrate),
	}

	scaleMode := getEnv("PROXY_SCALE_MODE", string(transcoder.ScaleModeHalf))
	policy, err := transcoder.ParseScalePolicy(scaleMode, getEnvInt("PROXY_HEIGHT", 720))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy scale policy: %w", err)
	}
	cfg.ScalePolicy = policy

	logging.Info("  MEDIA_DIR:           %s", cfg.MediaDir)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  PUBLIC_BASE_URL:     %s", cfg.PublicBaseURL)
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", cfg.FFprobePath)
	logging.Info("  ENGINE_TIMEOUT:      %v", cfg.EngineTimeout)
	logging.Info("  TRANSCODE_WORKERS:   %s", workersString(cfg.TranscodeWorkers))
	logging.Info("  JOB_TIMEOUT:         %v", cfg.JobTimeout)
	logging.Info("  RECOVER_PENDING:     %v", cfg.RecoverPending)
	logging.Info("  QUEUE_BACKEND:       %s", cfg.QueueBackend)
	if cfg.QueueBackend == QueueRedis {
		logging.Info("  REDIS_ADDR:          %s", cfg.RedisAddr)
		logging.Info("  REDIS_DB:            %d", cfg.RedisDB)
		logging.Info("  REDIS_QUEUE_KEY:     %s", cfg.RedisQueueKey)
	} else {
		logging.Info("  QUEUE_SIZE:          %d", cfg.QueueSize)
	}
	logging.Info("  PROXY_SCALE:         %s", cfg.ScalePolicy)
	logging.Info("  PROXY_PROFILE:       %s crf=%d preset=%s audio=%s@%s",
		cfg.ProxyProfile.VideoCodec, cfg.ProxyProfile.CRF, cfg.ProxyProfile.Preset,
		cfg.ProxyProfile.AudioCodec, cfg.ProxyProfile.AudioBitrate)
	logging.Info("  RETENTION_MAX_AGE:   %v", cfg.RetentionMaxAge)
	logging.Info("  SWEEP_INTERVAL:      %v", cfg.SweepInterval)
	logging.Info("  THUMBNAILS_ENABLED:  %v", cfg.ThumbnailsEnabled)
	logging.Info("  MAX_UPLOAD_BYTES:    %d", cfg.MaxUploadBytes)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	cfg.MediaDir, err = filepath.Abs(cfg.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	logging.Info("  Media directory (absolute): %s", cfg.MediaDir)

	cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "clipper.db")

	for _, dir := range []struct{ path, name string }{
		{cfg.MediaDir, "media"},
		{cfg.DatabaseDir, "database"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		logging.Debug("  Testing %s directory write access...", dir.name)
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Recovery:    %s", enabledString(cfg.RecoverPending))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.QueueBackend {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q (want %s or %s)", c.QueueBackend, QueueMemory, QueueRedis)
	}
	if c.QueueBackend == QueueRedis && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis queue backend")
	}
	if c.TranscodeWorkers < 0 {
		return fmt.Errorf("TRANSCODE_WORKERS must not be negative, got %d", c.TranscodeWorkers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.PublicBaseURL)
		}
		c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	}
	return nil
}

func workersString(n int) string {
	if n == 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit checks that the FFmpeg binaries can be run. It reports
// whether both were found.
func LogTranscoderInit(ffmpegPath, ffprobePath string) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	ok := true
	for _, bin := range []string{ffmpegPath, ffprobePath} {
		if err := checkBinary(bin); err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			ok = false
			continue
		}
		logging.Info("  [OK] %s is available", bin)
	}
	if !ok {
		logging.Warn("  Proxy and clip jobs will fail until the binaries are installed")
	}
	return ok
}

// LogQueueInit logs the job queue backend
func LogQueueInit(backend, detail string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("QUEUE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] %s queue ready (%s)", backend, detail)
}

// LogDispatcherInit logs the job dispatcher configuration
func LogDispatcherInit(workers int, jobTimeout time.Duration, recoverPending bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DISPATCHER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Workers:         %d", workers)
	logging.Info("  Job timeout:     %v", jobTimeout)
	logging.Info("  Recover pending: %v", recoverPending)
}

// LogThumbnailInit logs poster generation availability
func LogThumbnailInit(enabled bool) {
	if !enabled {
		logging.Info("  Clip posters disabled (THUMBNAILS_ENABLED=false)")
	}
}

// LogRetentionInit logs retention sweeper configuration
func LogRetentionInit(interval, maxAge time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RETENTION INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Sweep interval: %v", interval)
	logging.Info("  Max age:        %v", maxAge)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return err
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
       ___ _ _
   ___| (_) |_ __  _ __   ___ _ __
  / __| | | | '_ \| '_ \ / _ \ '__|
 | (__| | | | |_) | |_) |  __/ |
  \___|_|_|_| .__/| .__/ \___|_|
            |_|   |_|
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkBinary(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(line))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %g", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
