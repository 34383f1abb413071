package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v4/disk"
	"gorm.io/gorm"
)

const bytesPerMB = 1024 * 1024

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	tools     ToolChecker
	outputDir string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithTools sets the ffmpeg checker reported under components.
func (h *HealthHandler) WithTools(tools ToolChecker) *HealthHandler {
	h.tools = tools
	return h
}

// WithOutputDir sets the directory whose free space is reported.
func (h *HealthHandler) WithOutputDir(dir string) *HealthHandler {
	h.outputDir = dir
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse describes the service and host state.
type HealthResponse struct {
	Status        string           `json:"status"`
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	CPUInfo       CPUInfo          `json:"cpu_info"`
	Memory        MemoryInfo       `json:"memory"`
	Disk          *DiskInfo        `json:"disk,omitempty"`
	Components    HealthComponents `json:"components"`
}

// CPUInfo contains load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo contains system memory usage in megabytes.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	GoHeapMB          float64 `json:"go_heap_mb"`
}

// DiskInfo contains free space on the output volume.
type DiskInfo struct {
	Path        string  `json:"path"`
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthComponents contains per-dependency health.
type HealthComponents struct {
	Database DatabaseHealth `json:"database"`
	FFmpeg   FFmpegHealth   `json:"ffmpeg"`
}

// DatabaseHealth reports database reachability.
type DatabaseHealth struct {
	Status             string  `json:"status"`
	ResponseTimeMS     float64 `json:"response_time_ms"`
	ActiveConnections  int     `json:"active_connections"`
	IdleConnections    int     `json:"idle_connections"`
	ConnectionPoolSize int     `json:"connection_pool_size"`
}

// FFmpegHealth reports whether conversions can run.
type FFmpegHealth struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)
}

// GetLivez reports that the process is serving requests.
func (h *HealthHandler) GetLivez(_ context.Context, _ *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetHealth returns the health status of the service. The overall status is
// "degraded" when ffmpeg or the database is unavailable.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.getDatabaseHealth(ctx)
	ffHealth := h.getFFmpegHealth(ctx)

	status := "healthy"
	if dbHealth.Status == "error" || ffHealth.Status == "unavailable" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       getCPUInfo(),
			Memory:        getMemoryInfo(),
			Disk:          h.getDiskInfo(ctx),
			Components: HealthComponents{
				Database: dbHealth,
				FFmpeg:   ffHealth,
			},
		},
	}, nil
}

func getCPUInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(info.Cores)) * 100
		}
	}
	return info
}

func getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / bytesPerMB
		info.UsedMemoryMB = float64(vmStat.Used) / bytesPerMB
		info.AvailableMemoryMB = float64(vmStat.Available) / bytesPerMB
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info.GoHeapMB = float64(ms.HeapAlloc) / bytesPerMB
	return info
}

func (h *HealthHandler) getDiskInfo(ctx context.Context) *DiskInfo {
	if h.outputDir == "" {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, h.outputDir)
	if err != nil || usage == nil {
		return nil
	}
	return &DiskInfo{
		Path:        h.outputDir,
		TotalMB:     float64(usage.Total) / bytesPerMB,
		FreeMB:      float64(usage.Free) / bytesPerMB,
		UsedPercent: usage.UsedPercent,
	}
}

func (h *HealthHandler) getFFmpegHealth(ctx context.Context) FFmpegHealth {
	if h.tools == nil {
		return FFmpegHealth{Status: "unknown"}
	}
	info, err := h.tools.Check(ctx)
	if err != nil {
		return FFmpegHealth{Status: "unavailable"}
	}
	return FFmpegHealth{Status: "ok", Version: info.Version, Path: info.FFmpegPath}
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}
	return health
}
