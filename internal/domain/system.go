package domain

// SystemInfo is a snapshot of host resources relevant to transcoding
type SystemInfo struct {
	CPUThreads      int     `json:"cpu_threads"`
	MemoryTotal     int64   `json:"memory_total"`
	MemoryUsed      int64   `json:"memory_used"`
	MemoryAvailable int64   `json:"memory_available"`
	MemoryPercent   float64 `json:"memory_percent"`
	LoadAverage1    float64 `json:"load_average_1"`
	LoadAverage5    float64 `json:"load_average_5"`
	LoadAverage15   float64 `json:"load_average_15"`
	Uptime          int64   `json:"uptime"`
	DiskTotal       uint64  `json:"disk_total"`
	DiskFree        uint64  `json:"disk_free"`
	DiskPercent     float64 `json:"disk_percent"`
	ActiveJobs      int     `json:"active_jobs"`
	ActiveWorkers   int     `json:"active_workers"`
}
