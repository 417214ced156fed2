package models

import "time"

// Severity classifies how dangerous a detection is.
type Severity string

const (
	SeverityOk       Severity = "Ok"
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// ThreatCategory is the family a signature belongs to.
type ThreatCategory string

const (
	CategoryRansomware ThreatCategory = "Ransomware"
	CategoryTrojan     ThreatCategory = "Trojan"
	CategorySpyware    ThreatCategory = "Spyware"
	CategoryAdware     ThreatCategory = "Adware"
	CategoryRootkit    ThreatCategory = "Rootkit"
	CategoryWorm       ThreatCategory = "Worm"
	CategoryVirus      ThreatCategory = "Virus"
	CategoryPUP        ThreatCategory = "PUP"
	CategoryUnknown    ThreatCategory = "Unknown"
)

// ThreatSignature is a named byte pattern with its classification.
// Signatures are immutable once loaded; the active set is always
// replaced as a whole, never mutated in place.
type ThreatSignature struct {
	Name     string         `json:"name"`
	Pattern  []byte         `json:"pattern"` // base64 in JSON
	Category ThreatCategory `json:"category"`
	Severity Severity       `json:"severity"`
}

// DetectedThreat records the first signature match within one file.
type DetectedThreat struct {
	Signature ThreatSignature `json:"signature"`
	FilePath  string          `json:"file_path"`
	Offset    int64           `json:"offset"`
	Timestamp time.Time       `json:"timestamp"`
}

// ScanType selects which kind of scan a ScanConfig describes.
type ScanType string

const (
	ScanQuick  ScanType = "quick"
	ScanFull   ScanType = "full"
	ScanCustom ScanType = "custom"
	ScanBoot   ScanType = "boot"
	ScanMemory ScanType = "memory"
)

// ScanConfig is the immutable per-scan configuration. It is built by
// the caller and owned by the scan for its whole duration.
//
// HeuristicEnabled and CloudLookupEnabled are accepted but inert:
// neither heuristics nor cloud lookups are implemented by this engine.
type ScanConfig struct {
	TargetPaths        []string `json:"target_paths"`
	ScanType           ScanType `json:"scan_type"`
	HeuristicEnabled   bool     `json:"heuristic_enabled"`
	CloudLookupEnabled bool     `json:"cloud_lookup_enabled"`
	MaxFileSize        int64    `json:"max_file_size"`
	ExcludedExtensions []string `json:"excluded_extensions"`
	ExcludedPaths      []string `json:"excluded_paths"`
}

// QuarantineItem is the durable record of one isolated file. The id is
// derived from the content hash prefix plus the isolation timestamp.
type QuarantineItem struct {
	ID             string    `json:"id"`
	OriginalPath   string    `json:"original_path"`
	QuarantinePath string    `json:"quarantine_path"`
	ThreatName     string    `json:"threat_name"`
	Timestamp      time.Time `json:"timestamp"`
	FileHash       string    `json:"file_hash"`
}

// NotificationLevel is the display level of a user-facing notification.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
	LevelSuccess NotificationLevel = "success"
)

// Notification is one entry of the append-only notification log.
// Ids are strictly increasing and never reused.
type Notification struct {
	ID        uint64            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Level     NotificationLevel `json:"level"`
	Timestamp time.Time         `json:"timestamp"`
}

// SystemHealth is a point-in-time snapshot of host metrics.
type SystemHealth struct {
	CPUCores    []float64     `json:"cpu_cores"`
	MemoryTotal uint64        `json:"memory_total"`
	MemoryUsed  uint64        `json:"memory_used"`
	MemoryFree  uint64        `json:"memory_free"`
	SwapTotal   uint64        `json:"swap_total"`
	SwapUsed    uint64        `json:"swap_used"`
	Disks       []DiskInfo    `json:"disks"`
	Processes   []ProcessInfo `json:"processes"`
	Uptime      uint64        `json:"uptime_seconds"`
	Load1       float64       `json:"load_1"`
	Load5       float64       `json:"load_5"`
	Load15      float64       `json:"load_15"`
}

// DiskInfo describes one mounted filesystem.
type DiskInfo struct {
	Name           string  `json:"name"`
	MountPoint     string  `json:"mount_point"`
	TotalSpace     uint64  `json:"total_space"`
	AvailableSpace uint64  `json:"available_space"`
	UsedSpace      uint64  `json:"used_space"`
	UsagePercent   float64 `json:"usage_percent"`
	FileSystem     string  `json:"file_system"`
}

// ProcessInfo describes one running process.
type ProcessInfo struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
	Status      string  `json:"status"`
}
