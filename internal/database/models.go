package database

import "time"

// AssetStatus is the lifecycle state of an uploaded video.
type AssetStatus string

const (
	AssetUploading  AssetStatus = "uploading"
	AssetProcessing AssetStatus = "processing"
	AssetCompleted  AssetStatus = "completed"
	AssetFailed     AssetStatus = "failed"
)

// AssetStatuses lists every asset status in lifecycle order.
var AssetStatuses = []AssetStatus{AssetUploading, AssetProcessing, AssetCompleted, AssetFailed}

// Terminal reports whether no job may move the asset out of s.
func (s AssetStatus) Terminal() bool {
	return s == AssetCompleted || s == AssetFailed
}

// CanTransition reports whether a job may move an asset from s to next.
func (s AssetStatus) CanTransition(next AssetStatus) bool {
	switch s {
	case AssetUploading:
		return next == AssetProcessing
	case AssetProcessing:
		return next == AssetProcessing || next == AssetCompleted || next == AssetFailed
	default:
		return false
	}
}

// ClipStatus is the lifecycle state of a clip extract.
type ClipStatus string

const (
	ClipProcessing ClipStatus = "processing"
	ClipCompleted  ClipStatus = "completed"
	ClipFailed     ClipStatus = "failed"
)

// ClipStatuses lists every clip status in lifecycle order.
var ClipStatuses = []ClipStatus{ClipProcessing, ClipCompleted, ClipFailed}

// Terminal reports whether no job may move the clip out of s.
func (s ClipStatus) Terminal() bool {
	return s == ClipCompleted || s == ClipFailed
}

// CanTransition reports whether a job may move a clip from s to next.
func (s ClipStatus) CanTransition(next ClipStatus) bool {
	if s != ClipProcessing {
		return false
	}
	return next == ClipProcessing || next == ClipCompleted || next == ClipFailed
}

// Asset is one uploaded video and its proxy rendition.
type Asset struct {
	ID               string      `json:"id"`
	OriginalFilename string      `json:"originalFilename"`
	OriginalRef      string      `json:"originalRef"`
	ProxyRef         string      `json:"proxyRef,omitempty"`
	FileSize         int64       `json:"fileSize"`
	Status           AssetStatus `json:"status"`
	// Width and Height are the derived proxy geometry.
	Width  int `json:"width"`
	Height int `json:"height"`
	// SourceWidth and SourceHeight are the probed geometry of the original.
	SourceWidth  int       `json:"sourceWidth"`
	SourceHeight int       `json:"sourceHeight"`
	Duration     float64   `json:"duration"`
	Framerate    float64   `json:"framerate"`
	ErrorDetail  string    `json:"errorDetail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clip is one trimmed extract of an Asset.
type Clip struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"assetId"`
	Name         string     `json:"name"`
	InPoint      float64    `json:"inPoint"`
	OutPoint     float64    `json:"outPoint"`
	ClipRef      string     `json:"clipRef,omitempty"`
	ThumbnailRef string     `json:"thumbnailRef,omitempty"`
	FileSize     int64      `json:"fileSize"`
	Status       ClipStatus `json:"status"`
	ErrorDetail  string     `json:"errorDetail,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Outcome is the result of a mutation against a record that may have been
// deleted concurrently.
type Outcome int

const (
	// Applied means the record existed and the change was committed.
	Applied Outcome = iota
	// Vanished means the record no longer exists; nothing was written.
	Vanished
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Vanished:
		return "vanished"
	default:
		return "unknown"
	}
}

// Stats holds record counts per status.
type Stats struct {
	Assets map[AssetStatus]int `json:"assets"`
	Clips  map[ClipStatus]int  `json:"clips"`
}
