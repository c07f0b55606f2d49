package entity

const (
	SourceResolved = "resolved"
	SourceFallback = "fallback"
	SourceTimeout  = "timeout"
)

// FormatOption is one selectable quality. Height is nil for the automatic best option,
// 0 for audio only and the vertical resolution otherwise.
type FormatOption struct {
	Label    string `json:"label"`
	Selector string `json:"format_selector"`
	Height   *int   `json:"height"`
}

type MetadataResult struct {
	Title           string         `json:"title"`
	DurationDisplay string         `json:"duration_display"`
	Formats         []FormatOption `json:"formats"`
	ThumbnailURL    string         `json:"thumbnail_url"`
	Source          string         `json:"source"`
	Error           string         `json:"error,omitempty"`
}

// MediaInfo is the subset of the extractor output the resolver consumes.
type MediaInfo struct {
	Title     string
	Duration  float64
	Thumbnail string
	Formats   []MediaFormat
}

type MediaFormat struct {
	FormatID string
	Height   int
	VCodec   string
	ACodec   string
	TBR      float64
	VBR      float64
}
