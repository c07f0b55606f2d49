package entity

const (
	TickDownloading = "downloading"
	TickFinished    = "finished"
)

// Tick is one progress report from the download engine.
type Tick struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	Speed           *float64 // bytes per second
	ETA             *int     // seconds
	Title           string
}

type EngineRequest struct {
	URL      string
	Quality  string
	Output   string // output template, extension chosen by the engine
	Continue bool
}
