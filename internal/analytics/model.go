package analytics

// EventType enumerates the counted browser-visible actions.
type EventType string

const (
	EventGalleryView EventType = "gallery_view"
	EventFileDownload EventType = "file_download"
	EventZipDownload  EventType = "zip_download"
)

// DownloadEvent is the single append-only row recorded per counted action.
// Indexed by (share_hash, created_at), by created_at, and by ip, matching
// the three aggregation query shapes below.
type DownloadEvent struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	ShareHash  string    `gorm:"size:64;not null;index:idx_share_created,priority:1"`
	EventType  EventType `gorm:"size:32;not null"`
	FilePath   string    `gorm:"size:1024"`
	IP         string    `gorm:"size:64;index:idx_ip"`
	UserAgent  string    `gorm:"size:512"`
	Referer    string    `gorm:"size:1024"`
	CreatedAt  int64     `gorm:"not null;index:idx_share_created,priority:2;index:idx_created"`
}

func (DownloadEvent) TableName() string { return "download_events" }
