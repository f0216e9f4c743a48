package analytics

import (
	"fmt"
	"time"

	"github.com/mattborg/galleryedge/pkg/duration"
)

// TimeRange is a closed [Since, Until] window expressed as UNIX
// seconds, derived from either a day count or explicit since/until values.
type TimeRange struct {
	Since int64
	Until int64
}

// DeriveTimeRange derives a [Since, Until] window from either a day count
// (capped at 3650) or explicit since/until values. since/until accept RFC
// 3339 or a natural-language relative expression (e.g. "7 days ago"),
// parsed via pkg/duration.ParseRelativeFrom anchored at now. days <= 0 with no since/until
// defaults to the full retention window (since = 0).
func DeriveTimeRange(days int, since, until string, now time.Time) (TimeRange, error) {
	if since != "" || until != "" {
		sinceT, untilT := time.Unix(0, 0), now
		var err error
		if since != "" {
			sinceT, err = parseTimeParam(since, now)
			if err != nil {
				return TimeRange{}, fmt.Errorf("parsing since: %w", err)
			}
		}
		if until != "" {
			untilT, err = parseTimeParam(until, now)
			if err != nil {
				return TimeRange{}, fmt.Errorf("parsing until: %w", err)
			}
		}
		return TimeRange{Since: sinceT.Unix(), Until: untilT.Unix()}, nil
	}

	if days <= 0 {
		return TimeRange{Since: 0, Until: now.Unix()}, nil
	}
	if days > maxRetentionDays {
		days = maxRetentionDays
	}
	return TimeRange{Since: now.Add(-time.Duration(days) * 24 * time.Hour).Unix(), Until: now.Unix()}, nil
}

func parseTimeParam(s string, anchor time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return duration.ParseRelativeFrom(s, anchor)
}

// ShareTotals is the per-share gallery-view/download aggregate.
type ShareTotals struct {
	ShareHash      string `json:"share_hash"`
	GalleryViews   int64  `json:"gallery_views"`
	FileDownloads  int64  `json:"file_downloads"`
	ZipDownloads   int64  `json:"zip_downloads"`
	DistinctIPs    int64  `json:"distinct_ips"`
	LastSeen       int64  `json:"last_seen"`
	LastDownload   int64  `json:"last_download"`
}

// ShareTotalsFor computes the per-event-type counts, distinct-IP count
// (downloads only), last-seen, and last-download for one share within tr.
func (s *Store) ShareTotalsFor(shareHash string, tr TimeRange) (*ShareTotals, error) {
	result := &ShareTotals{ShareHash: shareHash}

	counts := []struct {
		eventType EventType
		dest      *int64
	}{
		{EventGalleryView, &result.GalleryViews},
		{EventFileDownload, &result.FileDownloads},
		{EventZipDownload, &result.ZipDownloads},
	}
	for _, c := range counts {
		if err := s.gormDB().Model(&DownloadEvent{}).
			Where("share_hash = ? AND event_type = ? AND created_at BETWEEN ? AND ?", shareHash, c.eventType, tr.Since, tr.Until).
			Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	if err := s.gormDB().Model(&DownloadEvent{}).
		Where("share_hash = ? AND event_type IN ? AND created_at BETWEEN ? AND ?",
			shareHash, []EventType{EventFileDownload, EventZipDownload}, tr.Since, tr.Until).
		Distinct("ip").Count(&result.DistinctIPs).Error; err != nil {
		return nil, err
	}

	var lastSeen, lastDownload int64
	s.gormDB().Model(&DownloadEvent{}).
		Where("share_hash = ? AND created_at BETWEEN ? AND ?", shareHash, tr.Since, tr.Until).
		Select("MAX(created_at)").Scan(&lastSeen)
	s.gormDB().Model(&DownloadEvent{}).
		Where("share_hash = ? AND event_type IN ? AND created_at BETWEEN ? AND ?",
			shareHash, []EventType{EventFileDownload, EventZipDownload}, tr.Since, tr.Until).
		Select("MAX(created_at)").Scan(&lastDownload)
	result.LastSeen = lastSeen
	result.LastDownload = lastDownload

	return result, nil
}

// IPLeaderboardRow is one entry of the per-IP leaderboard.
type IPLeaderboardRow struct {
	IP        string `json:"ip"`
	Downloads int64  `json:"downloads"`
}

// IPLeaderboard returns the top 200 IPs by total downloads for one share.
func (s *Store) IPLeaderboard(shareHash string, tr TimeRange) ([]IPLeaderboardRow, error) {
	var rows []IPLeaderboardRow
	err := s.gormDB().Model(&DownloadEvent{}).
		Select("ip, COUNT(*) AS downloads").
		Where("share_hash = ? AND event_type IN ? AND created_at BETWEEN ? AND ? AND ip != ''",
			shareHash, []EventType{EventFileDownload, EventZipDownload}, tr.Since, tr.Until).
		Group("ip").
		Order("downloads DESC").
		Limit(200).
		Scan(&rows).Error
	return rows, err
}

// RecentEvents returns the top 200 most recent events for one share.
func (s *Store) RecentEvents(shareHash string, tr TimeRange) ([]DownloadEvent, error) {
	var events []DownloadEvent
	err := s.gormDB().
		Where("share_hash = ? AND created_at BETWEEN ? AND ?", shareHash, tr.Since, tr.Until).
		Order("created_at DESC").
		Limit(200).
		Find(&events).Error
	return events, err
}

// EventsInRange returns every event for one share within tr, ordered by
// time, for CSV export.
func (s *Store) EventsInRange(shareHash string, tr TimeRange) ([]DownloadEvent, error) {
	var events []DownloadEvent
	err := s.gormDB().
		Where("share_hash = ? AND created_at BETWEEN ? AND ?", shareHash, tr.Since, tr.Until).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// DistinctShareHashes returns every share_hash present in the log, used to
// merge the Backend's live shares with ones deleted upstream.
func (s *Store) DistinctShareHashes() ([]string, error) {
	var hashes []string
	err := s.gormDB().Model(&DownloadEvent{}).Distinct("share_hash").Pluck("share_hash", &hashes).Error
	return hashes, err
}
