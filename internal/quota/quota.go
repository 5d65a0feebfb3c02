// Package quota answers "how much space is left" from the last known
// profile snapshot. Answers are advisory: the server makes the final call
// during upload.
package quota

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/cloudvault/internal/api"
)

// DefaultQuota is reported when no profile is available.
const DefaultQuota int64 = 500 * 1024 * 1024

// Info is a storage usage snapshot.
type Info struct {
	TotalSize       int64   `json:"totalSize"`
	Quota           int64   `json:"quota"`
	RemainingQuota  int64   `json:"remainingQuota"`
	UsagePercentage float64 `json:"usagePercentage"`
	FilesCount      int     `json:"filesCount"`
}

// ProfileSource supplies the current profile and the display-only usage
// adjustment. auth.Manager implements it.
type ProfileSource interface {
	User() *api.User
	QuotaEstimateDelta() int64
}

// Tracker reads quota from a ProfileSource.
type Tracker struct {
	src ProfileSource
}

// NewTracker returns a tracker over src.
func NewTracker(src ProfileSource) *Tracker {
	return &Tracker{src: src}
}

// defaultInfo is the zero-usage snapshot used without a profile.
func defaultInfo() Info {
	return Info{Quota: DefaultQuota, RemainingQuota: DefaultQuota}
}

// Info returns the authoritative snapshot, or the default when no profile
// (or no storage stats) is known.
func (t *Tracker) Info() Info {
	user := t.src.User()
	if user == nil || user.StorageStats == nil {
		return defaultInfo()
	}

	s := user.StorageStats

	return Info{
		TotalSize:       s.TotalSize,
		Quota:           s.Quota,
		RemainingQuota:  s.RemainingQuota,
		UsagePercentage: s.UsagePercentage,
		FilesCount:      s.FilesCount,
	}
}

// EstimatedInfo is Info with the display-only adjustment applied. It is for
// rendering only; admission decisions use Info.
func (t *Tracker) EstimatedInfo() Info {
	info := t.Info()

	delta := t.src.QuotaEstimateDelta()
	if delta == 0 {
		return info
	}

	info.TotalSize = max(info.TotalSize+delta, 0)
	info.RemainingQuota = max(info.Quota-info.TotalSize, 0)

	if info.Quota > 0 {
		info.UsagePercentage = min(float64(info.TotalSize)*100/float64(info.Quota), 100)
	}

	return info
}

// HasSpaceFor reports whether bytes fit in the remaining quota.
func (t *Tracker) HasSpaceFor(bytes int64) bool {
	return bytes <= t.Info().RemainingQuota
}

// Shortfall describes why bytes do not fit.
func (t *Tracker) Shortfall(bytes int64) string {
	return fmt.Sprintf("Not enough storage space! You need %s but only have %s remaining.",
		FormatBytes(bytes), FormatBytes(t.Info().RemainingQuota))
}

// FormatBytes renders n in binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}

	return humanize.IBytes(uint64(n))
}
