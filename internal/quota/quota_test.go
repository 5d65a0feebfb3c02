package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/cloudvault/internal/api"
)

type staticProfile struct {
	user  *api.User
	delta int64
}

func (s *staticProfile) User() *api.User           { return s.user.Clone() }
func (s *staticProfile) QuotaEstimateDelta() int64 { return s.delta }

func withStats(used, quota int64) *staticProfile {
	return &staticProfile{user: &api.User{ID: "u1", StorageStats: &api.StorageStats{
		TotalSize:       used,
		Quota:           quota,
		RemainingQuota:  quota - used,
		UsagePercentage: float64(used) * 100 / float64(quota),
		FilesCount:      3,
	}}}
}

func TestInfo_DefaultWithoutProfile(t *testing.T) {
	for name, src := range map[string]*staticProfile{
		"no user":  {},
		"no stats": {user: &api.User{ID: "u1"}},
	} {
		t.Run(name, func(t *testing.T) {
			info := NewTracker(src).Info()
			assert.Equal(t, Info{Quota: DefaultQuota, RemainingQuota: DefaultQuota}, info)
		})
	}
}

func TestInfo_FromProfile(t *testing.T) {
	info := NewTracker(withStats(25, 100)).Info()
	assert.Equal(t, int64(25), info.TotalSize)
	assert.Equal(t, int64(75), info.RemainingQuota)
	assert.InDelta(t, 25.0, info.UsagePercentage, 0.001)
	assert.Equal(t, 3, info.FilesCount)
}

func TestHasSpaceFor_Boundaries(t *testing.T) {
	tr := NewTracker(withStats(25, 100))

	assert.True(t, tr.HasSpaceFor(0))
	assert.True(t, tr.HasSpaceFor(75))
	assert.False(t, tr.HasSpaceFor(76))
}

func TestHasSpaceFor_UsesDefaultWithoutProfile(t *testing.T) {
	tr := NewTracker(&staticProfile{})

	assert.True(t, tr.HasSpaceFor(DefaultQuota))
	assert.False(t, tr.HasSpaceFor(DefaultQuota+1))
}

func TestEstimatedInfo_DisplayOnly(t *testing.T) {
	src := withStats(25, 100)
	src.delta = 50
	tr := NewTracker(src)

	est := tr.EstimatedInfo()
	assert.Equal(t, int64(75), est.TotalSize)
	assert.Equal(t, int64(25), est.RemainingQuota)
	assert.InDelta(t, 75.0, est.UsagePercentage, 0.001)

	// Admission ignores the estimate.
	assert.True(t, tr.HasSpaceFor(75))

	src.delta = -500
	est = tr.EstimatedInfo()
	assert.Zero(t, est.TotalSize)
	assert.Equal(t, int64(100), est.RemainingQuota)
}

func TestShortfall(t *testing.T) {
	tr := NewTracker(withStats(0, 1024*1024))

	assert.Equal(t,
		"Not enough storage space! You need 2.0 MiB but only have 1.0 MiB remaining.",
		tr.Shortfall(2*1024*1024))
}
