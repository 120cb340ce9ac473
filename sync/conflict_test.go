package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/crmsync/models"
)

func TestResolve(t *testing.T) {
	early := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	tests := []struct {
		name   string
		policy models.ConflictResolution
		local  time.Time
		crm    time.Time
		want   models.Side
	}{
		{"local wins", models.ConflictLocalWins, early, late, models.SideLocal},
		{"crm wins", models.ConflictCRMWins, late, early, models.SideCRM},
		{"newest local", models.ConflictNewestWins, late, early, models.SideLocal},
		{"newest crm", models.ConflictNewestWins, early, late, models.SideCRM},
		{"newest tie", models.ConflictNewestWins, early, early, models.SideLocal},
		{"manual", models.ConflictManual, early, late, models.SideNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.policy, tt.local, tt.crm))
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		assert.Equal(t, models.SideLocal, Resolve(models.ConflictNewestWins, at, at))
	}
}

func TestInConflict(t *testing.T) {
	last := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	state := &models.SyncState{LastSyncedAt: last}

	assert.True(t, inConflict(state, last.Add(time.Second), last.Add(time.Second)))
	assert.False(t, inConflict(state, last.Add(time.Second), last))
	assert.False(t, inConflict(state, last, last.Add(time.Second)))
}

func TestSyncedAtNeverBeforeCRM(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ahead := now.Add(3 * time.Second)

	assert.Equal(t, ahead, syncedAt(now, ahead))
	assert.Equal(t, now, syncedAt(now, now.Add(-time.Hour)))
}
