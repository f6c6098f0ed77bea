package model

import (
	"fmt"
	"slices"
	"time"
)

// ScheduleRule describes a recurring snapshot and how long its snapshots
// are kept.
type ScheduleRule struct {
	SnapshotLifetime Duration  `yaml:"snapshot_lifetime" json:"snapshot_lifetime"`
	Interval         Duration  `yaml:"interval" json:"interval"`
	LastExecution    time.Time `yaml:"last_execution" json:"last_execution"`
}

// SameCadence reports whether two rules share lifetime and interval.
func (r ScheduleRule) SameCadence(o ScheduleRule) bool {
	return r.SnapshotLifetime == o.SnapshotLifetime && r.Interval == o.Interval
}

// NextExecution returns when the rule is next due. ok is false for
// rules with an infinite interval, which never recur.
func (r ScheduleRule) NextExecution() (time.Time, bool) {
	return r.Interval.AddTo(r.LastExecution)
}

// Due reports whether the rule should run at now.
func (r ScheduleRule) Due(now time.Time) bool {
	next, ok := r.NextExecution()
	return ok && !next.After(now)
}

// Schedule is the ordered rule list of a backup.
type Schedule []ScheduleRule

// AddRule appends a rule.
func (s *Schedule) AddRule(rule ScheduleRule) {
	*s = append(*s, rule)
}

// RemoveRule removes the first rule equal to rule.
func (s *Schedule) RemoveRule(rule ScheduleRule) error {
	for i, r := range *s {
		if r.SameCadence(rule) && r.LastExecution.Equal(rule.LastExecution) {
			*s = slices.Delete(*s, i, i+1)
			return nil
		}
	}
	return ErrRuleNotInSchedule
}

// Snapshot is one point-in-time capture of a backup root.
type Snapshot struct {
	Timestamp      time.Time        `yaml:"timestamp" json:"timestamp"`
	ExpirationTime *time.Time       `yaml:"expiration_time,omitempty" json:"expiration_time,omitempty"`
	RootTreeRef    BlobIdentifier   `yaml:"root_tree_ref" json:"root_tree_ref"`
	BlobRefs       []BlobIdentifier `yaml:"blob_refs" json:"blob_refs"`
}

// NewSnapshot builds a snapshot taken at ts that lives for lifetime.
// BlobRefs lists the tree blob first, then the file content refs.
func NewSnapshot(ts time.Time, lifetime Duration, tree BlobIdentifier, files []BlobIdentifier) Snapshot {
	snap := Snapshot{
		Timestamp:   ts,
		RootTreeRef: tree,
		BlobRefs:    append([]BlobIdentifier{tree}, files...),
	}
	if exp, ok := lifetime.AddTo(ts); ok {
		snap.ExpirationTime = &exp
	}
	return snap
}

// Equal compares snapshots structurally. Times compare by instant.
func (s Snapshot) Equal(o Snapshot) bool {
	if !s.Timestamp.Equal(o.Timestamp) || s.RootTreeRef != o.RootTreeRef {
		return false
	}
	switch {
	case s.ExpirationTime == nil && o.ExpirationTime == nil:
	case s.ExpirationTime == nil || o.ExpirationTime == nil:
		return false
	case !s.ExpirationTime.Equal(*o.ExpirationTime):
		return false
	}
	return slices.Equal(s.BlobRefs, o.BlobRefs)
}

// Expired reports whether the snapshot's lifetime has run out at now.
func (s Snapshot) Expired(now time.Time) bool {
	return s.ExpirationTime != nil && !now.Before(*s.ExpirationTime)
}

// Backup is a named backup of one directory on one device.
type Backup struct {
	ID        BackupID         `yaml:"id" json:"id"`
	Device    DeviceIdentifier `yaml:"device" json:"device"`
	Schedule  Schedule         `yaml:"schedule" json:"schedule"`
	FileRoot  string           `yaml:"file_root" json:"file_root"`
	Snapshots []Snapshot       `yaml:"snapshots" json:"snapshots"`
}

// AddSnapshot appends snap unless an equal snapshot is already present.
// It reports whether the snapshot was added.
func (b *Backup) AddSnapshot(snap Snapshot) bool {
	for _, existing := range b.Snapshots {
		if existing.Equal(snap) {
			return false
		}
	}
	b.Snapshots = append(b.Snapshots, snap)
	return true
}

// MergeSnapshots appends every snapshot from other not already present.
// Existing snapshots are never removed or reordered.
func (b *Backup) MergeSnapshots(other []Snapshot) {
	for _, snap := range other {
		b.AddSnapshot(snap)
	}
}

// LatestSnapshot returns the last snapshot in sequence order.
func (b *Backup) LatestSnapshot() (Snapshot, error) {
	if len(b.Snapshots) == 0 {
		return Snapshot{}, fmt.Errorf("backup %s: %w", b.ID, ErrSnapshotNotFound)
	}
	return b.Snapshots[len(b.Snapshots)-1], nil
}

// Touch records an execution of a rule with the given cadence at now,
// adding a new rule when none matches and the interval is finite.
func (b *Backup) Touch(lifetime, interval Duration, now time.Time) {
	want := ScheduleRule{SnapshotLifetime: lifetime, Interval: interval, LastExecution: now}
	for i := range b.Schedule {
		if b.Schedule[i].SameCadence(want) {
			b.Schedule[i].LastExecution = now
			return
		}
	}
	if !interval.IsInfinite() {
		b.Schedule.AddRule(want)
	}
}
