package powerbi

import (
	"fmt"
	"sort"
	"time"
)

// RunTimestampLayout formats the run key, e.g. "05/03/2024 - 10:00:00".
const RunTimestampLayout = "02/01/2006 - 15:04:05"

// UnknownValue replaces any field whose element is absent from a row.
const UnknownValue = "Desconhecido"

// CancelledScheduleText is shown as next refresh when the schedule is off.
const CancelledScheduleText = "N/D"

// refreshDatePrefixLen is how many leading characters of the last refresh
// text are compared against the run timestamp.
const refreshDatePrefixLen = 9

// WarningSource tells which of the two failed-refresh lookups matched a row.
type WarningSource string

const (
	WarningNone           WarningSource = ""
	WarningIcon           WarningSource = "icon"
	WarningDataflowButton WarningSource = "dataflow-button"
)

// ReportRecord is the refresh status of one report or dataflow.
type ReportRecord struct {
	WorkspaceName     string        `json:"workspace_name"`
	ItemName          string        `json:"item_name"`
	ItemType          string        `json:"item_type"`
	LastRefreshText   string        `json:"last_refresh_text"`
	RefreshedToday    bool          `json:"refreshed_today"`
	UpdateFailed      bool          `json:"update_failed"`
	WarningSource     WarningSource `json:"warning_source,omitempty"`
	NextRefreshText   string        `json:"next_refresh_text"`
	ScheduleCancelled bool          `json:"schedule_cancelled"`
}

// NewReportRecord derives the computed fields of a record from the raw row
// texts and the run timestamp.
func NewReportRecord(workspace, name, itemType, lastRefresh, nextRefresh, runTimestamp string, warning WarningSource) ReportRecord {
	return ReportRecord{
		WorkspaceName:     workspace,
		ItemName:          name,
		ItemType:          itemType,
		LastRefreshText:   lastRefresh,
		RefreshedToday:    RefreshedToday(lastRefresh, runTimestamp),
		UpdateFailed:      warning != WarningNone,
		WarningSource:     warning,
		NextRefreshText:   nextRefresh,
		ScheduleCancelled: ScheduleCancelled(nextRefresh),
	}
}

// RunTimestamp formats t as a run key.
func RunTimestamp(t time.Time) string {
	return t.Format(RunTimestampLayout)
}

// RefreshedToday compares the first nine characters of the last refresh text
// with those of the run timestamp. This is a plain string comparison, not a
// calendar comparison.
func RefreshedToday(lastRefresh, runTimestamp string) bool {
	return prefix(lastRefresh, refreshDatePrefixLen) == prefix(runTimestamp, refreshDatePrefixLen)
}

// ScheduleCancelled reports whether the next refresh text marks a disabled schedule.
func ScheduleCancelled(nextRefresh string) bool {
	return nextRefresh == CancelledScheduleText
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// WorkspaceRecords maps item name to record for one workspace.
type WorkspaceRecords map[string]ReportRecord

// Add stores rec under its item name, disambiguating on collision. It
// returns the key used.
func (w WorkspaceRecords) Add(rec ReportRecord) string {
	key := UniqueItemKey(w, rec.ItemName, rec.ItemType)
	rec.ItemName = key
	w[key] = rec
	return key
}

// UniqueItemKey returns name if free, then name + " " + itemType, then that
// key with " (n)" appended for n = 2, 3, ...
func UniqueItemKey(existing WorkspaceRecords, name, itemType string) string {
	if _, taken := existing[name]; !taken {
		return name
	}
	key := name + " " + itemType
	if _, taken := existing[key]; !taken {
		return key
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", key, n)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

// RunSnapshot maps run timestamp to workspace name to item name to record.
// Each run owns exactly one timestamp key.
type RunSnapshot map[string]map[string]WorkspaceRecords

// Merge upserts one workspace's records under timestamp. Records for a
// workspace already present are added next to the existing ones.
func (s RunSnapshot) Merge(timestamp string, data map[string]WorkspaceRecords) {
	run, ok := s[timestamp]
	if !ok {
		run = make(map[string]WorkspaceRecords)
		s[timestamp] = run
	}
	for workspace, records := range data {
		target, ok := run[workspace]
		if !ok {
			target = make(WorkspaceRecords, len(records))
			run[workspace] = target
		}
		for _, name := range sortedKeys(records) {
			target.Add(records[name])
		}
	}
}

// Timestamps returns the run keys in chronological order.
func (s RunSnapshot) Timestamps() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, errI := time.Parse(RunTimestampLayout, keys[i])
		tj, errJ := time.Parse(RunTimestampLayout, keys[j])
		if errI != nil || errJ != nil {
			return keys[i] < keys[j]
		}
		return ti.Before(tj)
	})
	return keys
}

// Records flattens the snapshot in timestamp, workspace and item order.
func (s RunSnapshot) Records() []TimestampedRecord {
	var out []TimestampedRecord
	for _, ts := range s.Timestamps() {
		run := s[ts]
		workspaces := make([]string, 0, len(run))
		for ws := range run {
			workspaces = append(workspaces, ws)
		}
		sort.Strings(workspaces)
		for _, ws := range workspaces {
			for _, name := range sortedKeys(run[ws]) {
				out = append(out, TimestampedRecord{Timestamp: ts, Record: run[ws][name]})
			}
		}
	}
	return out
}

// TimestampedRecord is one flattened snapshot row.
type TimestampedRecord struct {
	Timestamp string
	Record    ReportRecord
}

func sortedKeys(m WorkspaceRecords) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
