package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/store"
)

// Outcome 单个实体的协调结果
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped: the source is absent or unqualified and no record existed.
	OutcomeSkipped Outcome = "skipped"
)

// KindStats 每种来源的统计
type KindStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

func (s *KindStats) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeDeleted:
		s.Deleted++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// ResyncError 单个实体的失败记录
type ResyncError struct {
	Kind    domain.SourceKind `json:"kind"`
	Ref     string            `json:"ref,omitempty"`
	Message string            `json:"message"`
}

// ResyncReport 全量同步报告
type ResyncReport struct {
	StartedAt  time.Time                        `json:"started_at"`
	FinishedAt time.Time                        `json:"finished_at"`
	Kinds      map[domain.SourceKind]*KindStats `json:"kinds"`
	Errors     []ResyncError                    `json:"errors"`
	// Canceled is set when the context ended before every entity was visited.
	Canceled bool `json:"canceled"`
}

func newResyncReport(now time.Time) *ResyncReport {
	r := &ResyncReport{
		StartedAt: now,
		Kinds:     map[domain.SourceKind]*KindStats{},
		Errors:    []ResyncError{},
	}
	for _, k := range domain.SourceKinds {
		r.Kinds[k] = &KindStats{}
	}
	return r
}

func (r *ResyncReport) stats(kind domain.SourceKind) *KindStats {
	s, ok := r.Kinds[kind]
	if !ok {
		s = &KindStats{}
		r.Kinds[kind] = s
	}
	return s
}

func (r *ResyncReport) recordError(kind domain.SourceKind, ref string, err error) {
	r.stats(kind).Errored++
	r.Errors = append(r.Errors, ResyncError{Kind: kind, Ref: ref, Message: err.Error()})
}

// Totals sums the per-kind counters.
func (r *ResyncReport) Totals() KindStats {
	var t KindStats
	for _, s := range r.Kinds {
		t.Created += s.Created
		t.Updated += s.Updated
		t.Deleted += s.Deleted
		t.Unchanged += s.Unchanged
		t.Skipped += s.Skipped
		t.Errored += s.Errored
	}
	return t
}

const (
	lastReportKey = "credentials:resync:last"
	lastReportTTL = 7 * 24 * time.Hour
)

// ReportStore keeps the most recent full resync report in the KV.
type ReportStore struct {
	kv store.KV
}

// NewReportStore kv 为 nil 时使用进程内存
func NewReportStore(kv store.KV) *ReportStore {
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	return &ReportStore{kv: kv}
}

func (s *ReportStore) Save(ctx context.Context, report *ResyncReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal resync report: %w", err)
	}
	return s.kv.Set(ctx, lastReportKey, string(b), lastReportTTL)
}

// Last returns (nil, nil) when no report has been stored yet.
func (s *ReportStore) Last(ctx context.Context) (*ResyncReport, error) {
	raw, err := s.kv.Get(ctx, lastReportKey)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read resync report: %w", err)
	}
	var report ResyncReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("failed to decode resync report: %w", err)
	}
	return &report, nil
}
