package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/identity"
	applog "secretariat-data/internal/logger"
	"secretariat-data/internal/repository"
	"secretariat-data/internal/store"

	"go.uber.org/zap"
)

// Reconciler keeps the credentials table in line with members, districts and towns.
// It is the only writer of derived fields; operators only touch active/pinned and
// hand-edited username/password.
type Reconciler struct {
	creds         repository.CredentialsRepository
	sources       repository.SourcesRepository
	locker        store.Locker
	events        EventPublisher
	reports       *ReportStore
	notifier      ReportNotifier
	adminUsername string
	logger        *zap.Logger
	now           func() time.Time
}

// NewReconciler 创建协调器；adminUsername 为静态管理员账号（参与唯一性检查）
func NewReconciler(
	creds repository.CredentialsRepository,
	sources repository.SourcesRepository,
	locker store.Locker,
	adminUsername string,
	logger *zap.Logger,
) *Reconciler {
	if locker == nil {
		locker = store.NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		creds:         creds,
		sources:       sources,
		locker:        locker,
		events:        NopEventPublisher{},
		reports:       NewReportStore(nil),
		adminUsername: adminUsername,
		logger:        logger,
		now:           time.Now,
	}
}

// WithEvents sets the credential event publisher.
func (r *Reconciler) WithEvents(p EventPublisher) *Reconciler {
	if p != nil {
		r.events = p
	}
	return r
}

// WithReportStore sets where the last full resync report is kept.
func (r *Reconciler) WithReportStore(s *ReportStore) *Reconciler {
	if s != nil {
		r.reports = s
	}
	return r
}

// WithNotifier sets the notifier called after each full resync.
func (r *Reconciler) WithNotifier(n ReportNotifier) *Reconciler {
	r.notifier = n
	return r
}

var _ SourceChangeNotifier = (*Reconciler)(nil)

// SourceChanged runs the incremental pass for one source entity.
func (r *Reconciler) SourceChanged(ctx context.Context, kind domain.SourceKind, id int64) error {
	_, err := r.ReconcileOne(ctx, kind, id)
	return err
}

func lockKey(kind domain.SourceKind, ref string) string {
	return string(kind) + ":" + ref
}

// ReconcileOne re-reads one source entity and applies the minimal diff to its credential.
func (r *Reconciler) ReconcileOne(ctx context.Context, kind domain.SourceKind, id int64) (Outcome, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, kind)
	}
	if id <= 0 {
		return "", fmt.Errorf("%w: source id must be positive", ErrInvalidInput)
	}
	ref := domain.FormatRef(id)

	unlock, err := r.locker.Lock(ctx, lockKey(kind, ref))
	if err != nil {
		return "", fmt.Errorf("failed to lock %s %s: %w", kind, ref, err)
	}
	defer unlock()

	derived, qualified, err := r.derive(ctx, kind, id)
	if err != nil {
		return "", err
	}

	existing, err := r.creds.FindBySourceRef(ctx, kind, ref)
	if err != nil {
		return "", err
	}

	if !qualified {
		if existing == nil {
			return OutcomeSkipped, nil
		}
		if err := r.creds.Delete(ctx, existing.ID); err != nil {
			return "", err
		}
		r.logger.Info("Credential deleted: source unqualified",
			zap.String("source_kind", string(kind)),
			zap.String("source_ref", ref),
			applog.Masked("username", existing.Username),
		)
		r.publish(ctx, CredentialDeleted, existing)
		return OutcomeDeleted, nil
	}

	if existing == nil {
		return r.create(ctx, kind, ref, derived)
	}
	return r.update(ctx, existing, derived)
}

// derive reads the source and reports whether it is qualified.
// identity.ErrInvalidSource is folded into qualified == false.
func (r *Reconciler) derive(ctx context.Context, kind domain.SourceKind, id int64) (identity.Derived, bool, error) {
	var (
		d   identity.Derived
		err error
	)
	switch kind {
	case domain.SourceMember:
		m, gerr := r.sources.GetMember(ctx, id)
		if gerr != nil {
			return identity.Derived{}, false, gerr
		}
		d, err = identity.DeriveMember(m)
	case domain.SourceDistrictChair:
		dc, gerr := r.sources.GetDistrictChair(ctx, id)
		if gerr != nil {
			return identity.Derived{}, false, gerr
		}
		d, err = identity.DeriveDistrictChair(dc)
	case domain.SourceTownChair:
		tc, gerr := r.sources.GetTownChair(ctx, id)
		if gerr != nil {
			return identity.Derived{}, false, gerr
		}
		d, err = identity.DeriveTownChair(tc)
	default:
		return identity.Derived{}, false, fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, kind)
	}
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSource) {
			return identity.Derived{}, false, nil
		}
		return identity.Derived{}, false, err
	}
	return d, true, nil
}

// checkUsernameAvailable is the pre-check; the store's unique index stays authoritative.
func (r *Reconciler) checkUsernameAvailable(ctx context.Context, username, selfID string) error {
	if r.adminUsername != "" && username == r.adminUsername {
		return fmt.Errorf("%w: %q is reserved for the administrator", ErrUsernameCollision, username)
	}
	other, err := r.creds.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if other != nil && other.ID != selfID {
		return fmt.Errorf("%w: %q already belongs to %s %s", ErrUsernameCollision, username, other.SourceKind, other.SourceRef)
	}
	return nil
}

func (r *Reconciler) create(ctx context.Context, kind domain.SourceKind, ref string, d identity.Derived) (Outcome, error) {
	if err := r.checkUsernameAvailable(ctx, d.Username, ""); err != nil {
		return "", err
	}
	created, err := r.creds.Create(ctx, &domain.Credential{
		SourceKind:  kind,
		SourceRef:   ref,
		Username:    d.Username,
		Password:    d.Password,
		DisplayName: d.DisplayName,
		Active:      true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return "", fmt.Errorf("%w: %q: %w", ErrUsernameCollision, d.Username, err)
		}
		return "", err
	}
	r.logger.Info("Credential created",
		zap.String("source_kind", string(kind)),
		zap.String("source_ref", ref),
		applog.Masked("username", created.Username),
	)
	r.publish(ctx, CredentialCreated, created)
	return OutcomeCreated, nil
}

func (r *Reconciler) update(ctx context.Context, existing *domain.Credential, d identity.Derived) (Outcome, error) {
	var u repository.CredentialUpdate
	if !existing.Pinned {
		if existing.Username != d.Username {
			u.Username = &d.Username
		}
		if existing.Password != d.Password {
			u.Password = &d.Password
		}
	}
	if existing.DisplayName != d.DisplayName {
		u.DisplayName = &d.DisplayName
	}
	if u.Empty() {
		return OutcomeUnchanged, nil
	}

	if u.Username != nil {
		if err := r.checkUsernameAvailable(ctx, *u.Username, existing.ID); err != nil {
			return "", err
		}
	}
	if err := r.creds.Update(ctx, existing.ID, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return "", fmt.Errorf("%w: %q: %w", ErrUsernameCollision, d.Username, err)
		}
		return "", err
	}

	updated := existing.Clone()
	if u.Username != nil {
		updated.Username = *u.Username
	}
	r.logger.Info("Credential updated",
		zap.String("source_kind", string(existing.SourceKind)),
		zap.String("source_ref", existing.SourceRef),
		applog.Masked("username", updated.Username),
		zap.Bool("username_changed", u.Username != nil),
		zap.Bool("password_changed", u.Password != nil),
		zap.Bool("display_name_changed", u.DisplayName != nil),
	)
	r.publish(ctx, CredentialUpdated, updated)
	return OutcomeUpdated, nil
}

func (r *Reconciler) publish(ctx context.Context, t CredentialEventType, c *domain.Credential) {
	ev := CredentialEvent{
		Type:     t,
		Kind:     c.SourceKind,
		Ref:      c.SourceRef,
		Username: c.Username,
		At:       r.now(),
	}
	if err := r.events.PublishCredentialEvent(ctx, ev); err != nil {
		r.logger.Warn("Failed to publish credential event",
			zap.String("type", string(t)),
			applog.Masked("username", c.Username),
			zap.Error(err),
		)
	}
}

// listIDs returns the ids of every source entity of a kind, ascending.
func (r *Reconciler) listIDs(ctx context.Context, kind domain.SourceKind) ([]int64, error) {
	var ids []int64
	switch kind {
	case domain.SourceMember:
		members, err := r.sources.ListActiveMembers(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			ids = append(ids, m.MemberID)
		}
	case domain.SourceDistrictChair:
		districts, err := r.sources.ListDistrictChairs(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range districts {
			ids = append(ids, d.DistrictID)
		}
	case domain.SourceTownChair:
		towns, err := r.sources.ListTownChairs(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range towns {
			ids = append(ids, t.TownID)
		}
	}
	return ids, nil
}

// ResyncAll reconciles every source entity of every kind, then sweeps orphans.
// Per-entity failures are recorded in the report and never abort the batch.
// Once ctx is done the entity in progress finishes and the pass stops.
func (r *Reconciler) ResyncAll(ctx context.Context) (*ResyncReport, error) {
	report := newResyncReport(r.now())
	r.logger.Info("Credential resync started")

	// an entity pass, once started, runs to completion
	entityCtx := context.WithoutCancel(ctx)
	// entities that already failed this pass; the sweep leaves them alone
	failed := make(map[string]bool)

kinds:
	for _, kind := range domain.SourceKinds {
		ids, err := r.listIDs(ctx, kind)
		if err != nil {
			if ctx.Err() != nil {
				report.Canceled = true
				break
			}
			report.recordError(kind, "", fmt.Errorf("failed to list sources: %w", err))
			r.logger.Error("Failed to list sources", zap.String("source_kind", string(kind)), zap.Error(err))
			continue
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				report.Canceled = true
				break kinds
			}
			outcome, err := r.ReconcileOne(entityCtx, kind, id)
			if err != nil {
				ref := domain.FormatRef(id)
				failed[lockKey(kind, ref)] = true
				report.recordError(kind, ref, err)
				r.logger.Warn("Credential reconcile failed",
					zap.String("source_kind", string(kind)),
					zap.String("source_ref", ref),
					zap.Error(err),
				)
				continue
			}
			report.stats(kind).add(outcome)
		}
	}

	if !report.Canceled {
		r.sweep(ctx, entityCtx, report, failed)
	}

	report.FinishedAt = r.now()
	totals := report.Totals()
	r.logger.Info("Credential resync finished",
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
		zap.Int("deleted", totals.Deleted),
		zap.Int("unchanged", totals.Unchanged),
		zap.Int("errored", totals.Errored),
		zap.Bool("canceled", report.Canceled),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := r.reports.Save(entityCtx, report); err != nil {
		r.logger.Warn("Failed to store resync report", zap.Error(err))
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyResync(entityCtx, report); err != nil {
			r.logger.Warn("Failed to notify resync report", zap.Error(err))
		}
	}
	return report, nil
}

// LastReport returns the most recent stored report, or nil.
func (r *Reconciler) LastReport(ctx context.Context) (*ResyncReport, error) {
	return r.reports.Last(ctx)
}

// sweep deletes every record whose source is gone, unqualified, unreferenced
// or of an unknown kind. Sources are re-read, never trusted from the record.
// Records of entities in skip were already counted as errors and are kept.
func (r *Reconciler) sweep(ctx, entityCtx context.Context, report *ResyncReport, skip map[string]bool) {
	records, err := r.creds.ListAll(ctx)
	if err != nil {
		report.recordError("", "", fmt.Errorf("failed to list credentials for sweep: %w", err))
		r.logger.Error("Failed to list credentials for sweep", zap.Error(err))
		return
	}
	for _, c := range records {
		if ctx.Err() != nil {
			report.Canceled = true
			return
		}
		if skip[lockKey(c.SourceKind, c.SourceRef)] {
			continue
		}
		deleted, err := r.sweepOne(entityCtx, c)
		if err != nil {
			report.recordError(c.SourceKind, c.SourceRef, err)
			r.logger.Warn("Credential sweep failed",
				zap.String("credential_id", c.ID),
				zap.String("source_kind", string(c.SourceKind)),
				zap.String("source_ref", c.SourceRef),
				zap.Error(err),
			)
			continue
		}
		if deleted {
			report.stats(c.SourceKind).Deleted++
		}
	}
}

func (r *Reconciler) sweepOne(ctx context.Context, c *domain.Credential) (bool, error) {
	id, ok := domain.ParseRef(c.SourceRef)
	if !c.SourceKind.Valid() || !ok {
		if err := r.creds.Delete(ctx, c.ID); err != nil {
			return false, err
		}
		r.logger.Info("Orphan credential deleted: malformed source reference",
			zap.String("credential_id", c.ID),
			zap.String("source_kind", string(c.SourceKind)),
			zap.String("source_ref", c.SourceRef),
			applog.Masked("username", c.Username),
		)
		r.publish(ctx, CredentialDeleted, c)
		return true, nil
	}

	unlock, err := r.locker.Lock(ctx, lockKey(c.SourceKind, c.SourceRef))
	if err != nil {
		return false, err
	}
	defer unlock()

	_, qualified, err := r.derive(ctx, c.SourceKind, id)
	if err != nil {
		return false, err
	}
	if qualified {
		return false, nil
	}
	if err := r.creds.Delete(ctx, c.ID); err != nil {
		return false, err
	}
	r.logger.Info("Orphan credential deleted",
		zap.String("credential_id", c.ID),
		zap.String("source_kind", string(c.SourceKind)),
		zap.String("source_ref", c.SourceRef),
		applog.Masked("username", c.Username),
	)
	r.publish(ctx, CredentialDeleted, c)
	return true, nil
}
