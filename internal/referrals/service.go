// Package referrals runs the referral application state machine:
// pending -> approved | rejected, each transition exactly once. Approval
// credits the ledger in the same atomic unit as the transition.
package referrals

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/commission"
	"github.com/angelmondragon/packfinderz-rewards/internal/events"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/payloads"
	pkgpagination "github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redislock"
)

const (
	maxPlatformLen    = 64
	maxNoteLen        = 1000
	maxVideoURLLen    = 2048
	maxBulkSize       = 500
	defaultLockTTL    = 10 * time.Second
	defaultLockWaitMS = 2000
)

type ordersRepository interface {
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
}

type userLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error
}

type couponClaimer interface {
	TryClaimTx(ctx context.Context, tx *gorm.DB, subjectID string, kind enums.SettlementKind) (bool, error)
}

// LockStore is the redis surface backing the submission lock.
type LockStore interface {
	redislock.Store
	LockKey(parts ...string) string
}

type ServiceParams struct {
	Repo     *Repository
	Orders   ordersRepository
	Ledger   userLocker
	Guard    couponClaimer
	Events   events.Publisher
	Coupons  events.CouponIssuer
	Program  program.Provider
	Locks    LockStore
	Logger   *logger.Logger
	LockTTL  time.Duration
	LockWait time.Duration
	Clock    func() time.Time
}

type Service struct {
	repo     *Repository
	orders   ordersRepository
	ledger   userLocker
	guard    couponClaimer
	events   events.Publisher
	coupons  events.CouponIssuer
	program  program.Provider
	locks    LockStore
	logg     *logger.Logger
	lockTTL  time.Duration
	lockWait time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("referral repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Guard == nil:
		return nil, fmt.Errorf("settlement guard required")
	case params.Events == nil:
		return nil, fmt.Errorf("event publisher required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon issuer required")
	case params.Program == nil:
		return nil, fmt.Errorf("program provider required")
	case params.Locks == nil:
		return nil, fmt.Errorf("lock store required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	wait := params.LockWait
	if wait <= 0 {
		wait = defaultLockWaitMS * time.Millisecond
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     params.Repo,
		orders:   params.Orders,
		ledger:   params.Ledger,
		guard:    params.Guard,
		events:   params.Events,
		coupons:  params.Coupons,
		program:  params.Program,
		locks:    params.Locks,
		logg:     params.Logger,
		lockTTL:  ttl,
		lockWait: wait,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// SubmitInput is a user's claim that one of their orders earned a referral.
type SubmitInput struct {
	UserID   string
	OrderID  string
	Platform string
	VideoURL string
	Note     string
}

// SubmitResult carries the application; Created is false when an active
// application for the same (user, order) already existed.
type SubmitResult struct {
	Application models.ReferralApplication
	Created     bool
}

// Submit records a pending application. Double submits resolve to the
// existing application instead of an error.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	input, err := input.normalize()
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if order == nil || order.CustomerID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order not found for user")
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not eligible for a referral")
	}

	if existing, err := s.findActive(ctx, input.UserID, input.OrderID); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Application: *existing}, nil
	}

	lock, err := redislock.New(s.locks, s.locks.LockKey("referral", input.UserID, input.OrderID), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build submission lock")
	}
	if err := lock.AcquireWait(ctx, s.lockWait); err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "referral submission in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire submission lock")
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release referral submission lock", err)
		}
	}()

	// The holder before us may have inserted while we waited.
	if existing, err := s.findActive(ctx, input.UserID, input.OrderID); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Application: *existing}, nil
	}

	app := models.ReferralApplication{
		ID:              uuid.New(),
		UserID:          input.UserID,
		OrderID:         input.OrderID,
		OrderTotalCents: order.TotalCents,
		CreditCents:     commission.New(s.program.Snapshot()).Referral(order.TotalCents),
		Platform:        input.Platform,
		VideoURL:        input.VideoURL,
		Note:            input.Note,
		Status:          enums.ReferralStatusPending,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, &app); err != nil {
		if db.IsUniqueViolation(err, ActiveIndex) {
			existing, findErr := s.findActive(ctx, input.UserID, input.OrderID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return &SubmitResult{Application: *existing}, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create referral application")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":        app.UserID,
		"order_id":       app.OrderID,
		"application_id": app.ID.String(),
		"credit_cents":   app.CreditCents,
	})
	s.logg.Info(logCtx, "referral application submitted")
	return &SubmitResult{Application: app, Created: true}, nil
}

// Decision is the outcome of one Approve or Reject call. Applied is false when
// the application was no longer pending.
type Decision struct {
	Application models.ReferralApplication
	Applied     bool
	Credit      *ledger.Result
}

// Approve moves a pending application to approved and credits its amount.
// Approving anything that is not pending is a no-op.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*Decision, error) {
	return s.decide(ctx, id, enums.ReferralStatusApproved)
}

// Reject moves a pending application to rejected. No ledger effect.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Decision, error) {
	return s.decide(ctx, id, enums.ReferralStatusRejected)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, to enums.ReferralStatus) (*Decision, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id is required")
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "referral application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referral application")
	}
	if app.Status.IsTerminal() {
		return &Decision{Application: *app}, nil
	}

	snap := s.program.Snapshot()
	decision := &Decision{Application: *app}
	err = s.ledger.WithUserLock(ctx, app.UserID, func(ut *ledger.UserTx) error {
		now := ut.Now()
		repo := s.repo.WithTx(ut.DB())
		moved, err := repo.Transition(ctx, id, enums.ReferralStatusPending, to, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition referral application")
		}
		if !moved {
			return nil
		}
		decision.Applied = true
		decision.Application.Status = to
		decision.Application.DecidedAt = &now

		if to != enums.ReferralStatusApproved {
			return nil
		}
		return s.settleApproval(ctx, ut, decision, snap)
	})
	if err != nil {
		return nil, err
	}
	if !decision.Applied {
		// lost the race to a concurrent decision
		if latest, err := s.repo.FindByID(ctx, id); err == nil {
			decision.Application = *latest
		}
		return decision, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":        app.UserID,
		"application_id": id.String(),
		"status":         to,
	})
	s.logg.Info(logCtx, "referral application decided")
	return decision, nil
}

func (s *Service) settleApproval(ctx context.Context, ut *ledger.UserTx, decision *Decision, snap program.Snapshot) error {
	app := decision.Application
	if app.CreditCents > 0 {
		res, err := ut.Adjust(ctx, ledger.AdjustInput{
			AmountCents: app.CreditCents,
			Type:        enums.LedgerEntryReferral,
			Reason:      fmt.Sprintf("referral approved for order %s", app.OrderID),
			ReferenceID: "referral:" + app.ID.String(),
		})
		if err != nil {
			return err
		}
		decision.Credit = res
	}

	if err := s.events.ReferralApproved(ctx, ut.DB(), payloads.ReferralApproved{
		UserID:        app.UserID,
		ApplicationID: app.ID.String(),
		OrderID:       app.OrderID,
		CreditCents:   app.CreditCents,
		ApprovedAt:    *app.DecidedAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue referral approved event")
	}

	if !snap.Referral.DualReward {
		return nil
	}
	granted, err := s.guard.TryClaimTx(ctx, ut.DB(), app.ID.String(), enums.SettlementReferralCoupon)
	if err != nil {
		return err
	}
	if !granted {
		return nil
	}
	if err := s.coupons.RequestCoupon(ctx, ut.DB(), payloads.CouponRequested{
		UserID:        app.UserID,
		ApplicationID: app.ID.String(),
		OrderID:       app.OrderID,
		Percent:       snap.Referral.CouponPercent.String(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue coupon request")
	}
	return nil
}

// BulkResult counts how a batch decision landed. Failed rows keep their
// state and are reported in the returned error.
type BulkResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// BulkDecide applies the same conditional transition to every id. Rows that
// are no longer pending, or missing, are skipped; skipped rows fire nothing.
func (s *Service) BulkDecide(ctx context.Context, ids []uuid.UUID, to enums.ReferralStatus) (BulkResult, error) {
	var result BulkResult
	if to != enums.ReferralStatusApproved && to != enums.ReferralStatusRejected {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approved or rejected")
	}
	if len(ids) == 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "at least one application id is required")
	}
	if len(ids) > maxBulkSize {
		return result, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d applications per batch", maxBulkSize))
	}

	var errs error
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			result.Skipped++
			continue
		}
		seen[id] = struct{}{}

		decision, err := s.decide(ctx, id, to)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			result.Skipped++
		case err != nil:
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("application %s: %w", id, err))
		case decision.Applied:
			result.Processed++
		default:
			result.Skipped++
		}
	}
	return result, errs
}

// List returns applications newest first. Used for GetReferralApplications
// and the admin queue.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pkgpagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pkgpagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, listQuery{
		userID: strings.TrimSpace(params.UserID),
		status: params.Status,
		limit:  limit + 1,
		cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list referral applications")
	}

	rows, next := pkgpagination.Trim(rows, limit, func(r models.ReferralApplication) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	result := &ListResult{Items: make([]ListItem, 0, len(rows)), Cursor: next}
	for _, row := range rows {
		result.Items = append(result.Items, ToListItem(row))
	}
	return result, nil
}

func (s *Service) findActive(ctx context.Context, userID, orderID string) (*models.ReferralApplication, error) {
	app, err := s.repo.FindActive(ctx, userID, orderID)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referral application")
	}
	return app, nil
}

func (in SubmitInput) normalize() (SubmitInput, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.Note = strings.TrimSpace(in.Note)

	switch {
	case in.UserID == "":
		return in, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case in.OrderID == "":
		return in, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case in.Platform == "" || len(in.Platform) > maxPlatformLen:
		return in, pkgerrors.New(pkgerrors.CodeValidation, "platform is required")
	case len(in.Note) > maxNoteLen:
		return in, pkgerrors.New(pkgerrors.CodeValidation, "note is too long")
	case len(in.VideoURL) > maxVideoURLLen:
		return in, pkgerrors.New(pkgerrors.CodeValidation, "video url is too long")
	}
	u, err := url.ParseRequestURI(in.VideoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "video url must be an http(s) link")
	}
	return in, nil
}
