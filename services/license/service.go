package license

import (
	"context"
	"errors"
	"strings"

	"license-authority/pkg/clock"
	"license-authority/pkg/db/option"
	"license-authority/pkg/db/pagination"
	"license-authority/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const instrumentationName = "license-authority/services/license"

type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      clock.Clock
	cache      Cache
	dispatcher *Dispatcher
	policy     DurationPolicy

	license repository.Repository[License]
	event   repository.Repository[Event]

	tracer     trace.Tracer
	operations metric.Int64Counter
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Clock      clock.Clock
	Cache      Cache                `optional:"true"`
	Dispatcher *Dispatcher          `optional:"true"`
	Policy     DurationPolicy       `optional:"true"`
	Meter      metric.MeterProvider `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:         p.DB,
		node:       p.Node,
		clock:      p.Clock,
		cache:      p.Cache,
		dispatcher: p.Dispatcher,
		policy:     p.Policy,

		license: repository.ProvideStore[License](p.DB),
		event:   repository.ProvideStore[Event](p.DB),

		tracer: otel.Tracer(instrumentationName),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.cache == nil {
		s.cache = NopCache{}
	}
	if s.policy == nil {
		s.policy = AllowAnyDuration{}
	}

	mp := p.Meter
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter(instrumentationName).Int64Counter("license.operations",
		metric.WithDescription("License operations by name and outcome."))
	if err != nil {
		zap.L().Warn("failed to create license operation counter", zap.Error(err))
	}
	s.operations = counter

	return s
}

type IssueRequest struct {
	Owner           Identity
	SoftwareID      uint64
	DurationSeconds int64
}

// Issue creates the license for (owner, software id) signed off by caller.
func (s *Service) Issue(ctx context.Context, req IssueRequest, caller Identity) (*License, error) {
	ctx, span := s.tracer.Start(ctx, "license.Issue")
	defer span.End()
	log := zap.L().With(traceFields(span)...).With(
		zap.String("owner", req.Owner.String()),
		zap.Uint64("software_id", req.SoftwareID),
	)

	if err := s.policy.CheckIssueDuration(ctx, caller, req.DurationSeconds); err != nil {
		return nil, s.fail(ctx, span, "issue", err)
	}

	now := s.clock.Now().Unix()
	lic, err := Issue(IssueParams{
		Owner:           req.Owner,
		SoftwareID:      req.SoftwareID,
		DurationSeconds: req.DurationSeconds,
		Authority:       caller,
		Now:             now,
	})
	if err != nil {
		return nil, s.fail(ctx, span, "issue", err)
	}

	var event *Event
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.license.WithTrx(tx).FindOne(ctx, &License{ID: lic.ID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateLicense
		}

		if err := s.license.WithTrx(tx).Create(ctx, lic); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateLicense
			}
			return err
		}

		event, err = newEvent(s.node, EventIssued, lic, now)
		if err != nil {
			return err
		}
		return s.event.WithTrx(tx).Create(ctx, event)
	}); err != nil {
		log.Warn("failed to issue license", zap.Error(err))
		return nil, s.fail(ctx, span, "issue", err)
	}

	s.committed(ctx, "issue", lic.ID, event)
	return lic, nil
}

// Renew extends the license at address.
func (s *Service) Renew(ctx context.Context, address string, durationSeconds int64, caller Identity) (*License, error) {
	ctx, span := s.tracer.Start(ctx, "license.Renew")
	defer span.End()

	var (
		next  *License
		event *Event
	)
	err := s.transition(ctx, address, func(current *License, now int64) (*License, EventType, error) {
		l, err := Renew(current, caller, durationSeconds, now)
		return l, EventRenewed, err
	}, func(l *License, e *Event) {
		next, event = l, e
	})
	if err != nil {
		zap.L().With(traceFields(span)...).Warn("failed to renew license", zap.String("address", address), zap.Error(err))
		return nil, s.fail(ctx, span, "renew", err)
	}

	s.committed(ctx, "renew", address, event)
	return next, nil
}

// SetActiveStatus sets the active flag of the license at address.
func (s *Service) SetActiveStatus(ctx context.Context, address string, status bool, caller Identity) (*License, error) {
	ctx, span := s.tracer.Start(ctx, "license.SetActiveStatus")
	defer span.End()

	var (
		next  *License
		event *Event
	)
	err := s.transition(ctx, address, func(current *License, _ int64) (*License, EventType, error) {
		l, err := SetActiveStatus(current, caller, status)
		return l, EventStatusChanged, err
	}, func(l *License, e *Event) {
		next, event = l, e
	})
	if err != nil {
		zap.L().With(traceFields(span)...).Warn("failed to set license status", zap.String("address", address), zap.Error(err))
		return nil, s.fail(ctx, span, "set_status", err)
	}

	s.committed(ctx, "set_status", address, event)
	return next, nil
}

type transitionFunc func(current *License, now int64) (*License, EventType, error)

// transition locks the license row, applies fn and writes the result together
// with its event. Nothing is written when fn fails.
func (s *Service) transition(ctx context.Context, address string, fn transitionFunc, done func(*License, *Event)) error {
	address = strings.ToLower(address)
	if !validAddress(address) {
		return ErrInvalidAddress
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.license.WithTrx(tx).FindOne(ctx, &License{ID: address}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return ErrLicenseNotFound
		}
		if err := VerifyAddress(current); err != nil {
			return err
		}

		now := s.clock.Now().Unix()
		next, typ, err := fn(current, now)
		if err != nil {
			return err
		}

		if err := s.license.WithTrx(tx).Update(ctx, address, map[string]any{
			"purchase_timestamp":   next.PurchaseTimestamp,
			"expiration_timestamp": next.ExpirationTimestamp,
			"is_active":            next.IsActive,
		}); err != nil {
			return err
		}

		event, err := newEvent(s.node, typ, next, now)
		if err != nil {
			return err
		}
		if err := s.event.WithTrx(tx).Create(ctx, event); err != nil {
			return err
		}

		done(next, event)
		return nil
	})
}

// committed runs the post-commit side effects. Their failures are logged;
// the relay picks up anything left undispatched.
func (s *Service) committed(ctx context.Context, op, address string, event *Event) {
	s.count(ctx, op, "ok")

	if err := s.cache.Invalidate(ctx, address); err != nil {
		zap.L().Warn("failed to invalidate license cache", zap.String("address", address), zap.Error(err))
	}
	if event == nil {
		return
	}

	logEvent(event)
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		zap.L().Warn("license event left for relay", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// Get returns the license at address.
func (s *Service) Get(ctx context.Context, address string) (*License, error) {
	ctx, span := s.tracer.Start(ctx, "license.Get")
	defer span.End()

	l, err := s.get(ctx, address)
	if err != nil {
		return nil, s.fail(ctx, span, "get", err)
	}
	return l, nil
}

func (s *Service) get(ctx context.Context, address string) (*License, error) {
	address = strings.ToLower(address)
	if !validAddress(address) {
		return nil, ErrInvalidAddress
	}

	l, err := s.cache.Fetch(ctx, address, func(ctx context.Context) (*License, error) {
		return s.license.FindOne(ctx, &License{ID: address})
	})
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLicenseNotFound
	}
	return l, nil
}

// Resolve finds the license of (owner, software id) through its address.
func (s *Service) Resolve(ctx context.Context, owner Identity, softwareID uint64) (*License, error) {
	ctx, span := s.tracer.Start(ctx, "license.Resolve")
	defer span.End()

	if err := ValidateSoftwareID(softwareID); err != nil {
		return nil, s.fail(ctx, span, "resolve", err)
	}
	address, err := DeriveAddress(owner, softwareID)
	if err != nil {
		return nil, s.fail(ctx, span, "resolve", err)
	}

	l, err := s.get(ctx, address)
	if err != nil {
		return nil, s.fail(ctx, span, "resolve", err)
	}
	return l, nil
}

// CheckValidity answers whether the license at address may be used now.
func (s *Service) CheckValidity(ctx context.Context, address string) (*Validity, error) {
	ctx, span := s.tracer.Start(ctx, "license.CheckValidity")
	defer span.End()

	l, err := s.get(ctx, address)
	if err != nil {
		return nil, s.fail(ctx, span, "check_validity", err)
	}

	now := s.clock.Now().Unix()
	if err := CheckValidity(l, now); err != nil {
		return nil, s.fail(ctx, span, "check_validity", err)
	}

	s.count(ctx, "check_validity", "ok")
	return &Validity{
		Address:             l.ID,
		ExpirationTimestamp: l.ExpirationTimestamp,
		CheckedAt:           now,
	}, nil
}

// ListByOwner pages through the licenses of owner ordered by software id.
func (s *Service) ListByOwner(ctx context.Context, owner Identity, page pagination.Pagination) ([]*License, *pagination.PageInfo, error) {
	ctx, span := s.tracer.Start(ctx, "license.ListByOwner")
	defer span.End()

	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, s.fail(ctx, span, "list", badCursor(err))
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "software_id",
			OrderBy: "asc",
			Allow:   map[string]bool{"software_id": true},
		}),
		option.ApplyPagination(page),
	}
	if cursor.After != "" {
		after, err := ParseSoftwareID(cursor.After)
		if err != nil {
			return nil, nil, s.fail(ctx, span, "list", badCursor(err))
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "software_id", Operator: option.GT, Value: after}))
	}

	rows, err := s.license.Find(ctx, &License{Owner: owner}, opts...)
	if err != nil {
		return nil, nil, s.fail(ctx, span, "list", err)
	}

	items, info, err := pagination.BuildCursorPage(rows, page.Limit, func(l *License) string {
		return formatSoftwareID(l.SoftwareID)
	})
	if err != nil {
		return nil, nil, s.fail(ctx, span, "list", err)
	}
	return items, info, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.count(ctx, op, outcome(err))
	return toBaseError(err)
}

func (s *Service) count(ctx context.Context, op, result string) {
	if s.operations == nil {
		return
	}
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", result),
	))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorizedAuthority):
		return "unauthorized"
	case errors.Is(err, ErrDuplicateLicense):
		return "duplicate"
	case errors.Is(err, ErrLicenseNotFound):
		return "not_found"
	case errors.Is(err, ErrLicenseNotActive):
		return "not_active"
	case errors.Is(err, ErrLicenseExpired):
		return "expired"
	default:
		return "error"
	}
}

func traceFields(span trace.Span) []zap.Field {
	sc := span.SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
