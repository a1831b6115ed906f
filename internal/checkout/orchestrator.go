// Package checkout turns a buyer's purchase request into a hosted payment
// session. Creating a session is speculative: the plot registry is read for
// early rejection but never written here. Ownership changes only when the
// provider's completion event is reconciled.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"plotmarket/internal/config"
	"plotmarket/internal/rental"
	"plotmarket/internal/types"
)

// PaymentProvider opens hosted checkout sessions. Implemented by
// external.StripeClient.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, intent *types.PurchaseIntent) (*types.CheckoutSession, error)
}

// Request is a buyer's intent to rent or renew a plot.
type Request struct {
	PlotID   int              `json:"plot_id" validate:"required"`
	PlotName string           `json:"plot_name"`
	Term     types.RentalTerm `json:"term" validate:"required"`
	Email    string           `json:"email" validate:"required,email"`
	// Owner is the buyer's wallet address. Required for first sales; on
	// renewals the recorded owner is authoritative.
	Owner     string `json:"owner"`
	IsRenewal bool   `json:"is_renewal"`
	// BaseRateCents overrides the configured base monthly rate when positive.
	BaseRateCents int64 `json:"base_rate_cents"`
}

var ownerAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var validate = validator.New()

// Orchestrator validates purchase requests, prices them, and opens provider
// sessions carrying durable purchase metadata.
type Orchestrator struct {
	registry types.PlotRegistry
	provider PaymentProvider
	cfg      config.RegistryConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(
	registry types.PlotRegistry,
	provider PaymentProvider,
	cfg config.RegistryConfig,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateSession validates the request, rejects purchases the registry state
// already rules out, and opens a hosted checkout session for the priced
// intent.
//
// The registry pre-check is advisory: it stops obviously doomed checkouts
// (buying a plot someone holds, renewing a lapsed one) before the buyer
// reaches a payment page, but the state can change while the session is
// open. The reconciler re-checks against the registry when the payment
// confirmation arrives, and that check is the authoritative one.
func (o *Orchestrator) CreateSession(ctx context.Context, req *Request) (*types.CheckoutSession, error) {
	intent, err := o.buildIntent(ctx, req)
	if err != nil {
		return nil, err
	}

	session, err := o.provider.CreateCheckoutSession(ctx, intent)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "checkout intent created",
		"intent_id", intent.IntentID,
		"plot_id", intent.PlotID,
		"term", intent.Term,
		"renewal", intent.IsRenewal,
		"amount_cents", intent.AmountCents,
	)
	return session, nil
}

// buildIntent validates and prices the request into a PurchaseIntent without
// touching the provider.
func (o *Orchestrator) buildIntent(ctx context.Context, req *Request) (*types.PurchaseIntent, error) {
	if req.PlotID < 1 || req.PlotID > o.cfg.MaxPlots {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPlot,
			fmt.Sprintf("plot id must be between 1 and %d", o.cfg.MaxPlots),
			nil,
		)
	}
	if !req.Term.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidTerm,
			fmt.Sprintf("term must be one of %v", types.AllTerms),
			nil,
		)
	}
	if err := validate.Var(req.Email, "required,email"); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidEmail,
			"a valid email address is required",
			err,
		)
	}

	now := o.now().UTC()

	owner := req.Owner
	email := req.Email
	var priorEnd *time.Time

	if req.IsRenewal {
		existing, err := o.registry.Get(ctx, req.PlotID)
		if err != nil {
			if types.IsCode(err, types.ErrCodeNotFoundPlot) {
				return nil, types.NewAppError(
					types.ErrCodeConflictPlotNotActive,
					"plot has no rental to renew",
					nil,
				)
			}
			return nil, err
		}
		if !existing.ActiveAt(now) {
			return nil, types.NewAppError(
				types.ErrCodeConflictPlotNotActive,
				"plot rental has expired; expired plots must be repurchased",
				nil,
			)
		}
		// The recorded owner is authoritative on renewals; a request owner,
		// when present, must match it.
		if owner != "" && owner != existing.SoldTo {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidOwner,
				"owner does not match the plot's recorded owner",
				nil,
			)
		}
		owner = existing.SoldTo
		end := existing.RentalEndDate
		priorEnd = &end
	} else {
		if owner == "" {
			return nil, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"owner wallet address is required for a new rental",
				nil,
			)
		}
		if !ownerAddressRe.MatchString(owner) {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidOwner,
				"owner must be a 0x-prefixed 40-hex-digit wallet address",
				nil,
			)
		}

		active, err := o.registry.IsActive(ctx, req.PlotID, now)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, types.NewAppError(
				types.ErrCodeConflictPlotActive,
				"plot already has an active rental",
				nil,
			)
		}
	}

	baseRate := req.BaseRateCents
	if baseRate <= 0 {
		baseRate = o.cfg.DefaultBaseRateCents
	}
	amount, err := rental.AmountCents(baseRate, req.Term)
	if err != nil {
		return nil, err
	}

	plotName := req.PlotName
	if plotName == "" {
		plotName = fmt.Sprintf("Plot %d", req.PlotID)
	}

	return &types.PurchaseIntent{
		IntentID:      uuid.NewString(),
		PlotID:        req.PlotID,
		PlotName:      plotName,
		Term:          req.Term,
		BaseRateCents: baseRate,
		AmountCents:   amount,
		Email:         email,
		Owner:         owner,
		IsRenewal:     req.IsRenewal,
		PriorEndDate:  priorEnd,
	}, nil
}
