package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"plotmarket/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	// Redirect targets for the hosted checkout page.
	SuccessURL string
	CancelURL  string
	Logger     *slog.Logger
}

// StripeClient creates hosted checkout sessions by calling the Stripe REST
// API directly through BaseClient. Direct HTTP keeps every request on the
// shared resilience path (circuit breaker, retries, error mapping) and makes
// httptest-based testing straightforward.
type StripeClient struct {
	base       *BaseClient
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PlotMarket/1.0",
	)

	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful in tests that need to control retry and breaker
// behavior.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:       base,
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

// CreateCheckoutSession opens a hosted checkout session for the purchase
// intent. The full intent is recorded as session metadata so the eventual
// completion webhook can reconstruct the purchase from the event alone,
// without consulting any state that may have changed in the meantime.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, intent *types.PurchaseIntent) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", intent.IntentID)
	params.Set("customer_email", intent.Email)
	params.Set("success_url", s.successURL)
	params.Set("cancel_url", s.cancelURL)

	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", "usd")
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(intent.AmountCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", lineItemName(intent))

	// Durable purchase metadata. The reconciler trusts these fields and
	// nothing else from the completed session.
	params.Set("metadata[intent_id]", intent.IntentID)
	params.Set("metadata[plot_id]", strconv.Itoa(intent.PlotID))
	params.Set("metadata[plot_name]", intent.PlotName)
	params.Set("metadata[term]", string(intent.Term))
	params.Set("metadata[base_rate_cents]", strconv.FormatInt(intent.BaseRateCents, 10))
	params.Set("metadata[amount_cents]", strconv.FormatInt(intent.AmountCents, 10))
	params.Set("metadata[owner]", intent.Owner)
	params.Set("metadata[email]", intent.Email)
	params.Set("metadata[is_renewal]", strconv.FormatBool(intent.IsRenewal))
	if intent.PriorEndDate != nil {
		params.Set("metadata[prior_end_date]", intent.PriorEndDate.UTC().Format(time.RFC3339))
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"session_id", session.ID,
		"intent_id", intent.IntentID,
		"plot_id", intent.PlotID,
	)

	return &types.CheckoutSession{
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

// lineItemName renders the buyer-visible description on the checkout page.
func lineItemName(intent *types.PurchaseIntent) string {
	action := "Rental"
	if intent.IsRenewal {
		action = "Renewal"
	}
	name := intent.PlotName
	if name == "" {
		name = fmt.Sprintf("Plot %d", intent.PlotID)
	}
	return fmt.Sprintf("%s - %s (%s)", name, action, intent.Term)
}

// doPost performs an authenticated POST request to the Stripe API with a
// form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return s.base.Do(req)
}

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimit,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamDown,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (breaker open, retries exhausted) already carry the
	// right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// stripeCheckoutSession is the subset of the session response we consume.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StripeVerifier implements types.WebhookVerifier using stripe-go's webhook
// signature validation: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates an inbound webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if err := stripe.ValidatePayload(payload, header, secret); err != nil {
		return types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"webhook signature verification failed",
			err,
		)
	}
	return nil
}

var _ types.WebhookVerifier = (*StripeVerifier)(nil)
