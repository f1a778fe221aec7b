package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/infra"
	"miniapp-server/internal/storage"
	"miniapp-server/internal/wallet"
)

// Generator produces a video for a validated request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

// Payer executes the unlock trade for a video and returns its receipt.
type Payer interface {
	Execute(ctx context.Context, videoID string) (*domain.Receipt, error)
}

// Verifier checks a receipt against the backend for one video id.
type Verifier interface {
	Verify(ctx context.Context, videoID string, receipt *domain.Receipt) (*domain.Verification, error)
}

// Deliverer fetches unlocked assets and dispatches them by email. Download
// reports the content type alongside the bytes.
type Deliverer interface {
	Download(ctx context.Context, videoID string, verified bool) ([]byte, string, error)
	SendEmail(ctx context.Context, email string, videoData []byte, prompt string) error
}

// Caster publishes a social post with embed URLs.
type Caster interface {
	Cast(ctx context.Context, text string, embedURLs ...string) (string, error)
}

// Deps collects the adapters a flow sequences. Wallet, payments, and
// verifier are consulted in that order during Pay; nothing is optional.
type Deps struct {
	Sessions      domain.SessionRepository
	Verifications domain.VerificationRepository
	Assets        storage.AssetStore
	Generator     Generator
	Wallet        wallet.Gateway
	Payments      Payer
	Verifier      Verifier
	Delivery      Deliverer
	Caster        Caster
	ChainID       int64
	CallTimeout   time.Duration
	Logger        infra.Logger
}

// Flow drives one session through generate, pay, and unlock. Each user
// action triggers at most one external call, never retried implicitly. A
// second action arriving while one is in flight is rejected, not queued.
type Flow struct {
	deps Deps

	mu       sync.Mutex
	session  *domain.Session
	inFlight bool
}

func newFlow(session *domain.Session, deps Deps) *Flow {
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = 3 * time.Minute
	}
	return &Flow{deps: deps, session: session}
}

// Snapshot returns a copy of the session for read-only use.
func (f *Flow) Snapshot() domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.session
}

// idleDelivered reports whether the flow is terminal and safe to evict.
func (f *Flow) idleDelivered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.inFlight && f.session.State == domain.StateDelivered
}

// begin moves the session to the in-flight state for an event and marks the
// flow busy. The transition is checked before anything is persisted or
// dispatched; a refusal leaves the session untouched.
func (f *Flow) begin(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return fmt.Errorf("%w: session %s", domain.ErrBusy, f.session.ID)
	}
	next, err := Next(f.session.State, f.session.FailStage, ev)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	f.session.State = next
	f.session.FailStage = domain.StageNone
	f.session.LastError = ""
	f.session.UpdatedAt = time.Now().UTC()
	if err := f.deps.Sessions.Update(ctx, f.session); err != nil {
		return fmt.Errorf("workflow: persist session: %w", err)
	}
	f.inFlight = true
	return nil
}

// settle records the outcome of the in-flight call and releases the flow.
func (f *Flow) settle(ctx context.Context, ev Event, stage domain.FailStage, callErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if next, err := Next(f.session.State, f.session.FailStage, ev); err == nil {
		f.session.State = next
	}
	if callErr != nil {
		f.session.FailStage = stage
		f.session.LastError = callErr.Error()
	}
	f.session.UpdatedAt = time.Now().UTC()
	if err := f.deps.Sessions.Update(ctx, f.session); err != nil {
		f.deps.Logger.Error().Err(err).Str("session_id", f.session.ID).Msg("persist session state")
	}
}

// release undoes busy without a state transition, for failures that must
// not move the session (delivery errors keep PaymentVerified).
func (f *Flow) release(ctx context.Context, callErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if callErr != nil {
		f.session.LastError = callErr.Error()
		f.session.UpdatedAt = time.Now().UTC()
		if err := f.deps.Sessions.Update(ctx, f.session); err != nil {
			f.deps.Logger.Error().Err(err).Str("session_id", f.session.ID).Msg("persist session state")
		}
	}
}

func (f *Flow) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.deps.CallTimeout)
}

// Generate validates the request, dispatches it to the inference backend,
// and stores the result. Validation failures refuse before any state
// change or network call.
func (f *Flow) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := f.begin(ctx, EventSubmitPrompt); err != nil {
		return nil, err
	}

	callCtx, cancel := f.callCtx(ctx)
	defer cancel()
	result, err := f.deps.Generator.Generate(callCtx, req)
	if err != nil {
		f.settle(ctx, EventGenerationFailed, domain.StageGeneration, err)
		return nil, err
	}

	if putErr := f.deps.Assets.Put(ctx, result.VideoID, result.Data, result.MIME); putErr != nil {
		f.deps.Logger.Warn().Err(putErr).Str("video_id", result.VideoID).Msg("cache generated asset")
	}

	f.mu.Lock()
	f.session.Prompt = req.Prompt
	f.session.VideoID = result.VideoID
	f.mu.Unlock()
	f.settle(ctx, EventGenerationSucceeded, domain.StageNone, nil)
	return result, nil
}

// Pay runs the unlock trade and its verification. The wallet gate is
// checked first: a disconnected wallet or wrong network refuses the action
// with no state change and no payment call. Verified is only ever set from
// an explicit verifier success whose video id matches this session.
func (f *Flow) Pay(ctx context.Context) error {
	f.mu.Lock()
	videoID := f.session.VideoID
	f.mu.Unlock()

	statusCtx, cancel := f.callCtx(ctx)
	status, err := f.deps.Wallet.Status(statusCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWalletState, err)
	}
	if !status.Connected {
		return fmt.Errorf("%w: connect your wallet before paying", domain.ErrWalletState)
	}
	if status.ChainID != f.deps.ChainID {
		return fmt.Errorf("%w: wallet is on chain %d, switch to chain %d", domain.ErrWalletState, status.ChainID, f.deps.ChainID)
	}

	if err := f.begin(ctx, EventRequestPayment); err != nil {
		return err
	}

	payCtx, cancel := f.callCtx(ctx)
	receipt, err := f.deps.Payments.Execute(payCtx, videoID)
	cancel()
	if err != nil {
		f.settle(ctx, EventPaymentFailed, domain.StagePayment, err)
		return err
	}

	verifyCtx, cancel := f.callCtx(ctx)
	verification, err := f.deps.Verifier.Verify(verifyCtx, videoID, receipt)
	cancel()
	if err != nil {
		f.settle(ctx, EventVerificationFailed, domain.StageVerification, err)
		return err
	}
	if !verification.Verified || verification.VideoID != videoID {
		err := fmt.Errorf("%w: receipt does not match video %s", domain.ErrVerification, videoID)
		f.settle(ctx, EventVerificationFailed, domain.StageVerification, err)
		return err
	}
	if err := f.deps.Verifications.Save(ctx, verification); err != nil {
		err = fmt.Errorf("%w: record verification: %v", domain.ErrVerification, err)
		f.settle(ctx, EventVerificationFailed, domain.StageVerification, err)
		return err
	}

	f.settle(ctx, EventPaymentVerified, domain.StageNone, nil)
	return nil
}

// recheckVerified consults the persistent verification store. In-memory
// state alone never unlocks an asset; this is what makes verified state
// survive a controller restart.
func (f *Flow) recheckVerified(ctx context.Context, videoID string) error {
	if videoID == "" {
		return fmt.Errorf("%w: session has no video", domain.ErrNotVerified)
	}
	v, err := f.deps.Verifications.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: video %s", domain.ErrNotVerified, videoID)
		}
		return fmt.Errorf("workflow: recheck verification: %w", err)
	}
	if !v.Verified || v.VideoID != videoID {
		return fmt.Errorf("%w: video %s", domain.ErrNotVerified, videoID)
	}
	return nil
}

// Download fetches the unlocked asset and its content type. A delivery
// failure surfaces the error but keeps the session at PaymentVerified so
// the user can retry.
func (f *Flow) Download(ctx context.Context) ([]byte, string, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return nil, "", fmt.Errorf("%w: session %s", domain.ErrBusy, f.session.ID)
	}
	state := f.session.State
	videoID := f.session.VideoID
	if state != domain.StatePaymentVerified && state != domain.StateDelivered {
		f.mu.Unlock()
		return nil, "", fmt.Errorf("%w: download requires a verified payment", domain.ErrNotVerified)
	}
	f.inFlight = true
	f.mu.Unlock()

	if err := f.recheckVerified(ctx, videoID); err != nil {
		f.release(ctx, nil)
		return nil, "", err
	}

	callCtx, cancel := f.callCtx(ctx)
	data, mime, err := f.deps.Delivery.Download(callCtx, videoID, true)
	cancel()
	if err != nil {
		f.release(ctx, err)
		return nil, "", fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	f.settle(ctx, EventDelivered, domain.StageNone, nil)
	return data, mime, nil
}

// fetchAsset prefers the local cache and falls back to the download
// endpoint for assets that did not outlive the process.
func (f *Flow) fetchAsset(ctx context.Context, videoID string) ([]byte, error) {
	data, _, err := f.deps.Assets.Get(ctx, videoID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	callCtx, cancel := f.callCtx(ctx)
	defer cancel()
	data, _, err = f.deps.Delivery.Download(callCtx, videoID, true)
	return data, err
}

// ShareEmail sends the unlocked video to an email address. It is gated the
// same way as Download and is independent of whether Download happened.
func (f *Flow) ShareEmail(ctx context.Context, email string) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return fmt.Errorf("%w: session %s", domain.ErrBusy, f.session.ID)
	}
	state := f.session.State
	videoID := f.session.VideoID
	prompt := f.session.Prompt
	if state != domain.StatePaymentVerified && state != domain.StateDelivered {
		f.mu.Unlock()
		return fmt.Errorf("%w: sharing requires a verified payment", domain.ErrNotVerified)
	}
	f.inFlight = true
	f.mu.Unlock()

	if err := f.recheckVerified(ctx, videoID); err != nil {
		f.release(ctx, nil)
		return err
	}

	data, err := f.fetchAsset(ctx, videoID)
	if err != nil {
		f.release(ctx, err)
		return fmt.Errorf("%w: fetch asset: %v", domain.ErrDelivery, err)
	}

	callCtx, cancel := f.callCtx(ctx)
	err = f.deps.Delivery.SendEmail(callCtx, email, data, prompt)
	cancel()
	if err != nil {
		f.release(ctx, err)
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	f.release(ctx, nil)
	return nil
}

// ShareCast publishes a social post embedding the asset URL. Same gate as
// ShareEmail.
func (f *Flow) ShareCast(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return "", fmt.Errorf("%w: session %s", domain.ErrBusy, f.session.ID)
	}
	state := f.session.State
	videoID := f.session.VideoID
	if state != domain.StatePaymentVerified && state != domain.StateDelivered {
		f.mu.Unlock()
		return "", fmt.Errorf("%w: sharing requires a verified payment", domain.ErrNotVerified)
	}
	f.inFlight = true
	f.mu.Unlock()

	if err := f.recheckVerified(ctx, videoID); err != nil {
		f.release(ctx, nil)
		return "", err
	}

	embedURL, err := f.deps.Assets.URL(ctx, videoID)
	if err != nil {
		f.release(ctx, err)
		return "", fmt.Errorf("%w: asset url: %v", domain.ErrDelivery, err)
	}

	callCtx, cancel := f.callCtx(ctx)
	hash, err := f.deps.Caster.Cast(callCtx, text, embedURL)
	cancel()
	if err != nil {
		f.release(ctx, err)
		if errors.Is(err, domain.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}

	f.release(ctx, nil)
	return hash, nil
}
