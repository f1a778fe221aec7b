package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/storage"
	"miniapp-server/internal/wallet"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]domain.Session)}
}

func (r *fakeSessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *fakeSessions) Update(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *fakeSessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := s
	return &copied, nil
}

type fakeVerifications struct {
	mu   sync.Mutex
	rows map[string]domain.Verification
}

func newFakeVerifications() *fakeVerifications {
	return &fakeVerifications{rows: make(map[string]domain.Verification)}
}

func (r *fakeVerifications) Save(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[v.VideoID] = *v
	return nil
}

func (r *fakeVerifications) GetByVideoID(_ context.Context, videoID string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[videoID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := v
	return &copied, nil
}

type fakeGenerator struct {
	calls   int
	videoID string
	err     error
	block   chan struct{}
}

func (g *fakeGenerator) Generate(_ context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	g.calls++
	if g.block != nil {
		<-g.block
	}
	if g.err != nil {
		return nil, g.err
	}
	return &domain.GenerationResult{VideoID: g.videoID, Data: []byte("video-bytes"), MIME: "video/mp4"}, nil
}

type fakeWallet struct {
	status wallet.Status
	err    error
}

func (w *fakeWallet) Status(context.Context) (wallet.Status, error) { return w.status, w.err }
func (w *fakeWallet) Connect(context.Context, string) error         { return nil }

type fakePayer struct {
	calls   int
	receipt *domain.Receipt
	err     error
}

func (p *fakePayer) Execute(_ context.Context, videoID string) (*domain.Receipt, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.receipt, nil
}

type fakeVerifier struct {
	calls   int
	videoID string // answered video id; defaults to the requested one
	err     error
}

func (v *fakeVerifier) Verify(_ context.Context, videoID string, receipt *domain.Receipt) (*domain.Verification, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	answered := v.videoID
	if answered == "" {
		answered = videoID
	}
	return &domain.Verification{
		VideoID:    answered,
		TxHash:     receipt.TxHash,
		AmountWei:  receipt.AmountWei,
		Payer:      receipt.Payer,
		Verified:   true,
		VerifiedAt: time.Now().UTC(),
	}, nil
}

type fakeDelivery struct {
	downloads  int
	emails     int
	data       []byte
	mime       string
	err        error
	lastFlag   bool
	lastEmail  string
	lastPrompt string
}

func (d *fakeDelivery) Download(_ context.Context, videoID string, verified bool) ([]byte, string, error) {
	d.downloads++
	d.lastFlag = verified
	if d.err != nil {
		return nil, "", d.err
	}
	return d.data, d.mime, nil
}

func (d *fakeDelivery) SendEmail(_ context.Context, email string, videoData []byte, prompt string) error {
	d.emails++
	d.lastEmail = email
	d.lastPrompt = prompt
	return d.err
}

type fakeCaster struct {
	calls int
	hash  string
	err   error
}

func (c *fakeCaster) Cast(_ context.Context, text string, embedURLs ...string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.hash, nil
}

type fixture struct {
	sessions      *fakeSessions
	verifications *fakeVerifications
	generator     *fakeGenerator
	wallet        *fakeWallet
	payer         *fakePayer
	verifier      *fakeVerifier
	delivery      *fakeDelivery
	caster        *fakeCaster
	manager       *Manager
}

func newFixture() *fixture {
	f := &fixture{
		sessions:      newFakeSessions(),
		verifications: newFakeVerifications(),
		generator:     &fakeGenerator{videoID: "abc123"},
		wallet:        &fakeWallet{status: wallet.Status{Connected: true, Address: "0x2222222222222222222222222222222222222222", ChainID: 8453}},
		payer:         &fakePayer{receipt: &domain.Receipt{TxHash: "0xfeed", AmountWei: big.NewInt(10000000000000000), Payer: "0x2222222222222222222222222222222222222222"}},
		verifier:      &fakeVerifier{},
		delivery:      &fakeDelivery{data: []byte("video-bytes"), mime: "video/mp4"},
		caster:        &fakeCaster{hash: "0xcast"},
	}
	f.manager = NewManager(Deps{
		Sessions:      f.sessions,
		Verifications: f.verifications,
		Assets:        storage.NewMemoryStore("https://cdn.local"),
		Generator:     f.generator,
		Wallet:        f.wallet,
		Payments:      f.payer,
		Verifier:      f.verifier,
		Delivery:      f.delivery,
		Caster:        f.caster,
		ChainID:       8453,
		CallTimeout:   5 * time.Second,
		Logger:        zerolog.Nop(),
	})
	return f
}

func validRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Prompt: "sunset", NumFrames: 25, InferenceSteps: 7}
}

func TestGenerateMovesToGenerated(t *testing.T) {
	f := newFixture()
	flow, err := f.manager.Create(context.Background())
	require.NoError(t, err)

	result, err := flow.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.VideoID)

	snap := flow.Snapshot()
	assert.Equal(t, domain.StateGenerated, snap.State)
	assert.Equal(t, "abc123", snap.VideoID)
	assert.Equal(t, "sunset", snap.Prompt)
}

func TestGenerateValidatesBeforeDispatch(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())

	_, err := flow.Generate(context.Background(), domain.GenerationRequest{Prompt: "sunset", NumFrames: 24, InferenceSteps: 7})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.generator.calls, "invalid request reached the backend")
	assert.Equal(t, domain.StateIdle, flow.Snapshot().State)
}

func TestGenerateFailureIsRecoverable(t *testing.T) {
	f := newFixture()
	f.generator.err = &domain.ServerError{Status: 503, Body: "model overloaded"}
	flow, _ := f.manager.Create(context.Background())

	_, err := flow.Generate(context.Background(), validRequest())
	require.Error(t, err)
	snap := flow.Snapshot()
	assert.Equal(t, domain.StateFailed, snap.State)
	assert.Equal(t, domain.StageGeneration, snap.FailStage)
	assert.Contains(t, snap.LastError, "model overloaded")

	f.generator.err = nil
	_, err = flow.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StateGenerated, flow.Snapshot().State)
	assert.Equal(t, 2, f.generator.calls, "retry must be an explicit resubmission")
}

func TestGenerateRejectsDuplicateWhileInFlight(t *testing.T) {
	f := newFixture()
	f.generator.block = make(chan struct{})
	flow, _ := f.manager.Create(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := flow.Generate(context.Background(), validRequest())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return flow.Snapshot().State == domain.StateGenerating
	}, time.Second, 5*time.Millisecond)

	_, err := flow.Generate(context.Background(), validRequest())
	require.ErrorIs(t, err, domain.ErrBusy)

	close(f.generator.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.generator.calls)
}

func TestPayRefusedWhenWalletDisconnected(t *testing.T) {
	f := newFixture()
	f.wallet.status = wallet.Status{}
	flow, _ := f.manager.Create(context.Background())
	_, err := flow.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	err = flow.Pay(context.Background())
	require.ErrorIs(t, err, domain.ErrWalletState)
	assert.Contains(t, err.Error(), "connect your wallet")
	assert.Zero(t, f.payer.calls, "refused pay must not reach the payment service")
	assert.Equal(t, domain.StateGenerated, flow.Snapshot().State)
}

func TestPayRefusedOnWrongNetwork(t *testing.T) {
	f := newFixture()
	f.wallet.status.ChainID = 1
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	err := flow.Pay(context.Background())
	require.ErrorIs(t, err, domain.ErrWalletState)
	assert.Zero(t, f.payer.calls)
	assert.Equal(t, domain.StateGenerated, flow.Snapshot().State)
}

func TestPayHappyPathVerifies(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	require.NoError(t, flow.Pay(context.Background()))
	assert.Equal(t, domain.StatePaymentVerified, flow.Snapshot().State)

	stored, err := f.verifications.GetByVideoID(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Equal(t, "0xfeed", stored.TxHash)
}

func TestPayFailureNeverVerifies(t *testing.T) {
	f := newFixture()
	f.payer.err = fmt.Errorf("%w: insufficient funds", domain.ErrPayment)
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	err := flow.Pay(context.Background())
	require.ErrorIs(t, err, domain.ErrPayment)

	snap := flow.Snapshot()
	assert.Equal(t, domain.StateFailed, snap.State)
	assert.Equal(t, domain.StagePayment, snap.FailStage)
	assert.Contains(t, snap.LastError, "insufficient funds")
	assert.Zero(t, f.verifier.calls, "failed payment must not be verified")

	_, err = f.verifications.GetByVideoID(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPayVerifierRejectionFailsVerificationStage(t *testing.T) {
	f := newFixture()
	f.verifier.err = fmt.Errorf("%w: transaction does not match video", domain.ErrVerification)
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	err := flow.Pay(context.Background())
	require.ErrorIs(t, err, domain.ErrVerification)
	snap := flow.Snapshot()
	assert.Equal(t, domain.StateFailed, snap.State)
	assert.Equal(t, domain.StageVerification, snap.FailStage)
}

func TestPayRejectsReceiptForDifferentVideo(t *testing.T) {
	f := newFixture()
	f.verifier.videoID = "xyz999"
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	err := flow.Pay(context.Background())
	require.ErrorIs(t, err, domain.ErrVerification)
	assert.Equal(t, domain.StageVerification, flow.Snapshot().FailStage)

	_, err = f.verifications.GetByVideoID(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDownloadRequiresVerifiedPayment(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	_, _, err := flow.Download(context.Background())
	require.ErrorIs(t, err, domain.ErrNotVerified)
	assert.Zero(t, f.delivery.downloads, "refused download must not reach the backend")
}

func TestDownloadAfterVerification(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))

	data, mime, err := flow.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), data)
	assert.Equal(t, "video/mp4", mime)
	assert.True(t, f.delivery.lastFlag, "download must carry payment_verified=true")
	assert.Equal(t, domain.StateDelivered, flow.Snapshot().State)

	again, _, err := flow.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDownloadFailureKeepsVerifiedState(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))

	f.delivery.err = errors.New("backend unavailable")
	_, _, err := flow.Download(context.Background())
	require.ErrorIs(t, err, domain.ErrDelivery)
	assert.Equal(t, domain.StatePaymentVerified, flow.Snapshot().State)

	f.delivery.err = nil
	_, _, err = flow.Download(context.Background())
	require.NoError(t, err)
}

func TestDownloadRechecksPersistentStore(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))

	// Simulate a restart: same repositories, fresh manager and flows.
	restarted := NewManager(Deps{
		Sessions:      f.sessions,
		Verifications: f.verifications,
		Assets:        storage.NewMemoryStore("https://cdn.local"),
		Generator:     f.generator,
		Wallet:        f.wallet,
		Payments:      f.payer,
		Verifier:      f.verifier,
		Delivery:      f.delivery,
		Caster:        f.caster,
		ChainID:       8453,
		CallTimeout:   5 * time.Second,
		Logger:        zerolog.Nop(),
	})
	reloaded, err := restarted.Get(context.Background(), flow.Snapshot().ID)
	require.NoError(t, err)

	data, _, err := reloaded.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), data)

	// Without the stored verification the same state is refused.
	f.verifications.mu.Lock()
	delete(f.verifications.rows, "abc123")
	f.verifications.mu.Unlock()
	_, _, err = reloaded.Download(context.Background())
	require.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestShareEmailRefusedBeforeVerification(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	err := flow.ShareEmail(context.Background(), "fan@example.com")
	require.ErrorIs(t, err, domain.ErrNotVerified)
	assert.Zero(t, f.delivery.emails, "refused share must not reach the backend")
}

func TestShareEmailSendsCachedAsset(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))

	require.NoError(t, flow.ShareEmail(context.Background(), "fan@example.com"))
	assert.Equal(t, 1, f.delivery.emails)
	assert.Equal(t, "fan@example.com", f.delivery.lastEmail)
	assert.Equal(t, "sunset", f.delivery.lastPrompt)
	assert.Zero(t, f.delivery.downloads, "cached asset must not trigger a re-download")

	// Sharing is independent of Download and leaves the state alone.
	assert.Equal(t, domain.StatePaymentVerified, flow.Snapshot().State)
}

func TestShareCastRefusedBeforeVerification(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())

	_, err := flow.ShareCast(context.Background(), "look at this")
	require.ErrorIs(t, err, domain.ErrNotVerified)
	assert.Zero(t, f.caster.calls)
}

func TestShareCastEmbedsAssetURL(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))

	hash, err := flow.ShareCast(context.Background(), "look at this")
	require.NoError(t, err)
	assert.Equal(t, "0xcast", hash)
	assert.Equal(t, 1, f.caster.calls)
}

func TestManagerGetUnknownSession(t *testing.T) {
	f := newFixture()
	_, err := f.manager.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManagerEvictsDeliveredFlows(t *testing.T) {
	f := newFixture()
	flow, _ := f.manager.Create(context.Background())
	_, _ = flow.Generate(context.Background(), validRequest())
	require.NoError(t, flow.Pay(context.Background()))
	_, _, err := flow.Download(context.Background())
	require.NoError(t, err)
	id := flow.Snapshot().ID

	// The next manager touch drops the terminal flow from the live map.
	_, err = f.manager.Create(context.Background())
	require.NoError(t, err)

	f.manager.mu.Lock()
	_, live := f.manager.flows[id]
	f.manager.mu.Unlock()
	assert.False(t, live, "delivered flow should leave the live map")

	// The session is still reachable, rebuilt from the repository.
	reloaded, err := f.manager.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDelivered, reloaded.Snapshot().State)
}
