package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/content"
	"sitewatch/internal/dedup"
	"sitewatch/internal/types"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeWeather struct {
	snap *types.WeatherSnapshot
	err  error
	hook func()
}

func (f *fakeWeather) Snapshot(ctx context.Context, _ types.LocationQuery) (*types.WeatherSnapshot, error) {
	if f.hook != nil {
		f.hook()
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("weather call must carry a deadline")
	}
	return f.snap, f.err
}

type fakeDedup struct {
	decision dedup.Decision
	called   bool
}

func (f *fakeDedup) Check(_ context.Context, _ types.Target, conds types.TriggeredConditions, _ time.Time) dedup.Decision {
	f.called = true
	if len(conds) == 0 {
		return dedup.Decision{Send: false, Reason: dedup.ReasonNoConditions}
	}
	return f.decision
}

type fakeResolver struct {
	recipients []types.Recipient
	err        error
}

func (f *fakeResolver) Resolve(context.Context, types.Target) ([]types.Recipient, error) {
	return f.recipients, f.err
}

type fakeContent struct {
	calls  int
	dryRun bool
}

func (f *fakeContent) Build(ctx context.Context, _ types.Target, _ *types.WeatherSnapshot, _ types.TriggeredConditions) content.Content {
	f.calls++
	f.dryRun = types.IsDryRun(ctx)
	return content.Content{Text: "Cold snap. Protect fresh concrete.", Source: content.SourceFallback}
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) AppendRecipientNotification(ctx context.Context, n *types.RecipientNotification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *mockWriter) AppendNotificationRecord(ctx context.Context, rec *types.NotificationRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

type fakeSender struct {
	mu     sync.Mutex
	failTo map[string]error
	sent   []types.AlertEmail
}

func (f *fakeSender) Send(_ context.Context, email types.AlertEmail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTo[email.To]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, email)
	return "msg_" + email.ReferenceID, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func coldSnapshot() *types.WeatherSnapshot {
	return &types.WeatherSnapshot{
		Location: types.SnapshotLocation{Name: "Denver"},
		Current:  &types.CurrentConditions{TempF: 20, ConditionText: "Clear"},
		Forecast: []types.ForecastDay{{MinTempF: 12, MaxTempF: 30}},
	}
}

func jobsiteTarget() types.Target {
	return types.Target{
		Kind:       types.TargetJobsite,
		UserID:     "u1",
		JobsiteID:  "js1",
		Name:       "Riverside Tower",
		Plan:       types.PlanPremium,
		Location:   types.LocationQuery{ZipCode: "80202"},
		Thresholds: types.ThresholdConfig{MinTemperature: 32},
	}
}

func twoRecipients() []types.Recipient {
	return []types.Recipient{
		{ID: "c1", Name: "Client One", Email: "client@example.com", Type: types.ContactClient},
		{ID: "w1", Name: "Worker One", Email: "worker@example.com", Type: types.ContactWorker},
	}
}

type harness struct {
	weather  *fakeWeather
	dedup    *fakeDedup
	resolver *fakeResolver
	content  *fakeContent
	writer   *mockWriter
	sender   *fakeSender
}

func newHarness() *harness {
	return &harness{
		weather:  &fakeWeather{snap: coldSnapshot()},
		dedup:    &fakeDedup{decision: dedup.Decision{Send: true, Reason: dedup.ReasonFirstToday}},
		resolver: &fakeResolver{recipients: twoRecipients()},
		content:  &fakeContent{},
		writer:   &mockWriter{},
		sender:   &fakeSender{failTo: map[string]error{}},
	}
}

func (h *harness) dispatcher() *Dispatcher {
	return NewDispatcher(Deps{
		Weather:    h.weather,
		Dedup:      h.dedup,
		Recipients: h.resolver,
		Content:    h.content,
		Writer:     h.writer,
		Email:      h.sender,
	}, Config{}, nil)
}

var now = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDispatch_ProductionSendsAndLogs(t *testing.T) {
	h := newHarness()
	h.writer.On("AppendRecipientNotification", mock.Anything, mock.AnythingOfType("*types.RecipientNotification")).Return("rcp_x", nil).Twice()
	h.writer.On("AppendNotificationRecord", mock.Anything, mock.MatchedBy(func(rec *types.NotificationRecord) bool {
		return rec.JobsiteID == "js1" && rec.RecipientCount == 2 &&
			rec.Conditions.Contains(types.ConditionLowTemperature) && rec.CreatedAt.Equal(now)
	})).Return("ntf_x", nil).Once()

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, types.StageDone, res.Stage)
	assert.Equal(t, 2, res.NotificationsSent)
	assert.Equal(t, types.TriggeredConditions{types.ConditionLowTemperature}, res.TriggeredConditions)
	assert.Empty(t, res.ContentPreview)
	assert.Len(t, h.sender.sent, 2)
	for _, e := range h.sender.sent {
		assert.Contains(t, e.ReferenceID, types.PrefixRecipientNotification)
		assert.Equal(t, "Cold snap. Protect fresh concrete.", e.TextBody)
	}
	h.writer.AssertExpectations(t)
}

func TestDispatch_DebugModeSendsNothing(t *testing.T) {
	h := newHarness()

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{DebugMode: true, Now: now})

	assert.True(t, res.Success)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.NotificationsSent, "dry run reports who would have been notified")
	assert.Equal(t, "Cold snap. Protect fresh concrete.", res.ContentPreview)
	assert.True(t, h.content.dryRun, "content is built in dry-run mode")
	assert.Empty(t, h.sender.sent)
	h.writer.AssertNotCalled(t, "AppendRecipientNotification", mock.Anything, mock.Anything)
	h.writer.AssertNotCalled(t, "AppendNotificationRecord", mock.Anything, mock.Anything)
}

func TestDispatch_WeatherFailure(t *testing.T) {
	h := newHarness()
	h.weather.err = types.NewAppError(types.ErrCodeNotFoundLocation, "no weather data for location", nil)

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.False(t, res.Success)
	assert.Equal(t, types.StageFetchWeather, res.Stage)
	assert.Equal(t, types.ErrCodeNotFoundLocation, res.ErrorCode)
	assert.False(t, h.dedup.called)
}

func TestDispatch_NoConditionsIsSuccessWithoutSend(t *testing.T) {
	h := newHarness()
	h.weather.snap = &types.WeatherSnapshot{Current: &types.CurrentConditions{TempF: 60}}

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success)
	assert.Zero(t, res.NotificationsSent)
	assert.Equal(t, dedup.ReasonNoConditions, res.SkipReason)
	assert.Empty(t, res.TriggeredConditions)
	assert.Zero(t, h.content.calls)
}

func TestDispatch_DedupSuppresses(t *testing.T) {
	h := newHarness()
	h.dedup.decision = dedup.Decision{Send: false, Reason: dedup.ReasonAlreadyCovered}

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success)
	assert.Zero(t, res.NotificationsSent)
	assert.Equal(t, types.StageDedupCheck, res.Stage)
	assert.Empty(t, h.sender.sent)
}

func TestDispatch_DedupWarningPropagates(t *testing.T) {
	h := newHarness()
	h.dedup.decision = dedup.Decision{Send: true, Reason: dedup.ReasonFailOpen, Warning: errors.New("firestore unavailable")}

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{DebugMode: true, Now: now})

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "firestore unavailable")
}

func TestDispatch_ResolveErrorFails(t *testing.T) {
	h := newHarness()
	h.resolver.err = types.NewAppError(types.ErrCodeInternalDB, "failed to list contacts", errors.New("conn reset"))

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.False(t, res.Success)
	assert.Equal(t, types.StageResolveRecipients, res.Stage)
	assert.Equal(t, types.ErrCodeInternalDB, res.ErrorCode)
}

func TestDispatch_NoRecipients(t *testing.T) {
	h := newHarness()
	h.resolver.recipients = nil

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success)
	assert.Zero(t, res.NotificationsSent)
	assert.Zero(t, h.content.calls)
}

func TestDispatch_PartialSendFailure(t *testing.T) {
	h := newHarness()
	h.sender.failTo["worker@example.com"] = types.NewAppError(types.ErrCodeEmailBlocked, "blocked", nil)
	h.writer.On("AppendRecipientNotification", mock.Anything, mock.Anything).Return("rcp_x", nil).Once()
	h.writer.On("AppendNotificationRecord", mock.Anything, mock.MatchedBy(func(rec *types.NotificationRecord) bool {
		return rec.RecipientCount == 1
	})).Return("ntf_x", nil).Once()

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.NotificationsSent)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "w***@example.com")
	h.writer.AssertExpectations(t)
}

func TestDispatch_AllSendsFailSkipsAggregateLog(t *testing.T) {
	h := newHarness()
	boom := types.NewAppError(types.ErrCodeUpstreamEmailProvider, "sendgrid down", nil)
	h.sender.failTo["client@example.com"] = boom
	h.sender.failTo["worker@example.com"] = boom

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.False(t, res.Success)
	assert.Equal(t, types.StageEmit, res.Stage)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, res.ErrorCode)
	assert.Zero(t, res.NotificationsSent)
	h.writer.AssertNotCalled(t, "AppendNotificationRecord", mock.Anything, mock.Anything)
}

func TestDispatch_RecordWriteFailuresAreWarnings(t *testing.T) {
	h := newHarness()
	h.writer.On("AppendRecipientNotification", mock.Anything, mock.Anything).Return("", errors.New("write failed"))
	h.writer.On("AppendNotificationRecord", mock.Anything, mock.Anything).Return("", errors.New("write failed"))

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.NotificationsSent, "accepted emails count even when their record is lost")
	assert.Len(t, res.Warnings, 3)
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	h := newHarness()
	h.weather.hook = func() { panic("nil map write") }

	res := h.dispatcher().Dispatch(context.Background(), jobsiteTarget(), Options{Now: now})

	assert.False(t, res.Success)
	assert.Equal(t, types.ErrCodeInternalPanic, res.ErrorCode)
	assert.Contains(t, res.Error, "nil map write")
}
