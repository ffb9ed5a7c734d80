package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/types"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) NotificationsSince(ctx context.Context, targetID string, since time.Time) ([]types.NotificationRecord, error) {
	args := m.Called(ctx, targetID, since)
	if r := args.Get(0); r != nil {
		return r.([]types.NotificationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func record(tags ...types.ConditionTag) types.NotificationRecord {
	return types.NotificationRecord{ID: "ntf_1", Conditions: tags}
}

func TestShouldSend_SupersetLaw(t *testing.T) {
	history := []types.NotificationRecord{record(types.ConditionRain, types.ConditionHighWind)}

	assert.False(t, ShouldSend(types.TriggeredConditions{types.ConditionRain}, history))
	assert.True(t, ShouldSend(types.TriggeredConditions{types.ConditionRain, types.ConditionSnow}, history))
	assert.False(t, ShouldSend(types.TriggeredConditions{types.ConditionHighWind, types.ConditionRain}, history))
}

func TestShouldSend_EmptyConditionsNeverSend(t *testing.T) {
	assert.False(t, ShouldSend(nil, nil))
	assert.False(t, ShouldSend(types.TriggeredConditions{}, []types.NotificationRecord{record(types.ConditionRain)}))
}

func TestShouldSend_NoHistorySends(t *testing.T) {
	assert.True(t, ShouldSend(types.TriggeredConditions{types.ConditionSnow}, nil))
}

func TestShouldSend_AnySingleRecordMustCover(t *testing.T) {
	// {rain} and {snow} were sent separately; {rain, snow} is not covered by
	// either record alone.
	history := []types.NotificationRecord{record(types.ConditionRain), record(types.ConditionSnow)}
	assert.True(t, ShouldSend(types.TriggeredConditions{types.ConditionRain, types.ConditionSnow}, history))
	assert.False(t, ShouldSend(types.TriggeredConditions{types.ConditionSnow}, history))
}

func TestStartOfDay(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC) // 21:30 on Mar 9 in Chicago

	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(now, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, chicago), StartOfDay(now, chicago))
}

func TestDeduplicator_Check_QueriesFromMidnight(t *testing.T) {
	history := new(mockHistory)
	d := NewDeduplicator(history, time.UTC, nil)

	now := time.Date(2026, 1, 15, 14, 5, 0, 0, time.UTC)
	target := types.Target{Kind: types.TargetJobsite, UserID: "u1", JobsiteID: "js1"}

	history.On("NotificationsSince", mock.Anything, "js1", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)).
		Return([]types.NotificationRecord{record(types.ConditionRain, types.ConditionHighWind)}, nil)

	dec := d.Check(context.Background(), target, types.TriggeredConditions{types.ConditionRain}, now)

	assert.False(t, dec.Send)
	assert.Equal(t, ReasonAlreadyCovered, dec.Reason)
	assert.NoError(t, dec.Warning)
	history.AssertExpectations(t)
}

func TestDeduplicator_Check_UserTargetKeyedByUserID(t *testing.T) {
	history := new(mockHistory)
	d := NewDeduplicator(history, time.UTC, nil)

	history.On("NotificationsSince", mock.Anything, "u7", mock.AnythingOfType("time.Time")).
		Return([]types.NotificationRecord{}, nil)

	dec := d.Check(context.Background(), types.Target{Kind: types.TargetUser, UserID: "u7"},
		types.TriggeredConditions{types.ConditionSnow}, time.Now())

	assert.True(t, dec.Send)
	assert.Equal(t, ReasonFirstToday, dec.Reason)
	history.AssertExpectations(t)
}

func TestDeduplicator_Check_FailsOpen(t *testing.T) {
	history := new(mockHistory)
	d := NewDeduplicator(history, nil, nil)

	lookupErr := errors.New("firestore unavailable")
	history.On("NotificationsSince", mock.Anything, "js1", mock.Anything).Return(nil, lookupErr)

	dec := d.Check(context.Background(), types.Target{Kind: types.TargetJobsite, JobsiteID: "js1"},
		types.TriggeredConditions{types.ConditionRain}, time.Now())

	assert.True(t, dec.Send)
	assert.Equal(t, ReasonFailOpen, dec.Reason)
	assert.ErrorIs(t, dec.Warning, lookupErr)
}

func TestDeduplicator_Check_EmptyConditionsSkipsLookup(t *testing.T) {
	history := new(mockHistory)
	d := NewDeduplicator(history, nil, nil)

	dec := d.Check(context.Background(), types.Target{Kind: types.TargetUser, UserID: "u1"}, nil, time.Now())

	assert.False(t, dec.Send)
	history.AssertNotCalled(t, "NotificationsSince", mock.Anything, mock.Anything, mock.Anything)
}
