package recipients

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/types"
)

type mockContactStore struct {
	mock.Mock
}

func (m *mockContactStore) ListActiveContacts(ctx context.Context, ownerUserID string, kind types.ContactKind) ([]types.Contact, error) {
	args := m.Called(ctx, ownerUserID, kind)
	if c := args.Get(0); c != nil {
		return c.([]types.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

func boolPtr(b bool) *bool { return &b }

func TestResolve_BasicTierHonorsOptIn(t *testing.T) {
	store := new(mockContactStore)
	store.On("ListActiveContacts", mock.Anything, "u1", types.ContactClient).Return([]types.Contact{
		{ID: "c1", Name: "Ana", Email: "ana@client.com", Active: true, WeatherAlertsOptIn: boolPtr(true)},
		{ID: "c2", Name: "Bo", Email: "bo@client.com", Active: true, WeatherAlertsOptIn: boolPtr(false)},
		{ID: "c3", Name: "Cy", Email: "cy@client.com", Active: true},
	}, nil)
	store.On("ListActiveContacts", mock.Anything, "u1", types.ContactWorker).Return([]types.Contact{
		{ID: "w1", Name: "Dee", Email: "dee@crew.com", Active: true},
	}, nil)

	r := NewResolver(store, nil)
	got, err := r.Resolve(context.Background(), types.Target{Kind: types.TargetUser, UserID: "u1", Plan: types.PlanBasic})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, rc := range got {
		ids = append(ids, rc.ID)
	}
	assert.Equal(t, []string{"c1", "c3", "w1"}, ids)
	assert.Equal(t, types.ContactWorker, got[2].Type)
	store.AssertExpectations(t)
}

func TestResolve_PremiumUsesUserLevelContacts(t *testing.T) {
	store := new(mockContactStore)
	store.On("ListActiveContacts", mock.Anything, "u2", types.ContactClient).Return([]types.Contact{
		{ID: "c1", Email: "owner@client.com", Active: true, WeatherAlertsOptIn: boolPtr(false)},
	}, nil)
	store.On("ListActiveContacts", mock.Anything, "u2", types.ContactWorker).Return([]types.Contact{
		{ID: "w1", Email: "foreman@crew.com", Active: true},
	}, nil)

	r := NewResolver(store, nil)
	got, err := r.Resolve(context.Background(), types.Target{
		Kind: types.TargetJobsite, UserID: "u2", JobsiteID: "js9", Plan: types.PlanPremium,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolve_DropsUnusableEmailsAndDuplicates(t *testing.T) {
	store := new(mockContactStore)
	store.On("ListActiveContacts", mock.Anything, "u1", types.ContactClient).Return([]types.Contact{
		{ID: "c1", Email: "Sam@Example.com", Active: true},
		{ID: "c2", Email: "", Active: true},
		{ID: "c3", Email: "not-an-email", Active: true},
		{ID: "c4", Email: "gone@example.com", Active: false},
	}, nil)
	store.On("ListActiveContacts", mock.Anything, "u1", types.ContactWorker).Return([]types.Contact{
		{ID: "w1", Email: "sam@example.com ", Active: true},
	}, nil)

	r := NewResolver(store, nil)
	got, err := r.Resolve(context.Background(), types.Target{Kind: types.TargetUser, UserID: "u1", Plan: types.PlanEnterprise})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, types.ContactClient, got[0].Type)
}

func TestResolve_NoContactsIsNotAnError(t *testing.T) {
	store := new(mockContactStore)
	store.On("ListActiveContacts", mock.Anything, "u1", mock.Anything).Return([]types.Contact{}, nil)

	got, err := NewResolver(store, nil).Resolve(context.Background(), types.Target{UserID: "u1", Plan: types.PlanBasic})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	store := new(mockContactStore)
	storeErr := types.NewAppError(types.ErrCodeInternalDB, "failed to list contacts", errors.New("timeout"))
	store.On("ListActiveContacts", mock.Anything, "u1", types.ContactClient).Return(nil, storeErr)

	_, err := NewResolver(store, nil).Resolve(context.Background(), types.Target{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}
