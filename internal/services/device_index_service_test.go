package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/clients"
	"github.com/BradenHooton/directory-search/internal/models"
)

func TestDeviceIndexService_Rebuild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lastLogin := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	stats := NewFakeLoginStatsStore()
	stats.stats["u1"] = &models.LoginStats{LastLogin: &lastLogin, LoginsInPast12Months: []time.Time{lastLogin, lastLogin}}

	orgCalls := 0
	svc := NewDeviceIndexService(
		env.deviceGenerations(),
		&MockDeviceReader{ListDevicesFunc: singlePage(
			models.Device{SerialNumber: "1000000001"},
			models.Device{SerialNumber: "1000000002"},
			models.Device{SerialNumber: "1000000003", Deactivated: true},
			models.Device{SerialNumber: "1000000004"},
		)},
		&MockDirectoryReader{
			ListUsersFunc: func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
				assert.True(t, include.Devices)
				assert.Nil(t, changedAfter)
				return models.Page[models.User]{
					Items: []models.User{
						{ID: "u1", FirstName: "Jane", LastName: "Smith", Devices: []string{"1000000001", "1000000004"}},
						{ID: "u2", FirstName: "Sam", LastName: "Jones", Devices: []string{"1000000003"}},
					},
					NumberOfPages: 1,
				}, nil
			},
		},
		&MockOrganisationReader{
			UserOrganisationsFunc: func(ctx context.Context, userID string) ([]models.OrganisationMapping, error) {
				orgCalls++
				if userID == "u1" {
					return []models.OrganisationMapping{{ID: "org-1", Name: "Acme School"}, {ID: "org-2", Name: "Other"}}, nil
				}
				return nil, nil
			},
		},
		stats,
		env.pointers,
		env.logger,
		IndexingOptions{},
	)
	svc.now = fixedClock(buildStart)

	require.NoError(t, svc.Rebuild(ctx))

	idx, err := svc.Current(ctx)
	require.NoError(t, err)

	assigned, err := idx.Get(ctx, "1000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(models.DeviceStatusAssigned), assigned.Int64("statusId"))
	assert.Equal(t, "Jane Smith", assigned.String("assignee"))
	assert.Equal(t, "u1", assigned.String("assigneeId"))
	assert.Equal(t, "Acme School", assigned.String("organisationName"))
	assert.Equal(t, "acmeschool", assigned.String("searchableOrganisationName"))
	assert.Equal(t, lastLogin.UnixMilli(), assigned.Int64("lastLogin"))
	assert.Equal(t, int64(2), assigned.Int64("numberOfSuccessfulLoginsInPast12Months"))

	unassigned, err := idx.Get(ctx, "1000000002")
	require.NoError(t, err)
	assert.Equal(t, int64(models.DeviceStatusUnassigned), unassigned.Int64("statusId"))

	deactivated, err := idx.Get(ctx, "1000000003")
	require.NoError(t, err)
	assert.Equal(t, int64(models.DeviceStatusDeactivated), deactivated.Int64("statusId"))
	assert.Equal(t, "Sam Jones", deactivated.String("assignee"))

	// organisations are read once per assignee
	assert.Equal(t, 2, orgCalls)

	watermark, ok, err := env.pointers.Watermark(ctx, cache.KeyLastDeviceUpdateTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, buildStart.Equal(watermark))
}

func TestDeviceIndexService_RebuildReadErrorDoesNotPromote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewDeviceIndexService(
		env.deviceGenerations(),
		&MockDeviceReader{ListDevicesFunc: func(ctx context.Context, page, pageSize int) (models.Page[models.Device], error) {
			if page == 2 {
				return models.Page[models.Device]{}, errors.New("timeout")
			}
			return models.Page[models.Device]{Items: []models.Device{{SerialNumber: "1"}}, NumberOfPages: 2}, nil
		}},
		&MockDirectoryReader{},
		&MockOrganisationReader{},
		NewFakeLoginStatsStore(),
		env.pointers,
		env.logger,
		IndexingOptions{},
	)

	err := svc.Rebuild(ctx)

	var readErr *models.UpstreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, 2, readErr.Page)
	_, err = svc.Current(ctx)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
