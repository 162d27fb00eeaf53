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

var buildStart = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type userServiceDeps struct {
	directories   *MockDirectoryReader
	organisations *MockOrganisationReader
	access        *MockAccessReader
	stats         *FakeLoginStatsStore
}

func newUserIndexService(env *testEnv, deps userServiceDeps) *UserIndexService {
	svc := NewUserIndexService(env.userGenerations(), deps.directories, deps.organisations, deps.access, deps.stats, env.pointers, env.logger, IndexingOptions{})
	svc.now = fixedClock(buildStart)
	return svc
}

func defaultUserDeps() userServiceDeps {
	lastLogin := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
	stats := NewFakeLoginStatsStore()
	stats.stats["u1"] = &models.LoginStats{LastLogin: &lastLogin, LoginsInPast12Months: []time.Time{lastLogin}}

	return userServiceDeps{
		directories: &MockDirectoryReader{
			ListUsersFunc: func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
				return models.Page[models.User]{
					Items: []models.User{
						{ID: "U1", FirstName: "Jane", LastName: "Smith", Email: "jane@example.com", Status: 1},
						{ID: "u2", FirstName: "Sam", LastName: "Jones", Email: "sam@example.com", Status: 0},
					},
					NumberOfPages: 1,
				}, nil
			},
			ListInvitationsFunc: func(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error) {
				return models.Page[models.Invitation]{
					Items: []models.Invitation{
						{ID: "i1", FirstName: "Ivy", LastName: "Green", Email: "ivy@example.com"},
						{ID: "i2", FirstName: "Old", LastName: "Invite", Email: "old@example.com", IsCompleted: true},
					},
					NumberOfPages: 1,
				}, nil
			},
		},
		organisations: &MockOrganisationReader{
			ListUserOrganisationsFunc: singlePage(models.UserOrganisationMapping{
				PrincipalID:  "u1",
				Organisation: models.OrganisationMapping{ID: "org-1", Name: "Acme School", CategoryID: "001"},
			}),
			ListInvitationOrganisationsFunc: singlePage(models.UserOrganisationMapping{
				PrincipalID:  "i1",
				Organisation: models.OrganisationMapping{ID: "org-2", Name: "Beta Trust", CategoryID: "010"},
			}),
		},
		access: &MockAccessReader{
			ListUserServicesFunc: singlePage(
				models.UserServiceMapping{PrincipalID: "U1", ServiceID: "svc-a"},
				models.UserServiceMapping{PrincipalID: "u1", ServiceID: "svc-b"},
			),
		},
		stats: stats,
	}
}

func currentName(t *testing.T, env *testEnv) string {
	t.Helper()
	name, err := env.pointers.CurrentIndex(context.Background(), cache.KeyUserIndex)
	require.NoError(t, err)
	return name
}

func TestUserIndexService_Rebuild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newUserIndexService(env, defaultUserDeps())

	require.NoError(t, svc.Rebuild(ctx))

	idx, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Contains(t, idx.Name(), UsersIndexPrefix+"-")

	user, err := idx.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, user.StringSet("organisations"))
	assert.Equal(t, []string{"svc-a", "svc-b"}, user.StringSet("services"))
	assert.Equal(t, "Acme School", user.String("primaryOrganisation"))
	assert.Equal(t, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC).UnixMilli(), user.Int64("lastLogin"))
	assert.Equal(t, int64(1), user.Int64("numberOfSuccessfulLoginsInPast12Months"))

	invitation, err := idx.Get(ctx, "inv-i1")
	require.NoError(t, err)
	assert.Equal(t, int64(models.InvitationStatusActive), invitation.Int64("statusId"))
	assert.Equal(t, []string{"org-2"}, invitation.StringSet("organisations"))

	_, err = idx.Get(ctx, "inv-i2")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	watermark, ok, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, buildStart.Equal(watermark))
}

func TestUserIndexService_RebuildReadErrorKeepsPreviousGeneration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createIndexes(t, env, "search-users-previous")
	require.NoError(t, env.pointers.SetCurrentIndex(ctx, cache.KeyUserIndex, "search-users-previous"))

	deps := defaultUserDeps()
	deps.directories.ListInvitationsFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error) {
		return models.Page[models.Invitation]{}, errors.New("directories unavailable")
	}
	svc := newUserIndexService(env, deps)

	err := svc.Rebuild(ctx)

	var readErr *models.UpstreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "invitations", readErr.Source)
	assert.Equal(t, "search-users-previous", currentName(t, env))

	_, ok, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserIndexService_RebuildJoinReadErrorAbortsBeforeUsers(t *testing.T) {
	env := newTestEnv(t)
	deps := defaultUserDeps()
	listed := false
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		listed = true
		return models.Page[models.User]{NumberOfPages: 1}, nil
	}
	deps.access.ListUserServicesFunc = func(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error) {
		return models.Page[models.UserServiceMapping]{}, errors.New("boom")
	}
	svc := newUserIndexService(env, deps)

	err := svc.Rebuild(context.Background())

	assert.Error(t, err)
	assert.False(t, listed)
	_, err = svc.Current(context.Background())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUserIndexService_UpdateChangedAbandonsWithoutCurrentIndex(t *testing.T) {
	env := newTestEnv(t)
	deps := defaultUserDeps()
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		t.Fatal("users must not be read")
		return models.Page[models.User]{}, nil
	}
	svc := newUserIndexService(env, deps)

	assert.NoError(t, svc.UpdateChanged(context.Background()))
}

func TestUserIndexService_UpdateChangedAbandonsWithoutWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createIndexes(t, env, "search-users-current")
	require.NoError(t, env.pointers.SetCurrentIndex(ctx, cache.KeyUserIndex, "search-users-current"))

	deps := defaultUserDeps()
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		t.Fatal("users must not be read")
		return models.Page[models.User]{}, nil
	}
	svc := newUserIndexService(env, deps)

	assert.NoError(t, svc.UpdateChanged(ctx))
	_, ok, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserIndexService_UpdateChanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newUserIndexService(env, defaultUserDeps())
	require.NoError(t, svc.Rebuild(ctx))
	before := currentName(t, env)

	since := buildStart
	later := buildStart.Add(5 * time.Minute)
	deps := defaultUserDeps()
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		require.NotNil(t, changedAfter)
		assert.True(t, since.Equal(*changedAfter))
		return models.Page[models.User]{
			Items:         []models.User{{ID: "u3", FirstName: "New", LastName: "Person", Email: "new@example.com", Status: 1}},
			NumberOfPages: 1,
		}, nil
	}
	deps.directories.ListInvitationsFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error) {
		return models.Page[models.Invitation]{
			Items:         []models.Invitation{{ID: "i1", IsCompleted: true}},
			NumberOfPages: 1,
		}, nil
	}
	deps.organisations.UserOrganisationsFunc = func(ctx context.Context, userID string) ([]models.OrganisationMapping, error) {
		assert.Equal(t, "u3", userID)
		return []models.OrganisationMapping{{ID: "org-9", Name: "Gamma Academy", CategoryID: "001"}}, nil
	}
	updater := newUserIndexService(env, deps)
	updater.now = fixedClock(later)

	require.NoError(t, updater.UpdateChanged(ctx))

	assert.Equal(t, before, currentName(t, env))
	idx, err := updater.Current(ctx)
	require.NoError(t, err)

	added, err := idx.Get(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "Gamma Academy", added.String("primaryOrganisation"))

	_, err = idx.Get(ctx, "inv-i1")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	watermark, _, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, later.Equal(watermark))
}

func TestUserIndexService_UpdateChangedJoinErrorKeepsWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, newUserIndexService(env, defaultUserDeps()).Rebuild(ctx))

	deps := defaultUserDeps()
	deps.organisations.UserOrganisationsFunc = func(ctx context.Context, userID string) ([]models.OrganisationMapping, error) {
		return nil, errors.New("organisations down")
	}
	updater := newUserIndexService(env, deps)
	updater.now = fixedClock(buildStart.Add(time.Hour))

	err := updater.UpdateChanged(ctx)

	var readErr *models.UpstreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "U1", readErr.RecordID)
	watermark, _, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, buildStart.Equal(watermark))
}

func TestUserIndexService_UpdateChangedDuringRebuildKeepsRebuildWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, newUserIndexService(env, defaultUserDeps()).Rebuild(ctx))
	first := currentName(t, env)

	rebuildStart := buildStart.Add(10 * time.Minute)
	rebuilder := newUserIndexService(env, defaultUserDeps())
	rebuilder.now = fixedClock(rebuildStart)

	deps := defaultUserDeps()
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		// the rebuild finishes and promotes while this update is still reading
		require.NoError(t, rebuilder.Rebuild(ctx))
		return models.Page[models.User]{NumberOfPages: 1}, nil
	}
	updater := newUserIndexService(env, deps)
	updater.now = fixedClock(buildStart.Add(20 * time.Minute))

	require.NoError(t, updater.UpdateChanged(ctx))

	assert.NotEqual(t, first, currentName(t, env))
	watermark, ok, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rebuildStart.Equal(watermark), "watermark %s", watermark)

	// the next update re-reads everything changed since the rebuild began
	var changedAfter time.Time
	next := defaultUserDeps()
	next.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, after *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		changedAfter = *after
		return models.Page[models.User]{
			Items:         []models.User{{ID: "u9", FirstName: "Mid", LastName: "Build", Email: "mid@example.com", Status: 1}},
			NumberOfPages: 1,
		}, nil
	}
	followUp := newUserIndexService(env, next)
	followUp.now = fixedClock(buildStart.Add(30 * time.Minute))
	require.NoError(t, followUp.UpdateChanged(ctx))

	assert.True(t, rebuildStart.Equal(changedAfter))
	idx, err := followUp.Current(ctx)
	require.NoError(t, err)
	_, err = idx.Get(ctx, "u9")
	assert.NoError(t, err)
}

func TestUserIndexService_UpdateChangedKeepsEarlierWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, newUserIndexService(env, defaultUserDeps()).Rebuild(ctx))

	earlier := buildStart.Add(-time.Hour)
	deps := defaultUserDeps()
	deps.directories.ListUsersFunc = func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
		require.NoError(t, env.pointers.SetWatermark(ctx, cache.KeyLastUserUpdateTime, earlier))
		return models.Page[models.User]{NumberOfPages: 1}, nil
	}
	updater := newUserIndexService(env, deps)
	updater.now = fixedClock(buildStart.Add(20 * time.Minute))

	require.NoError(t, updater.UpdateChanged(ctx))

	watermark, _, err := env.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, earlier.Equal(watermark))
}

func TestUserIndexService_IndexByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deps := defaultUserDeps()
	require.NoError(t, newUserIndexService(env, deps).Rebuild(ctx))

	deps.directories.GetUserFunc = func(ctx context.Context, id string) (*models.User, error) {
		if id != "u7" {
			return nil, models.ErrNotFound
		}
		return &models.User{ID: "u7", FirstName: "Lee", LastName: "Park", Email: "lee@example.com", Status: 1}, nil
	}
	deps.directories.GetInvitationFunc = func(ctx context.Context, id string) (*models.Invitation, error) {
		switch id {
		case "i5":
			return &models.Invitation{ID: "i5", FirstName: "Pat", LastName: "Lane", Email: "pat@example.com", Deactivated: true}, nil
		case "i6":
			return &models.Invitation{ID: "i6", Deleted: true}, nil
		default:
			return nil, models.ErrNotFound
		}
	}
	svc := newUserIndexService(env, deps)
	idx, err := svc.Current(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.IndexByID(ctx, "u7"))
	doc, err := idx.Get(ctx, "u7")
	require.NoError(t, err)
	assert.Equal(t, "Lee", doc.String("firstName"))

	require.NoError(t, svc.IndexByID(ctx, "inv-i5"))
	doc, err = idx.Get(ctx, "inv-i5")
	require.NoError(t, err)
	assert.Equal(t, int64(models.InvitationStatusDeactivated), doc.Int64("statusId"))
	assert.Equal(t, "Deactivated Invitation", doc.String("statusDescription"))

	assert.NoError(t, svc.IndexByID(ctx, "inv-i6"))
	_, err = idx.Get(ctx, "inv-i6")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	assert.NoError(t, svc.IndexByID(ctx, "inv-missing"))

	err = svc.IndexByID(ctx, "nobody")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestGroupJoins(t *testing.T) {
	j := groupJoins(
		[]models.UserOrganisationMapping{
			{PrincipalID: "U1", Organisation: models.OrganisationMapping{ID: "b"}},
			{PrincipalID: "u1", Organisation: models.OrganisationMapping{ID: "a"}},
		},
		[]models.UserServiceMapping{{PrincipalID: "u2", ServiceID: "s"}},
	)

	require.Len(t, j.orgs["u1"], 2)
	assert.Equal(t, "b", j.orgs["u1"][0].ID)
	assert.Equal(t, []string{"s"}, j.services["u2"])
}
