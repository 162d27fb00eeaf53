package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/clients"
	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/models"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

const (
	UsersIndexPrefix   = "search-users"
	DevicesIndexPrefix = "search-devices"

	DefaultChunkSize      = 50
	DefaultSourcePageSize = 500
)

// IndexingOptions tunes reads from upstream and writes to the index.
type IndexingOptions struct {
	ChunkSize      int
	SourcePageSize int
}

func (o IndexingOptions) withDefaults() IndexingOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SourcePageSize <= 0 {
		o.SourcePageSize = DefaultSourcePageSize
	}
	return o
}

// UserIndexService builds and maintains the users index, which holds both
// directory users and pending invitations.
type UserIndexService struct {
	generations   *Generations
	directories   DirectoryReader
	organisations OrganisationReader
	access        AccessReader
	loginStats    LoginStatsStore
	pointers      PointerStore
	logger        *slog.Logger
	opts          IndexingOptions
	now           func() time.Time
}

func NewUserIndexService(
	generations *Generations,
	directories DirectoryReader,
	organisations OrganisationReader,
	access AccessReader,
	loginStats LoginStatsStore,
	pointers PointerStore,
	logger *slog.Logger,
	opts IndexingOptions,
) *UserIndexService {
	return &UserIndexService{
		generations:   generations,
		directories:   directories,
		organisations: organisations,
		access:        access,
		loginStats:    loginStats,
		pointers:      pointers,
		logger:        logger,
		opts:          opts.withDefaults(),
		now:           time.Now,
	}
}

// Current returns the users index readers should query.
func (s *UserIndexService) Current(ctx context.Context) (*index.Index, error) {
	return s.generations.Current(ctx)
}

func (s *UserIndexService) Tidy(ctx context.Context) error {
	s.log(ctx).Info("tidying user indexes")
	return s.generations.Tidy(ctx)
}

// Rebuild indexes every user and invitation into a new generation, then makes
// it current. The watermark is set to the time the build started.
func (s *UserIndexService) Rebuild(ctx context.Context) error {
	start := s.now().UTC()
	logger := s.log(ctx)

	idx, err := s.generations.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.generations.Done(idx.Name())
	logger.Info("created users index", slog.String("index", idx.Name()))

	joins, err := s.readUserJoins(ctx)
	if err != nil {
		return err
	}

	userCount := 0
	err = ForEachPage(ctx, "users", s.opts.SourcePageSize, s.listUsers(nil), func(users []models.User) error {
		docs := make([]models.Document, 0, len(users))
		for _, user := range users {
			doc, err := s.userDocument(ctx, user, joins.orgs[strings.ToLower(user.ID)], joins.services[strings.ToLower(user.ID)])
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		userCount += len(docs)
		return s.storeChunks(ctx, idx, docs)
	})
	if err != nil {
		return err
	}
	logger.Info("indexed users", slog.String("index", idx.Name()), slog.Int("count", userCount))

	invitationJoins, err := s.readInvitationJoins(ctx)
	if err != nil {
		return err
	}

	invitationCount := 0
	err = ForEachPage(ctx, "invitations", s.opts.SourcePageSize, s.listInvitations(nil), func(invitations []models.Invitation) error {
		docs := make([]models.Document, 0, len(invitations))
		for i := range invitations {
			inv := invitations[i]
			if inv.Skippable() {
				continue
			}
			key := strings.ToLower(inv.ID)
			doc, err := mapper.InvitationDocument(inv, invitationJoins.orgs[key], invitationJoins.services[key])
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		invitationCount += len(docs)
		return s.storeChunks(ctx, idx, docs)
	})
	if err != nil {
		return err
	}
	logger.Info("indexed invitations", slog.String("index", idx.Name()), slog.Int("count", invitationCount))

	if err := s.generations.Promote(ctx, idx); err != nil {
		return err
	}
	logger.Info("set users index", slog.String("index", idx.Name()))

	if err := s.pointers.SetWatermark(ctx, cache.KeyLastUserUpdateTime, start); err != nil {
		return fmt.Errorf("failed to update users watermark: %w", err)
	}
	logger.Info("updated users watermark", slog.Time("watermark", start))
	return nil
}

// UpdateChanged re-indexes users and invitations changed since the watermark
// into the current generation. Without a current generation or a watermark
// the update is abandoned.
func (s *UserIndexService) UpdateChanged(ctx context.Context) error {
	start := s.now().UTC()
	logger := s.log(ctx)

	idx, err := s.Current(ctx)
	if errors.Is(err, models.ErrNotFound) {
		logger.Warn("no current users index, abandoning update")
		return nil
	}
	if err != nil {
		return err
	}

	since, ok, err := s.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("no users watermark recorded, abandoning update", slog.String("index", idx.Name()))
		return nil
	}
	logger.Info("updating users index", slog.String("index", idx.Name()), slog.Time("changed_after", since))

	changed := 0
	err = ForEachPage(ctx, "users", s.opts.SourcePageSize, s.listUsers(&since), func(users []models.User) error {
		docs := make([]models.Document, 0, len(users))
		for _, user := range users {
			orgs, services, err := s.userJoins(ctx, user.ID)
			if err != nil {
				return err
			}
			doc, err := s.userDocument(ctx, user, orgs, services)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		changed += len(docs)
		return s.storeChunks(ctx, idx, docs)
	})
	if err != nil {
		return err
	}

	err = ForEachPage(ctx, "invitations", s.opts.SourcePageSize, s.listInvitations(&since), func(invitations []models.Invitation) error {
		docs := make([]models.Document, 0, len(invitations))
		for i := range invitations {
			inv := invitations[i]
			if inv.Skippable() {
				if err := idx.Delete(ctx, mapper.InvitationKeyPrefix+inv.ID); err != nil {
					return err
				}
				continue
			}
			doc, err := s.invitationDocument(ctx, inv)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		changed += len(docs)
		return s.storeChunks(ctx, idx, docs)
	})
	if err != nil {
		return err
	}

	advanced, err := s.advanceWatermark(ctx, idx, since, start)
	if err != nil {
		return err
	}
	if !advanced {
		logger.Info("updated users index, watermark left to the rebuild",
			slog.String("index", idx.Name()), slog.Int("count", changed))
		return nil
	}
	logger.Info("updated users index", slog.String("index", idx.Name()), slog.Int("count", changed), slog.Time("watermark", start))
	return nil
}

// advanceWatermark moves the users watermark to start unless a rebuild has
// promoted another generation or written an earlier watermark since the
// update began. In that case the rebuild's watermark stands so the next
// update re-reads records changed while it was building.
func (s *UserIndexService) advanceWatermark(ctx context.Context, idx *index.Index, since, start time.Time) (bool, error) {
	current, err := s.pointers.CurrentIndex(ctx, cache.KeyUserIndex)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to read %s: %w", cache.KeyUserIndex, err)
	}
	if current != idx.Name() {
		return false, nil
	}

	latest, ok, err := s.pointers.Watermark(ctx, cache.KeyLastUserUpdateTime)
	if err != nil {
		return false, err
	}
	if ok && !latest.Equal(since) && latest.Before(start) {
		return false, nil
	}

	if err := s.pointers.SetWatermark(ctx, cache.KeyLastUserUpdateTime, start); err != nil {
		return false, fmt.Errorf("failed to update users watermark: %w", err)
	}
	return true, nil
}

// IndexByID fetches one user or invitation ("inv-" prefix) and upserts it
// into the current generation. Completed, deleted or unknown invitations are
// skipped. An unknown user is models.ErrNotFound.
func (s *UserIndexService) IndexByID(ctx context.Context, id string) error {
	idx, err := s.Current(ctx)
	if err != nil {
		return err
	}

	var doc models.Document
	if mapper.IsInvitationKey(id) {
		inv, err := s.directories.GetInvitation(ctx, mapper.InvitationID(id))
		if errors.Is(err, models.ErrNotFound) || (err == nil && inv.Skippable()) {
			s.log(ctx).Debug("invitation not indexable, skipping", slog.String("id", id))
			return nil
		}
		if err != nil {
			return &models.UpstreamReadError{Source: "invitations", RecordID: id, Err: err}
		}
		doc, err = s.invitationDocument(ctx, *inv)
		if err != nil {
			return err
		}
	} else {
		user, err := s.directories.GetUser(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return &models.UpstreamReadError{Source: "users", RecordID: id, Err: err}
		}
		orgs, services, err := s.userJoins(ctx, user.ID)
		if err != nil {
			return err
		}
		doc, err = s.userDocument(ctx, *user, orgs, services)
		if err != nil {
			return err
		}
	}

	return idx.Store(ctx, []models.Document{doc}, pkglogger.CorrelationID(ctx))
}

func (s *UserIndexService) userDocument(ctx context.Context, user models.User, orgs []models.OrganisationMapping, services []string) (models.Document, error) {
	stats, err := s.loginStats.Get(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return mapper.UserDocument(user, orgs, services, stats)
}

func (s *UserIndexService) invitationDocument(ctx context.Context, inv models.Invitation) (models.Document, error) {
	orgs, err := s.organisations.InvitationOrganisations(ctx, inv.ID)
	if err != nil {
		return nil, &models.UpstreamReadError{Source: "invitation organisations", RecordID: inv.ID, Err: err}
	}
	services, err := s.access.InvitationServices(ctx, inv.ID)
	if err != nil {
		return nil, &models.UpstreamReadError{Source: "invitation services", RecordID: inv.ID, Err: err}
	}
	return mapper.InvitationDocument(inv, orgs, services)
}

// userJoins fetches organisations and services for a single user.
func (s *UserIndexService) userJoins(ctx context.Context, userID string) ([]models.OrganisationMapping, []string, error) {
	orgs, err := s.organisations.UserOrganisations(ctx, userID)
	if err != nil {
		return nil, nil, &models.UpstreamReadError{Source: "user organisations", RecordID: userID, Err: err}
	}
	services, err := s.access.UserServices(ctx, userID)
	if err != nil {
		return nil, nil, &models.UpstreamReadError{Source: "user services", RecordID: userID, Err: err}
	}
	return orgs, services, nil
}

// joins holds bulk-read organisation and service mappings keyed by lower-cased principal id
type joins struct {
	orgs     map[string][]models.OrganisationMapping
	services map[string][]string
}

func (s *UserIndexService) readUserJoins(ctx context.Context) (*joins, error) {
	orgs, err := ReadAllPages(ctx, "user organisations", s.opts.SourcePageSize, s.organisations.ListUserOrganisations)
	if err != nil {
		return nil, err
	}
	services, err := ReadAllPages(ctx, "user services", s.opts.SourcePageSize, s.access.ListUserServices)
	if err != nil {
		return nil, err
	}
	return groupJoins(orgs, services), nil
}

func (s *UserIndexService) readInvitationJoins(ctx context.Context) (*joins, error) {
	orgs, err := ReadAllPages(ctx, "invitation organisations", s.opts.SourcePageSize, s.organisations.ListInvitationOrganisations)
	if err != nil {
		return nil, err
	}
	services, err := ReadAllPages(ctx, "invitation services", s.opts.SourcePageSize, s.access.ListInvitationServices)
	if err != nil {
		return nil, err
	}
	return groupJoins(orgs, services), nil
}

// groupJoins keeps mappings in upstream order per principal.
func groupJoins(orgs []models.UserOrganisationMapping, services []models.UserServiceMapping) *joins {
	j := &joins{
		orgs:     make(map[string][]models.OrganisationMapping),
		services: make(map[string][]string),
	}
	for _, m := range orgs {
		key := strings.ToLower(m.PrincipalID)
		j.orgs[key] = append(j.orgs[key], m.Organisation)
	}
	for _, m := range services {
		key := strings.ToLower(m.PrincipalID)
		j.services[key] = append(j.services[key], m.ServiceID)
	}
	return j
}

func (s *UserIndexService) listUsers(changedAfter *time.Time) PageFetcher[models.User] {
	return func(ctx context.Context, page, pageSize int) (models.Page[models.User], error) {
		return s.directories.ListUsers(ctx, page, pageSize, changedAfter, clients.UserIncludes{LegacyUsernames: true})
	}
}

func (s *UserIndexService) listInvitations(changedAfter *time.Time) PageFetcher[models.Invitation] {
	return func(ctx context.Context, page, pageSize int) (models.Page[models.Invitation], error) {
		return s.directories.ListInvitations(ctx, page, pageSize, changedAfter)
	}
}

func (s *UserIndexService) storeChunks(ctx context.Context, idx *index.Index, docs []models.Document) error {
	return storeChunks(ctx, idx, docs, s.opts.ChunkSize)
}

func (s *UserIndexService) log(ctx context.Context) *slog.Logger {
	return pkglogger.FromContext(ctx, s.logger)
}

// storeChunks writes docs in fixed-size chunks, independent of the store batch size.
func storeChunks(ctx context.Context, idx *index.Index, docs []models.Document, size int) error {
	correlationID := pkglogger.CorrelationID(ctx)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		if err := idx.Store(ctx, docs[start:end], correlationID); err != nil {
			return err
		}
	}
	return nil
}
