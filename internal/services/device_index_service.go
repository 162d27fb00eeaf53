package services

import (
	"context"
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

// DeviceIndexService builds the devices index. Assignment comes from the
// device serial numbers held on directory users.
type DeviceIndexService struct {
	generations   *Generations
	devices       DeviceReader
	directories   DirectoryReader
	organisations OrganisationReader
	loginStats    LoginStatsStore
	pointers      PointerStore
	logger        *slog.Logger
	opts          IndexingOptions
	now           func() time.Time
}

func NewDeviceIndexService(
	generations *Generations,
	devices DeviceReader,
	directories DirectoryReader,
	organisations OrganisationReader,
	loginStats LoginStatsStore,
	pointers PointerStore,
	logger *slog.Logger,
	opts IndexingOptions,
) *DeviceIndexService {
	return &DeviceIndexService{
		generations:   generations,
		devices:       devices,
		directories:   directories,
		organisations: organisations,
		loginStats:    loginStats,
		pointers:      pointers,
		logger:        logger,
		opts:          opts.withDefaults(),
		now:           time.Now,
	}
}

func (s *DeviceIndexService) Current(ctx context.Context) (*index.Index, error) {
	return s.generations.Current(ctx)
}

func (s *DeviceIndexService) Tidy(ctx context.Context) error {
	pkglogger.FromContext(ctx, s.logger).Info("tidying device indexes")
	return s.generations.Tidy(ctx)
}

// Rebuild indexes every device into a new generation and makes it current.
func (s *DeviceIndexService) Rebuild(ctx context.Context) error {
	start := s.now().UTC()
	logger := pkglogger.FromContext(ctx, s.logger)

	idx, err := s.generations.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.generations.Done(idx.Name())
	logger.Info("created devices index", slog.String("index", idx.Name()))

	devices, err := ReadAllPages(ctx, "devices", s.opts.SourcePageSize, s.devices.ListDevices)
	if err != nil {
		return err
	}

	assignees, err := s.readAssignees(ctx)
	if err != nil {
		return err
	}

	orgNames := make(map[string]string)
	docs := make([]models.Document, 0, len(devices))
	for _, device := range devices {
		var (
			assignee *models.User
			orgName  string
			stats    *models.LoginStats
		)
		if user, ok := assignees[strings.ToLower(device.SerialNumber)]; ok {
			assignee = user
			orgName, err = s.primaryOrganisationName(ctx, user.ID, orgNames)
			if err != nil {
				return err
			}
			stats, err = s.loginStats.Get(ctx, user.ID)
			if err != nil {
				return err
			}
		}
		docs = append(docs, mapper.DeviceDocument(device, assignee, orgName, stats))
	}

	if err := storeChunks(ctx, idx, docs, s.opts.ChunkSize); err != nil {
		return err
	}
	logger.Info("indexed devices", slog.String("index", idx.Name()), slog.Int("count", len(docs)))

	if err := s.generations.Promote(ctx, idx); err != nil {
		return err
	}
	logger.Info("set devices index", slog.String("index", idx.Name()))

	if err := s.pointers.SetWatermark(ctx, cache.KeyLastDeviceUpdateTime, start); err != nil {
		return fmt.Errorf("failed to update devices watermark: %w", err)
	}
	return nil
}

// readAssignees maps lower-cased serial numbers to the user holding the device.
func (s *DeviceIndexService) readAssignees(ctx context.Context) (map[string]*models.User, error) {
	fetch := func(ctx context.Context, page, pageSize int) (models.Page[models.User], error) {
		return s.directories.ListUsers(ctx, page, pageSize, nil, clients.UserIncludes{Devices: true})
	}

	assignees := make(map[string]*models.User)
	err := ForEachPage(ctx, "users", s.opts.SourcePageSize, fetch, func(users []models.User) error {
		for i := range users {
			user := users[i]
			for _, serial := range user.Devices {
				assignees[strings.ToLower(serial)] = &user
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignees, nil
}

func (s *DeviceIndexService) primaryOrganisationName(ctx context.Context, userID string, seen map[string]string) (string, error) {
	key := strings.ToLower(userID)
	if name, ok := seen[key]; ok {
		return name, nil
	}
	orgs, err := s.organisations.UserOrganisations(ctx, userID)
	if err != nil {
		return "", &models.UpstreamReadError{Source: "user organisations", RecordID: userID, Err: err}
	}
	name := ""
	if len(orgs) > 0 {
		name = orgs[0].Name
	}
	seen[key] = name
	return name, nil
}
