package clients

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
)

type DevicesClient struct {
	client *Client
}

func NewDevicesClient(cfg config.UpstreamConfig, logger *slog.Logger) *DevicesClient {
	return &DevicesClient{client: NewClient(cfg.DevicesURL, cfg, logger)}
}

func (c *DevicesClient) ListDevices(ctx context.Context, page, pageSize int) (models.Page[models.Device], error) {
	var body struct {
		Devices []struct {
			SerialNumber string `json:"serialNumber"`
			Deactivated  bool   `json:"deactivated"`
		} `json:"devices"`
		NumberOfPages int `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, "/digipass/v2?"+pageQuery(page, pageSize), &body); err != nil {
		return models.Page[models.Device]{}, err
	}

	result := models.Page[models.Device]{
		Items:         make([]models.Device, 0, len(body.Devices)),
		NumberOfPages: body.NumberOfPages,
	}
	for _, d := range body.Devices {
		result.Items = append(result.Items, models.Device{SerialNumber: d.SerialNumber, Deactivated: d.Deactivated})
	}
	return result, nil
}
