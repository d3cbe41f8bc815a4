package service

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/repository"
)

type CommandStore interface {
	GetDevice(deviceID string) (*domain.Device, error)
	InsertCommand(c *domain.Command) error
}

type CommandRelay interface {
	PublishCommand(c *domain.Command) error
}

type Services struct {
	Repos    *repository.Repos
	Commands *CommandService
}

func New(db *sqlx.DB, relay CommandRelay) *Services {
	repos := repository.New(db)
	return &Services{
		Repos:    repos,
		Commands: NewCommandService(repos, relay),
	}
}

// CommandService implements the command path behind the broadcaster:
// persist first, then route to the relay best-effort.
type CommandService struct {
	store CommandStore
	relay CommandRelay
}

func NewCommandService(store CommandStore, relay CommandRelay) *CommandService {
	return &CommandService{store: store, relay: relay}
}

// QueueCommand persists a pending command for the device and publishes it
// onto the relay's per-device command channel. A relay failure is logged
// and does not roll back the persisted command.
func (s *CommandService) QueueCommand(deviceID, commandType string, data json.RawMessage, userID string) (*domain.Command, error) {
	if _, err := s.store.GetDevice(deviceID); err != nil {
		return nil, fmt.Errorf("unknown device %s", deviceID)
	}

	cmd := &domain.Command{
		DeviceID:    deviceID,
		CommandType: commandType,
		CommandData: []byte(data),
		IssuedBy:    userID,
		Status:      domain.CommandPending,
	}
	if err := s.store.InsertCommand(cmd); err != nil {
		return nil, fmt.Errorf("persist command: %w", err)
	}

	if s.relay != nil {
		if err := s.relay.PublishCommand(cmd); err != nil {
			log.Error().Err(err).Int64("command_id", cmd.ID).Str("device_id", deviceID).
				Msg("command relay publish failed, command stays persisted")
		}
	}
	return cmd, nil
}
