package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"go.uber.org/zap"
)

func (s *Service) ListRooms(ctx context.Context) ([]orderdomain.Room, error) {
	return s.repo.ListActiveRooms(ctx, s.db)
}

// CreateRoom adds a room, or reactivates it when it exists but is inactive.
func (s *Service) CreateRoom(ctx context.Context, name string) (*orderdomain.RoomResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, orderdomain.ErrInvalidRoomName
	}

	existing, err := s.repo.FindRoomByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if existing != nil {
		if existing.IsActive {
			return nil, orderdomain.Reject(orderdomain.ErrRoomExists,
				fmt.Sprintf("Room '%s' already exists.", name), nil)
		}
		existing.IsActive = true
		existing.UpdatedAt = now
		if err := s.repo.SaveRoom(ctx, s.db, existing); err != nil {
			return nil, err
		}
		logger.FromContext(ctx).Info("room reactivated", zap.String("room", name))
		return &orderdomain.RoomResult{Room: *existing, Reactivated: true}, nil
	}

	room := &orderdomain.Room{
		ID:        s.genID.Generate(),
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertRoom(ctx, s.db, room); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("room created", zap.String("room", name))
	return &orderdomain.RoomResult{Room: *room}, nil
}

func (s *Service) DeactivateRoom(ctx context.Context, id snowflake.ID) (*orderdomain.Room, error) {
	room, err := s.repo.FindRoomByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, orderdomain.ErrRoomNotFound
	}
	if !room.IsActive {
		return nil, orderdomain.Reject(orderdomain.ErrRoomInactive,
			fmt.Sprintf("Room '%s' is already inactive.", room.Name), nil)
	}
	room.IsActive = false
	room.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveRoom(ctx, s.db, room); err != nil {
		return nil, err
	}
	return room, nil
}
