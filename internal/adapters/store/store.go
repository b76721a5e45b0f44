package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store implements core.Gateway directly on the database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects with the sqlite or postgres dialector and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger(zerologWriter{}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("driver", driver).Msg("database ready")
	return NewStore(db), nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserRecord{}, &RoomRecord{}, &MembershipRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetOrCreateRoom(ctx context.Context, seed domain.Room) (*domain.Room, error) {
	var rec RoomRecord
	err := s.db.WithContext(ctx).
		Where(RoomRecord{ID: string(seed.ID)}).
		Attrs(roomFromDomain(seed)).
		FirstOrCreate(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create room: %w", err)
	}
	room := rec.toDomain()
	return &room, nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (*core.RoomRecord, error) {
	db := s.db.WithContext(ctx)
	var rec RoomRecord
	if err := db.First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	var users []UserRecord
	err := db.Model(&UserRecord{}).
		Joins("JOIN user_rooms ON user_rooms.user_id = users.id").
		Where("user_rooms.room_id = ?", string(id)).
		Order("user_rooms.joined_at, user_rooms.id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find room members: %w", err)
	}
	out := &core.RoomRecord{Room: rec.toDomain(), Users: make([]domain.User, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, u.toDomain())
	}
	return out, nil
}

func (s *Store) AddMember(ctx context.Context, roomID domain.RoomID, user domain.User) (*domain.Membership, error) {
	var m MembershipRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room RoomRecord
		if err := tx.First(&room, "id = ?", string(roomID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrNotFound
			}
			return err
		}
		var u UserRecord
		if err := tx.Where(UserRecord{ID: string(user.ID)}).
			Assign(UserRecord{Name: user.Name, Image: user.Image}).
			FirstOrCreate(&u).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND room_id <> ?", string(user.ID), string(roomID)).
			Delete(&MembershipRecord{}).Error; err != nil {
			return err
		}
		return tx.Where(MembershipRecord{UserID: string(user.ID), RoomID: string(roomID)}).
			Attrs(MembershipRecord{JoinedAt: time.Now().UTC()}).
			FirstOrCreate(&m).Error
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	out := m.toDomain()
	return &out, nil
}

func (s *Store) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", string(userID), string(roomID)).
		Delete(&MembershipRecord{})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if result.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) SetStreamer(ctx context.Context, roomID domain.RoomID, userID *domain.UserID) (*domain.Room, error) {
	var value any
	if userID != nil {
		value = string(*userID)
	}
	db := s.db.WithContext(ctx)
	result := db.Model(&RoomRecord{}).Where("id = ?", string(roomID)).Update("streamer", value)
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to set streamer: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, core.ErrNotFound
	}
	var rec RoomRecord
	if err := db.First(&rec, "id = ?", string(roomID)).Error; err != nil {
		return nil, fmt.Errorf("failed to reload room: %w", err)
	}
	room := rec.toDomain()
	return &room, nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", string(roomID)).Delete(&MembershipRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete room members: %w", err)
		}
		result := tx.Delete(&RoomRecord{}, "id = ?", string(roomID))
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		if result.RowsAffected == 0 {
			return core.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u UserRecord
	if err := s.db.WithContext(ctx).First(&u, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	out := u.toDomain()
	return &out, nil
}
