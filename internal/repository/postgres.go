package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRoomRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRoomRepository(db *pgxpool.Pool) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func RoomToRowParams(room Room) []any {
	var controlMessageID *string
	if room.ControlMessageID != "" {
		controlMessageID = &room.ControlMessageID
	}
	return []any{
		room.ChannelID,
		room.GuildID,
		room.CreatorID,
		room.Name,
		controlMessageID,
		room.CreatedAt,
	}
}

func (r *PostgresRoomRepository) Save(ctx context.Context, room Room) error {
	const query = `
	INSERT INTO room (channel_id, guild_id, creator_id, room_name, control_message_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (channel_id) DO UPDATE SET
		guild_id = EXCLUDED.guild_id,
		creator_id = EXCLUDED.creator_id,
		room_name = EXCLUDED.room_name,
		control_message_id = EXCLUDED.control_message_id,
		created_at = EXCLUDED.created_at
	`

	if _, err := r.db.Exec(ctx, query, RoomToRowParams(room)...); err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.ChannelID, err)
	}
	return nil
}

func (r *PostgresRoomRepository) SetControlMessage(ctx context.Context, channelID, messageID string) error {
	const query = `UPDATE room SET control_message_id = $2 WHERE channel_id = $1`
	return r.update(ctx, query, channelID, messageID)
}

func (r *PostgresRoomRepository) Rename(ctx context.Context, channelID, name string) error {
	const query = `UPDATE room SET room_name = $2 WHERE channel_id = $1`
	return r.update(ctx, query, channelID, name)
}

func (r *PostgresRoomRepository) update(ctx context.Context, query, channelID, value string) error {
	tag, err := r.db.Exec(ctx, query, channelID, value)
	if err != nil {
		return fmt.Errorf("failed to update room %s: %w", channelID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", channelID, ErrRoomNotFound)
	}
	return nil
}

func (r *PostgresRoomRepository) Delete(ctx context.Context, channelID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM room WHERE channel_id = $1`, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to delete room %s: %w", channelID, err)
	}
	return tag.RowsAffected() > 0, nil
}

const selectRoomColumns = `
	SELECT channel_id, guild_id, creator_id, room_name, COALESCE(control_message_id, ''), created_at
	FROM room
`

func scanRoom(row pgx.CollectableRow) (Room, error) {
	var room Room
	err := row.Scan(
		&room.ChannelID,
		&room.GuildID,
		&room.CreatorID,
		&room.Name,
		&room.ControlMessageID,
		&room.CreatedAt,
	)
	return room, err
}

func (r *PostgresRoomRepository) Get(ctx context.Context, channelID string) (Room, error) {
	rows, err := r.db.Query(ctx, selectRoomColumns+`WHERE channel_id = $1`, channelID)
	if err != nil {
		return Room{}, fmt.Errorf("failed to query room %s: %w", channelID, err)
	}
	room, err := pgx.CollectExactlyOneRow(rows, scanRoom)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, fmt.Errorf("room %s: %w", channelID, ErrRoomNotFound)
	}
	if err != nil {
		return Room{}, fmt.Errorf("failed to scan room %s: %w", channelID, err)
	}
	return room, nil
}

func (r *PostgresRoomRepository) List(ctx context.Context, guildID string) ([]Room, error) {
	const query = selectRoomColumns + `
	WHERE $1 = '' OR guild_id = $1
	ORDER BY created_at, channel_id
	`

	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, scanRoom)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", err)
	}
	return rooms, nil
}

var _ RoomRepository = (*PostgresRoomRepository)(nil)
