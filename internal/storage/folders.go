package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datapilot-ai/datapilot/internal/model"
)

// CreateFolder inserts a new folder for a user.
func (db *DB) CreateFolder(ctx context.Context, userID uuid.UUID, name string) (model.Folder, error) {
	f := model.Folder{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO folders (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.UserID, f.Name, f.CreatedAt,
	)
	if err != nil {
		return model.Folder{}, fmt.Errorf("storage: create folder: %w", err)
	}
	return f, nil
}

// ListFolders returns all folders belonging to a user, newest first.
func (db *DB) ListFolders(ctx context.Context, userID uuid.UUID) ([]model.Folder, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, created_at FROM folders
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// RenameFolder renames a folder. Scoped to the owner; ErrNotFound when the
// folder does not exist or belongs to someone else.
func (db *DB) RenameFolder(ctx context.Context, userID, folderID uuid.UUID, name string) (model.Folder, error) {
	var f model.Folder
	err := db.pool.QueryRow(ctx,
		`UPDATE folders SET name = $1 WHERE id = $2 AND user_id = $3
		 RETURNING id, user_id, name, created_at`,
		name, folderID, userID,
	).Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Folder{}, ErrNotFound
		}
		return model.Folder{}, fmt.Errorf("storage: rename folder: %w", err)
	}
	return f, nil
}

// DeleteFolder deletes a folder. Questions inside are un-assigned, not
// deleted. Retries on deadlock against concurrent question moves.
func (db *DB) DeleteFolder(ctx context.Context, userID, folderID uuid.UUID) error {
	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.deleteFolder(ctx, userID, folderID)
	})
}

func (db *DB) deleteFolder(ctx context.Context, userID, folderID uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin delete folder tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE questions SET folder_id = NULL WHERE folder_id = $1 AND user_id = $2`,
		folderID, userID,
	); err != nil {
		return fmt.Errorf("storage: unassign folder questions: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM folders WHERE id = $1 AND user_id = $2`, folderID, userID)
	if err != nil {
		return fmt.Errorf("storage: delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}
