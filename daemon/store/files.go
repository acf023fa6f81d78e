package store

import (
	"database/sql"
	"fmt"
)

// File mirrors the transfer_files row.
type File struct {
	ID               string
	SessionID        string
	RelativePath     string
	SourcePath       *string
	TargetPath       *string
	SizeBytes        int64
	TransferredBytes int64
	ChunkSize        int64
	ChunkCount       int64
	CompletedBitmap  []byte
	Blake3           *string
	MimeType         *string
	PreviewKind      *string
	PreviewData      []byte
	Status           string
	IsFolderArchive  bool
}

const fileUpsertSQL = `
	INSERT INTO transfer_files
	 (id, session_id, relative_path, source_path, target_path, size_bytes, transferred_bytes,
	  chunk_size, chunk_count, completed_bitmap, blake3, mime_type, preview_kind, preview_data,
	  status, is_folder_archive, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  transferred_bytes = excluded.transferred_bytes,
	  target_path = COALESCE(excluded.target_path, transfer_files.target_path),
	  completed_bitmap = COALESCE(excluded.completed_bitmap, transfer_files.completed_bitmap),
	  status = excluded.status,
	  blake3 = COALESCE(excluded.blake3, transfer_files.blake3),
	  mime_type = COALESCE(excluded.mime_type, transfer_files.mime_type),
	  preview_kind = COALESCE(excluded.preview_kind, transfer_files.preview_kind),
	  preview_data = COALESCE(excluded.preview_data, transfer_files.preview_data),
	  updated_at = excluded.updated_at`

func fileUpsertArgs(f File, updatedAt int64) []interface{} {
	isFolder := 0
	if f.IsFolderArchive {
		isFolder = 1
	}
	return []interface{}{
		f.ID, f.SessionID, f.RelativePath, nullString(f.SourcePath), nullString(f.TargetPath),
		f.SizeBytes, f.TransferredBytes, f.ChunkSize, f.ChunkCount, f.CompletedBitmap,
		nullString(f.Blake3), nullString(f.MimeType), nullString(f.PreviewKind), f.PreviewData,
		f.Status, isFolder, updatedAt,
	}
}

// InsertOrUpdateFile inserts a file row, or updates an existing one on conflict. Bitmap, hash,
// and preview fields only overwrite when the new value is non-empty.
func (s *Store) InsertOrUpdateFile(f File, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(fileUpsertSQL, fileUpsertArgs(f, updatedAt)...)
	if err != nil {
		return fmt.Errorf("store: insert_or_update_file: %w", err)
	}
	return nil
}

// UpsertFilesBatch applies InsertOrUpdateFile for every item inside a single transaction.
func (s *Store) UpsertFilesBatch(items []File, updatedAt int64) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin upsert_files_batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fileUpsertSQL)
	if err != nil {
		return fmt.Errorf("store: prepare upsert_files_batch: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(fileUpsertArgs(item, updatedAt)...); err != nil {
			return fmt.Errorf("store: upsert_files_batch item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// GetFileBitmap returns the persisted completed-chunk bitmap for one file, or nil if the file
// row does not exist.
func (s *Store) GetFileBitmap(sessionID, fileID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bitmap []byte
	err := s.db.QueryRow(
		"SELECT completed_bitmap FROM transfer_files WHERE session_id = ? AND id = ? LIMIT 1",
		sessionID, fileID,
	).Scan(&bitmap)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get_file_bitmap: %w", err)
	}
	return bitmap, nil
}

func (s *Store) listSessionFilesLocked(sessionID string) ([]File, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, relative_path, source_path, target_path, size_bytes,
		        transferred_bytes, chunk_size, chunk_count, status, blake3, mime_type,
		        preview_kind, is_folder_archive
		 FROM transfer_files
		 WHERE session_id = ?
		 ORDER BY relative_path ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list session files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var sourcePath, targetPath, blake3, mimeType, previewKind sql.NullString
		var isFolderArchive int
		if err := rows.Scan(
			&f.ID, &f.SessionID, &f.RelativePath, &sourcePath, &targetPath, &f.SizeBytes,
			&f.TransferredBytes, &f.ChunkSize, &f.ChunkCount, &f.Status, &blake3, &mimeType,
			&previewKind, &isFolderArchive,
		); err != nil {
			return nil, fmt.Errorf("store: scan file row: %w", err)
		}
		f.SourcePath = ptrString(sourcePath)
		f.TargetPath = ptrString(targetPath)
		f.Blake3 = ptrString(blake3)
		f.MimeType = ptrString(mimeType)
		f.PreviewKind = ptrString(previewKind)
		f.IsFolderArchive = isFolderArchive == 1
		files = append(files, f)
	}
	return files, nil
}
