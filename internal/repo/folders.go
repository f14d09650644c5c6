package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/store"
)

const folderColumns = `id, remote_id, name, icon, color, parent_id, sort_order, is_system,
	is_deleted, created_at, updated_at, sync_status`

// FolderFilter narrows List and Count.
type FolderFilter struct {
	ParentID       string
	RootOnly       bool
	Status         models.SyncStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (f FolderFilter) where() *where {
	w := &where{}
	switch {
	case f.RootOnly:
		w.add("parent_id IS NULL")
	case f.ParentID != "":
		w.add("parent_id = ?", f.ParentID)
	}
	if f.Status != "" {
		w.add("sync_status = ?", string(f.Status))
	}
	if !f.IncludeDeleted {
		w.add("is_deleted = 0")
	}
	return w
}

// Folders is the folder repository.
type Folders struct {
	db *store.DB
}

// NewFolders creates a Folders repository.
func NewFolders(db *store.DB) *Folders {
	return &Folders{db: db}
}

func scanFolder(s store.Scanner) (models.Folder, error) {
	var (
		f                             models.Folder
		remoteID, icon, color, parent sql.NullString
		status                        string
		created, updated              int64
	)
	err := s.Scan(&f.ID, &remoteID, &f.Name, &icon, &color, &parent, &f.SortOrder,
		&f.IsSystem, &f.Deleted, &created, &updated, &status)
	if err != nil {
		return models.Folder{}, err
	}
	f.RemoteID = remoteID.String
	f.Icon = icon.String
	f.Color = color.String
	f.ParentID = parent.String
	f.CreatedAt = store.FromUnix(created)
	f.UpdatedAt = store.FromUnix(updated)
	f.SyncStatus = models.SyncStatus(status)
	return f, nil
}

func folderArgs(f models.Folder) []any {
	return []any{
		f.ID, store.NullString(f.RemoteID), f.Name, store.NullString(f.Icon),
		store.NullString(f.Color), store.NullString(f.ParentID), f.SortOrder,
		boolInt(f.IsSystem), boolInt(f.Deleted), store.Unix(f.CreatedAt),
		store.Unix(f.UpdatedAt), string(f.SyncStatus),
	}
}

// List returns folders matching f ordered by sort order then name.
func (r *Folders) List(ctx context.Context, f FolderFilter) ([]models.Folder, error) {
	w := f.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders`+w.String()+
			` ORDER BY sort_order, name, id`+page(f.Limit, f.Offset),
		w.args...)
	if err != nil {
		return nil, apperr.Storage("repo: list folders", err)
	}
	return scanAll("folders", scanFolder, rows)
}

// ChildrenTx returns the live direct children of parentID inside tx.
func (r *Folders) ChildrenTx(ctx context.Context, tx *sql.Tx, parentID string) ([]models.Folder, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders
		WHERE parent_id = ? AND is_deleted = 0 ORDER BY sort_order, name, id`, parentID)
	if err != nil {
		return nil, apperr.Storage("repo: folder children", err)
	}
	return scanAll("folders", scanFolder, rows)
}

// Count returns the number of folders matching f.
func (r *Folders) Count(ctx context.Context, f FolderFilter) (int, error) {
	w := f.where()
	return count(ctx, r.db, "folders", `SELECT count(*) FROM folders`+w.String(), w.args...)
}

// Get returns the folder with the given local id.
func (r *Folders) Get(ctx context.Context, id string) (models.Folder, error) {
	return getFolder(ctx, r.db, id)
}

// GetTx reads a folder inside tx.
func (r *Folders) GetTx(ctx context.Context, tx *sql.Tx, id string) (models.Folder, error) {
	return getFolder(ctx, tx, id)
}

func getFolder(ctx context.Context, q queryer, id string) (models.Folder, error) {
	row := q.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	return scanOne("folder", id, scanFolder, row)
}

// GetByRemoteID returns the folder the server knows as remoteID.
func (r *Folders) GetByRemoteID(ctx context.Context, remoteID string) (models.Folder, error) {
	return r.GetByRemoteIDTx(ctx, nil, remoteID)
}

// GetByRemoteIDTx is GetByRemoteID inside tx. A nil tx reads from the pool.
func (r *Folders) GetByRemoteIDTx(ctx context.Context, tx *sql.Tx, remoteID string) (models.Folder, error) {
	var q queryer = r.db
	if tx != nil {
		q = tx
	}
	row := q.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE remote_id = ?`, remoteID)
	return scanOne("folder", remoteID, scanFolder, row)
}

// Search matches query against folder names.
func (r *Folders) Search(ctx context.Context, query string, limit int) ([]models.Folder, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+folderColumns+` FROM folders
		WHERE is_deleted = 0 AND name LIKE ? ESCAPE '\'
		ORDER BY sort_order, name
		LIMIT ?
	`, likePattern(query), limit)
	if err != nil {
		return nil, apperr.Storage("repo: search folders", err)
	}
	return scanAll("folders", scanFolder, rows)
}

// Upsert inserts f or replaces every field of the existing row. Placement
// is not validated here; see ValidatePlacement.
func (r *Folders) Upsert(ctx context.Context, f models.Folder) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.UpsertTx(tx, f)
	})
}

// UpsertTx is Upsert inside tx.
func (r *Folders) UpsertTx(tx *sql.Tx, f models.Folder) error {
	_, err := tx.Exec(`
		INSERT INTO folders (`+folderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id   = excluded.remote_id,
			name        = excluded.name,
			icon        = excluded.icon,
			color       = excluded.color,
			parent_id   = excluded.parent_id,
			sort_order  = excluded.sort_order,
			is_system   = excluded.is_system,
			is_deleted  = excluded.is_deleted,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at,
			sync_status = excluded.sync_status
	`, folderArgs(f)...)
	return apperr.Storage("repo: upsert folder", err)
}

// SoftDelete hides a folder and marks it pending.
func (r *Folders) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.SoftDeleteTx(tx, id, utcNow())
	})
}

// SoftDeleteTx is SoftDelete inside tx.
func (r *Folders) SoftDeleteTx(tx *sql.Tx, id string, now time.Time) error {
	return execOne(tx, "folder", "soft delete", id,
		`UPDATE folders SET is_deleted = 1, updated_at = ?, sync_status = 'pending' WHERE id = ?`,
		store.Unix(now), id)
}

// Delete permanently removes a folder. Children are re-parented to the
// deleted folder's parent and its notes are left unfiled.
func (r *Folders) Delete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.DeleteTx(ctx, tx, id)
	})
}

// DeleteTx is Delete inside tx.
func (r *Folders) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	f, err := getFolder(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE folders SET parent_id = ? WHERE parent_id = ?`,
		store.NullString(f.ParentID), id); err != nil {
		return apperr.Storage("repo: reparent folders", err)
	}
	if _, err := tx.Exec(`UPDATE notes SET folder_id = NULL WHERE folder_id = ?`, id); err != nil {
		return apperr.Storage("repo: unfile notes", err)
	}
	return execOne(tx, "folder", "delete", id, `DELETE FROM folders WHERE id = ?`, id)
}

// SetSyncStatus updates only the sync status of a folder.
func (r *Folders) SetSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return setSyncStatusTx(tx, "folders", "folder", id, status)
	})
}

// SetSyncStatusTx is SetSyncStatus inside tx.
func (r *Folders) SetSyncStatusTx(tx *sql.Tx, id string, status models.SyncStatus) error {
	return setSyncStatusTx(tx, "folders", "folder", id, status)
}

// MarkSynced records a successful push of folder id.
func (r *Folders) MarkSynced(ctx context.Context, id, remoteID string, _ time.Time) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		return r.MarkSyncedTx(tx, id, remoteID)
	})
}

// MarkSyncedTx is MarkSynced inside tx.
func (r *Folders) MarkSyncedTx(tx *sql.Tx, id, remoteID string) error {
	return markSyncedTx(tx, "folders", "folder", id, remoteID)
}

// Tree materializes the live folders as root nodes with nested children.
// Folders whose parent is missing or deleted are treated as roots.
func (r *Folders) Tree(ctx context.Context) ([]*models.FolderNode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE is_deleted = 0 ORDER BY sort_order, name, id`)
	if err != nil {
		return nil, apperr.Storage("repo: folder tree", err)
	}
	all, err := scanAll("folders", scanFolder, rows)
	if err != nil {
		return nil, err
	}
	return buildTree(all), nil
}

func buildTree(all []models.Folder) []*models.FolderNode {
	nodes := make(map[string]*models.FolderNode, len(all))
	for _, f := range all {
		nodes[f.ID] = &models.FolderNode{Folder: f, Children: []*models.FolderNode{}}
	}
	roots := []*models.FolderNode{}
	for _, f := range all {
		n := nodes[f.ID]
		parent, ok := nodes[f.ParentID]
		if f.ParentID == "" || !ok || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	// Children inherit input order; keep it stable by sort order then name.
	var sortNodes func([]*models.FolderNode)
	sortNodes = func(ns []*models.FolderNode) {
		sort.SliceStable(ns, func(i, j int) bool {
			if ns[i].SortOrder != ns[j].SortOrder {
				return ns[i].SortOrder < ns[j].SortOrder
			}
			return ns[i].Name < ns[j].Name
		})
		for _, n := range ns {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	return roots
}

// Path returns the ancestors of id ordered root first, excluding id itself.
// The walk stops at a folder without a parent or whose parent is missing.
// A cycle aborts the walk with ErrIntegrity.
func (r *Folders) Path(ctx context.Context, id string) ([]models.Folder, error) {
	return folderPath(ctx, r.db, id)
}

func folderPath(ctx context.Context, q queryer, id string) ([]models.Folder, error) {
	f, err := getFolder(ctx, q, id)
	if err != nil {
		return nil, err
	}
	var ancestors []models.Folder
	visited := map[string]bool{f.ID: true}
	for next := f.ParentID; next != ""; {
		if visited[next] {
			return nil, fmt.Errorf("repo: folder path %s: %w: cycle at %s", id, apperr.ErrIntegrity, next)
		}
		visited[next] = true
		parent, err := getFolder(ctx, q, next)
		if err != nil {
			if apperr.Classify(err) == apperr.KindStorage {
				return nil, err
			}
			break
		}
		ancestors = append(ancestors, parent)
		next = parent.ParentID
	}
	// Reverse to root-first.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors, nil
}

// Depth returns the nesting level of id; a root folder has depth 0.
func (r *Folders) Depth(ctx context.Context, id string) (int, error) {
	p, err := folderPath(ctx, r.db, id)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// subtreeHeight returns how many levels of descendants id has.
func subtreeHeight(ctx context.Context, q queryer, id string) (int, error) {
	height := 0
	level := []string{id}
	seen := map[string]bool{id: true}
	for len(level) > 0 {
		var next []string
		for _, pid := range level {
			rows, err := q.QueryContext(ctx, `SELECT id FROM folders WHERE parent_id = ? AND is_deleted = 0`, pid)
			if err != nil {
				return 0, apperr.Storage("repo: folder children", err)
			}
			ids, err := scanAll("folder ids", scanID, rows)
			if err != nil {
				return 0, err
			}
			for _, c := range ids {
				if seen[c] {
					return 0, fmt.Errorf("repo: folder subtree %s: %w", id, apperr.ErrIntegrity)
				}
				seen[c] = true
				next = append(next, c)
			}
		}
		if len(next) > 0 {
			height++
		}
		level = next
	}
	return height, nil
}

// ValidatePlacement checks that f may be stored with its current parent and
// name: the parent exists, f would not become its own ancestor, neither f
// nor any of its descendants would sit deeper than models.MaxFolderDepth,
// and no live sibling shares its name.
func (r *Folders) ValidatePlacement(ctx context.Context, f models.Folder) error {
	return validatePlacement(ctx, r.db, f)
}

// ValidatePlacementTx is ValidatePlacement inside tx.
func (r *Folders) ValidatePlacementTx(ctx context.Context, tx *sql.Tx, f models.Folder) error {
	return validatePlacement(ctx, tx, f)
}

func validatePlacement(ctx context.Context, q queryer, f models.Folder) error {
	if f.Name == "" {
		return fmt.Errorf("repo: folder name is required: %w", apperr.ErrValidation)
	}
	depth := 0
	if f.ParentID != "" {
		if f.ParentID == f.ID {
			return fmt.Errorf("repo: folder %s is its own parent: %w", f.ID, apperr.ErrCycle)
		}
		parent, err := getFolder(ctx, q, f.ParentID)
		if err != nil {
			return err
		}
		if parent.Deleted {
			return fmt.Errorf("repo: parent folder %s is deleted: %w", parent.ID, apperr.ErrValidation)
		}
		ancestors, err := folderPath(ctx, q, parent.ID)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == f.ID {
				return fmt.Errorf("repo: folder %s would be its own ancestor: %w", f.ID, apperr.ErrCycle)
			}
		}
		depth = len(ancestors) + 1
	}

	height := 0
	if f.ID != "" {
		h, err := subtreeHeight(ctx, q, f.ID)
		if err != nil {
			return err
		}
		height = h
	}
	if depth+height > models.MaxFolderDepth {
		return fmt.Errorf("repo: folder %q at depth %d (subtree %d): %w",
			f.Name, depth, height, apperr.ErrDepthExceeded)
	}

	exists, err := siblingNameExists(ctx, q, f)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("repo: folder %q: %w", f.Name, apperr.ErrAlreadyExists)
	}
	return nil
}

func siblingNameExists(ctx context.Context, q queryer, f models.Folder) (bool, error) {
	n, err := count(ctx, q, "sibling folders", `
		SELECT count(*) FROM folders
		WHERE is_deleted = 0
		  AND id != ?
		  AND name = ? COLLATE NOCASE
		  AND COALESCE(parent_id, '') = ?
	`, f.ID, f.Name, f.ParentID)
	return n > 0, err
}

func scanID(s store.Scanner) (string, error) {
	var id string
	if err := s.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}
