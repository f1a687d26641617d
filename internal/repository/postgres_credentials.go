package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"secretariat-data/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const credentialColumns = `
		c.credential_id::text,
		c.source_kind,
		COALESCE(c.source_ref, ''),
		c.username,
		c.password,
		COALESCE(c.display_name, ''),
		c.active,
		c.pinned,
		c.created_at,
		c.updated_at`

// PostgresCredentialsRepository 凭据Repository实现
type PostgresCredentialsRepository struct {
	db *sql.DB
}

// NewPostgresCredentialsRepository 创建凭据Repository
func NewPostgresCredentialsRepository(db *sql.DB) *PostgresCredentialsRepository {
	return &PostgresCredentialsRepository{db: db}
}

// 确保实现了接口
var _ CredentialsRepository = (*PostgresCredentialsRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(s rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var kind string
	if err := s.Scan(
		&c.ID,
		&kind,
		&c.SourceRef,
		&c.Username,
		&c.Password,
		&c.DisplayName,
		&c.Active,
		&c.Pinned,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.SourceKind = domain.SourceKind(kind)
	return &c, nil
}

func (r *PostgresCredentialsRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Credential, error) {
	query := `SELECT` + credentialColumns + `
		  FROM credentials c
		 WHERE ` + where + `
		 LIMIT 1`
	c, err := scanCredential(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// FindBySourceRef 根据 (source_kind, source_ref) 查询
func (r *PostgresCredentialsRepository) FindBySourceRef(ctx context.Context, kind domain.SourceKind, ref string) (*domain.Credential, error) {
	// legacy rows without a reference never match
	if kind == "" || ref == "" {
		return nil, nil
	}
	c, err := r.findOne(ctx, "c.source_kind = $1 AND c.source_ref = $2", string(kind), ref)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by source: %w", err)
	}
	return c, nil
}

// FindByUsername 根据 username 查询
func (r *PostgresCredentialsRepository) FindByUsername(ctx context.Context, username string) (*domain.Credential, error) {
	if username == "" {
		return nil, nil
	}
	c, err := r.findOne(ctx, "c.username = $1", username)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by username: %w", err)
	}
	return c, nil
}

// Get 根据 credential_id 查询
func (r *PostgresCredentialsRepository) Get(ctx context.Context, id string) (*domain.Credential, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	c, err := r.findOne(ctx, "c.credential_id = $1::uuid", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListAll 全量列表
func (r *PostgresCredentialsRepository) ListAll(ctx context.Context) ([]*domain.Credential, error) {
	query := `SELECT` + credentialColumns + `
		  FROM credentials c
		 ORDER BY c.source_kind ASC, c.created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	out := []*domain.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return out, nil
}

// List 分页列表
func (r *PostgresCredentialsRepository) List(ctx context.Context, filters CredentialFilters, page, size int) ([]*domain.Credential, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filters.Kind != "" {
		where = append(where, fmt.Sprintf("c.source_kind = $%d", argIdx))
		args = append(args, string(filters.Kind))
		argIdx++
	}
	if filters.Active != nil {
		where = append(where, fmt.Sprintf("c.active = $%d", argIdx))
		args = append(args, *filters.Active)
		argIdx++
	}
	if filters.Search != "" {
		where = append(where, fmt.Sprintf("(c.username ILIKE $%d OR COALESCE(c.display_name,'') ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+filters.Search+"%")
		argIdx++
	}

	countQuery := "SELECT COUNT(*) FROM credentials c WHERE " + strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count credentials: %w", err)
	}

	page, size = normalizePage(page, size)
	offset := (page - 1) * size

	query := `SELECT` + credentialColumns + `
		  FROM credentials c
		 WHERE ` + strings.Join(where, " AND ") + `
		 ORDER BY c.source_kind ASC, c.username ASC
		 LIMIT $` + fmt.Sprintf("%d", argIdx) + ` OFFSET $` + fmt.Sprintf("%d", argIdx+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	out := []*domain.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list credentials: %w", err)
	}
	return out, total, nil
}

// Create 创建凭据
func (r *PostgresCredentialsRepository) Create(ctx context.Context, c *domain.Credential) (*domain.Credential, error) {
	if c == nil {
		return nil, fmt.Errorf("credential is required")
	}
	if c.Username == "" || c.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	out := c.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	query := `
		INSERT INTO credentials (credential_id, source_kind, source_ref, username, password, display_name, active, pinned)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		out.ID,
		string(out.SourceKind),
		out.SourceRef,
		out.Username,
		out.Password,
		out.DisplayName,
		out.Active,
		out.Pinned,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return out, nil
}

// Update 部分更新
func (r *PostgresCredentialsRepository) Update(ctx context.Context, id string, u CredentialUpdate) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if u.Empty() {
		return fmt.Errorf("no fields to update")
	}

	updates := []string{}
	args := []any{id}
	argIdx := 2

	if u.Username != nil {
		updates = append(updates, fmt.Sprintf("username = $%d", argIdx))
		args = append(args, *u.Username)
		argIdx++
	}
	if u.Password != nil {
		updates = append(updates, fmt.Sprintf("password = $%d", argIdx))
		args = append(args, *u.Password)
		argIdx++
	}
	if u.DisplayName != nil {
		updates = append(updates, fmt.Sprintf("display_name = $%d", argIdx))
		args = append(args, *u.DisplayName)
		argIdx++
	}
	if u.Active != nil {
		updates = append(updates, fmt.Sprintf("active = $%d", argIdx))
		args = append(args, *u.Active)
		argIdx++
	}
	if u.Pinned != nil {
		updates = append(updates, fmt.Sprintf("pinned = $%d", argIdx))
		args = append(args, *u.Pinned)
		argIdx++
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE credentials
		SET %s
		WHERE credential_id = $1::uuid
	`, strings.Join(updates, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 幂等删除
func (r *PostgresCredentialsRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE credential_id = $1::uuid`, id); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// mapUniqueViolation translates unique index violations into repository sentinels.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	if pqErr.Constraint == "credentials_source_key" {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, pqErr.Detail)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateUsername, pqErr.Detail)
}
