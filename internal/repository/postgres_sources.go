package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/fieldcrypt"

	"github.com/lib/pq"
)

const memberColumns = `
		m.member_id,
		COALESCE(m.national_id, ''),
		COALESCE(m.phone, ''),
		COALESCE(m.archived, FALSE),
		COALESCE(m.first_name, ''),
		COALESCE(m.last_name, ''),
		COALESCE(m.district_id, 0),
		COALESCE(d.district_name, ''),
		COALESCE(m.town_id, 0),
		COALESCE(t.town_name, '')`

const memberFrom = `
		  FROM members m
		  LEFT JOIN districts d ON d.district_id = m.district_id
		  LEFT JOIN towns t ON t.town_id = m.town_id`

// PostgresSourcesRepository reads members, districts and towns owned by other modules.
// members.national_id and members.phone are stored encrypted.
type PostgresSourcesRepository struct {
	db     *sql.DB
	cipher fieldcrypt.Cipher
}

// NewPostgresSourcesRepository 创建来源Repository；cipher 为 nil 时按明文读取
func NewPostgresSourcesRepository(db *sql.DB, cipher fieldcrypt.Cipher) *PostgresSourcesRepository {
	if cipher == nil {
		cipher = fieldcrypt.Plain{}
	}
	return &PostgresSourcesRepository{db: db, cipher: cipher}
}

var _ SourcesRepository = (*PostgresSourcesRepository)(nil)

func scanMember(s rowScanner) (*domain.MemberSource, error) {
	var m domain.MemberSource
	if err := s.Scan(
		&m.MemberID,
		&m.NationalID,
		&m.Phone,
		&m.Archived,
		&m.FirstName,
		&m.LastName,
		&m.DistrictID,
		&m.DistrictName,
		&m.TownID,
		&m.TownName,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// decryptMember decrypts the personal columns in place.
func (r *PostgresSourcesRepository) decryptMember(m *domain.MemberSource) error {
	nid, err := r.cipher.Decrypt(m.NationalID)
	if err != nil {
		return fmt.Errorf("failed to decrypt national_id of member %d: %w", m.MemberID, err)
	}
	phone, err := r.cipher.Decrypt(m.Phone)
	if err != nil {
		return fmt.Errorf("failed to decrypt phone of member %d: %w", m.MemberID, err)
	}
	m.NationalID = nid
	m.Phone = phone
	return nil
}

// GetMember 查询单个党员；archived 的党员也返回（由调用方判断资格）
// Archived members are never decrypted; their personal fields come back empty.
func (r *PostgresSourcesRepository) GetMember(ctx context.Context, memberID int64) (*domain.MemberSource, error) {
	query := `SELECT` + memberColumns + memberFrom + `
		 WHERE m.member_id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if m.Archived {
		m.NationalID, m.Phone = "", ""
		return m, nil
	}
	if err := r.decryptMember(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListActiveMembers 非归档党员，按 member_id 升序
// Rows whose personal columns cannot be decrypted are returned with those
// fields empty; GetMember reports the decryption error for that member.
func (r *PostgresSourcesRepository) ListActiveMembers(ctx context.Context) ([]*domain.MemberSource, error) {
	query := `SELECT` + memberColumns + memberFrom + `
		 WHERE COALESCE(m.archived, FALSE) = FALSE
		 ORDER BY m.member_id ASC`
	return r.queryMembers(ctx, query)
}

// ListMembersByID 批量查询
func (r *PostgresSourcesRepository) ListMembersByID(ctx context.Context, ids []int64) (map[int64]*domain.MemberSource, error) {
	out := map[int64]*domain.MemberSource{}
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT` + memberColumns + memberFrom + `
		 WHERE m.member_id = ANY($1)
		 ORDER BY m.member_id ASC`
	members, err := r.queryMembers(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		out[m.MemberID] = m
	}
	return out, nil
}

func (r *PostgresSourcesRepository) queryMembers(ctx context.Context, query string, args ...any) ([]*domain.MemberSource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	out := []*domain.MemberSource{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if err := r.decryptMember(m); err != nil {
			m.NationalID = ""
			m.Phone = ""
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return out, nil
}

// GetDistrictChair 查询区（含主席信息）
func (r *PostgresSourcesRepository) GetDistrictChair(ctx context.Context, districtID int64) (*domain.DistrictChairSource, error) {
	query := `
		SELECT district_id, COALESCE(district_name, ''), COALESCE(chairman_name, ''), COALESCE(chairman_phone, '')
		  FROM districts
		 WHERE district_id = $1`
	var d domain.DistrictChairSource
	err := r.db.QueryRowContext(ctx, query, districtID).Scan(&d.DistrictID, &d.DistrictName, &d.ChairmanName, &d.ChairmanPhone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get district: %w", err)
	}
	return &d, nil
}

// ListDistrictChairs 全部区，按 district_id 升序
func (r *PostgresSourcesRepository) ListDistrictChairs(ctx context.Context) ([]*domain.DistrictChairSource, error) {
	query := `
		SELECT district_id, COALESCE(district_name, ''), COALESCE(chairman_name, ''), COALESCE(chairman_phone, '')
		  FROM districts
		 ORDER BY district_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	defer rows.Close()

	out := []*domain.DistrictChairSource{}
	for rows.Next() {
		var d domain.DistrictChairSource
		if err := rows.Scan(&d.DistrictID, &d.DistrictName, &d.ChairmanName, &d.ChairmanPhone); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	return out, nil
}

// GetTownChair 查询镇（含主席信息）
func (r *PostgresSourcesRepository) GetTownChair(ctx context.Context, townID int64) (*domain.TownChairSource, error) {
	query := `
		SELECT town_id, COALESCE(town_name, ''), COALESCE(district_id, 0), COALESCE(chairman_name, ''), COALESCE(chairman_phone, '')
		  FROM towns
		 WHERE town_id = $1`
	var t domain.TownChairSource
	err := r.db.QueryRowContext(ctx, query, townID).Scan(&t.TownID, &t.TownName, &t.DistrictID, &t.ChairmanName, &t.ChairmanPhone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get town: %w", err)
	}
	return &t, nil
}

// ListTownChairs 全部镇，按 town_id 升序
func (r *PostgresSourcesRepository) ListTownChairs(ctx context.Context) ([]*domain.TownChairSource, error) {
	query := `
		SELECT town_id, COALESCE(town_name, ''), COALESCE(district_id, 0), COALESCE(chairman_name, ''), COALESCE(chairman_phone, '')
		  FROM towns
		 ORDER BY town_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list towns: %w", err)
	}
	defer rows.Close()

	out := []*domain.TownChairSource{}
	for rows.Next() {
		var t domain.TownChairSource
		if err := rows.Scan(&t.TownID, &t.TownName, &t.DistrictID, &t.ChairmanName, &t.ChairmanPhone); err != nil {
			return nil, fmt.Errorf("failed to scan town: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list towns: %w", err)
	}
	return out, nil
}
