package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresLinkStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStorage(pool *pgxpool.Pool) *PostgresLinkStorage {
	return &PostgresLinkStorage{pool: pool}
}

const linkColumns = `code, original_url, custom_alias, owner_id, title, description, favicon_url, is_active, expires_at, click_count, created_at, updated_at`

// Create checks for a code collision and inserts in one transaction, so two
// concurrent creates of the same code cannot both succeed.
func (s *PostgresLinkStorage) Create(ctx context.Context, link *ShortLink) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE code = $1)`, link.Code).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrCodeTaken
	}

	query := `INSERT INTO links (code, original_url, custom_alias, owner_id, title, description, favicon_url, is_active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`
	_, err = tx.Exec(ctx, query,
		link.Code, link.OriginalURL, link.CustomAlias, link.OwnerID,
		link.Title, link.Description, link.FaviconURL,
		link.IsActive, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return err
	}
	if err := s.attachTags(ctx, tx, link.Code, link.Tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanLink(row pgx.Row) (*ShortLink, error) {
	var link ShortLink
	err := row.Scan(&link.Code, &link.OriginalURL, &link.CustomAlias, &link.OwnerID,
		&link.Title, &link.Description, &link.FaviconURL,
		&link.IsActive, &link.ExpiresAt, &link.ClickCount, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (s *PostgresLinkStorage) GetByCode(ctx context.Context, code string) (*ShortLink, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE code = $1`
	link, err := scanLink(s.pool.QueryRow(ctx, query, code))
	if err != nil || link == nil {
		return nil, err
	}
	link.Tags, err = s.loadTags(ctx, s.pool, code)
	return link, err
}

func (s *PostgresLinkStorage) Update(ctx context.Context, link *ShortLink) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `UPDATE links SET original_url = $2, title = $3, description = $4, favicon_url = $5, is_active = $6, expires_at = $7, updated_at = now() WHERE code = $1`
	_, err = tx.Exec(ctx, query, link.Code, link.OriginalURL,
		link.Title, link.Description, link.FaviconURL, link.IsActive, link.ExpiresAt)
	if err != nil {
		return err
	}

	if link.Tags != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM link_tags WHERE link_code = $1`, link.Code); err != nil {
			return err
		}
		if err := s.attachTags(ctx, tx, link.Code, link.Tags); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateMetadata writes only the preview columns, so a slow metadata fetch
// can never clobber a concurrent edit of the rest of the row.
func (s *PostgresLinkStorage) UpdateMetadata(ctx context.Context, code, title, description, faviconURL string) error {
	query := `UPDATE links SET title = $2, description = $3, favicon_url = $4, updated_at = now() WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code, title, description, faviconURL)
	return err
}

func (s *PostgresLinkStorage) Delete(ctx context.Context, code string) error {
	// clicks and link_tags rows go with the link via ON DELETE CASCADE
	query := `DELETE FROM links WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code)
	return err
}

// IncrementClickCount is a storage-native fetch-and-add; concurrent redirects
// on the same code never lose an increment.
func (s *PostgresLinkStorage) IncrementClickCount(ctx context.Context, code string) error {
	query := `UPDATE links SET click_count = click_count + 1 WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code)
	return err
}

func (s *PostgresLinkStorage) ListByOwner(ctx context.Context, owner uuid.UUID, tag string, page, pageSize int) ([]*ShortLink, int64, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int64
	var rows pgx.Rows
	var err error
	if tag != "" {
		countQuery := `SELECT COUNT(*) FROM links l
			JOIN link_tags lt ON lt.link_code = l.code
			JOIN tags t ON t.id = lt.tag_id
			WHERE l.owner_id = $1 AND t.name = $2`
		if err = s.pool.QueryRow(ctx, countQuery, owner, tag).Scan(&total); err != nil {
			return nil, 0, err
		}
		query := `SELECT ` + prefixedLinkColumns("l") + ` FROM links l
			JOIN link_tags lt ON lt.link_code = l.code
			JOIN tags t ON t.id = lt.tag_id
			WHERE l.owner_id = $1 AND t.name = $2
			ORDER BY l.created_at DESC LIMIT $3 OFFSET $4`
		rows, err = s.pool.Query(ctx, query, owner, tag, pageSize, offset)
	} else {
		countQuery := `SELECT COUNT(*) FROM links WHERE owner_id = $1`
		if err = s.pool.QueryRow(ctx, countQuery, owner).Scan(&total); err != nil {
			return nil, 0, err
		}
		query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = s.pool.Query(ctx, query, owner, pageSize, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var links []*ShortLink
	for rows.Next() {
		var link ShortLink
		err := rows.Scan(&link.Code, &link.OriginalURL, &link.CustomAlias, &link.OwnerID,
			&link.Title, &link.Description, &link.FaviconURL,
			&link.IsActive, &link.ExpiresAt, &link.ClickCount, &link.CreatedAt, &link.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, link := range links {
		tags, err := s.loadTags(ctx, s.pool, link.Code)
		if err != nil {
			return nil, 0, err
		}
		link.Tags = tags
	}
	return links, total, nil
}

func (s *PostgresLinkStorage) CountActiveByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM links WHERE owner_id = $1 AND is_active = true`
	var count int64
	err := s.pool.QueryRow(ctx, query, owner).Scan(&count)
	return count, err
}

// SweepExpired deactivates links whose expiry has passed. It never deletes,
// and already-inactive links are untouched.
func (s *PostgresLinkStorage) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE links SET is_active = false, updated_at = now() WHERE is_active = true AND expires_at IS NOT NULL AND expires_at < $1`
	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresLinkStorage) InsertClick(ctx context.Context, click *ClickEvent) error {
	query := `INSERT INTO clicks (link_code, clicked_at, ip_address, country, city, user_agent, referrer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query, click.LinkCode, click.ClickedAt,
		click.IPAddress, click.Country, click.City, click.UserAgent, click.Referrer)
	return err
}

func (s *PostgresLinkStorage) CountClicksByCountry(ctx context.Context, code string) ([]CountryCount, error) {
	query := `SELECT country, COUNT(*) AS count FROM clicks WHERE link_code = $1 GROUP BY country ORDER BY count DESC`
	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CountryCount
	for rows.Next() {
		var cc CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, err
		}
		result = append(result, cc)
	}
	return result, rows.Err()
}

func (s *PostgresLinkStorage) CountClicksByDay(ctx context.Context, code string) ([]DayCount, error) {
	query := `SELECT to_char(clicked_at::date, 'YYYY-MM-DD') AS day, COUNT(*) AS count FROM clicks WHERE link_code = $1 GROUP BY day ORDER BY day ASC`
	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}

// attachTags creates missing tags by name and links them to the record.
func (s *PostgresLinkStorage) attachTags(ctx context.Context, tx pgx.Tx, code string, tags []string) error {
	for _, name := range tags {
		var tagID int64
		query := `INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`
		if err := tx.QueryRow(ctx, query, name).Scan(&tagID); err != nil {
			return err
		}
		query = `INSERT INTO link_tags (link_code, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, query, code, tagID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresLinkStorage) loadTags(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, code string) ([]string, error) {
	query := `SELECT t.name FROM tags t JOIN link_tags lt ON lt.tag_id = t.id WHERE lt.link_code = $1 ORDER BY t.name`
	rows, err := q.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func prefixedLinkColumns(alias string) string {
	return alias + `.code, ` + alias + `.original_url, ` + alias + `.custom_alias, ` + alias + `.owner_id, ` +
		alias + `.title, ` + alias + `.description, ` + alias + `.favicon_url, ` +
		alias + `.is_active, ` + alias + `.expires_at, ` + alias + `.click_count, ` + alias + `.created_at, ` + alias + `.updated_at`
}
