package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
	"linkgraph/pkg/utils"
)

// LinkRepository stores links in SQLite or PostgreSQL.
type LinkRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time
}

var (
	_ ports.LinkRepository     = (*LinkRepository)(nil)
	_ ports.EntitySummaryStore = (*LinkRepository)(nil)
)

// Open connects to dsn and creates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*LinkRepository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection serialises writers and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	repo, err := New(ctx, db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing connection pool and creates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*LinkRepository, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &LinkRepository{
		db:      db,
		dialect: dialect,
		logger:  logger.Named("sqlstore"),
		now:     utils.UTCNow,
	}, nil
}

// Close releases the connection pool.
func (r *LinkRepository) Close() error {
	return r.db.Close()
}

const linkColumns = `l.tenant_id, l.id, l.from_type, l.from_id, l.to_type, l.to_id, l.kind,
	l.note, l.metadata, l.active, l.created_by, l.created_at, l.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *LinkRepository) Create(ctx context.Context, link *entities.EntityLink) error {
	if err := r.insert(ctx, r.db, link); err != nil {
		return fmt.Errorf("failed to create link %s: %w", link.ID, err)
	}
	return nil
}

func (r *LinkRepository) insert(ctx context.Context, db execer, link *entities.EntityLink) error {
	metadata, err := encodeMetadata(link.Metadata)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, r.dialect.rebind(`INSERT INTO entity_links
		(tenant_id, id, from_type, from_id, to_type, to_id, kind, note, metadata, active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		link.TenantID, link.ID, string(link.FromType), link.FromID, string(link.ToType), link.ToID,
		string(link.Kind), link.Note, metadata, link.Active, link.CreatedBy,
		utils.FormatTimestamp(link.CreatedAt), utils.FormatTimestamp(link.UpdatedAt),
	)
	return err
}

// Update applies patch inside a transaction and returns the stored link.
func (r *LinkRepository) Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, r.dialect.rebind(`SELECT `+linkColumns+` FROM entity_links l WHERE l.tenant_id = ? AND l.id = ?`), tenantID, id)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load link %s: %w", id, err)
	}

	link.Apply(patch, r.now())
	metadata, err := encodeMetadata(link.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, r.dialect.rebind(`UPDATE entity_links
		SET kind = ?, note = ?, metadata = ?, active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`),
		string(link.Kind), link.Note, metadata, link.Active, utils.FormatTimestamp(link.UpdatedAt),
		tenantID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update link %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit link update: %w", err)
	}
	return link, nil
}

func (r *LinkRepository) Delete(ctx context.Context, id, tenantID string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM entity_links WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete link %s: %w", id, err)
	}
	return nil
}

func (r *LinkRepository) FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT `+linkColumns+` FROM entity_links l WHERE l.tenant_id = ? AND l.id = ?`), tenantID, id)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link %s: %w", id, err)
	}
	return link, nil
}

func (r *LinkRepository) FindByEntity(ctx context.Context, ref entities.EntityRef, query ports.EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error) {
	var (
		where []string
		args  []interface{}
	)
	where = append(where, "l.tenant_id = ?")
	args = append(args, ref.TenantID)

	outgoing := "(l.from_type = ? AND l.from_id = ?)"
	incoming := "(l.to_type = ? AND l.to_id = ?)"
	switch query.Direction.OrDefault(entities.DirectionBoth) {
	case entities.DirectionOutgoing:
		where = append(where, outgoing)
		args = append(args, string(ref.Type), ref.ID)
	case entities.DirectionIncoming:
		where = append(where, incoming)
		args = append(args, string(ref.Type), ref.ID)
	default:
		where = append(where, "("+outgoing+" OR "+incoming+")")
		args = append(args, string(ref.Type), ref.ID, string(ref.Type), ref.ID)
	}

	if !query.IncludeInactive {
		where = append(where, "l.active = ?")
		args = append(args, true)
	}
	if len(query.Kinds) > 0 {
		where = append(where, "l.kind IN ("+placeholders(len(query.Kinds))+")")
		for _, k := range query.Kinds {
			args = append(args, string(k))
		}
	}

	stmt := `SELECT ` + linkColumns + `,
		fs.entity_id, fs.title, fs.status, fs.url,
		ts.entity_id, ts.title, ts.status, ts.url
		FROM entity_links l
		LEFT JOIN entity_summaries fs
			ON fs.tenant_id = l.tenant_id AND fs.entity_type = l.from_type AND fs.entity_id = l.from_id
		LEFT JOIN entity_summaries ts
			ON ts.tenant_id = l.tenant_id AND ts.entity_type = l.to_type AND ts.entity_id = l.to_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY l.created_at, l.id`

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links for %s: %w", ref, err)
	}
	defer rows.Close()

	var out []*entities.EntityLinkWithDetails
	for rows.Next() {
		var (
			rec      linkRecord
			from, to summaryRecord
		)
		dest := append(rec.dest(), from.dest()...)
		dest = append(dest, to.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link, err := rec.toEntity()
		if err != nil {
			return nil, err
		}
		details := entities.WithMinimalDetails(link)
		if s := from.toSummary(link.FromType); s != nil {
			details.FromEntity = s
		}
		if s := to.toSummary(link.ToType); s != nil {
			details.ToEntity = s
		}
		out = append(out, details)
	}
	return out, rows.Err()
}

func (r *LinkRepository) FindByCriteria(ctx context.Context, criteria ports.LinkCriteria) ([]*entities.EntityLink, error) {
	where := []string{"l.tenant_id = ?"}
	args := []interface{}{criteria.TenantID}

	if criteria.FromType != "" {
		where = append(where, "l.from_type = ?")
		args = append(args, string(criteria.FromType))
	}
	if criteria.ToType != "" {
		where = append(where, "l.to_type = ?")
		args = append(args, string(criteria.ToType))
	}
	if criteria.Kind != "" {
		where = append(where, "l.kind = ?")
		args = append(args, string(criteria.Kind))
	}
	if criteria.Active != nil {
		where = append(where, "l.active = ?")
		args = append(args, *criteria.Active)
	}

	stmt := `SELECT ` + linkColumns + ` FROM entity_links l WHERE ` + strings.Join(where, " AND ") + ` ORDER BY l.created_at, l.id`
	if criteria.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, criteria.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var out []*entities.EntityLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (r *LinkRepository) LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`SELECT COUNT(*) FROM entity_links
		WHERE tenant_id = ? AND from_type = ? AND from_id = ? AND to_type = ? AND to_id = ? AND kind = ? AND active = ?`),
		from.TenantID, string(from.Type), from.ID, string(to.Type), to.ID, string(kind), true,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check link existence: %w", err)
	}
	return n > 0, nil
}

// CreateMany inserts all links in one transaction.
func (r *LinkRepository) CreateMany(ctx context.Context, links []*entities.EntityLink) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, link := range links {
		if err := r.insert(ctx, tx, link); err != nil {
			return fmt.Errorf("failed to create link %s: %w", link.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit links: %w", err)
	}
	return nil
}

func (r *LinkRepository) DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM entity_links WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted links: %w", err)
	}
	return int(n), nil
}

// UpsertEntitySummary records display data joined into FindByEntity results.
func (r *LinkRepository) UpsertEntitySummary(ctx context.Context, tenantID string, summary entities.EntitySummary) error {
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(`INSERT INTO entity_summaries (tenant_id, entity_type, entity_id, title, status, url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, entity_type, entity_id)
		DO UPDATE SET title = excluded.title, status = excluded.status, url = excluded.url`),
		tenantID, string(summary.Type), summary.ID, summary.Title, summary.Status, summary.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity summary: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(s scanner) (*entities.EntityLink, error) {
	var rec linkRecord
	if err := s.Scan(rec.dest()...); err != nil {
		return nil, err
	}
	return rec.toEntity()
}

type linkRecord struct {
	tenantID, id         string
	fromType, fromID     string
	toType, toID         string
	kind, note           string
	metadata             sql.NullString
	active               bool
	createdBy            string
	createdAt, updatedAt string
}

func (r *linkRecord) dest() []interface{} {
	return []interface{}{
		&r.tenantID, &r.id, &r.fromType, &r.fromID, &r.toType, &r.toID, &r.kind,
		&r.note, &r.metadata, &r.active, &r.createdBy, &r.createdAt, &r.updatedAt,
	}
}

func (r *linkRecord) toEntity() (*entities.EntityLink, error) {
	createdAt, err := utils.ParseTimestamp(r.createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for link %s: %w", r.id, err)
	}
	updatedAt, err := utils.ParseTimestamp(r.updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at for link %s: %w", r.id, err)
	}

	link := &entities.EntityLink{
		ID:        r.id,
		TenantID:  r.tenantID,
		FromType:  entities.EntityType(r.fromType),
		FromID:    r.fromID,
		ToType:    entities.EntityType(r.toType),
		ToID:      r.toID,
		Kind:      entities.LinkKind(r.kind),
		Note:      r.note,
		Active:    r.active,
		CreatedBy: r.createdBy,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if r.metadata.Valid && r.metadata.String != "" {
		if err := json.Unmarshal([]byte(r.metadata.String), &link.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for link %s: %w", r.id, err)
		}
	}
	return link, nil
}

type summaryRecord struct {
	id, title, status, url sql.NullString
}

func (s *summaryRecord) dest() []interface{} {
	return []interface{}{&s.id, &s.title, &s.status, &s.url}
}

func (s *summaryRecord) toSummary(entityType entities.EntityType) *entities.EntitySummary {
	if !s.id.Valid {
		return nil
	}
	return &entities.EntitySummary{
		ID:     s.id.String,
		Title:  s.title.String,
		Type:   entityType,
		Status: s.status.String,
		URL:    s.url.String,
	}
}

func encodeMetadata(metadata map[string]interface{}) (interface{}, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(raw), nil
}
