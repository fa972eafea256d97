package index

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgDuplicateKeyCode = "23505"
	authorsSeparator   = ","
)

// Postgres 将索引保存在 PostgreSQL 的 packages 表中。
type Postgres struct {
	db *sql.DB
}

// OpenPostgres 连接数据库并执行嵌入的迁移。dsn 需为 postgres:// URL 形式。
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn required")
	}
	if err := Migrate(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate 将 schema 升级到最新版本。
func Migrate(dsn string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

const selectColumns = `id, version, authors, description, listed, license_url, license_expression,
	has_readme, readme_path, has_embedded_icon, icon_path, downloads, published`

func (p *Postgres) FindRecord(ctx context.Context, id string, version nuget.Version, includeUnlisted bool) (*nuget.Package, error) {
	query := `SELECT ` + selectColumns + ` FROM packages WHERE id_key = $1 AND version_key = $2`
	if !includeUnlisted {
		query += ` AND listed`
	}

	row := p.db.QueryRowContext(ctx, query, nuget.IDKey(id), version.Key())
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find package record: %w", err)
	}
	return pkg, nil
}

func (p *Postgres) Exists(ctx context.Context, id string, version nuget.Version) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE id_key = $1 AND version_key = $2)`,
		nuget.IDKey(id), version.Key(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check package existence: %w", err)
	}
	return exists, nil
}

func (p *Postgres) RecordDownload(ctx context.Context, id string, version nuget.Version) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE packages SET downloads = downloads + 1 WHERE id_key = $1 AND version_key = $2`,
		nuget.IDKey(id), version.Key(),
	)
	if err != nil {
		return false, fmt.Errorf("record download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record download: %w", err)
	}
	return affected > 0, nil
}

func (p *Postgres) FindVersions(ctx context.Context, id string, includeUnlisted bool) ([]nuget.Version, error) {
	query := `SELECT version FROM packages WHERE id_key = $1`
	if !includeUnlisted {
		query += ` AND listed`
	}
	query += ` ORDER BY seq`

	rows, err := p.db.QueryContext(ctx, query, nuget.IDKey(id))
	if err != nil {
		return nil, fmt.Errorf("find versions: %w", err)
	}
	defer rows.Close()

	var versions []nuget.Version
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v, err := nuget.ParseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("stored version %q: %w", raw, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find versions: %w", err)
	}
	return versions, nil
}

func (p *Postgres) Add(ctx context.Context, pkg *nuget.Package) (bool, error) {
	if err := validateRecord(pkg); err != nil {
		return false, err
	}

	licenseURL := ""
	if pkg.LicenseURL != nil {
		licenseURL = pkg.LicenseURL.String()
	}
	published := pkg.Published
	if published.IsZero() {
		published = time.Now().UTC()
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO packages (id_key, version_key, id, version, authors, description, listed,
			license_url, license_expression, has_readme, readme_path, has_embedded_icon, icon_path,
			downloads, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id_key, version_key) DO NOTHING`,
		nuget.IDKey(pkg.ID), pkg.Version.Key(), pkg.ID, pkg.Version.NormalizedString(),
		strings.Join(pkg.Authors, authorsSeparator), pkg.Description, pkg.Listed,
		licenseURL, pkg.LicenseExpression, pkg.HasReadme, pkg.ReadmePath,
		pkg.HasEmbeddedIcon, pkg.IconPath, pkg.Downloads, published,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("add package record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add package record: %w", err)
	}
	return affected > 0, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDuplicateKeyCode
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*nuget.Package, error) {
	var (
		pkg        nuget.Package
		rawVersion string
		authors    string
		licenseURL string
	)
	if err := row.Scan(
		&pkg.ID, &rawVersion, &authors, &pkg.Description, &pkg.Listed,
		&licenseURL, &pkg.LicenseExpression, &pkg.HasReadme, &pkg.ReadmePath,
		&pkg.HasEmbeddedIcon, &pkg.IconPath, &pkg.Downloads, &pkg.Published,
	); err != nil {
		return nil, err
	}

	v, err := nuget.ParseVersion(rawVersion)
	if err != nil {
		return nil, fmt.Errorf("stored version %q: %w", rawVersion, err)
	}
	pkg.Version = v

	if authors != "" {
		pkg.Authors = strings.Split(authors, authorsSeparator)
	}
	if licenseURL != "" {
		u, err := url.Parse(licenseURL)
		if err != nil {
			return nil, fmt.Errorf("stored license url %q: %w", licenseURL, err)
		}
		pkg.LicenseURL = u
	}
	return &pkg, nil
}
