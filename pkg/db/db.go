package db

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"

	"github.com/aquasecurity/install-if-absent/pkg/types"
)

const dbFileName = "install-if-absent.db"

type DB struct {
	client *sql.DB
}

func Path(cacheDir string) string {
	dbPath := filepath.Join(cacheDir, dbFileName)
	return dbPath
}

func New(cacheDir string) (DB, error) {
	dbPath := Path(cacheDir)
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return DB{}, xerrors.Errorf("failed to mkdir: %w", err)
	}

	// open db
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return DB{}, xerrors.Errorf("can't open db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return DB{
		client: db,
	}, nil
}

// Init creates the schema. It is safe to call on an existing database.
func (db *DB) Init() error {
	if _, err := db.client.Exec("PRAGMA foreign_keys=true"); err != nil {
		return xerrors.Errorf("failed to enable 'foreign_keys': %w", err)
	}
	if _, err := db.client.Exec("CREATE TABLE IF NOT EXISTS artifacts(id INTEGER PRIMARY KEY, group_id TEXT, artifact_id TEXT)"); err != nil {
		return xerrors.Errorf("unable to create 'artifacts' table: %w", err)
	}
	if _, err := db.client.Exec(`CREATE TABLE IF NOT EXISTS installs(artifact_id INTEGER, version TEXT, classifier TEXT, extension TEXT,
		sha1 BLOB, size INTEGER, path TEXT, installed_at INTEGER, foreign key (artifact_id) references artifacts(id))`); err != nil {
		return xerrors.Errorf("unable to create 'installs' table: %w", err)
	}

	if _, err := db.client.Exec("CREATE UNIQUE INDEX IF NOT EXISTS artifacts_idx ON artifacts(group_id, artifact_id)"); err != nil {
		return xerrors.Errorf("unable to create 'artifacts_idx' index: %w", err)
	}
	if _, err := db.client.Exec("CREATE INDEX IF NOT EXISTS installs_sha1_idx ON installs(sha1)"); err != nil {
		return xerrors.Errorf("unable to create 'installs_sha1_idx' index: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.client.Close()
}

//////////////////////////////////////
// functions to interaction with DB //
//////////////////////////////////////

func (db *DB) InsertInstall(rec types.InstallRecord) error {
	tx, err := db.client.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO artifacts(group_id, artifact_id) VALUES (?, ?) ON CONFLICT(group_id, artifact_id) DO NOTHING`,
		rec.GroupID, rec.ArtifactID)
	if err != nil {
		return xerrors.Errorf("unable to insert to 'artifacts' table: %w", err)
	}
	if _, err = tx.Exec(`INSERT INTO installs(artifact_id, version, classifier, extension, sha1, size, path, installed_at)
		VALUES ((SELECT id FROM artifacts where group_id=? AND artifact_id=?), ?, ?, ?, ?, ?, ?, ?)`,
		rec.GroupID, rec.ArtifactID, rec.Version, rec.Classifier, rec.Extension, rec.SHA1, rec.Size, rec.Path,
		rec.InstalledAt.Unix()); err != nil {
		return xerrors.Errorf("unable to insert to 'installs' table: %w", err)
	}
	return tx.Commit()
}

const selectInstalls = `SELECT a.group_id, a.artifact_id, i.version, i.classifier, i.extension, i.sha1, i.size, i.path, i.installed_at
FROM installs i JOIN artifacts a ON a.id = i.artifact_id`

// SelectInstalls returns install records ordered by install time.
// Empty groupID or artifactID match everything.
func (db *DB) SelectInstalls(groupID, artifactID string) ([]types.InstallRecord, error) {
	rows, err := db.client.Query(selectInstalls+` WHERE (? = '' OR a.group_id = ?) AND (? = '' OR a.artifact_id = ?)
ORDER BY i.installed_at, i.rowid`, groupID, groupID, artifactID, artifactID)
	if err != nil {
		return nil, xerrors.Errorf("select installs error: %w", err)
	}
	defer rows.Close()

	var records []types.InstallRecord
	for rows.Next() {
		rec, err := scanInstall(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, xerrors.Errorf("rows error: %w", err)
	}
	return records, nil
}

// SelectInstallBySHA1 returns the latest install of the given content.
// An empty record is returned when nothing matches.
func (db *DB) SelectInstallBySHA1(sha1 string) (types.InstallRecord, error) {
	sha1b, err := hex.DecodeString(sha1)
	if err != nil {
		return types.InstallRecord{}, xerrors.Errorf("sha1 decode error: %w", err)
	}
	row := db.client.QueryRow(selectInstalls+` WHERE i.sha1 = ? ORDER BY i.installed_at DESC, i.rowid DESC LIMIT 1`, sha1b)
	rec, err := scanInstall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.InstallRecord{}, nil
	} else if err != nil {
		return types.InstallRecord{}, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstall(s scanner) (types.InstallRecord, error) {
	var rec types.InstallRecord
	var installedAt int64
	if err := s.Scan(&rec.GroupID, &rec.ArtifactID, &rec.Version, &rec.Classifier, &rec.Extension, &rec.SHA1,
		&rec.Size, &rec.Path, &installedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, xerrors.Errorf("scan row error: %w", err)
	}
	rec.InstalledAt = time.Unix(installedAt, 0).UTC()
	return rec, nil
}
