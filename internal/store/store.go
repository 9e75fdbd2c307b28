// Package store persists the global index cache: SCIP blobs per package,
// zstd-compressed on disk, with sqlite metadata for listing and lookup.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	cerr "cci/internal/errors"
	"cci/internal/logging"
)

// Cache partitions under the user-level cache directory.
const (
	PartitionSDK      = "sdk"
	PartitionFlutter  = "flutter"
	PartitionPackages = "packages"
	PartitionGit      = "git"
)

// Entry is one cached package index.
type Entry struct {
	Partition string    `json:"partition"`
	Key       string    `json:"key"` // e.g. "3.4.0", "auth_kit-1.2.0", "<ref>"
	Package   string    `json:"package"`
	Version   string    `json:"version"`
	BlobPath  string    `json:"blobPath"`
	IndexedAt time.Time `json:"indexedAt"`
}

// Store is the cache directory plus its metadata database.
type Store struct {
	dir    string
	conn   *sql.DB
	logger *logging.Logger
}

// Open opens or creates the cache store under dir.
func Open(dir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.IO, "failed to create cache directory", err)
	}
	dbPath := filepath.Join(dir, "cache.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, cerr.Wrap(cerr.IO, "failed to open cache database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, cerr.Wrap(cerr.Internal, "failed to set pragma", err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS indexes (
		partition TEXT NOT NULL,
		key TEXT NOT NULL,
		package TEXT NOT NULL,
		version TEXT NOT NULL,
		blob_path TEXT NOT NULL,
		indexed_at TEXT NOT NULL,
		PRIMARY KEY (partition, key)
	)`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, cerr.Wrap(cerr.Internal, "failed to initialize cache schema", err)
	}

	return &Store{dir: dir, conn: conn, logger: logger}, nil
}

// Close closes the metadata database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Dir returns the cache root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put compresses and stores a serialized SCIP index, recording metadata.
func (s *Store) Put(partition, key, pkg, version string, scipBytes []byte) (*Entry, error) {
	blobDir := filepath.Join(s.dir, partition, filepath.FromSlash(key))
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.IO, "failed to create blob directory", err)
	}
	blobPath := filepath.Join(blobDir, "index.scip.zst")

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, cerr.Wrap(cerr.Internal, "failed to create compressor", err)
	}
	compressed := enc.EncodeAll(scipBytes, nil)
	enc.Close()

	tmp := blobPath + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return nil, cerr.Wrap(cerr.IO, "failed to write index blob", err)
	}
	if err := os.Rename(tmp, blobPath); err != nil {
		_ = os.Remove(tmp)
		return nil, cerr.Wrap(cerr.IO, "failed to replace index blob", err)
	}

	entry := &Entry{
		Partition: partition,
		Key:       key,
		Package:   pkg,
		Version:   version,
		BlobPath:  blobPath,
		IndexedAt: time.Now().UTC(),
	}
	_, err = s.conn.Exec(
		`INSERT OR REPLACE INTO indexes (partition, key, package, version, blob_path, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Partition, entry.Key, entry.Package, entry.Version,
		entry.BlobPath, entry.IndexedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, cerr.Wrap(cerr.Internal, "failed to record index metadata", err)
	}
	s.logger.Debug("cached package index", map[string]interface{}{
		"partition": partition, "key": key,
		"size": len(scipBytes), "compressed": len(compressed),
	})
	return entry, nil
}

// Get reads and decompresses a cached SCIP blob.
func (s *Store) Get(partition, key string) ([]byte, *Entry, error) {
	entry, err := s.lookup(partition, key)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := os.ReadFile(entry.BlobPath)
	if err != nil {
		return nil, nil, cerr.Wrap(cerr.IO, "failed to read index blob", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, cerr.Wrap(cerr.Internal, "failed to create decompressor", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, cerr.Wrap(cerr.IO, "failed to decompress index blob", err)
	}
	return data, entry, nil
}

// List returns cached entries, optionally filtered by partition.
func (s *Store) List(partition string) ([]Entry, error) {
	query := `SELECT partition, key, package, version, blob_path, indexed_at
		FROM indexes ORDER BY partition, key`
	args := []interface{}{}
	if partition != "" {
		query = `SELECT partition, key, package, version, blob_path, indexed_at
			FROM indexes WHERE partition = ? ORDER BY key`
		args = append(args, partition)
	}
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, cerr.Wrap(cerr.Internal, "failed to list cache entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.Partition, &e.Key, &e.Package, &e.Version, &e.BlobPath, &ts); err != nil {
			return nil, cerr.Wrap(cerr.Internal, "failed to scan cache entry", err)
		}
		e.IndexedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) lookup(partition, key string) (*Entry, error) {
	row := s.conn.QueryRow(
		`SELECT partition, key, package, version, blob_path, indexed_at
		 FROM indexes WHERE partition = ? AND key = ?`, partition, key)
	var e Entry
	var ts string
	if err := row.Scan(&e.Partition, &e.Key, &e.Package, &e.Version, &e.BlobPath, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, cerr.Newf(cerr.NotFound, "no cached index for %s/%s", partition, key)
		}
		return nil, cerr.Wrap(cerr.Internal, "failed to query cache entry", err)
	}
	e.IndexedAt, _ = time.Parse(time.RFC3339, ts)
	return &e, nil
}

// DefaultCacheDir resolves the user-level cache directory.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", cerr.Wrap(cerr.IO, "no user cache directory", err)
	}
	return filepath.Join(base, "cci"), nil
}

// PackageKey builds the hosted-package partition key name-version.
func PackageKey(name, version string) string {
	return fmt.Sprintf("%s-%s", name, version)
}

// FlutterKey builds the flutter partition key version/package.
func FlutterKey(version, pkg string) string {
	return filepath.ToSlash(filepath.Join(version, pkg))
}
