// Package restorer bootstraps a node database from a published backup file.
package restorer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/castsync/go-castsync/pkg/backup"
)

// Restorer downloads a compressed backup and installs it as the node database.
type Restorer struct {
	url, dbPath string
}

// NewRestorer creates a new Restorer that will place the database at dbPath.
func NewRestorer(url string, dbPath string) (*Restorer, error) {
	if _, err := os.Stat(dbPath); err == nil {
		return nil, fmt.Errorf("%s already exists, refusing to overwrite", dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %s", err)
	}
	return &Restorer{
		url:    url,
		dbPath: dbPath,
	}, nil
}

// Restore downloads, decompresses, verifies and installs the backup.
func (r *Restorer) Restore(ctx context.Context) error {
	archive := fmt.Sprintf("%s.zst", r.dbPath)
	if err := r.download(ctx, archive); err != nil {
		return fmt.Errorf("download backup file: %s", err)
	}

	restored, err := backup.Decompress(archive)
	if err != nil {
		return fmt.Errorf("decompress: %s", err)
	}

	if err := r.verify(restored); err != nil {
		return fmt.Errorf("verifying restored database: %s", err)
	}

	if err := os.Remove(archive); err != nil {
		return fmt.Errorf("removing archive: %s", err)
	}

	return nil
}

func (r *Restorer) download(ctx context.Context, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating backup file: %s", err)
	}
	defer func() {
		_ = out.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("io copy: %s", err)
	}

	return nil
}

// verify checks the restored file is a sound database carrying a sync cursor,
// so a node started on it resumes from the backup's position.
func (r *Restorer) verify(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening database: %s", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var check string
	if err := db.QueryRow("PRAGMA quick_check;").Scan(&check); err != nil {
		return fmt.Errorf("quick check: %s", err)
	}
	if check != "ok" {
		return fmt.Errorf("quick check: %s", check)
	}

	var count int
	if err := db.QueryRow("SELECT count(1) FROM sync_state").Scan(&count); err != nil {
		return fmt.Errorf("reading sync state: %s", err)
	}

	return nil
}
