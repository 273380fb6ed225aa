// Package rundb resolves a run number to its data file and acquisition
// metadata. The canonical catalog lives in the experiment's MySQL run
// database; a directory-scan fallback covers standalone processing of data
// files that never went through the DAQ bookkeeping.
package rundb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"

	"github.com/veto-data/autoveto/internal/vetofile"
)

var (
	// ErrNotFound means the catalog has no record of the run.
	ErrNotFound = errors.New("run not found in catalog")

	// ErrNoVetoData marks runs taken on the second module, which carries no
	// veto panels. Processing them would only produce empty output.
	ErrNoVetoData = errors.New("run has no veto data")
)

// Module-2 run range, exclusive on both ends.
const (
	module2Lo = 60000000
	module2Hi = 70000000
)

// RunMeta is one catalog entry.
type RunMeta struct {
	Run     int    `db:"run"`
	Path    string `db:"path"`
	Start   int64  `db:"start_time"`
	Stop    int64  `db:"stop_time"`
	Entries int64  `db:"entries"`
}

// ModuleForRun maps a run number to the detector module that took it.
func ModuleForRun(run int) int {
	if run > module2Lo && run < module2Hi {
		return 2
	}
	return 1
}

// CheckVetoData rejects runs whose module has no veto system.
func CheckVetoData(run int) error {
	if ModuleForRun(run) == 2 {
		return fmt.Errorf("run %d: %w", run, ErrNoVetoData)
	}
	return nil
}

// Catalog resolves run numbers to metadata.
type Catalog interface {
	Lookup(run int) (RunMeta, error)
}

// Connect opens the experiment run database.
func Connect(user, pass, host, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// SQLCatalog reads run metadata from the DAQ bookkeeping database.
type SQLCatalog struct {
	db *sqlx.DB
}

func NewSQLCatalog(db *sqlx.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) Lookup(run int) (RunMeta, error) {
	if err := CheckVetoData(run); err != nil {
		return RunMeta{}, err
	}
	var meta RunMeta
	err := c.db.Get(&meta,
		"SELECT run, path, start_time, stop_time, entries FROM veto_runs WHERE run = ?", run)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMeta{}, fmt.Errorf("run %d: %w", run, ErrNotFound)
	}
	if err != nil {
		return RunMeta{}, fmt.Errorf("querying run database for run %d: %w", run, err)
	}
	return meta, nil
}

// DirCatalog resolves runs from data files on disk, reading the acquisition
// metadata out of each file's own header.
type DirCatalog struct {
	Dir string
}

// RunFileName is the on-disk naming convention for run dumps.
func RunFileName(run int) string {
	return fmt.Sprintf("veto_run_%d.vbin", run)
}

func (c *DirCatalog) Lookup(run int) (RunMeta, error) {
	if err := CheckVetoData(run); err != nil {
		return RunMeta{}, err
	}
	path := filepath.Join(c.Dir, RunFileName(run))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return RunMeta{}, fmt.Errorf("run %d (no file %s): %w", run, path, ErrNotFound)
		}
		return RunMeta{}, err
	}
	src, err := vetofile.Open(path)
	if err != nil {
		return RunMeta{}, fmt.Errorf("reading header of %s: %w", path, err)
	}
	defer src.Close()
	info := src.Info()
	if info.Number != run {
		return RunMeta{}, fmt.Errorf("file %s claims run %d, want %d", path, info.Number, run)
	}
	return RunMeta{
		Run:     run,
		Path:    path,
		Start:   info.Start,
		Stop:    info.Stop,
		Entries: info.Entries,
	}, nil
}
