package rundb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veto-data/autoveto/internal/vetofile"
)

func TestModuleForRun(t *testing.T) {
	cases := []struct {
		run  int
		want int
	}{
		{run: 10000, want: 1},
		{run: 60000000, want: 1}, // boundaries are exclusive
		{run: 60000001, want: 2},
		{run: 69999999, want: 2},
		{run: 70000000, want: 1},
		{run: 80000000, want: 1},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, ModuleForRun(tc.run), "run %d", tc.run)
	}
}

func TestCheckVetoData(t *testing.T) {
	assert.NoError(t, CheckVetoData(10000))
	assert.ErrorIs(t, CheckVetoData(65000000), ErrNoVetoData)
}

func TestRunFileName(t *testing.T) {
	assert.Equal(t, "veto_run_10000.vbin", RunFileName(10000))
}

func TestDirCatalogLookup(t *testing.T) {
	dir := t.TempDir()
	w, err := vetofile.Create(dir+"/"+RunFileName(10000), 10000, 1000, 1060)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	cat := &DirCatalog{Dir: dir}
	meta, err := cat.Lookup(10000)
	require.NoError(t, err)
	assert.Equal(t, 10000, meta.Run)
	assert.Equal(t, int64(1000), meta.Start)
	assert.Equal(t, int64(1060), meta.Stop)
	assert.Equal(t, int64(0), meta.Entries)
	assert.Equal(t, dir+"/"+RunFileName(10000), meta.Path)
}

func TestDirCatalogMissingRun(t *testing.T) {
	cat := &DirCatalog{Dir: t.TempDir()}
	_, err := cat.Lookup(10000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirCatalogRunNumberMismatch(t *testing.T) {
	dir := t.TempDir()
	// The file is named for run 10000 but its header says 10001.
	w, err := vetofile.Create(dir+"/"+RunFileName(10000), 10001, 1000, 1060)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	cat := &DirCatalog{Dir: dir}
	_, err = cat.Lookup(10000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claims run 10001")
}

func TestDirCatalogRejectsModule2(t *testing.T) {
	cat := &DirCatalog{Dir: t.TempDir()}
	_, err := cat.Lookup(65000000)
	assert.ErrorIs(t, err, ErrNoVetoData)
}
