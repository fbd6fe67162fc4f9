package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	created, err := s.EnsureContainer(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureContainer(ctx)
	require.NoError(t, err)
	assert.False(t, created, "second ensure must report existing container")

	objects, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)

	require.NoError(t, s.Put(ctx, "report-b.json", []byte(`[{"clicks":2}]`)))
	require.NoError(t, s.Put(ctx, "report-a.json", []byte(`[]`)))

	data, err := s.Get(ctx, "report-b.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"clicks":2}]`, string(data))

	_, err = s.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	objects, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "report-a.json", objects[0].Name)
	assert.Equal(t, "report-b.json", objects[1].Name)
	assert.Equal(t, int64(len(`[{"clicks":2}]`)), objects[1].Size)

	require.NoError(t, s.Put(ctx, "report-a.json", []byte(`[1]`)))
	data, err = s.Get(ctx, "report-a.json")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(data))
}

func TestDiskStore(t *testing.T) {
	exerciseStore(t, NewDisk(t.TempDir(), "gsc-data"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory("gsc-data"))
}

func TestDiskStoreRejectsEscapingNames(t *testing.T) {
	s := NewDisk(t.TempDir(), "gsc-data")
	err := s.Put(context.Background(), "../outside.json", []byte(`[]`))
	assert.Error(t, err)
}

func TestDiskStoreListMissingContainer(t *testing.T) {
	objects, err := NewDisk(t.TempDir(), "absent").List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: DriverMemory, Container: "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", s.Container())

	s, err = Open(ctx, Options{Driver: DriverDisk, Container: "c", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, s)

	_, err = Open(ctx, Options{Driver: "ftp", Container: "c"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: DriverMemory})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: DriverAzure, Container: "c"})
	assert.Error(t, err, "azure without a connection string")
}
