package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/config"
	"dms/internal/dms"
	"dms/internal/sessions"
	"dms/internal/testutil"
)

func sampleSession(id string) *dms.UploadSession {
	return &dms.UploadSession{
		UploadID:    id,
		Key:         "uploads/videos/n1/clip.mp4",
		ActorID:     "alice",
		ParentID:    "root-1",
		Dirs:        []string{"2024", "trips"},
		FileName:    "clip.mp4",
		ContentType: "video/mp4",
		Size:        200 << 20,
		PartSize:    8 << 20,
		CreatedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func stores(t *testing.T) map[string]sessions.Store {
	t.Helper()
	bs, err := sessions.NewBadgerStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	mem, err := sessions.NewBadgerStore("", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() {
		bs.Close()
		mem.Close()
	})
	return map[string]sessions.Store{
		"memory":          sessions.NewMemoryStore(time.Hour, nil),
		"badger":          bs,
		"badger-inmemory": mem,
	}
}

func TestStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleSession("mpu-1")
			require.NoError(t, s.Save(ctx, want))

			got, err := s.Get(ctx, "mpu-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want.Key, got.Key)
			assert.Equal(t, want.Dirs, got.Dirs)
			assert.Equal(t, want.Size, got.Size)
			assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

			require.NoError(t, s.Delete(ctx, "mpu-1"))
			got, err = s.Get(ctx, "mpu-1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(context.Background(), "missing")
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.NoError(t, s.Delete(context.Background(), "missing"))
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	s := sessions.NewMemoryStore(time.Hour, clock)
	require.NoError(t, s.Save(ctx, sampleSession("mpu-1")))

	clock.Advance(59 * time.Minute)
	got, err := s.Get(ctx, "mpu-1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(time.Minute)
	got, err = s.Get(ctx, "mpu-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := sessions.NewMemoryStore(time.Hour, nil)
	in := sampleSession("mpu-1")
	require.NoError(t, s.Save(ctx, in))
	in.Dirs[0] = "changed"

	got, err := s.Get(ctx, "mpu-1")
	require.NoError(t, err)
	assert.Equal(t, "2024", got.Dirs[0])
}

func TestNewStoreFromConfig(t *testing.T) {
	ttl := config.Duration{Duration: time.Hour}

	mem, err := sessions.NewStoreFromConfig(config.SessionsConfig{Type: "memory", TTL: ttl}, nil)
	require.NoError(t, err)
	assert.IsType(t, &sessions.MemoryStore{}, mem)

	bs, err := sessions.NewStoreFromConfig(config.SessionsConfig{Type: "badger", Dir: t.TempDir(), TTL: ttl}, nil)
	require.NoError(t, err)
	assert.IsType(t, &sessions.BadgerStore{}, bs)
	require.NoError(t, bs.Close())

	_, err = sessions.NewStoreFromConfig(config.SessionsConfig{Type: "badger", TTL: ttl}, nil)
	assert.Error(t, err)

	_, err = sessions.NewStoreFromConfig(config.SessionsConfig{Type: "redis", TTL: ttl}, nil)
	assert.Error(t, err)
}
