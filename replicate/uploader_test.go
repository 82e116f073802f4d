//go:build unit

package replicate_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	mocklogger "github.com/hugolhafner/go-camus/logger/mock"
	"github.com/hugolhafner/go-camus/replicate"
	"github.com/hugolhafner/go-camus/storage"
	mockstorage "github.com/hugolhafner/go-camus/storage/mock"
)

func sourceWithFile(t *testing.T, path, content string) storage.Store {
	t.Helper()
	s := storage.NewMemStore()
	w, err := s.Create(context.Background(), path)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return s
}

// countingDialer fails the first n dials, then hands out target
func countingDialer(target storage.Store, failFirst int) (replicate.Dialer, *int) {
	calls := 0
	return func(context.Context) (storage.Store, error) {
		calls++
		if calls <= failFirst {
			return nil, errors.New("connection refused")
		}
		return target, nil
	}, &calls
}

func TestUploader_Success(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/dest/t/hourly/f.json", "data")
	dst := mockstorage.NewMem()
	dial, calls := countingDialer(dst, 0)

	u := replicate.NewUploader(dial)
	require.NoError(t, u.Upload(context.Background(), src, "/dest/t/hourly/f.json", "replica/t/hourly/f.json"))

	require.Equal(t, 1, *calls)
	require.Equal(t, int64(1), u.Succeeded())
	require.Equal(t, int64(0), u.Failed())
	dst.AssertExists(t, "replica/t/hourly/f.json")
}

func TestUploader_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	dst := mockstorage.NewMem()
	dial, calls := countingDialer(dst, 2)

	u := replicate.NewUploader(dial)
	require.NoError(t, u.Upload(context.Background(), src, "/f", "/r/f"))
	require.Equal(t, 3, *calls)
	require.Equal(t, int64(1), u.Succeeded())
	require.Equal(t, int64(0), u.Failed())
}

func TestUploader_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	dst := mockstorage.NewMem(mockstorage.WithFault(mockstorage.OpCreate, errors.New("quota exceeded")))
	attempts := 0
	dial := func(context.Context) (storage.Store, error) {
		attempts++
		return dst, nil
	}
	log := mocklogger.New()

	u := replicate.NewUploader(dial, replicate.WithLogger(log))
	err := u.Upload(context.Background(), src, "/f", "/r/f")
	require.ErrorContains(t, err, "quota exceeded")

	require.Equal(t, 4, attempts)
	require.Equal(t, int64(0), u.Succeeded())
	require.Equal(t, int64(1), u.Failed())
	require.Equal(t, 3, log.CountMessage("Failed uploading file, will retry"))
	require.Equal(t, 1, log.CountMessage("Failed to upload file"))
}

func TestUploader_MaxRetriesOption(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	dial, calls := countingDialer(nil, 100)

	u := replicate.NewUploader(dial, replicate.WithMaxRetries(0))
	require.Error(t, u.Upload(context.Background(), src, "/f", "/r/f"))
	require.Equal(t, 1, *calls)
}

func TestUploader_CancelledBetweenAttempts(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	dial := func(context.Context) (storage.Store, error) {
		calls++
		cancel()
		return nil, errors.New("connection refused")
	}

	u := replicate.NewUploader(dial)
	err := u.Upload(ctx, src, "/f", "/r/f")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
	require.Equal(t, int64(1), u.Failed())
}

type closingStore struct {
	storage.Store
	closed int
}

func (c *closingStore) Close() error {
	c.closed++
	return nil
}

func TestUploader_ClosesConnectionPerAttempt(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	dst := &closingStore{Store: storage.NewMemStore()}

	u := replicate.NewUploader(replicate.Static(dst))
	require.NoError(t, u.Upload(context.Background(), src, "/f", "/r/f"))
	require.NoError(t, u.Delete(context.Background(), "/r/f"))
	require.Equal(t, 2, dst.closed)
}

func TestUploader_Delete(t *testing.T) {
	t.Parallel()
	src := sourceWithFile(t, "/f", "data")
	dst := mockstorage.NewMem()
	u := replicate.NewUploader(replicate.Static(dst))

	require.NoError(t, u.Upload(context.Background(), src, "/f", "/r/f"))
	require.NoError(t, u.Delete(context.Background(), "/r/f"))
	dst.AssertNotExists(t, "/r/f")

	err := u.Delete(context.Background(), "/r/f")
	require.True(t, storage.IsNotExist(err))
}
