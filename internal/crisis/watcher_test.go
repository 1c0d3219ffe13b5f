package crisis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/log"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "v1"
keywords:
  - phrase: "end it all"
    severity: critical
`), 0o600))

	reloaded := make(chan *KeywordSet, 4)
	w, err := NewWatcher(path, func(set *KeywordSet, _ []string) {
		reloaded <- set
	}, log.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`
version: "v2"
keywords:
  - phrase: "overdose"
`), 0o600))

	select {
	case set := <-reloaded:
		assert.Equal(t, "v2", set.Version())
		assert.Equal(t, 1, set.Len())
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherKeepsPreviousSetOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "v1"
keywords:
  - phrase: "end it all"
`), 0o600))

	reloaded := make(chan *KeywordSet, 4)
	w, err := NewWatcher(path, func(set *KeywordSet, _ []string) {
		reloaded <- set
	}, log.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// A broken file must not invoke the callback; the next valid write
	// still must.
	require.NoError(t, os.WriteFile(path, []byte("{broken yaml"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`
version: "v3"
keywords:
  - phrase: "overdose"
`), 0o600))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case set := <-reloaded:
			if set.Version() == "v3" {
				return
			}
			t.Fatalf("unexpected reload version %q", set.Version())
		case <-deadline:
			t.Fatal("valid reload never arrived")
		}
	}
}
