package source

import (
	"archive/tar"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/datamux/stream"
)

func writeJSONL(t *testing.T, path string, records ...map[string]any) {
	t.Helper()
	var sb strings.Builder
	for _, r := range records {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		sb.Write(b)
		sb.WriteByte('\n')
	}
	data := []byte(sb.String())
	if strings.HasSuffix(path, ".gz") {
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := gzip.NewWriter(f)
		_, err = zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())
		return
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// writeTar writes members in the order given; names and payloads alternate.
func writeTar(t *testing.T, path string, members ...string) {
	t.Helper()
	require.Zero(t, len(members)%2)
	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	for i := 0; i < len(members); i += 2 {
		body := []byte(members[i+1])
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     members[i],
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())
}

func utt(name string, dur float64, text string) map[string]any {
	return map[string]any{"audio_filepath": name + ".wav", "duration": dur, "text": text, "sampling_rate": 16000}
}

func drain(t *testing.T, src stream.Source) []*stream.Entry {
	t.Helper()
	return drainCtx(t, context.Background(), src)
}

func drainCtx(t *testing.T, ctx context.Context, src stream.Source) []*stream.Entry {
	t.Helper()
	it, err := src.Open(ctx)
	require.NoError(t, err)
	entries, err := stream.Collect(ctx, it)
	require.NoError(t, err)
	return entries
}

func entryIDs(entries []*stream.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func tmpPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
