package tarball_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/tarball"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func buildTar(t *testing.T, gzipped bool, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	var gz *gzip.Writer
	var w io.Writer = &buf
	if gzipped {
		gz = gzip.NewWriter(&buf)
		w = gz
	}
	tw := tar.NewWriter(w)
	for _, e := range entries {
		typ := e.typeflag
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{Name: e.name, Mode: mode, Typeflag: typ, Linkname: e.linkname}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	if gz != nil {
		require.NoError(t, gz.Close())
	}
	return buf.Bytes()
}

func newPool(t *testing.T, jobs int) (*tarball.Pool, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	return tarball.NewPool(log, jobs), log
}

func TestUnpack(t *testing.T) {
	for _, gzipped := range []bool{true, false} {
		t.Run(map[bool]string{true: "gzip", false: "plain"}[gzipped], func(t *testing.T) {
			data := buildTar(t, gzipped,
				entry{name: "package/", typeflag: tar.TypeDir, mode: 0o755},
				entry{name: "package/package.json", body: `{"name":"a"}`},
				entry{name: "package/bin/cli.js", body: "#!/usr/bin/env node\n", mode: 0o755},
				entry{name: "package/lib/deep/x.js", body: "x"},
			)
			dir := filepath.Join(t.TempDir(), "a")
			p, _ := newPool(t, 2)

			require.NoError(t, p.Unpack(context.Background(), bytes.NewReader(data), dir))

			got, err := os.ReadFile(filepath.Join(dir, "package.json"))
			require.NoError(t, err)
			assert.JSONEq(t, `{"name":"a"}`, string(got))

			info, err := os.Stat(filepath.Join(dir, "bin", "cli.js"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

			info, err = os.Stat(filepath.Join(dir, "lib", "deep", "x.js"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

			leftovers, err := filepath.Glob(filepath.Join(dir, "*", ".nest-tmp-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestUnpack_SkipsEscapingEntries(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "store", "pkg")
	data := buildTar(t, true,
		entry{name: "package/package.json", body: `{"name":"evil"}`},
		entry{name: "package/../../escaped.txt", body: "nope"},
		entry{name: "../outside.txt", body: "nope"},
		entry{name: "/abs.txt", body: "nope"},
		entry{name: "package/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
		entry{name: "package/hard", typeflag: tar.TypeLink, linkname: "package/package.json"},
	)
	p, log := newPool(t, 1)
	log.EXPECT().Warn(gomock.Any()).Times(3)

	require.NoError(t, p.Unpack(context.Background(), bytes.NewReader(data), dir))

	assert.FileExists(t, filepath.Join(dir, "package.json"))
	assert.NoFileExists(t, filepath.Join(root, "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(root, "store", "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(root, "outside.txt"))
	_, err := os.Lstat(filepath.Join(dir, "link"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dir, "hard"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpack_NoStrip(t *testing.T) {
	data := buildTar(t, false, entry{name: "top/file.txt", body: "hi"})
	dir := t.TempDir()
	p, _ := newPool(t, 1)
	p.StripPrefix = false

	require.NoError(t, p.Unpack(context.Background(), bytes.NewReader(data), dir))
	assert.FileExists(t, filepath.Join(dir, "top", "file.txt"))
}

func TestUnpack_Corrupt(t *testing.T) {
	data := buildTar(t, true, entry{name: "package/a.js", body: "abc"})
	p, _ := newPool(t, 1)

	err := p.Unpack(context.Background(), bytes.NewReader(data[:len(data)/2]), t.TempDir())
	require.ErrorIs(t, err, domain.ErrExtraction)
}

func TestUnpack_WaitsForFreeWorker(t *testing.T) {
	p, _ := newPool(t, 1)
	assert.Equal(t, 1, p.Jobs())

	// Occupy the only worker with a reader that blocks until released.
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- p.Unpack(context.Background(), pr, t.TempDir()) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Unpack(ctx, bytes.NewReader(buildTar(t, false)), t.TempDir())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, _ = pw.Write(buildTar(t, false, entry{name: "package/a", body: "a"}))
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
}

func TestDefaultJobs(t *testing.T) {
	assert.GreaterOrEqual(t, tarball.DefaultJobs(), 1)
	p, _ := newPool(t, 0)
	assert.Equal(t, tarball.DefaultJobs(), p.Jobs())
}

func TestReadManifest(t *testing.T) {
	data := buildTar(t, true,
		entry{name: "package/lib/package.json", body: `{"name":"nested"}`},
		entry{name: "package/package.json", body: `{"name":"remote","version":"0.1.0"}`},
	)
	p, _ := newPool(t, 1)

	m, err := p.ReadManifest(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "remote", m.Name)

	_, err = p.ReadManifest(context.Background(), bytes.NewReader(buildTar(t, true, entry{name: "package/x", body: "x"})))
	require.ErrorIs(t, err, domain.ErrManifestRead)
}
