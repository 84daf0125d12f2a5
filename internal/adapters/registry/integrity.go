package registry

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // sha1 integrity is still published for old packages
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"io"
	"strings"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// Supported algorithms, strongest first.
var integrityAlgorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha384", sha512.New384},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
}

type integrity struct {
	algo   string
	digest []byte
	newFn  func() hash.Hash
}

// parseIntegrity picks the strongest supported hash of an SRI string.
// It returns nil when no algorithm is supported.
func parseIntegrity(sri string) (*integrity, error) {
	byAlgo := make(map[string]string)
	for _, field := range strings.Fields(sri) {
		algo, value, ok := strings.Cut(field, "-")
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrIntegrityMismatch, "malformed integrity"), "integrity", sri)
		}
		// Options after '?' are ignored.
		value, _, _ = strings.Cut(value, "?")
		if _, seen := byAlgo[algo]; !seen {
			byAlgo[algo] = value
		}
	}

	for _, a := range integrityAlgorithms {
		value, ok := byAlgo[a.name]
		if !ok {
			continue
		}
		digest, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrIntegrityMismatch, "malformed integrity digest"), "integrity", sri)
		}
		return &integrity{algo: a.name, digest: digest, newFn: a.new}, nil
	}
	return nil, nil
}

// verifyingReader hashes everything read and checks the digest at EOF.
type verifyingReader struct {
	rc   io.ReadCloser
	h    hash.Hash
	want *integrity
	url  string
	err  error
}

func newVerifyingReader(rc io.ReadCloser, want *integrity, url string) *verifyingReader {
	return &verifyingReader{rc: rc, h: want.newFn(), want: want, url: url}
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.rc.Read(p)
	r.h.Write(p[:n])
	if err == io.EOF {
		got := r.h.Sum(nil)
		if !bytes.Equal(got, r.want.digest) {
			mismatch := zerr.Wrap(domain.ErrIntegrityMismatch, "tarball integrity mismatch")
			mismatch = zerr.With(mismatch, "url", r.url)
			mismatch = zerr.With(mismatch, "expected", r.want.algo+"-"+base64.StdEncoding.EncodeToString(r.want.digest))
			r.err = zerr.With(mismatch, "actual", r.want.algo+"-"+base64.StdEncoding.EncodeToString(got))
			return n, r.err
		}
	}
	return n, err
}

func (r *verifyingReader) Close() error {
	return r.rc.Close()
}
