package otu

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"blainsmith.com/go/seahash"
	"github.com/golang/snappy"
	"github.com/grailbio/base/log"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
)

// Fingerprint identifies a stage artifact by content: it hashes the
// stage name, the stage's config, and the fingerprint of the upstream
// artifact, so any change upstream changes every fingerprint below it.
type Fingerprint [highwayhash.Size]uint8

func (f Fingerprint) String() string { return hex.EncodeToString(f[:8]) }

var zeroSeed = Fingerprint{}

// stageFingerprint chains a stage onto an upstream fingerprint.
func stageFingerprint(stage, config string, upstream Fingerprint) Fingerprint {
	buf := make([]uint8, 0, len(stage)+len(config)+len(upstream)+2)
	buf = append(buf, stage...)
	buf = append(buf, 0)
	buf = append(buf, config...)
	buf = append(buf, 0)
	buf = append(buf, upstream[:]...)
	return highwayhash.Sum(buf, zeroSeed[:])
}

// inputFingerprint seeds the fingerprint chain with a content hash of
// the raw input stream.
func inputFingerprint(r io.Reader) (Fingerprint, error) {
	h := seahash.New()
	if _, err := io.Copy(h, r); err != nil {
		return Fingerprint{}, errors.Wrap(err, "hashing input")
	}
	return stageFingerprint("ingest", fmt.Sprintf("%016x", h.Sum64()), zeroSeed), nil
}

// artifactCache persists completed stage artifacts as snappy-compressed
// gob, keyed by stage name and fingerprint. A re-run whose upstream
// stages are unchanged finds their fingerprints unchanged and reloads
// the artifacts instead of recomputing.
type artifactCache struct {
	dir string
}

func newArtifactCache(dir string) (*artifactCache, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrap(err, "creating artifact cache")
	}
	return &artifactCache{dir: dir}, nil
}

func (c *artifactCache) path(stage string, fp Fingerprint) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%s.gob.sz", stage, fp))
}

// lookup decodes a cached artifact into v. A missing entry is not an
// error; an unreadable one is.
func (c *artifactCache) lookup(stage string, fp Fingerprint, v interface{}) (bool, error) {
	f, err := os.Open(c.path(stage, fp))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "opening cached %s artifact", stage)
	}
	defer f.Close() // nolint: errcheck
	if err := gob.NewDecoder(snappy.NewReader(f)).Decode(v); err != nil {
		return false, errors.Wrapf(err, "decoding cached %s artifact", stage)
	}
	log.Printf("cache: reusing %s artifact %s", stage, fp)
	return true, nil
}

// store persists a completed artifact. The file appears atomically:
// it is written to a temp path and renamed, so a crashed run never
// leaves a partial artifact behind.
func (c *artifactCache) store(stage string, fp Fingerprint, v interface{}) error {
	tmp, err := ioutil.TempFile(c.dir, stage+".tmp")
	if err != nil {
		return errors.Wrapf(err, "storing %s artifact", stage)
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck
	w := snappy.NewBufferedWriter(tmp)
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "encoding %s artifact", stage)
	}
	if err := w.Close(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "closing %s artifact", stage)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s artifact", stage)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), c.path(stage, fp)), "storing %s artifact", stage)
}
