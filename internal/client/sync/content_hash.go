package sync

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/openmined/syncmirror/internal/utils"
)

// ContentHasher produces a digest that depends only on file bytes.
type ContentHasher interface {
	Hash(data []byte) string
	HashFile(path string) (string, error)
}

// MD5Hasher hashes with MD5, hex encoded. Digests are comparable with those
// already present in existing side-files.
type MD5Hasher struct{}

func (MD5Hasher) Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (MD5Hasher) HashFile(path string) (string, error) {
	return utils.FileHash(path)
}
