package release

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	// Ensure SHA256 is linked for DefaultHashFunction.
	_ "crypto/sha256"
)

// DefaultHashFunction computes content hashes and patch digests.
const DefaultHashFunction crypto.Hash = crypto.SHA256

var errHashUnavailable = errors.New("hash function unavailable")

// ContentHash is a lowercase hex digest of artifact bytes.
type ContentHash string

// String returns the digest as a plain string.
func (h ContentHash) String() string {
	return string(h)
}

// HashBytes returns the content hash of contents.
func HashBytes(contents []byte) ContentHash {
	hasher := DefaultHashFunction.New()
	_, _ = hasher.Write(contents)

	return ContentHash(hex.EncodeToString(hasher.Sum(nil)))
}

// HashFile streams the file at path through DefaultHashFunction.
func HashFile(path string) (ContentHash, error) {
	if !DefaultHashFunction.Available() {
		return "", fmt.Errorf("hash %s: %w", path, errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := DefaultHashFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return ContentHash(hex.EncodeToString(hasher.Sum(nil))), nil
}

// HashTree hashes a directory as the sorted sequence of its regular files.
// Every file contributes its slash-separated relative path and contents,
// each terminated by a NUL byte, so renames change the digest.
func HashTree(root string) (ContentHash, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)

	hasher := DefaultHashFunction.New()

	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", err
		}

		_, _ = io.WriteString(hasher, filepath.ToSlash(rel))
		_, _ = hasher.Write([]byte{0})

		if err = copyFileInto(hasher, path); err != nil {
			return "", err
		}

		_, _ = hasher.Write([]byte{0})
	}

	return ContentHash(hex.EncodeToString(hasher.Sum(nil))), nil
}

func copyFileInto(w io.Writer, path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = file.Close()
	}()

	if _, err = io.Copy(w, file); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}
