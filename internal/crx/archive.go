package crx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	crxMagic        = "Cr24"
	crx2HeaderSize  = 16
	crx3HeaderSize  = 12
	crxVersion2     = 2
	crxVersion3     = 3
	dirPermissions  = 0o755
	filePermissions = 0o644
)

var (
	errUnknownFormat = errors.New("unknown archive format")
	errUnsafePath    = errors.New("unsafe path in archive")
)

// zipSignatures are the leading bytes of a plain zip payload.
//
//nolint:gochecknoglobals // Read-only lookup table.
var zipSignatures = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"),
}

// payloadOffset returns where the zip payload starts inside a CRX or zip archive.
func payloadOffset(r io.ReaderAt) (int64, error) {
	header := make([]byte, crx2HeaderSize)

	n, err := r.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read archive header: %w", err)
	}

	header = header[:n]

	for _, signature := range zipSignatures {
		if bytes.HasPrefix(header, signature) {
			return 0, nil
		}
	}

	if len(header) < crx3HeaderSize || string(header[:4]) != crxMagic {
		return 0, errUnknownFormat
	}

	switch binary.LittleEndian.Uint32(header[4:8]) {
	case crxVersion2:
		if len(header) < crx2HeaderSize {
			return 0, errUnknownFormat
		}

		keyLength := int64(binary.LittleEndian.Uint32(header[8:12]))
		signatureLength := int64(binary.LittleEndian.Uint32(header[12:16]))

		return crx2HeaderSize + keyLength + signatureLength, nil
	case crxVersion3:
		return crx3HeaderSize + int64(binary.LittleEndian.Uint32(header[8:12])), nil
	default:
		return 0, fmt.Errorf("%w: crx version %d", errUnknownFormat, binary.LittleEndian.Uint32(header[4:8]))
	}
}

// newZipReader opens the zip payload of an archive held by r.
func newZipReader(r io.ReaderAt, size int64) (*zip.Reader, error) {
	offset, err := payloadOffset(r)
	if err != nil {
		return nil, err
	}

	if offset > size {
		return nil, fmt.Errorf("%w: header exceeds archive size", errUnknownFormat)
	}

	reader, err := zip.NewReader(io.NewSectionReader(r, offset, size-offset), size-offset)
	if err != nil {
		return nil, fmt.Errorf("open zip payload: %w", err)
	}

	return reader, nil
}

// openArchive opens the archive at path and returns its zip payload.
// The returned closer must be called when the reader is no longer used.
func openArchive(archivePath string) (*zip.Reader, io.Closer, error) {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, nil, err
	}

	reader, err := newZipReader(file, info.Size())
	if err != nil {
		_ = file.Close()

		return nil, nil, fmt.Errorf("%s: %w", archivePath, err)
	}

	return reader, file, nil
}

// IsArchive reports whether contents start like a CRX or zip archive.
func IsArchive(contents []byte) bool {
	_, err := payloadOffset(bytes.NewReader(contents))

	return err == nil
}

// Extract unpacks the archive at archivePath into dst, recreating dst first.
func Extract(archivePath, dst string) error {
	reader, closer, err := openArchive(archivePath)
	if err != nil {
		return err
	}

	defer func() {
		_ = closer.Close()
	}()

	if err = RecreateDir(dst); err != nil {
		return err
	}

	for _, entry := range reader.File {
		if err = extractEntry(entry, dst); err != nil {
			return err
		}
	}

	return nil
}

func extractEntry(entry *zip.File, dst string) error {
	name := path.Clean(strings.ReplaceAll(entry.Name, "\\", "/"))
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return fmt.Errorf("%w: %s", errUnsafePath, entry.Name)
	}

	target := filepath.Join(dst, filepath.FromSlash(name))

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, dirPermissions)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}

	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}

	defer func() {
		_ = source.Close()
	}()

	output, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, source); err != nil { //nolint:gosec // Sizes are bounded by the archive we built or fetched.
		_ = output.Close()

		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}

	return output.Close()
}

// RecreateDir removes dir with its contents and creates it empty.
func RecreateDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	return nil
}

// readZipFile returns the contents of name inside reader, or fs.ErrNotExist.
func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, entry := range reader.File {
		if path.Clean(entry.Name) != name {
			continue
		}

		source, err := entry.Open()
		if err != nil {
			return nil, err
		}

		defer func() {
			_ = source.Close()
		}()

		return io.ReadAll(source)
	}

	return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
}
