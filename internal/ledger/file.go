package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileFormat selects the on-disk JSON shape written by FileBackend.
type FileFormat string

const (
	// FormatRecords writes {"records":[{"address":..,"marker":..}]}.
	FormatRecords FileFormat = "records"
	// FormatLegacy writes {"logged_ips":[..]} with gclid_-prefixed campaign entries.
	FormatLegacy FileFormat = "legacy"
)

// FileBackend stores the ledger as a JSON document on local disk. Load
// understands both formats so a deployment can switch formats in place.
type FileBackend struct {
	path   string
	format FileFormat
}

type fileDocument struct {
	Records   *[]Record `json:"records,omitempty"`
	LoggedIPs *[]string `json:"logged_ips,omitempty"`
}

// NewFileBackend returns a backend for path writing the given format.
func NewFileBackend(path string, format FileFormat) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("ledger file path is empty")
	}
	switch format {
	case FormatRecords, FormatLegacy:
	case "":
		format = FormatRecords
	default:
		return nil, fmt.Errorf("unknown ledger file format %q", format)
	}
	return &FileBackend{path: path, format: format}, nil
}

func (f *FileBackend) Name() string { return "file" }

// Load reads the document. A missing file is an empty ledger.
func (f *FileBackend) Load(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(f.Name(), "load", err)
	}
	return decodeFileDocument(data)
}

func decodeFileDocument(data []byte) ([]Record, error) {
	var doc fileDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
	}

	switch {
	case doc.Records != nil:
		merged := make(map[string]Marker, len(*doc.Records))
		for i, r := range *doc.Records {
			if r.Address == "" {
				return nil, fmt.Errorf("%w: empty address at index %d", ErrMalformedLedger, i)
			}
			m, err := ParseMarker(string(r.Marker))
			if err != nil {
				return nil, err
			}
			if merged[r.Address] != MarkerCampaign {
				merged[r.Address] = m
			}
		}
		return sortedRecords(merged), nil
	case doc.LoggedIPs != nil:
		return DecodeLegacy(*doc.LoggedIPs)
	default:
		return nil, fmt.Errorf("%w: neither records nor logged_ips present", ErrMalformedLedger)
	}
}

// Save replaces the document atomically: the new content is written to a
// temporary file in the same directory, synced, then renamed over the old one.
func (f *FileBackend) Save(ctx context.Context, records []Record) error {
	var doc fileDocument
	if f.format == FormatLegacy {
		ips := EncodeLegacy(records)
		doc.LoggedIPs = &ips
	} else {
		recs := append([]Record{}, records...)
		doc.Records = &recs
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return storageErr(f.Name(), "encode", err)
	}
	return storageErr(f.Name(), "save", writeFileAtomic(f.path, data, 0o644))
}

func (f *FileBackend) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
