// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

// Package store persists the latest successful snapshot as a CBOR file.
package store

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

// formatVersion is bumped when the record layout changes
const formatVersion = 1

// ErrNoSnapshot is returned by Load when nothing has been saved yet. It
// matches os.ErrNotExist.
var ErrNoSnapshot = errors.Wrap(os.ErrNotExist, "no saved snapshot")

// record is the on-disk form of a snapshot, keyed by integers.
type record struct {
	Version     int             `cbor:"0,keyasint"`
	Town        string          `cbor:"1,keyasint"`
	Dong        string          `cbor:"2,keyasint"`
	Ho          string          `cbor:"3,keyasint"`
	DisplayType int             `cbor:"4,keyasint"`
	Labels      map[int]string  `cbor:"5,keyasint,omitempty"`
	Readings    []readingRecord `cbor:"6,keyasint,omitempty"`
	FetchedAt   int64           `cbor:"7,keyasint"` // Unix nanoseconds
}

// readingRecord is one reading, encoded as a CBOR array.
type readingRecord struct {
	_         struct{} `cbor:",toarray"`
	Category  int
	Period    int
	YearMonth string
	Value     float64
}

func toRecord(s *kocom.Snapshot) record {
	r := record{
		Version:     formatVersion,
		Town:        s.Address.Town,
		Dong:        s.Address.Dong,
		Ho:          s.Address.Ho,
		DisplayType: int(s.DisplayType),
		FetchedAt:   s.FetchedAt.UnixNano(),
	}
	if len(s.Labels) > 0 {
		r.Labels = make(map[int]string, len(s.Labels))
		for p, l := range s.Labels {
			r.Labels[int(p)] = l
		}
	}
	for _, rd := range s.Readings {
		r.Readings = append(r.Readings, readingRecord{
			Category:  int(rd.Category),
			Period:    int(rd.Period),
			YearMonth: rd.YearMonth,
			Value:     rd.Value,
		})
	}
	return r
}

func (r record) snapshot() *kocom.Snapshot {
	s := &kocom.Snapshot{
		Address:     kocom.SiteAddress{Town: r.Town, Dong: r.Dong, Ho: r.Ho},
		DisplayType: kocom.DisplayType(r.DisplayType),
		Labels:      make(map[kocom.Period]string, len(r.Labels)),
		FetchedAt:   time.Unix(0, r.FetchedAt),
	}
	for p, l := range r.Labels {
		s.Labels[kocom.Period(p)] = l
	}
	for _, rd := range r.Readings {
		s.Readings = append(s.Readings, kocom.UsageReading{
			Category:  kocom.Category(rd.Category),
			Period:    kocom.Period(rd.Period),
			YearMonth: rd.YearMonth,
			Value:     rd.Value,
		})
	}
	return s
}

// Encode returns the CBOR encoding of s.
func Encode(s *kocom.Snapshot) ([]byte, error) {
	data, err := cbor.Marshal(toRecord(s))
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return data, nil
}

// Decode parses a snapshot encoded by Encode.
func Decode(data []byte) (*kocom.Snapshot, error) {
	if len(data) == 0 {
		return nil, errors.New("empty snapshot file")
	}
	var r record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if r.Version != formatVersion {
		return nil, errors.Errorf("unsupported snapshot version %d", r.Version)
	}
	return r.snapshot(), nil
}

// File stores one snapshot at Path.
type File struct {
	Path string
	mu   sync.Mutex
}

// NewFile returns a store writing to path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Save atomically replaces the stored snapshot.
func (f *File) Save(s *kocom.Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create state directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return errors.Wrap(err, "replace snapshot")
	}
	return nil
}

// Load reads the stored snapshot. It returns ErrNoSnapshot when the file does
// not exist.
func (f *File) Load() (*kocom.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, errors.Wrap(err, "read snapshot")
	}
	return Decode(data)
}
