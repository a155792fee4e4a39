package vectorstore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	indexSuffix = ".index"
	metaSuffix  = ".meta.json"

	indexMagic   = "TLIX"
	indexVersion = uint32(1)
)

type indexMeta struct {
	Version   uint32       `json:"version"`
	Dimension int          `json:"dimension"`
	Entries   []CorpusItem `json:"entries"`
}

// IndexPaths returns the vector file and metadata file for base.
func IndexPaths(base string) (vectors, meta string) {
	return base + indexSuffix, base + metaSuffix
}

// Save writes the index as a pair of files next to base. Each file is
// written to a temporary name and renamed into place.
func (f *FlatIndex) Save(base string) error {
	vecPath, metaPath := IndexPaths(base)
	if err := os.MkdirAll(filepath.Dir(vecPath), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	meta := indexMeta{
		Version:   indexVersion,
		Dimension: f.dimension,
		Entries:   make([]CorpusItem, len(f.entries)),
	}
	for i, e := range f.entries {
		meta.Entries[i] = CorpusItem{Text: e.text, SourceTag: e.sourceTag, URL: e.url}
	}

	if err := writeAtomic(vecPath, f.writeVectors); err != nil {
		return fmt.Errorf("writing %s: %w", vecPath, err)
	}
	if err := writeAtomic(metaPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("writing %s: %w", metaPath, err)
	}
	return nil
}

func (f *FlatIndex) writeVectors(w io.Writer) error {
	if _, err := io.WriteString(w, indexMagic); err != nil {
		return err
	}
	header := []uint32{indexVersion, uint32(f.dimension), uint32(len(f.entries))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, e := range f.entries {
		if err := binary.Write(w, binary.LittleEndian, e.vector); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads an index pair written by Save. It returns ErrIndexNotFound if
// neither file exists and ErrCorruptIndex if only one exists or they
// disagree.
func Load(base string, encoder Encoder) (*FlatIndex, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	}
	vecPath, metaPath := IndexPaths(base)

	vecFile, vecErr := os.Open(vecPath)
	metaData, metaErr := os.ReadFile(metaPath)
	if vecErr == nil {
		defer vecFile.Close()
	}
	switch {
	case errors.Is(vecErr, fs.ErrNotExist) && errors.Is(metaErr, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, base)
	case vecErr != nil:
		return nil, fmt.Errorf("%w: opening %s: %v", ErrCorruptIndex, vecPath, vecErr)
	case metaErr != nil:
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptIndex, metaPath, metaErr)
	}

	var meta indexMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", ErrCorruptIndex, err)
	}

	r := bufio.NewReader(vecFile)
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: bad magic in %s", ErrCorruptIndex, vecPath)
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptIndex, err)
	}
	version, dim, count := header[0], int(header[1]), int(header[2])

	switch {
	case version != indexVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	case dim <= 0 || dim != meta.Dimension:
		return nil, fmt.Errorf("%w: vector dimension %d, metadata dimension %d", ErrCorruptIndex, dim, meta.Dimension)
	case count != len(meta.Entries):
		return nil, fmt.Errorf("%w: %d vectors but %d metadata entries", ErrCorruptIndex, count, len(meta.Entries))
	}
	if encDim := encoder.Dimension(); encDim > 0 && encDim != dim {
		return nil, fmt.Errorf("%w: index dimension %d does not match encoder dimension %d", ErrCorruptIndex, dim, encDim)
	}

	entries := make([]entry, count)
	for i := range entries {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: reading vector %d: %v", ErrCorruptIndex, i, err)
		}
		item := meta.Entries[i]
		entries[i] = entry{vector: vec, text: item.Text, sourceTag: item.SourceTag, url: item.URL}
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data in %s", ErrCorruptIndex, vecPath)
	}

	indexEntries.WithLabelValues("flat").Set(float64(count))
	return &FlatIndex{encoder: encoder, dimension: dim, entries: entries}, nil
}
