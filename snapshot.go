package match

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/0x5487/market-backtester/protocol"
)

const (
	snapshotBinFile  = "snapshot.bin"
	snapshotMetaFile = "metadata.json"
)

// SnapshotMetadata holds the global metadata for a snapshot (stored in metadata.json).
type SnapshotMetadata struct {
	SchemaVersion    int    `json:"schema_version"`
	RunID            string `json:"run_id"`
	Timestamp        int64  `json:"timestamp"` // Logical time of the captured books
	Iteration        int    `json:"iteration"`
	Phase            Phase  `json:"phase"`
	EngineVersion    string `json:"engine_version"`
	SnapshotChecksum uint32 `json:"snapshot_checksum"` // CRC32 of the entire snapshot.bin file
}

// SnapshotFileFooter is the footer structure stored at the end of snapshot.bin.
// Layout: [BinaryData...][FooterJSON][FooterLength(4 bytes)]
type SnapshotFileFooter struct {
	Books []BookSegment `json:"books"`
}

// BookSegment locates one book's data within snapshot.bin.
type BookSegment struct {
	Symbol   string `json:"symbol"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Checksum uint32 `json:"checksum"` // CRC32 of this segment
}

// TakeSnapshot writes every book into outputDir. The files are written to a
// temporary directory first and renamed into place, so outputDir either holds
// a complete snapshot or the previous one.
func (e *MatchingEngine) TakeSnapshot(outputDir string) (*SnapshotMetadata, error) {
	return writeSnapshot(outputDir, e.snapshotBooks(), &SnapshotMetadata{
		SchemaVersion: SnapshotSchemaVersion,
		RunID:         e.runID,
		Timestamp:     e.timestamp,
		Iteration:     e.iteration,
		Phase:         e.phase,
		EngineVersion: EngineVersion,
	}, &protocol.DefaultJSONSerializer{})
}

func (e *MatchingEngine) snapshotBooks() []*OrderBookSnapshot {
	snaps := make([]*OrderBookSnapshot, 0, len(e.symbols))
	for _, symbol := range e.symbols {
		snaps = append(snaps, e.books[symbol].Snapshot(e.timestamp))
	}
	return snaps
}

func writeSnapshot(outputDir string, snaps []*OrderBookSnapshot, meta *SnapshotMetadata, serializer protocol.Serializer) (*SnapshotMetadata, error) {
	tmpDir := outputDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0750); err != nil {
		return nil, err
	}

	binPath := filepath.Join(tmpDir, snapshotBinFile)
	binFile, err := os.Create(binPath)
	if err != nil {
		return nil, err
	}

	segments := make([]BookSegment, 0, len(snaps))
	currentOffset := int64(0)

	for _, snap := range snaps {
		data, err := serializer.Marshal(snap)
		if err != nil {
			binFile.Close()
			return nil, err
		}

		n, err := binFile.Write(data)
		if err != nil {
			binFile.Close()
			return nil, err
		}

		segments = append(segments, BookSegment{
			Symbol:   snap.Symbol,
			Offset:   currentOffset,
			Length:   int64(n),
			Checksum: crc32.ChecksumIEEE(data),
		})
		currentOffset += int64(n)
	}

	footerData, err := serializer.Marshal(SnapshotFileFooter{Books: segments})
	if err != nil {
		binFile.Close()
		return nil, err
	}
	if _, err := binFile.Write(footerData); err != nil {
		binFile.Close()
		return nil, err
	}

	if len(footerData) > 4294967295 {
		binFile.Close()
		return nil, errors.New("footer too large")
	}
	//nolint:gosec // Verified length above
	footerLen := uint32(len(footerData))
	if err := binary.Write(binFile, binary.BigEndian, footerLen); err != nil {
		binFile.Close()
		return nil, err
	}

	if err := binFile.Sync(); err != nil {
		binFile.Close()
		return nil, err
	}
	if err := binFile.Close(); err != nil {
		return nil, err
	}

	checksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, err
	}
	meta.SnapshotChecksum = checksum

	metaBytes, err := serializer.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, snapshotMetaFile), metaBytes, 0600); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpDir, outputDir); err != nil {
		return nil, err
	}

	return meta, nil
}

// ReadSnapshot loads and verifies a snapshot written by TakeSnapshot.
func ReadSnapshot(inputDir string) (*SnapshotMetadata, []*OrderBookSnapshot, error) {
	serializer := &protocol.DefaultJSONSerializer{}

	metaBytes, err := os.ReadFile(filepath.Join(inputDir, snapshotMetaFile))
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := serializer.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, err
	}

	binPath := filepath.Join(inputDir, snapshotBinFile)
	fileChecksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, nil, err
	}
	if fileChecksum != meta.SnapshotChecksum {
		return nil, nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, snapshotBinFile)
	}

	binFile, err := os.Open(binPath)
	if err != nil {
		return nil, nil, err
	}
	defer binFile.Close()

	stat, err := binFile.Stat()
	if err != nil {
		return nil, nil, err
	}
	fileSize := stat.Size()
	if fileSize < 4 {
		return nil, nil, fmt.Errorf("%w: %s too short", ErrChecksumMismatch, snapshotBinFile)
	}

	footerLenBytes := make([]byte, 4)
	if _, err := binFile.ReadAt(footerLenBytes, fileSize-4); err != nil {
		return nil, nil, err
	}
	footerLen := binary.BigEndian.Uint32(footerLenBytes)

	footerOffset := fileSize - 4 - int64(footerLen)
	if footerOffset < 0 {
		return nil, nil, fmt.Errorf("%w: footer length %d exceeds file", ErrChecksumMismatch, footerLen)
	}
	footerBytes := make([]byte, footerLen)
	if _, err := binFile.ReadAt(footerBytes, footerOffset); err != nil {
		return nil, nil, err
	}

	var footer SnapshotFileFooter
	if err := serializer.Unmarshal(footerBytes, &footer); err != nil {
		return nil, nil, err
	}

	snaps := make([]*OrderBookSnapshot, 0, len(footer.Books))
	for _, segment := range footer.Books {
		segmentData := make([]byte, segment.Length)
		if _, err := binFile.ReadAt(segmentData, segment.Offset); err != nil {
			return nil, nil, err
		}

		if crc32.ChecksumIEEE(segmentData) != segment.Checksum {
			return nil, nil, fmt.Errorf("%w: book %s", ErrChecksumMismatch, segment.Symbol)
		}

		var snap OrderBookSnapshot
		if err := serializer.Unmarshal(segmentData, &snap); err != nil {
			return nil, nil, err
		}
		snaps = append(snaps, &snap)
	}

	return &meta, snaps, nil
}

func calculateFileCRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
