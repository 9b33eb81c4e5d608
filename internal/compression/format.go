package compression

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// FormatHeightfieldGzip identifies packed heightfields in text documents
const FormatHeightfieldGzip = "hfld_gzip"

// PackedHeightfield is a packed heightfield ready for text transport
type PackedHeightfield struct {
	Format           string `json:"format" yaml:"format"`                         // "hfld_gzip"
	Data             string `json:"data" yaml:"data"`                             // Base64-encoded compressed data
	Size             int    `json:"size" yaml:"size"`                             // Compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size" yaml:"uncompressed_size"` // Raw sample size in bytes
}

// EncodeHeights packs heights and base64-encodes them for JSON or YAML
func EncodeHeights(heights []float64, cols, rows int, quantization float64) (*PackedHeightfield, error) {
	compressed, err := PackHeights(heights, cols, rows, quantization)
	if err != nil {
		return nil, err
	}
	return &PackedHeightfield{
		Format:           FormatHeightfieldGzip,
		Data:             base64.StdEncoding.EncodeToString(compressed),
		Size:             len(compressed),
		UncompressedSize: EstimateUncompressedSize(cols, rows),
	}, nil
}

// DecodeHeights reverses EncodeHeights
func DecodeHeights(packed *PackedHeightfield) ([]float64, int, int, error) {
	if packed == nil {
		return nil, 0, 0, fmt.Errorf("packed heightfield is nil")
	}
	if packed.Format != "" && packed.Format != FormatHeightfieldGzip {
		return nil, 0, 0, fmt.Errorf("unsupported heightfield format %q", packed.Format)
	}
	compressed, err := base64.StdEncoding.DecodeString(packed.Data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid base64 heightfield: %w", err)
	}
	return UnpackHeights(compressed)
}

// EstimateUncompressedSize is the size of the binary form before gzip
func EstimateUncompressedSize(cols, rows int) int {
	if cols <= 0 || rows <= 0 {
		return 0
	}
	return binary.Size(HeightfieldHeader{}) + cols*rows*4
}

// CompressDocument gzips a serialized map document for storage
func CompressDocument(doc []byte) ([]byte, error) {
	return gzipCompress(doc, DefaultGzipLevel)
}

// DecompressDocument reverses CompressDocument
func DecompressDocument(data []byte) ([]byte, error) {
	return gzipDecompress(data)
}
