package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// Magic number for packed heightfields
	HeightfieldMagic = "HFLD"
	// Current format version
	HeightfieldVersion = 1
	// Gzip compression level (balance between size and speed)
	DefaultGzipLevel = 6
	// DefaultQuantization is the height precision in meters (1mm)
	DefaultQuantization = 0.001

	// maxUnpackedSize bounds decompressed input
	maxUnpackedSize = 256 << 20
)

// HeightfieldHeader is the binary header preceding the quantized samples
type HeightfieldHeader struct {
	Magic        [4]byte // "HFLD"
	Version      uint8
	FormatFlags  uint8 // reserved
	Cols         uint32
	Rows         uint32
	Quantization float64 // meters per quantization step
	Base         float64 // added to every sample during unpacking
}

// PackHeights quantizes a row-major cols x rows heightfield and compresses it.
// Samples are stored as int32 steps relative to the smallest height, so the
// absolute magnitude of the heights does not limit precision.
func PackHeights(heights []float64, cols, rows int, quantization float64) ([]byte, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("heightfield must be at least 2x2, got %dx%d", cols, rows)
	}
	if len(heights) != cols*rows {
		return nil, fmt.Errorf("expected %d heights for %dx%d, got %d", cols*rows, cols, rows, len(heights))
	}
	if quantization <= 0 || math.IsNaN(quantization) || math.IsInf(quantization, 0) {
		return nil, fmt.Errorf("invalid quantization %v", quantization)
	}

	base := math.Inf(1)
	for i, h := range heights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return nil, fmt.Errorf("height %d is not finite", i)
		}
		base = math.Min(base, h)
	}

	quantized, err := quantizeHeights(heights, base, quantization)
	if err != nil {
		return nil, fmt.Errorf("failed to quantize heights: %w", err)
	}

	binaryData, err := encodeToBinary(quantized, cols, rows, quantization, base)
	if err != nil {
		return nil, fmt.Errorf("failed to encode to binary: %w", err)
	}

	compressed, err := gzipCompress(binaryData, DefaultGzipLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to compress with gzip: %w", err)
	}
	return compressed, nil
}

// UnpackHeights reverses PackHeights
func UnpackHeights(data []byte) (heights []float64, cols, rows int, err error) {
	raw, err := gzipDecompress(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decompress heightfield: %w", err)
	}

	r := bytes.NewReader(raw)
	var header HeightfieldHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != HeightfieldMagic {
		return nil, 0, 0, fmt.Errorf("invalid magic %q", header.Magic[:])
	}
	if header.Version != HeightfieldVersion {
		return nil, 0, 0, fmt.Errorf("unsupported heightfield version %d", header.Version)
	}
	if header.Quantization <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid quantization %v", header.Quantization)
	}

	count := uint64(header.Cols) * uint64(header.Rows)
	if count*4 != uint64(r.Len()) {
		return nil, 0, 0, fmt.Errorf("expected %d samples for %dx%d, found %d bytes",
			count, header.Cols, header.Rows, r.Len())
	}

	quantized := make([]int32, count)
	if err := binary.Read(r, binary.LittleEndian, quantized); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read samples: %w", err)
	}

	heights = make([]float64, count)
	for i, q := range quantized {
		heights[i] = header.Base + float64(q)*header.Quantization
	}
	return heights, int(header.Cols), int(header.Rows), nil
}

// quantizeHeights converts heights to int32 steps above base
func quantizeHeights(heights []float64, base, quantization float64) ([]int32, error) {
	quantized := make([]int32, len(heights))
	for i, h := range heights {
		steps := math.Round((h - base) / quantization)
		if steps > math.MaxInt32 {
			return nil, fmt.Errorf("height %d (%v) exceeds range at quantization %v", i, h, quantization)
		}
		quantized[i] = int32(steps)
	}
	return quantized, nil
}

// encodeToBinary writes the header followed by the samples
func encodeToBinary(quantized []int32, cols, rows int, quantization, base float64) ([]byte, error) {
	var buf bytes.Buffer

	header := HeightfieldHeader{
		Version:      HeightfieldVersion,
		Cols:         uint32(cols),
		Rows:         uint32(rows),
		Quantization: quantization,
		Base:         base,
	}
	copy(header.Magic[:], HeightfieldMagic)

	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, quantized); err != nil {
		return nil, fmt.Errorf("failed to write samples: %w", err)
	}
	return buf.Bytes(), nil
}

// gzipCompress compresses data using gzip
func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to gzip: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// gzipDecompress inflates gzip data up to maxUnpackedSize bytes
func gzipDecompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxUnpackedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream: %w", err)
	}
	if len(raw) > maxUnpackedSize {
		return nil, fmt.Errorf("decompressed data exceeds %d bytes", maxUnpackedSize)
	}
	return raw, nil
}
