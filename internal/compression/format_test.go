package compression

import (
	"bytes"
	"testing"
)

func TestEncodeHeights(t *testing.T) {
	heights := rampHeights(6, 4, 120, 0.75)
	packed, err := EncodeHeights(heights, 6, 4, DefaultQuantization)
	if err != nil {
		t.Fatalf("EncodeHeights failed: %v", err)
	}

	if packed.Format != FormatHeightfieldGzip {
		t.Errorf("Expected format %q, got %q", FormatHeightfieldGzip, packed.Format)
	}
	if packed.Size == 0 || len(packed.Data) == 0 {
		t.Fatal("packed data is empty")
	}
	if packed.UncompressedSize != EstimateUncompressedSize(6, 4) {
		t.Errorf("Expected uncompressed size %d, got %d", EstimateUncompressedSize(6, 4), packed.UncompressedSize)
	}

	decoded, cols, rows, err := DecodeHeights(packed)
	if err != nil {
		t.Fatalf("DecodeHeights failed: %v", err)
	}
	if cols != 6 || rows != 4 || len(decoded) != len(heights) {
		t.Fatalf("decoded %dx%d with %d samples", cols, rows, len(decoded))
	}
}

func TestDecodeHeightsInvalid(t *testing.T) {
	testCases := []struct {
		name   string
		packed *PackedHeightfield
	}{
		{"nil", nil},
		{"unknown format", &PackedHeightfield{Format: "binary_gzip", Data: ""}},
		{"bad base64", &PackedHeightfield{Format: FormatHeightfieldGzip, Data: "!!!"}},
		{"not gzip", &PackedHeightfield{Format: FormatHeightfieldGzip, Data: "aGVsbG8="}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, _, err := DecodeHeights(tc.packed); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEstimateUncompressedSize(t *testing.T) {
	// 30 byte header + 4 bytes per sample
	if size := EstimateUncompressedSize(10, 10); size != 430 {
		t.Errorf("Expected 430, got %d", size)
	}
	if size := EstimateUncompressedSize(0, 10); size != 0 {
		t.Errorf("Expected 0 for empty field, got %d", size)
	}
}

func TestCompressDocument(t *testing.T) {
	doc := bytes.Repeat([]byte("name: rome\nprojection: UTM\n"), 100)
	compressed, err := CompressDocument(doc)
	if err != nil {
		t.Fatalf("CompressDocument failed: %v", err)
	}
	if len(compressed) >= len(doc) {
		t.Errorf("Expected compression, got %d >= %d bytes", len(compressed), len(doc))
	}
	restored, err := DecompressDocument(compressed)
	if err != nil {
		t.Fatalf("DecompressDocument failed: %v", err)
	}
	if !bytes.Equal(restored, doc) {
		t.Error("document changed during round trip")
	}
}
