package tableopts

import (
	"testing"

	"vec0/internal/vecvalue"
)

func TestParseSimpleVectorColumn(t *testing.T) {
	s, err := Parse("v", []string{"a float[1]", "chunk_size=8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Vectors) != 1 || s.Vectors[0].Name != "a" || s.Vectors[0].Dim != 1 {
		t.Fatalf("got %+v", s.Vectors)
	}
	if s.Vectors[0].Kind != vecvalue.Float32 {
		t.Fatalf("got kind %v", s.Vectors[0].Kind)
	}
	if s.ChunkSize != 8 {
		t.Fatalf("got chunk_size %d", s.ChunkSize)
	}
}

func TestParsePartitionAndMetadata(t *testing.T) {
	s, err := Parse("v", []string{"embedding float[2]", "category TEXT PARTITION KEY", "label TEXT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Partitions) != 1 || s.Partitions[0].Name != "category" {
		t.Fatalf("got %+v", s.Partitions)
	}
	if len(s.Metadata) != 1 || s.Metadata[0].Name != "label" || s.Metadata[0].Type != MetaText {
		t.Fatalf("got %+v", s.Metadata)
	}
}

func TestParseTextPrimaryKey(t *testing.T) {
	s, err := Parse("v", []string{"id text primary key", "v float[1]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PKKind != PKText || s.PKName != "id" {
		t.Fatalf("got kind=%v name=%q", s.PKKind, s.PKName)
	}
}

func TestParseAuxiliaryColumn(t *testing.T) {
	s, err := Parse("v", []string{"a float[1]", "+note text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Auxiliary) != 1 || s.Auxiliary[0].Name != "note" {
		t.Fatalf("got %+v", s.Auxiliary)
	}
}

func TestParseRejectsUnknownOption(t *testing.T) {
	if _, err := Parse("v", []string{"a float[1]", "bogus_option=3"}); err == nil {
		t.Fatalf("expected error for unknown option")
	}
}

func TestParseRejectsBadChunkSize(t *testing.T) {
	if _, err := Parse("v", []string{"a float[1]", "chunk_size=7"}); err == nil {
		t.Fatalf("expected error for non-multiple-of-8 chunk_size")
	}
	if _, err := Parse("v", []string{"a float[1]", "chunk_size=8192"}); err == nil {
		t.Fatalf("expected error for chunk_size over max")
	}
}

func TestParseRejectsDuplicateName(t *testing.T) {
	if _, err := Parse("v", []string{"a float[1]", "a text"}); err == nil {
		t.Fatalf("expected error for duplicate column name")
	}
}

func TestParseRejectsNoVectorColumn(t *testing.T) {
	if _, err := Parse("v", []string{"label text"}); err == nil {
		t.Fatalf("expected error for missing vector column")
	}
}

func TestParseBitVectorRequiresMultipleOf8(t *testing.T) {
	if _, err := Parse("v", []string{"b bit[3]"}); err == nil {
		t.Fatalf("expected error for bit dimension not a multiple of 8")
	}
	s, err := Parse("v", []string{"b bit[8]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Vectors[0].Kind != vecvalue.Bit {
		t.Fatalf("got kind %v", s.Vectors[0].Kind)
	}
}

func TestParsePerColumnDistanceMetric(t *testing.T) {
	s, err := Parse("v", []string{"a float[4] distance_metric=cosine"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.DistanceMetricFor(&s.Vectors[0]) != "cosine" {
		t.Fatalf("got %q", s.DistanceMetricFor(&s.Vectors[0]))
	}
}

func TestColumnOrder(t *testing.T) {
	s, err := Parse("v", []string{"id text primary key", "a float[1]", "cat text partition key", "label text", "+note text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.ColumnOrder()
	want := []string{"id", "a", "cat", "label", "note"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
