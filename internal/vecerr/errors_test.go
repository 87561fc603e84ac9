package vecerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		prefix string
	}{
		{"constructor", Constructorf("bad dimension %d", 0), "vec0 constructor error:"},
		{"type", Typef("aaa", "dimension mismatch"), "vec0 type error: aaa:"},
		{"constraint", Constraintf("rowid already exists"), "vec0 constraint violation:"},
		{"internal", Internalf("chunkstore", "validity/rowid size mismatch"), "Internal sqlite-vec error: chunkstore:"},
		{"resource", Resourcef("rowdir", errors.New("disk full")), "vec0 resource error: rowdir:"},
		{"interrupted", Interrupted(), "vec0 interrupted:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.err.Error(), tt.prefix) {
				t.Fatalf("got %q, want prefix %q", tt.err.Error(), tt.prefix)
			}
		})
	}
}

func TestPlanfCode(t *testing.T) {
	err := Planf("aux-in-knn-where", "auxiliary column %q in KNN WHERE clause", "name")
	if !strings.Contains(err.Error(), "aux-in-knn-where") {
		t.Fatalf("expected diagnostic code in message, got %q", err.Error())
	}
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Constraintf("pk update forbidden"))
	if !Is(wrapped, KindConstraint) {
		t.Fatalf("expected Is to unwrap to KindConstraint")
	}
	if Is(wrapped, KindInternal) {
		t.Fatalf("expected Is to reject mismatched kind")
	}
}
