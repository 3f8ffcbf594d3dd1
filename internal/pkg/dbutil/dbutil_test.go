package dbutil

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lib/pq"
)

func TestFinalizeRewritesLimit(t *testing.T) {
	query := "SELECT id FROM documents WHERE checksum=? ORDER BY id LIMIT ?,?"
	args := []interface{}{"abc", 10, 5}
	got, gotArgs := Finalize(query, args)
	want := "SELECT id FROM documents WHERE checksum=$1 ORDER BY id LIMIT $2 OFFSET $3"
	if got != want {
		t.Fatalf("query = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(gotArgs, []interface{}{"abc", 5, 10}) {
		t.Fatalf("args = %v", gotArgs)
	}
}

func TestFinalizeWithoutLimit(t *testing.T) {
	got, _ := Finalize("SELECT id FROM documents WHERE id=?", []interface{}{int64(1)})
	if got != "SELECT id FROM documents WHERE id=$1" {
		t.Fatalf("query = %q", got)
	}
}

func TestInExpandsSlice(t *testing.T) {
	query, args, err := In("SELECT id FROM document_chunks WHERE document_id IN (?)", []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	want := "SELECT id FROM document_chunks WHERE document_id IN ($1, $2, $3)"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Fatalf("23505 should match")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatalf("23503 should not match")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Fatalf("plain error should not match")
	}
}
