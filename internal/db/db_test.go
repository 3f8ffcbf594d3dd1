package db

import (
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain statements",
			content: "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n",
			want:    []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name:    "trailing without semicolon",
			content: "CREATE INDEX idx ON a (id)",
			want:    []string{"CREATE INDEX idx ON a (id)"},
		},
		{
			name: "dollar quoted body",
			content: "CREATE FUNCTION touch() RETURNS trigger AS $$\n" +
				"BEGIN NEW.mtime = now(); RETURN NEW; END;\n" +
				"$$ LANGUAGE plpgsql;\nSELECT 1;",
			want: []string{
				"CREATE FUNCTION touch() RETURNS trigger AS $$\n" +
					"BEGIN NEW.mtime = now(); RETURN NEW; END;\n" +
					"$$ LANGUAGE plpgsql",
				"SELECT 1",
			},
		},
		{
			name:    "tagged dollar quote",
			content: "DO $body$ BEGIN PERFORM 1; END $body$;",
			want:    []string{"DO $body$ BEGIN PERFORM 1; END $body$"},
		},
		{
			name:    "empty segments dropped",
			content: ";;\n;CREATE TABLE c (id INT);;",
			want:    []string{"CREATE TABLE c (id INT)"},
		},
	}
	for _, c := range cases {
		if got := splitStatements(c.content); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("%s: got %#v, want %#v", c.name, got, c.want)
		}
	}
}
