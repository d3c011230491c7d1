package decomposer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Decomposition
	}{
		{
			name:  "simple query",
			query: "SELECT a,b FROM t WHERE a>1 ORDER BY b LIMIT 5",
			want:  Decomposition{Table: "t", SelectList: "a,b", Clauses: []string{"WHERE a>1", "ORDER BY b", "LIMIT 5"}},
		},
		{
			name:  "star without clauses",
			query: "select * from schools;",
			want:  Decomposition{Table: "schools", SelectList: "*", Clauses: []string{}},
		},
		{
			name:  "all clauses",
			query: "SELECT district, COUNT(*) AS n FROM schools WHERE enrollment > 100 GROUP BY district HAVING COUNT(*) > 1 ORDER BY n DESC LIMIT 10;",
			want: Decomposition{
				Table:      "schools",
				SelectList: "district, COUNT(*) AS n",
				Clauses: []string{
					"WHERE enrollment > 100",
					"GROUP BY district",
					"HAVING COUNT(*) > 1",
					"ORDER BY n DESC",
					"LIMIT 10",
				},
			},
		},
		{
			name:  "backticks and alias",
			query: "SELECT s.name FROM `schools` AS s WHERE s.id = 3",
			want:  Decomposition{Table: "schools AS s", SelectList: "s.name", Clauses: []string{"WHERE s.id = 3"}},
		},
		{
			name:  "limit with offset",
			query: "SELECT name FROM schools ORDER BY name LIMIT 5 OFFSET 10;",
			want:  Decomposition{Table: "schools", SelectList: "name", Clauses: []string{"ORDER BY name", "LIMIT 5 OFFSET 10"}},
		},
		{
			name:  "limit with row offset",
			query: "SELECT name FROM schools WHERE capacity > 100 LIMIT 10, 20",
			want:  Decomposition{Table: "schools", SelectList: "name", Clauses: []string{"WHERE capacity > 100", "LIMIT 10, 20"}},
		},
		{
			name:  "multi line",
			query: "SELECT name,\n  capacity\nFROM schools\nORDER BY capacity",
			want:  Decomposition{Table: "schools", SelectList: "name,\n  capacity", Clauses: []string{"ORDER BY capacity"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decompose(tt.query)
			if !ok {
				t.Fatalf("Expected %q to decompose", tt.query)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Unexpected decomposition (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecomposeClauseOrderIsFixed(t *testing.T) {
	got, ok := Decompose("SELECT a FROM t ORDER BY a LIMIT 3")
	if !ok {
		t.Fatal("Expected query to decompose")
	}
	want := []string{"ORDER BY a", "LIMIT 3"}
	if diff := cmp.Diff(want, got.Clauses); diff != "" {
		t.Errorf("Unexpected clauses (-want +got):\n%s", diff)
	}

	got, ok = Decompose("SELECT a FROM t HAVING a > 1 GROUP BY a")
	if !ok {
		t.Fatal("Expected query to decompose")
	}
	if len(got.Clauses) != 2 || got.Clauses[0] != "GROUP BY a" || got.Clauses[1][:6] != "HAVING" {
		t.Errorf("Expected GROUP BY to be emitted before HAVING, got %v", got.Clauses)
	}
}

func TestDecomposeRejects(t *testing.T) {
	for _, query := range []string{
		"",
		"UPDATE t SET a = 1",
		"SELECT 1",
		"SELECT a FROM",
	} {
		if _, ok := Decompose(query); ok {
			t.Errorf("Expected %q not to decompose", query)
		}
	}
}

func TestSQL(t *testing.T) {
	d := Decomposition{Table: "t", SelectList: "a,b", Clauses: []string{"WHERE a>1", "LIMIT 5"}}
	if got := d.SQL(); got != "SELECT a,b FROM t WHERE a>1 LIMIT 5;" {
		t.Errorf("Unexpected SQL: %s", got)
	}

	d = Decomposition{Table: "t", SelectList: "*", Clauses: []string{}}
	if got := d.SQL(); got != "SELECT * FROM t;" {
		t.Errorf("Unexpected SQL: %s", got)
	}
}
