package parser

import (
	"strconv"
	"testing"
)

func TestRewriteAssignsOrdinals(t *testing.T) {
	p := Rewrite("select :a, :B, :A from t where x = :b or y = :c", nil)
	want := "select $1, $2, $1 from t where x = $2 or y = $3"
	if p.Text != want {
		t.Fatalf("text = %q, want %q", p.Text, want)
	}
	if len(p.Names) != 3 || p.Names[0] != "a" || p.Names[1] != "b" || p.Names[2] != "c" {
		t.Fatalf("names = %v", p.Names)
	}
	if p.Ordinal("b") != 2 || p.Ordinal("zz") != 0 {
		t.Fatalf("ordinal lookup broken")
	}
}

func TestRewriteLeavesLiteralsAlone(t *testing.T) {
	in := `select ':x', e':y', "a:z", $$ :w $$, $t$:q$t$ /* :c */ -- :d` + "\n" + `from t where v::text = :v`
	p := Rewrite(in, nil)
	want := `select ':x', E':y', "a:z", $$ :w $$, $t$:q$t$ /* :c */ -- :d` + "\n" + `from t where v::text = $1`
	if p.Text != want {
		t.Fatalf("text = %q\nwant   %q", p.Text, want)
	}
	if len(p.Names) != 1 || p.Names[0] != "v" {
		t.Fatalf("names = %v", p.Names)
	}
}

func TestRewriteAfterUnclosedDollarTag(t *testing.T) {
	p := Rewrite("select $abc :x, $a b :y", nil)
	if p.Text != "select $abc $1, $a b $2" {
		t.Fatalf("text = %q", p.Text)
	}
	if len(p.Names) != 2 || p.Names[0] != "x" || p.Names[1] != "y" {
		t.Fatalf("names = %v", p.Names)
	}
}

func TestRewritePlaceholderStyle(t *testing.T) {
	question := func(n int) string { return "?" + strconv.Itoa(n) }
	p := Rewrite("insert into t values (:a, :b, :a)", question)
	if p.Text != "insert into t values (?1, ?2, ?1)" {
		t.Fatalf("text = %q", p.Text)
	}
}

func TestRewriteCastAfterPlaceholder(t *testing.T) {
	p := Rewrite("select :n::int as x", nil)
	if p.Text != "select $1::int as x" {
		t.Fatalf("text = %q", p.Text)
	}
}

func TestRewriteKeepsWhitespace(t *testing.T) {
	in := "select\t 1\n\n  from   t"
	if got := Rewrite(in, nil).Text; got != in {
		t.Fatalf("text = %q", got)
	}
}

func TestFoldName(t *testing.T) {
	if got := FoldName("MiXed_Ä"); got != "mixed_Ä" {
		t.Fatalf("FoldName = %q", got)
	}
}
