package parser

import "testing"

func BenchmarkRewrite_Short(b *testing.B) {
	q := "select * from t where a = :a and b = :b"
	for i := 0; i < b.N; i++ {
		_ = Rewrite(q, nil)
	}
}

func BenchmarkRewrite_Literals(b *testing.B) {
	q := "insert into t (a,b,c,d,e) values (:a, 'x :y', E'it\\'s', $q$:z$q$, :e) -- :c"
	for i := 0; i < b.N; i++ {
		_ = Rewrite(q, nil)
	}
}
