package slp

import "testing"

func mustEval(t *testing.T, predicate, attrList string) bool {
	t.Helper()
	ok, err := EvaluatePredicate(predicate, attrList)
	if err != nil {
		t.Fatalf("EvaluatePredicate(%q, %q): %v", predicate, attrList, err)
	}
	return ok
}

func TestPredicateEmptyMatchesUnconditionally(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "", "(color=red)") {
		t.Fatal("empty predicate must match")
	}
}

func TestPredicateEquality(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "(color=red)", "(color=red)") {
		t.Fatal("expected match")
	}
	if mustEval(t, "(color=red)", "(color=blue)") {
		t.Fatal("expected no match")
	}
}

func TestPredicateMultivaluedApprox(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "(color~=red)", "(color=red,green)") {
		t.Fatal("expected approx match against one of multiple values")
	}
}

func TestPredicateOrdinalComparisons(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "(size>=5)", "(size=10)") {
		t.Fatal("expected 10 >= 5")
	}
	if mustEval(t, "(size>=50)", "(size=10)") {
		t.Fatal("expected 10 < 50")
	}
	if !mustEval(t, "(size<=10)", "(size=10)") {
		t.Fatal("expected 10 <= 10")
	}
}

func TestPredicateStringOrdinalFallback(t *testing.T) {
	t.Parallel()
	// non-numeric values fall back to lexical ordering.
	if !mustEval(t, "(name>=alice)", "(name=bob)") {
		t.Fatal("expected lexical bob >= alice")
	}
}

func TestPredicateAnd(t *testing.T) {
	t.Parallel()
	attrs := "(color=red),(size=10)"
	if !mustEval(t, "(&(color=red)(size=10))", attrs) {
		t.Fatal("expected AND match")
	}
	if mustEval(t, "(&(color=red)(size=20))", attrs) {
		t.Fatal("expected AND mismatch")
	}
}

func TestPredicateOr(t *testing.T) {
	t.Parallel()
	attrs := "(color=red)"
	if !mustEval(t, "(|(color=blue)(color=red))", attrs) {
		t.Fatal("expected OR match")
	}
	if mustEval(t, "(|(color=blue)(color=green))", attrs) {
		t.Fatal("expected OR mismatch")
	}
}

func TestPredicateNot(t *testing.T) {
	t.Parallel()
	attrs := "(color=red)"
	if !mustEval(t, "(!(color=blue))", attrs) {
		t.Fatal("expected NOT match")
	}
	if mustEval(t, "(!(color=red))", attrs) {
		t.Fatal("expected NOT mismatch")
	}
}

func TestPredicatePresence(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "(color=*)", "(color=red)") {
		t.Fatal("expected presence match")
	}
	if mustEval(t, "(flavor=*)", "(color=red)") {
		t.Fatal("expected presence mismatch for absent tag")
	}
}

func TestPredicateKeywordAttribute(t *testing.T) {
	t.Parallel()
	if !mustEval(t, "(wireless=*)", "wireless,(color=red)") {
		t.Fatal("expected keyword attribute presence match")
	}
}

func TestPredicateNestedComposition(t *testing.T) {
	t.Parallel()
	attrs := "(color=red),(size=10),(tier=gold)"
	pred := "(&(color=red)(|(tier=silver)(tier=gold)))"
	if !mustEval(t, pred, attrs) {
		t.Fatal("expected nested AND/OR to match")
	}
}

func TestPredicateSyntaxError(t *testing.T) {
	t.Parallel()
	if _, err := EvaluatePredicate("(color=red", ""); err == nil {
		t.Fatal("expected syntax error for unbalanced parens")
	}
}
