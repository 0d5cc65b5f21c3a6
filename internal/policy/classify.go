package policy

import (
	"github.com/xwb1989/sqlparser"
)

// Classify decides whether a single SQL statement may execute under mode. It
// is pure: the same inputs always produce the same decision. It never panics
// on malformed input; anything unclassifiable degrades to KindUnknown, which
// only unrestricted mode lets through.
func Classify(sql string, mode AccessMode) Decision {
	kind, hasWhere := detectStatement(sql)

	if mode == ModeUnrestricted {
		return allow(kind)
	}
	if multiStatement(sql) {
		return deny(kind, ReasonMultiStatement)
	}

	switch mode {
	case ModeReadonly:
		if kind.IsRead() {
			return allow(kind)
		}
		return deny(kind, ReasonReadonlyBlocked)
	case ModeLimited:
		return classifyLimited(kind, hasWhere)
	}
	// Config validation rejects unknown modes before they get here, but an
	// unrecognized mode still fails closed.
	return deny(kind, ReasonUnknownBlocked)
}

func classifyLimited(kind StatementKind, hasWhere bool) Decision {
	switch kind {
	case KindRead, KindInsert, KindDDL:
		return allow(kind)
	case KindUpdate, KindDelete:
		if hasWhere {
			return allow(kind)
		}
		return deny(kind, ReasonNoWhere)
	case KindDrop, KindTruncate:
		return deny(kind, ReasonDestructiveDDL)
	case KindDCL:
		return deny(kind, ReasonDCLBlocked)
	case KindTransaction:
		return deny(kind, ReasonTxnBlocked)
	}
	return deny(kind, ReasonUnknownBlocked)
}

// detectStatement determines the statement kind, parser first with a lexical
// fallback. hasWhere is meaningful only for KindUpdate and KindDelete and
// reflects a WHERE clause on the outermost statement.
func detectStatement(sql string) (StatementKind, bool) {
	l := newLexer(sql)
	first, ok := l.next()
	if !ok {
		// Empty input, or comments and whitespace only.
		return KindUnknown, false
	}
	// The AST parser consumes EXPLAIN by skipping to end of input, which
	// would hide the inner statement of an EXPLAIN ANALYZE. Route it
	// through the lexical classifier instead.
	if first.kind == tokWord && first.text == "EXPLAIN" {
		kind := explainKind(l)
		if kind == KindUpdate || kind == KindDelete {
			return kind, hasTopLevelWhere(sql)
		}
		return kind, false
	}

	stmt, err := sqlparser.Parse(sql)
	if err == nil {
		switch s := stmt.(type) {
		case *sqlparser.Select:
			return KindRead, false
		case *sqlparser.Union:
			return KindRead, false
		case *sqlparser.Show:
			return KindRead, false
		case *sqlparser.OtherRead:
			return KindRead, false
		case *sqlparser.Insert:
			return KindInsert, false
		case *sqlparser.Update:
			return KindUpdate, s.Where != nil
		case *sqlparser.Delete:
			return KindDelete, s.Where != nil
		case *sqlparser.DDL:
			switch s.Action {
			case sqlparser.DropStr:
				return KindDrop, false
			case sqlparser.TruncateStr:
				return KindTruncate, false
			}
			return KindDDL, false
		case *sqlparser.Set:
			return KindTransaction, false
		case *sqlparser.Begin:
			return KindTransaction, false
		case *sqlparser.Commit:
			return KindTransaction, false
		case *sqlparser.Rollback:
			return KindTransaction, false
		case *sqlparser.Use:
			return KindTransaction, false
		}
		// Node types without a case above fall through to the lexical
		// classifier rather than guessing.
	}

	// The AST parser speaks a MySQL dialect; Postgres-specific syntax such
	// as ::-casts, RETURNING, CTEs, GRANT or TRUNCATE lands here.
	kind := kindFromLexer(newLexer(sql))
	if kind == KindUpdate || kind == KindDelete {
		return kind, hasTopLevelWhere(sql)
	}
	return kind, false
}

// kindFromLexer classifies by leading keywords. The lexer has already skipped
// comments and literals, so the first word it yields is the statement verb.
func kindFromLexer(l *lexer) StatementKind {
	tok, ok := l.next()
	if !ok || tok.kind != tokWord {
		return KindUnknown
	}
	switch tok.text {
	case "SELECT":
		if hasTopLevelInto(l) {
			return KindDDL // SELECT INTO creates a table
		}
		return KindRead
	case "VALUES", "TABLE", "SHOW":
		return KindRead
	case "WITH":
		if !skipCTEPrologue(l) {
			return KindUnknown
		}
		return kindFromLexer(l)
	case "EXPLAIN":
		return explainKind(l)
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "CREATE", "ALTER", "COMMENT", "REINDEX":
		return KindDDL
	case "DROP":
		return KindDrop
	case "TRUNCATE":
		return KindTruncate
	case "GRANT", "REVOKE":
		return KindDCL
	case "BEGIN", "START", "COMMIT", "END", "ROLLBACK", "ABORT",
		"SAVEPOINT", "RELEASE", "SET", "RESET":
		return KindTransaction
	default:
		return KindUnknown
	}
}

// explainKind classifies an EXPLAIN once its leading keyword is consumed.
// Plain EXPLAIN only plans, so it reads; EXPLAIN ANALYZE executes the inner
// statement and is classified as that statement.
func explainKind(l *lexer) StatementKind {
	analyze := false
	for {
		save := *l
		tok, ok := l.next()
		if !ok {
			return KindUnknown
		}

		if tok.kind == tokPunct && tok.text == "(" {
			if explainOptionsAnalyze(l) {
				analyze = true
			}
			continue
		}
		if tok.kind == tokWord {
			switch tok.text {
			case "ANALYZE", "ANALYSE":
				analyze = true
				continue
			case "VERBOSE":
				continue
			}
			*l = save
			if !analyze {
				return KindRead
			}
			return kindFromLexer(l)
		}
		return KindUnknown
	}
}

// explainOptionsAnalyze consumes an EXPLAIN option list whose '(' is already
// consumed and reports whether it turns ANALYZE on. "ANALYZE FALSE" and
// "ANALYZE OFF" stay off; a bare ANALYZE or any other value counts as on.
func explainOptionsAnalyze(l *lexer) bool {
	analyze := false
	depth := 1
	prevAnalyze := false
	for depth > 0 {
		tok, ok := l.next()
		if !ok {
			return analyze
		}
		switch {
		case tok.kind == tokPunct && tok.text == "(":
			depth++
		case tok.kind == tokPunct && tok.text == ")":
			depth--
		case tok.kind == tokWord && depth == 1:
			switch {
			case tok.text == "ANALYZE" || tok.text == "ANALYSE":
				analyze = true
				prevAnalyze = true
			case prevAnalyze && (tok.text == "FALSE" || tok.text == "OFF"):
				analyze = false
				prevAnalyze = false
			default:
				prevAnalyze = false
			}
		}
	}
	return analyze
}
