package policy

// StatementKind categorizes a SQL statement by its top-level action.
type StatementKind int

const (
	// KindUnknown marks statements the classifier could not place in any
	// category. Only unrestricted mode lets them through.
	KindUnknown StatementKind = iota
	// KindRead covers SELECT, VALUES, TABLE, SHOW and EXPLAIN without
	// ANALYZE.
	KindRead
	// KindInsert covers INSERT.
	KindInsert
	// KindUpdate covers UPDATE.
	KindUpdate
	// KindDelete covers DELETE.
	KindDelete
	// KindDDL covers non-destructive schema changes such as CREATE, ALTER
	// and COMMENT ON.
	KindDDL
	// KindDrop covers DROP.
	KindDrop
	// KindTruncate covers TRUNCATE.
	KindTruncate
	// KindDCL covers GRANT and REVOKE.
	KindDCL
	// KindTransaction covers transaction and session control: BEGIN,
	// COMMIT, ROLLBACK, SAVEPOINT, SET, RESET and friends.
	KindTransaction
)

var kindNames = map[StatementKind]string{
	KindUnknown:     "unknown",
	KindRead:        "read",
	KindInsert:      "insert",
	KindUpdate:      "update",
	KindDelete:      "delete",
	KindDDL:         "ddl",
	KindDrop:        "drop",
	KindTruncate:    "truncate",
	KindDCL:         "dcl",
	KindTransaction: "transaction",
}

func (k StatementKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind by name so JSON output stays readable.
func (k StatementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsRead reports whether the statement only reads data.
func (k StatementKind) IsRead() bool { return k == KindRead }

// IsDestructiveDDL reports whether the statement discards schema objects or
// table contents wholesale.
func (k StatementKind) IsDestructiveDDL() bool {
	return k == KindDrop || k == KindTruncate
}
