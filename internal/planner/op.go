package planner

// Op mirrors the host's constraint operator codes (sqlite3's
// SQLITE_INDEX_CONSTRAINT_* family, as surfaced by go-sqlite3's
// InfoConstraint.Op) in the planner's own vocabulary, so the core
// planning logic has no dependency on the host driver package and can
// be unit tested standalone. internal/vtab translates the driver's Op
// values into these before calling the planner.
type Op int

const (
	OpEQ Op = iota
	OpGT
	OpLE
	OpLT
	OpGE
	OpMATCH
	OpLIKE
	OpGLOB
	OpREGEXP
	OpNE
	OpISNOT
	OpISNOTNULL
	OpISNULL
	OpIS
	OpLIMIT
	OpOFFSET
)
