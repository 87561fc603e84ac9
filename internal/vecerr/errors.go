// Package vecerr defines the typed error taxonomy every vec0 subsystem
// raises. Every error carries its kind, and the subsystem or column
// that produced it where the constructor is given one, so the host's
// error channel always receives a message prefixed with its kind: "vec0 constructor error: ...", "Internal sqlite-vec error: ...",
// and so on.
package vecerr

import "fmt"

// Kind classifies a vec0 error into the taxonomy from the failure
// semantics design: constructor, type, constraint, internal, plan,
// resource, or interrupted.
type Kind int

const (
	// KindConstructor covers invalid DDL: bad dimension, too many
	// columns, duplicate name, unknown option, bad chunk_size.
	KindConstructor Kind = iota
	// KindType covers a value with the wrong kind or shape: dimension
	// mismatch, unknown type, a bit vector whose length isn't a whole
	// number of bytes.
	KindType
	// KindConstraint covers uniqueness violations, writes to the
	// hidden distance/k columns, and primary-key updates.
	KindConstraint
	// KindInternal covers shadow-blob size mismatches, validity/rowid
	// disagreement discovered at scan time, and missing chunk rows —
	// always fatal, never raised by legal operations.
	KindInternal
	// KindPlan covers illegal query shapes: multiple MATCH operators,
	// missing k/LIMIT, DESC order on distance, aux columns in a KNN
	// WHERE clause.
	KindPlan
	// KindResource covers the host refusing a shadow-table operation:
	// authorizer denial, I/O failure.
	KindResource
	// KindInterrupted covers host-issued cancellation.
	KindInterrupted
)

func (k Kind) prefix() string {
	switch k {
	case KindConstructor:
		return "vec0 constructor error"
	case KindType:
		return "vec0 type error"
	case KindConstraint:
		return "vec0 constraint violation"
	case KindInternal:
		return "Internal sqlite-vec error"
	case KindPlan:
		return "vec0 query plan error"
	case KindResource:
		return "vec0 resource error"
	case KindInterrupted:
		return "vec0 interrupted"
	default:
		return "vec0 error"
	}
}

// Error is the concrete type every vec0 subsystem returns. Subsystem
// names the component that raised it (e.g. "chunkstore", "writepath",
// the offending column's name for column-scoped errors).
type Error struct {
	Kind      Kind
	Subsystem string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Subsystem == "" {
		return fmt.Sprintf("%s: %s", e.Kind.prefix(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.prefix(), e.Subsystem, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, subsystem, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Subsystem: subsystem, Message: fmt.Sprintf(format, args...)}
}

// Constructorf builds a KindConstructor error.
func Constructorf(format string, args ...interface{}) *Error {
	return newf(KindConstructor, "", format, args...)
}

// Typef builds a KindType error scoped to a column.
func Typef(column, format string, args ...interface{}) *Error {
	return newf(KindType, column, format, args...)
}

// Constraintf builds a KindConstraint error.
func Constraintf(format string, args ...interface{}) *Error {
	return newf(KindConstraint, "", format, args...)
}

// Internalf builds a KindInternal error and mirrors it to the error
// log, since these indicate on-disk tampering and are worth a durable
// trail even though they're also returned to the host.
func Internalf(subsystem, format string, args ...interface{}) *Error {
	e := newf(KindInternal, subsystem, format, args...)
	Logf("%s", e.Error())
	return e
}

// Planf builds a KindPlan error, optionally tagging it with a short
// diagnostic code so repeated rejections of the same shape are easy to
// grep for in host logs.
func Planf(code, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, code)
	}
	return &Error{Kind: KindPlan, Message: msg}
}

// Resourcef builds a KindResource error naming the failed subsystem.
func Resourcef(subsystem string, err error) *Error {
	return &Error{Kind: KindResource, Subsystem: subsystem, Message: err.Error(), Err: err}
}

// Interrupted builds the deterministic cancellation error.
func Interrupted() *Error {
	return &Error{Kind: KindInterrupted, Message: "query cancelled by host"}
}

// Is reports whether err (or anything it wraps) is a vec0 Error of
// the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ve, ok := err.(*Error); ok {
			e = ve
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
