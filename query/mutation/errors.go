// Package mutation executes nested create, update, delete and upsert requests.
package mutation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
)

// ErrorCode classifies user input errors
type ErrorCode string

const (
	CodeAmbiguousRelation         ErrorCode = "AmbiguousRelation"
	CodeInvalidOperationCount     ErrorCode = "InvalidOperationCount"
	CodeUnsupportedOperation      ErrorCode = "UnsupportedOperation"
	CodeMalformedUniqueWhere      ErrorCode = "MalformedUniqueWhere"
	CodeNotFoundOrDenied          ErrorCode = "NotFoundOrDenied"
	CodeUniqueConstraintViolation ErrorCode = "UniqueConstraintViolation"
	CodeForeignKeyViolation       ErrorCode = "ForeignKeyViolation"
	CodeNotNullViolation          ErrorCode = "NotNullViolation"
	CodeRequiredRelation          ErrorCode = "RequiredRelation"
)

// PathSegment addresses a field or a list item of a nested write
type PathSegment struct {
	Field string
	Index int
	Alias string
}

// IsIndex reports whether the segment addresses a list item
func (s PathSegment) IsIndex() bool {
	return s.Field == ""
}

// Path locates a nested write inside the request
type Path []PathSegment

// Field returns a copy of p extended with a field segment
func (p Path) Field(name string) Path {
	return append(append(Path(nil), p...), PathSegment{Field: name})
}

// Item returns a copy of p extended with a list item segment
func (p Path) Item(index int, alias string) Path {
	return append(append(Path(nil), p...), PathSegment{Index: index, Alias: alias})
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		switch {
		case !s.IsIndex():
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Field)
		case s.Alias != "":
			fmt.Fprintf(&b, "[%d:%s]", s.Index, s.Alias)
		default:
			b.WriteString("[" + strconv.Itoa(s.Index) + "]")
		}
	}
	return b.String()
}

// InputError is a recoverable error caused by the request payload
type InputError struct {
	Path    Path
	Code    ErrorCode
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Path, e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputError(path Path, code ErrorCode, format string, args ...any) *InputError {
	return &InputError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NoResultError reports a unique lookup that matched no visible row
type NoResultError struct {
	Entity string
	By     ast.UniqueWhere
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("%s not found by %v", e.Entity, map[string]any(e.By))
}

// Is makes a NoResultError match acl.ErrNotFoundOrDenied
func (e *NoResultError) Is(target error) bool {
	return target == acl.ErrNotFoundOrDenied
}

// PostgreSQL SQLSTATE codes translated into input errors
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// sqlState extracts the SQLSTATE of lib/pq and pgx errors
func sqlState(err error) (string, string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message, true
	}
	return "", "", false
}

// translate turns known failures into input errors located at path
func translate(path Path, err error) error {
	if err == nil {
		return nil
	}
	var ie *InputError
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, acl.ErrNotFoundOrDenied) {
		return &InputError{Path: path, Code: CodeNotFoundOrDenied, Message: err.Error(), Err: err}
	}
	code, message, ok := sqlState(err)
	if !ok {
		return err
	}
	switch code {
	case pgUniqueViolation:
		return &InputError{Path: path, Code: CodeUniqueConstraintViolation, Message: message, Err: err}
	case pgForeignKeyViolation:
		return &InputError{Path: path, Code: CodeForeignKeyViolation, Message: message, Err: err}
	case pgNotNullViolation:
		return &InputError{Path: path, Code: CodeNotNullViolation, Message: message, Err: err}
	}
	return err
}
