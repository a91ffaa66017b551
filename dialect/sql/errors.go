package sql

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/syssam/docql"
)

// PostgreSQL SQLSTATE codes.
const (
	pgDuplicateRelation    = "42P07"
	pgDuplicateColumn      = "42701"
	pgDuplicateObject      = "42710"
	pgUniqueViolation      = "23505"
	pgUndefinedTable       = "42P01"
	pgUndefinedColumn      = "42703"
	pgInFailedTransaction  = "25P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// MySQL error numbers.
const (
	mysqlTableExists     = 1050
	mysqlDupFieldName    = 1060
	mysqlDupKeyName      = 1061
	mysqlDupEntry        = 1062
	mysqlDupEntryWithKey = 1586
	mysqlNoSuchTable     = 1146
	mysqlBadFieldError   = 1054
	mysqlLockDeadlock    = 1213
	mysqlLockWaitTimeout = 1205
)

var pgKinds = map[string]docql.Kind{
	pgDuplicateRelation:    docql.AlreadyExists,
	pgDuplicateColumn:      docql.AlreadyExists,
	pgDuplicateObject:      docql.AlreadyExists,
	pgUniqueViolation:      docql.DuplicateValue,
	pgUndefinedTable:       docql.NotFound,
	pgUndefinedColumn:      docql.NotFound,
	pgInFailedTransaction:  docql.TransientAbort,
	pgSerializationFailure: docql.TransientAbort,
	pgDeadlockDetected:     docql.TransientAbort,
}

var mysqlKinds = map[uint16]docql.Kind{
	mysqlTableExists:     docql.AlreadyExists,
	mysqlDupFieldName:    docql.AlreadyExists,
	mysqlDupKeyName:      docql.AlreadyExists,
	mysqlDupEntry:        docql.DuplicateValue,
	mysqlDupEntryWithKey: docql.DuplicateValue,
	mysqlNoSuchTable:     docql.NotFound,
	mysqlBadFieldError:   docql.NotFound,
	mysqlLockDeadlock:    docql.TransientAbort,
	mysqlLockWaitTimeout: docql.TransientAbort,
}

// errorCoder is implemented by drivers exposing a string code.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by drivers exposing a numeric code.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by drivers exposing a SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// Classify returns the kind and driver code of a backend error. Typed
// driver errors are checked first, then code interfaces, then messages.
func Classify(err error) (docql.Kind, string) {
	if err == nil {
		return docql.Unknown, ""
	}
	var (
		pqErr     *pq.Error
		pgErr     *pgconn.PgError
		mysqlErr  *mysql.MySQLError
		sqliteErr *sqlite.Error
	)
	switch {
	case errors.As(err, &pqErr):
		return pgKinds[string(pqErr.Code)], string(pqErr.Code)
	case errors.As(err, &pgErr):
		return pgKinds[pgErr.Code], pgErr.Code
	case errors.As(err, &mysqlErr):
		return mysqlKinds[mysqlErr.Number], strconv.Itoa(int(mysqlErr.Number))
	case errors.As(err, &sqliteErr):
		code := sqliteErr.Code()
		switch code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return docql.DuplicateValue, strconv.Itoa(code)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return docql.TransientAbort, strconv.Itoa(code)
		}
		return messageKind(err.Error()), strconv.Itoa(code)
	}
	if e, ok := asError[sqlStateError](err); ok {
		if k, ok := pgKinds[e.SQLState()]; ok {
			return k, e.SQLState()
		}
	}
	if e, ok := asError[errorCoder](err); ok {
		if k, ok := pgKinds[e.Code()]; ok {
			return k, e.Code()
		}
	}
	if e, ok := asError[errorNumberer](err); ok {
		if k, ok := mysqlKinds[e.Number()]; ok {
			return k, strconv.Itoa(int(e.Number()))
		}
	}
	return messageKind(err.Error()), ""
}

// messageKind classifies drivers that only report messages, e.g. SQLite.
func messageKind(msg string) docql.Kind {
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return docql.DuplicateValue
	case containsAny(msg, "no such table", "no such column"):
		return docql.NotFound
	case containsAny(msg, "already exists"):
		return docql.AlreadyExists
	case containsAny(msg, "database is locked", "deadlock detected"):
		return docql.TransientAbort
	}
	return docql.Unknown
}

// Normalize wraps a backend error into a *docql.BackendError carrying its
// kind. Errors already normalized are returned as is.
//
//	if err := drv.Exec(ctx, query, args, nil); err != nil {
//	    return sql.Normalize(err)
//	}
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var be *docql.BackendError
	if errors.As(err, &be) {
		return err
	}
	kind, code := Classify(err)
	return docql.NewBackendError(kind, code, err)
}

// IgnoreOnRead normalizes err and swallows NotFound errors: on read paths
// a missing class or column is equivalent to no matching rows.
func IgnoreOnRead(err error) error {
	err = Normalize(err)
	if docql.IsNotFound(err) {
		return nil
	}
	return err
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
