// Package store executes compiled query and update documents through a
// dialect driver.
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    return err
//	}
//	st, err := store.New(drv, store.WithSchemas(store.StaticSchemas{"GameScore": cls}))
//	if err != nil {
//	    return err
//	}
//	rows, err := st.Find(ctx, "GameScore", map[string]any{"score": map[string]any{"$gt": 10.0}}, store.FindOptions{Limit: 10})
//
// Read paths treat a missing class or column as no matching rows. Write
// paths surface every backend error as a *docql.BackendError.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/docql"
	"github.com/syssam/docql/dialect"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/query"
	"github.com/syssam/docql/schema"
	"github.com/syssam/docql/update"
)

// SchemaSource resolves the external schema of a class.
type SchemaSource interface {
	// Class returns the named class, or nil if it is unknown.
	Class(ctx context.Context, name string) (*schema.Class, error)
}

// StaticSchemas is a SchemaSource backed by a fixed set of classes.
type StaticSchemas map[string]*schema.Class

// Class implements SchemaSource.
func (s StaticSchemas) Class(_ context.Context, name string) (*schema.Class, error) {
	return s[name], nil
}

// Store runs query and update documents against one database.
type Store struct {
	drv      dialect.Driver
	caps     sql.Capabilities
	schemas  SchemaSource
	log      *slog.Logger
	language string
	timeout  time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithSchemas sets the schema source. Without one every class compiles
// against an empty schema.
func WithSchemas(s SchemaSource) Option {
	return func(st *Store) {
		st.schemas = s
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) {
		if l != nil {
			st.log = l
		}
	}
}

// WithLanguage sets the default $text search language.
func WithLanguage(lang string) Option {
	return func(st *Store) {
		st.language = lang
	}
}

// WithStatementTimeout bounds the execution time of reads. It is set as
// statement_timeout on Postgres and max_execution_time on MySQL, for the
// connection running the read only. Zero disables it.
func WithStatementTimeout(d time.Duration) Option {
	return func(st *Store) {
		st.timeout = d
	}
}

// WithCapabilities overrides the capabilities derived from the driver
// dialect.
func WithCapabilities(c sql.Capabilities) Option {
	return func(st *Store) {
		st.caps = c
	}
}

// New returns a Store executing statements on drv.
func New(drv dialect.Driver, opts ...Option) (*Store, error) {
	st := &Store{
		drv:      drv,
		schemas:  StaticSchemas{},
		log:      slog.Default(),
		language: query.DefaultLanguage,
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.caps == nil {
		caps, err := sql.CapabilitiesFor(drv.Dialect())
		if err != nil {
			return nil, err
		}
		st.caps = caps
	}
	return st, nil
}

// Capabilities returns the rendering capabilities in use.
func (s *Store) Capabilities() sql.Capabilities { return s.caps }

// FindOptions holds the optional parts of a find.
type FindOptions struct {
	// Keys restricts the returned columns. Empty means all.
	Keys []string
	// Sort lists the sort columns; a "-" prefix sorts descending.
	// It replaces the distance ordering of $nearSphere.
	Sort  []string
	Limit int
	Skip  int
}

// Find returns the rows of class matching where.
func (s *Store) Find(ctx context.Context, class string, where map[string]any, opts FindOptions) ([]map[string]any, error) {
	cls, err := s.class(ctx, class)
	if err != nil {
		return nil, err
	}
	f, err := query.Compile(s.caps, cls, where, 1, query.WithLanguage(s.language))
	if err != nil {
		return nil, err
	}
	stmt := sql.NewStatement().WriteString("SELECT ")
	if len(opts.Keys) == 0 {
		stmt.WriteString("*")
	} else {
		stmt.Fragment(columnList(opts.Keys))
	}
	stmt.WriteString(" FROM ").Table(class)
	whereClause(stmt, f)
	switch {
	case len(opts.Sort) > 0:
		stmt.WriteString(" ORDER BY ").Fragment(orderList(opts.Sort))
	case len(f.SortExprs()) > 0:
		stmt.WriteString(" ORDER BY ")
		for i, e := range f.SortExprs() {
			if i > 0 {
				stmt.WriteString(", ")
			}
			stmt.Expr(e, f)
		}
	}
	if opts.Limit > 0 {
		stmt.WriteString(" LIMIT ").Value(opts.Limit)
	}
	if opts.Skip > 0 {
		if opts.Limit <= 0 && s.drv.Dialect() == dialect.MySQL {
			// MySQL has no OFFSET without LIMIT.
			stmt.WriteString(" LIMIT 18446744073709551615")
		}
		stmt.WriteString(" OFFSET ").Value(opts.Skip)
	}
	q, args, err := stmt.Render(s.caps)
	if err != nil {
		return nil, docql.NewValidationError("", "", "%v", err)
	}
	var rows sql.Rows
	if err := s.drv.Query(s.readContext(ctx), q, args, &rows); err != nil {
		return nil, s.ignoreOnRead(ctx, class, err)
	}
	defer rows.Close()
	out, err := scanMaps(rows)
	if err != nil {
		return nil, s.ignoreOnRead(ctx, class, err)
	}
	return out, nil
}

// Count returns the number of rows of class matching where.
func (s *Store) Count(ctx context.Context, class string, where map[string]any) (int64, error) {
	cls, err := s.class(ctx, class)
	if err != nil {
		return 0, err
	}
	f, err := query.Compile(s.caps, cls, where, 1, query.WithLanguage(s.language))
	if err != nil {
		return 0, err
	}
	stmt := sql.NewStatement().WriteString("SELECT COUNT(*) FROM ").Table(class)
	whereClause(stmt, f)
	q, args, err := stmt.Render(s.caps)
	if err != nil {
		return 0, docql.NewValidationError("", "", "%v", err)
	}
	var rows sql.Rows
	if err := s.drv.Query(s.readContext(ctx), q, args, &rows); err != nil {
		return 0, s.ignoreOnRead(ctx, class, err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, s.ignoreOnRead(ctx, class, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, s.ignoreOnRead(ctx, class, err)
	}
	return n, nil
}

// UpdateMany applies the update document to every row of class matching
// where and returns the number of affected rows.
func (s *Store) UpdateMany(ctx context.Context, class string, where, doc map[string]any) (int64, error) {
	cls, err := s.class(ctx, class)
	if err != nil {
		return 0, err
	}
	set, err := update.Compile(s.caps, cls, doc, 1)
	if err != nil {
		return 0, err
	}
	if set.IsEmpty() {
		return 0, nil
	}
	f, err := query.Compile(s.caps, cls, where, set.NextIndex, query.WithLanguage(s.language))
	if err != nil {
		return 0, err
	}
	stmt := sql.NewStatement().
		WriteString("UPDATE ").Table(class).
		WriteString(" SET ").Fragment(set.Fragment)
	whereClause(stmt, f)
	return s.exec(ctx, class, stmt)
}

// DeleteMany deletes every row of class matching where and returns the
// number of deleted rows.
func (s *Store) DeleteMany(ctx context.Context, class string, where map[string]any) (int64, error) {
	cls, err := s.class(ctx, class)
	if err != nil {
		return 0, err
	}
	f, err := query.Compile(s.caps, cls, where, 1, query.WithLanguage(s.language))
	if err != nil {
		return 0, err
	}
	stmt := sql.NewStatement().WriteString("DELETE FROM ").Table(class)
	whereClause(stmt, f)
	return s.exec(ctx, class, stmt)
}

func (s *Store) exec(ctx context.Context, class string, stmt *sql.Statement) (int64, error) {
	q, args, err := stmt.Render(s.caps)
	if err != nil {
		return 0, docql.NewValidationError("", "", "%v", err)
	}
	var res sql.Result
	if err := s.drv.Exec(ctx, q, args, &res); err != nil {
		err = sql.Normalize(err)
		s.log.DebugContext(ctx, "write failed", "class", class, "error", err)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sql.Normalize(err)
	}
	return n, nil
}

// readContext attaches the statement timeout, in milliseconds, to ctx.
func (s *Store) readContext(ctx context.Context) context.Context {
	if s.timeout <= 0 {
		return ctx
	}
	ms := strconv.FormatInt(s.timeout.Milliseconds(), 10)
	switch s.drv.Dialect() {
	case dialect.Postgres:
		return sql.WithVar(ctx, "statement_timeout", ms)
	case dialect.MySQL:
		return sql.WithVar(ctx, "max_execution_time", ms)
	}
	return ctx
}

// class resolves the internal schema of name.
func (s *Store) class(ctx context.Context, name string) (*schema.Class, error) {
	cls, err := s.schemas.Class(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("store: load schema %q: %w", name, err)
	}
	if cls == nil {
		return &schema.Class{ClassName: name, Fields: map[string]*schema.Field{}}, nil
	}
	return schema.ToInternal(cls), nil
}

// ignoreOnRead normalizes a read error, swallowing missing classes and
// columns.
func (s *Store) ignoreOnRead(ctx context.Context, class string, err error) error {
	if sql.IgnoreOnRead(err) == nil {
		s.log.DebugContext(ctx, "class or column not found, reading as empty", "class", class, "error", err)
		return nil
	}
	return sql.Normalize(err)
}

func whereClause(stmt *sql.Statement, f *sql.Fragment) {
	if !f.IsEmpty() {
		stmt.WriteString(" WHERE ").Fragment(f)
	}
}

func columnList(keys []string) *sql.Fragment {
	b := sql.NewBuilder(1)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(k)
	}
	return b.Fragment()
}

func orderList(keys []string) *sql.Fragment {
	b := sql.NewBuilder(1)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		if name, ok := strings.CutPrefix(k, "-"); ok {
			b.Emit("%n DESC", name)
		} else {
			b.Emit("%n ASC", k)
		}
	}
	return b.Fragment()
}

// scanMaps reads all rows into column maps. Byte slices are returned as
// strings.
func scanMaps(rows sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
