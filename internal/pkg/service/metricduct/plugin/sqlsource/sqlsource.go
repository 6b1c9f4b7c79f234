// Package sqlsource extracts series from a PostgreSQL database.
//
// The Source of the extract item is the connection string.
// The query must return a time column and a value column,
// an optional name column splits rows to multiple series.
package sqlsource

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/spf13/cast"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const (
	Type       = "sql"
	driverName = "pgx"
)

type Config struct {
	MaxOpenConns    int           `configKey:"maxOpenConns" configUsage:"Maximum number of open connections per database." validate:"required,min=1"`
	ConnMaxLifetime time.Duration `configKey:"connMaxLifetime" configUsage:"Maximum lifetime of a database connection." validate:"required"`
}

type Params struct {
	Query       string `json:"query" validate:"required"`
	TimeColumn  string `json:"timeColumn,omitempty"`
	ValueColumn string `json:"valueColumn,omitempty"`
	NameColumn  string `json:"nameColumn,omitempty"`
}

// Opener opens a database handle, it is replaced in tests.
type Opener func(driverName, dsn string) (*sql.DB, error)

type Source struct {
	config Config
	open   Opener
	lock   *sync.Mutex
	dbs    map[string]*sql.DB
}

type Option func(s *Source)

func NewConfig() Config {
	return Config{
		MaxOpenConns:    4,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func WithOpener(v Opener) Option {
	return func(s *Source) {
		s.open = v
	}
}

func New(cfg Config, opts ...Option) *Source {
	s := &Source{config: cfg, open: sql.Open, lock: &sync.Mutex{}, dbs: make(map[string]*sql.DB)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Module() registry.Module {
	return func(b *registry.Builder) {
		b.AddExtract(Type, s)
	}
}

func (s *Source) Extract(ctx context.Context, item model.Extract) ([]model.Series, error) {
	p := Params{TimeColumn: "time", ValueColumn: "value"}
	if err := params.Decode(ctx, item.Params, &p); err != nil {
		return nil, err
	}

	db, err := s.db(item.Source)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, p.Query)
	if err != nil {
		return nil, errors.PrefixError(err, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	timeIndex, valueIndex, nameIndex := -1, -1, -1
	for i, column := range columns {
		switch column {
		case p.TimeColumn:
			timeIndex = i
		case p.ValueColumn:
			valueIndex = i
		case p.NameColumn:
			nameIndex = i
		}
	}
	if timeIndex == -1 || valueIndex == -1 {
		return nil, errors.Errorf(`query result must contain columns "%s" and "%s"`, p.TimeColumn, p.ValueColumn)
	}

	var out []model.Series
	byName := make(map[string]int)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		t, ok := values[timeIndex].(time.Time)
		if !ok {
			return nil, errors.Errorf(`column "%s" must be a timestamp, found %T`, p.TimeColumn, values[timeIndex])
		}
		v, err := toFloat(values[valueIndex])
		if err != nil {
			return nil, errors.PrefixErrorf(err, `invalid value in column "%s"`, p.ValueColumn)
		}

		name := item.Name
		if nameIndex != -1 {
			name = cast.ToString(values[nameIndex])
		}

		i, found := byName[name]
		if !found {
			i = len(out)
			byName[name] = i
			out = append(out, model.Series{Name: name})
		}
		out[i].Points = append(out[i].Points, model.Point{Time: t, Value: v})
	}

	return out, rows.Err()
}

// Close closes all database handles.
func (s *Source) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	errs := errors.NewMultiError()
	for dsn, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs.Append(err)
		}
		delete(s.dbs, dsn)
	}
	return errs.ErrorOrNil()
}

// db returns a shared handle for the connection string, the handle is a connection pool.
func (s *Source) db(dsn string) (*sql.DB, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if db, found := s.dbs[dsn]; found {
		return db, nil
	}

	db, err := s.open(driverName, dsn)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot open database")
	}
	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)
	s.dbs[dsn] = db
	return db, nil
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case nil:
		return 0, errors.New("value is NULL")
	case []byte:
		return cast.ToFloat64E(string(v))
	default:
		return cast.ToFloat64E(v)
	}
}
