// Package geodb reads network topology and channel geometry from the
// geospatial database backing a route directory: the flowpaths and
// flowpath-attributes tables, with column names supplied by a
// config.ColumnConfig rather than hardcoded.
package geodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"router/internal/domain"
	"router/pkg/apperror"
	"router/pkg/config"
)

// Querier is the subset of a pgx connection or pool this package needs.
// *Pool (a wrapper around *pgxpool.Pool) satisfies it in production; tests
// satisfy it with a small adapter over pgxmock's mock pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows mirrors the pgx.Rows interface this package relies on, so callers
// can supply a pgxmock fake without pulling pgx itself into the package's
// exported surface.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Reader loads topology and channel geometry for a route directory's
// network from the flowpaths / flowpath-attributes tables.
type Reader struct {
	q Querier
}

// NewReader wraps an existing Querier (a *Pool in production, an adapter
// over a pgxmock pool in tests).
func NewReader(q Querier) *Reader {
	return &Reader{q: q}
}

// parseWBID parses a "wb-<N>" style key into its numeric id.
func parseWBID(key string) (uint32, error) {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid id format: %q", key)
	}
	n, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id format: %q: %w", key, err)
	}
	return uint32(n), nil
}

// LoadTopology queries the flowpaths table and returns every reach with a
// non-null downstream column, along with its drainage area. Rows whose key
// does not parse are skipped without logging rather than failing the whole
// load; a reach whose downstream id does not parse is kept as an outlet.
func (r *Reader) LoadTopology(ctx context.Context, columns config.ColumnConfig) ([]domain.Reach, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s, areasqkm FROM "flowpaths" WHERE %s IS NOT NULL GROUP BY %s, %s, areasqkm`,
		columns.Key, columns.Downstream, columns.Downstream, columns.Key, columns.Downstream,
	)

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "querying flowpaths")
	}
	defer rows.Close()

	var reaches []domain.Reach
	for rows.Next() {
		var key, downstreamKey string
		var areaSqKM float64

		if err := rows.Scan(&key, &downstreamKey, &areaSqKM); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "scanning flowpaths row")
		}

		id, err := parseWBID(key)
		if err != nil {
			continue
		}

		reach := domain.Reach{ID: id, AreaSqKM: areaSqKM}
		if downstreamID, err := parseWBID(downstreamKey); err == nil {
			reach.DownstreamID = downstreamID
			reach.HasDownstream = true
		}

		reaches = append(reaches, reach)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "reading flowpaths")
	}

	if len(reaches) == 0 {
		return nil, apperror.New(apperror.CodeEmptyNetwork, "no reaches found in flowpaths table")
	}

	return reaches, nil
}

// LoadGeometry queries flowpath-attributes for the given reach ids and
// returns their channel geometry, keyed by reach id. Reaches with no
// matching row are simply absent from the returned map; the caller
// decides whether a missing reach is skipped or fatal.
func (r *Reader) LoadGeometry(ctx context.Context, reachIDs []uint32, columns config.ColumnConfig) (map[uint32]domain.ChannelGeometry, error) {
	result := make(map[uint32]domain.ChannelGeometry, len(reachIDs))
	if len(reachIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(reachIDs))
	args := make([]any, len(reachIDs))
	for i, id := range reachIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fmt.Sprintf("wb-%d", id)
	}

	query := fmt.Sprintf(
		`SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s FROM "flowpath-attributes" WHERE %s IN (%s)`,
		columns.Key, columns.Length, columns.Manning, columns.ManningCC, columns.Slope,
		columns.BottomWidth, columns.TopWidth, columns.TopWidthCC, columns.SideSlope,
		columns.Key, strings.Join(placeholders, ","),
	)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "querying flowpath-attributes")
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var geom domain.ChannelGeometry

		if err := rows.Scan(&key, &geom.LengthM, &geom.Manning, &geom.ManningCC,
			&geom.Slope, &geom.BottomWidth, &geom.TopWidth, &geom.TopWidthCC, &geom.SideSlope); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "scanning flowpath-attributes row")
		}

		id, err := parseWBID(key)
		if err != nil {
			continue
		}

		result[id] = geom
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDatabaseError, "reading flowpath-attributes")
	}

	return result, nil
}
