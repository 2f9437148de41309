package middle

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
)

// tableMode is the per-table state machine from spec.md 4.5 / I3: a table
// is always in exactly one of idle, streaming, or transactional, and a
// prepared-statement call while streaming is a protocol violation that must
// be resolved by an explicit EndCopy first.
type tableMode int

const (
	modeIdle tableMode = iota
	modeStreaming
	modeTransactional
)

// tableConn owns one dedicated connection for one staging table, grounded
// on the teacher's pgx/pgxpool usage in the deleted internal/middle/tables.go
// (CopyFrom via a channel-backed pgx.CopyFromSource, pool.Exec/QueryRow for
// everything else) but reworked so a single physical *pgx.Conn carries
// named prepared statements across both the streaming and prepared-call
// paths, which a pool cannot guarantee (a pooled Acquire may hand back a
// different backend connection than the one that ran Prepare).
type tableConn struct {
	bare string // e.g. "nodes"
	full string // e.g. "osm2pgsql_nodes"

	mu   sync.Mutex
	conn *pgx.Conn
	mode tableMode
	tx   pgx.Tx

	copyRows chan []any
	copyErr  chan error
	copying  bool
}

func newTableConn(bare, full string, conn *pgx.Conn) *tableConn {
	return &tableConn{bare: bare, full: full, conn: conn, mode: modeIdle}
}

// rowSource adapts a channel of row values to pgx.CopyFromSource, the same
// pattern the teacher's rowSource used for LoadNodes/LoadWays/LoadRelations.
type rowSource struct {
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}
func (r *rowSource) Values() ([]any, error) { return r.current, nil }
func (r *rowSource) Err() error             { return nil }

// StartCopy transitions idle -> streaming and begins a background COPY
// driven by rows pushed through CopyRow.
func (t *tableConn) StartCopy(ctx context.Context, columns []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != modeIdle {
		return newError(ProtocolViolation, fmt.Sprintf("StartCopy on %s while mode=%d", t.full, t.mode), nil)
	}
	t.copyRows = make(chan []any, 1024)
	t.copyErr = make(chan error, 1)
	t.copying = true
	t.mode = modeStreaming

	go func() {
		_, err := t.conn.CopyFrom(ctx, pgx.Identifier{t.full}, columns, &rowSource{rows: t.copyRows})
		t.copyErr <- err
	}()
	return nil
}

// CopyRow appends one row to the open streaming insert. Asserts mode ==
// streaming per spec.md 4.5.
func (t *tableConn) CopyRow(row []any) error {
	t.mu.Lock()
	if t.mode != modeStreaming {
		t.mu.Unlock()
		return newError(ProtocolViolation, fmt.Sprintf("CopyRow on %s while not streaming", t.full), nil)
	}
	ch := t.copyRows
	t.mu.Unlock()
	ch <- row
	return nil
}

// EndCopy finalizes the streaming insert, transitioning streaming -> idle.
// Required before any prepared-statement call on the same table.
func (t *tableConn) EndCopy() error {
	t.mu.Lock()
	if t.mode != modeStreaming {
		t.mu.Unlock()
		return nil // already idle; ending twice is a harmless no-op
	}
	close(t.copyRows)
	errCh := t.copyErr
	t.mu.Unlock()

	err := <-errCh
	t.mu.Lock()
	t.mode = modeIdle
	t.copying = false
	t.mu.Unlock()
	if err != nil {
		return newError(StoreError, fmt.Sprintf("COPY to %s failed", t.full), err)
	}
	return nil
}

// Begin opens a transaction, transitioning idle -> transactional.
func (t *tableConn) Begin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != modeIdle {
		return newError(ProtocolViolation, fmt.Sprintf("Begin on %s while mode=%d", t.full, t.mode), nil)
	}
	tx, err := t.conn.Begin(ctx)
	if err != nil {
		return newError(StoreError, "begin transaction", err)
	}
	t.tx = tx
	t.mode = modeTransactional
	return nil
}

// Commit transitions transactional -> idle.
func (t *tableConn) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != modeTransactional {
		return nil
	}
	err := t.tx.Commit(ctx)
	t.tx = nil
	t.mode = modeIdle
	if err != nil {
		return newError(StoreError, "commit transaction", err)
	}
	return nil
}

// querier is satisfied by both *pgx.Conn and pgx.Tx so ExecPrepared can run
// either inside or outside a transaction without duplicating call sites.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (t *tableConn) querier() querier {
	if t.mode == modeTransactional {
		return t.tx
	}
	return t.conn
}

// ExecPrepared runs a named prepared statement. Asserts mode != streaming
// per spec.md 4.5 (a prepared-statement call while streaming is a bug and
// must be preceded by EndCopy).
func (t *tableConn) ExecPrepared(ctx context.Context, name string, args ...any) (pgx.Rows, error) {
	t.mu.Lock()
	if t.mode == modeStreaming {
		t.mu.Unlock()
		return nil, newError(ProtocolViolation, fmt.Sprintf("ExecPrepared(%s) on %s while streaming", name, t.full), nil)
	}
	q := t.querier()
	t.mu.Unlock()
	rows, err := q.Query(ctx, name, args...)
	if err != nil {
		return nil, newError(StoreError, fmt.Sprintf("exec_prepared %s", name), err)
	}
	return rows, nil
}

// Store is the Backend implementation for a real relational staging store
// (C5, spec.md 4.5), grounded on the prepared-statement surface and DDL in
// _examples/original_source/middle-pgsql.cpp and on the teacher's pgx usage
// in its (now superseded) internal/middle/tables.go.
type Store struct {
	opts Options

	nodes *tableConn
	ways  *tableConn
	rels  *tableConn
}

func NewStore() *Store { return &Store{} }

// Start connects one dedicated connection per table, runs the append-mode
// schema checks, issues create DDL when not appending, and prepares every
// statement named in spec.md 4.5.
func (s *Store) Start(ctx context.Context, opts Options) error {
	s.opts = opts

	nodesConn, err := pgx.Connect(ctx, opts.ConnInfo)
	if err != nil {
		return newError(ConnectError, "connect nodes table", err)
	}
	waysConn, err := pgx.Connect(ctx, opts.ConnInfo)
	if err != nil {
		return newError(ConnectError, "connect ways table", err)
	}
	relsConn, err := pgx.Connect(ctx, opts.ConnInfo)
	if err != nil {
		return newError(ConnectError, "connect rels table", err)
	}

	s.nodes = newTableConn("nodes", tableName(opts, "nodes"), nodesConn)
	s.ways = newTableConn("ways", tableName(opts, "ways"), waysConn)
	s.rels = newTableConn("rels", tableName(opts, "rels"), relsConn)

	if err := s.checkExtensionCompatible(ctx); err != nil {
		return err
	}

	if opts.Append {
		if err := s.checkIDWidth(ctx); err != nil {
			return err
		}
	} else {
		if err := s.createTables(ctx); err != nil {
			return err
		}
	}

	return s.prepareAll(ctx)
}

// checkExtensionCompatible refuses to run if the gist__intbig_ops opclass
// is present, per spec.md 7 (ExtensionIncompatible): its presence indicates
// a conflicting array-indexing extension predating this store's own GIN
// indexes.
func (s *Store) checkExtensionCompatible(ctx context.Context) error {
	var count int
	err := s.nodes.conn.QueryRow(ctx,
		"SELECT count(*) FROM pg_opclass WHERE opcname = 'gist__intbig_ops'",
	).Scan(&count)
	if err != nil {
		return newError(ConnectError, "check gist__intbig_ops opclass", err)
	}
	if count > 0 {
		return newError(ExtensionIncompatible, "gist__intbig_ops opclass present: conflicting array extension installed", nil)
	}
	return nil
}

// checkIDWidth verifies, in append mode, that the existing nodes.id column
// is a bigint, matching this build's int64 ids (spec.md 7: SchemaMismatch).
func (s *Store) checkIDWidth(ctx context.Context) error {
	var dataType string
	err := s.nodes.conn.QueryRow(ctx,
		`SELECT data_type FROM information_schema.columns WHERE table_name = $1 AND column_name = 'id'`,
		s.nodes.full,
	).Scan(&dataType)
	if err != nil {
		return newError(ConnectError, "check id column width", err)
	}
	if dataType != "bigint" {
		return newError(SchemaMismatch, fmt.Sprintf("existing %s.id column is %q, expected bigint", s.nodes.full, dataType), nil)
	}
	return nil
}

func (s *Store) coordColumns() (latType, lonType string) {
	if s.opts.CoordEncoding == CoordFixedPoint {
		return "int4", "int4"
	}
	return "double precision", "double precision"
}

func (s *Store) createTables(ctx context.Context) error {
	latType, lonType := s.coordColumns()

	drop := func(conn *pgx.Conn, full string) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", full))
		return err
	}
	if err := drop(s.nodes.conn, s.nodes.full); err != nil {
		return newError(StoreError, "drop nodes table", err)
	}
	if err := drop(s.ways.conn, s.ways.full); err != nil {
		return newError(StoreError, "drop ways table", err)
	}
	if err := drop(s.rels.conn, s.rels.full); err != nil {
		return newError(StoreError, "drop rels table", err)
	}

	nodesDDL := substitute(
		"CREATE %m TABLE %p_nodes (id bigint PRIMARY KEY {USING INDEX TABLESPACE %i}, "+
			"lat "+latType+" not null, lon "+lonType+" not null, tags text[]) {TABLESPACE %t}",
		s.opts)
	waysDDL := substitute(
		"CREATE %m TABLE %p_ways (id bigint PRIMARY KEY {USING INDEX TABLESPACE %i}, "+
			"nodes bigint[] not null, tags text[]) {TABLESPACE %t}",
		s.opts)
	relsDDL := substitute(
		"CREATE %m TABLE %p_rels (id bigint PRIMARY KEY {USING INDEX TABLESPACE %i}, "+
			"way_off int2, rel_off int2, parts bigint[], members text[], tags text[]) {TABLESPACE %t}",
		s.opts)

	if _, err := s.nodes.conn.Exec(ctx, nodesDDL); err != nil {
		return newError(StoreError, "create nodes table", err)
	}
	if _, err := s.ways.conn.Exec(ctx, waysDDL); err != nil {
		return newError(StoreError, "create ways table", err)
	}
	if _, err := s.rels.conn.Exec(ctx, relsDDL); err != nil {
		return newError(StoreError, "create rels table", err)
	}
	return nil
}

func (s *Store) prepareAll(ctx context.Context) error {
	n, w, r := s.nodes.full, s.ways.full, s.rels.full

	nodeStmts := map[string]string{
		"insert_node":   fmt.Sprintf("INSERT INTO %s VALUES ($1,$2,$3,$4)", n),
		"get_node":      fmt.Sprintf("SELECT lat,lon,tags FROM %s WHERE id = $1 LIMIT 1", n),
		"get_node_list": fmt.Sprintf("SELECT id, lat, lon FROM %s WHERE id = ANY($1::bigint[])", n),
		"delete_node":   fmt.Sprintf("DELETE FROM %s WHERE id = $1", n),
	}

	wayStmts := map[string]string{
		"insert_way":      fmt.Sprintf("INSERT INTO %s VALUES ($1,$2,$3)", w),
		"get_way":         fmt.Sprintf("SELECT nodes, tags, array_upper(nodes,1) FROM %s WHERE id = $1", w),
		"get_way_list":    fmt.Sprintf("SELECT id, nodes, tags, array_upper(nodes,1) FROM %s WHERE id = ANY($1::bigint[])", w),
		"delete_way":      fmt.Sprintf("DELETE FROM %s WHERE id = $1", w),
		"mark_ways_by_node": fmt.Sprintf("SELECT id FROM %s WHERE nodes && ARRAY[$1]", w),
		"mark_ways_by_rel":  fmt.Sprintf("SELECT id FROM %s WHERE id IN (SELECT unnest(parts[way_off+1:rel_off]) FROM %s WHERE id = $1)", w, r),
	}

	relStmts := map[string]string{
		"insert_rel":      fmt.Sprintf("INSERT INTO %s VALUES ($1,$2,$3,$4,$5,$6)", r),
		"get_rel":         fmt.Sprintf("SELECT members, tags, array_upper(members,1)/2 FROM %s WHERE id = $1", r),
		"delete_rel":      fmt.Sprintf("DELETE FROM %s WHERE id = $1", r),
		"rels_using_way":  fmt.Sprintf("SELECT id FROM %s WHERE parts && ARRAY[$1] AND parts[way_off+1:rel_off] && ARRAY[$1]", r),
		"mark_rels_by_node": fmt.Sprintf("SELECT id FROM %s WHERE parts && ARRAY[$1] AND parts[1:way_off] && ARRAY[$1]", r),
		"mark_rels_by_way":  fmt.Sprintf("SELECT id FROM %s WHERE parts && ARRAY[$1] AND parts[way_off+1:rel_off] && ARRAY[$1]", r),
		"mark_rels":         fmt.Sprintf("SELECT id FROM %s WHERE parts && ARRAY[$1] AND parts[rel_off+1:array_length(parts,1)] && ARRAY[$1]", r),
	}

	for name, sql := range nodeStmts {
		if _, err := s.nodes.conn.Prepare(ctx, name, sql); err != nil {
			return newError(StoreError, fmt.Sprintf("prepare %s", name), err)
		}
	}
	for name, sql := range wayStmts {
		if _, err := s.ways.conn.Prepare(ctx, name, sql); err != nil {
			return newError(StoreError, fmt.Sprintf("prepare %s", name), err)
		}
	}
	for name, sql := range relStmts {
		if _, err := s.rels.conn.Prepare(ctx, name, sql); err != nil {
			return newError(StoreError, fmt.Sprintf("prepare %s", name), err)
		}
	}
	return nil
}

// BeginBulkLoad puts all three tables into streaming mode, the COPY-based
// fast path spec.md 1 calls out as the reason a per-table mode machine
// exists at all. Column order must match createTables/InsertNode etc.
func (s *Store) BeginBulkLoad(ctx context.Context) error {
	if err := s.nodes.StartCopy(ctx, []string{"id", "lat", "lon", "tags"}); err != nil {
		return err
	}
	if err := s.ways.StartCopy(ctx, []string{"id", "nodes", "tags"}); err != nil {
		return err
	}
	if err := s.rels.StartCopy(ctx, []string{"id", "way_off", "rel_off", "parts", "members", "tags"}); err != nil {
		return err
	}
	return nil
}

// EndBulkLoad flushes all three tables' streaming inserts back to idle,
// required before any of the prepared-statement reads or mark-propagation
// queries that follow a bulk seed load.
func (s *Store) EndBulkLoad(ctx context.Context) error {
	for _, t := range []*tableConn{s.nodes, s.ways, s.rels} {
		if err := t.EndCopy(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Commit(ctx context.Context) error {
	for _, t := range []*tableConn{s.nodes, s.ways, s.rels} {
		if err := t.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Analyze runs ANALYZE on every staging table, grounded on the original's
// end()/analyze() phase.
func (s *Store) Analyze(ctx context.Context) error {
	for _, t := range []*tableConn{s.nodes, s.ways, s.rels} {
		if err := t.EndCopy(); err != nil {
			return err
		}
		if _, err := t.conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", t.full)); err != nil {
			return newError(StoreError, fmt.Sprintf("analyze %s", t.full), err)
		}
	}
	return nil
}

// Stop finalizes all three tables in parallel and joins before returning,
// per spec.md 5 (shutdown fan-out is mandatory to join): each worker ends
// any streaming, builds secondary indexes with fast-update disabled where
// the table is not temporary, or drops the table if DropTemp is set, then
// closes its connection.
func (s *Store) Stop(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	finalize := func(t *tableConn, indexSQL string) func() error {
		return func() error {
			if err := t.EndCopy(); err != nil {
				return err
			}
			if s.opts.DropTemp {
				if _, err := t.conn.Exec(gctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", t.full)); err != nil {
					return newError(StoreError, fmt.Sprintf("drop %s", t.full), err)
				}
				return t.conn.Close(gctx)
			}
			if _, err := t.conn.Exec(gctx, "SET maintenance_work_mem = '2GB'"); err != nil {
				// best effort; a permissions-restricted role may reject this
				_ = err
			}
			if indexSQL != "" {
				if _, err := t.conn.Exec(gctx, indexSQL); err != nil {
					return newError(StoreError, fmt.Sprintf("build index on %s", t.full), err)
				}
			}
			return t.conn.Close(gctx)
		}
	}

	waysIndex := substitute(
		fmt.Sprintf("CREATE INDEX %s_nodes ON %s USING gin (nodes) WITH (fastupdate = off) {TABLESPACE %%i}", s.ways.full, s.ways.full),
		s.opts)
	relsIndex := substitute(
		fmt.Sprintf("CREATE INDEX %s_parts ON %s USING gin (parts) WITH (fastupdate = off) {TABLESPACE %%i}", s.rels.full, s.rels.full),
		s.opts)

	g.Go(finalize(s.nodes, ""))
	g.Go(finalize(s.ways, waysIndex))
	g.Go(finalize(s.rels, relsIndex))

	return g.Wait()
}

// --- Nodes ---

func (s *Store) InsertNode(ctx context.Context, n Node) error {
	streaming := s.nodes.mode == modeStreaming
	tags := EncodeTags(n.Tags, streaming)
	if streaming {
		return s.nodes.CopyRow([]any{n.ID, n.Lat, n.Lon, tags})
	}
	rows, err := s.nodes.ExecPrepared(ctx, "insert_node", n.ID, n.Lat, n.Lon, tags)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) GetNode(ctx context.Context, id int64) (Node, bool, error) {
	rows, err := s.nodes.ExecPrepared(ctx, "get_node", id)
	if err != nil {
		return Node{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return Node{}, false, rows.Err()
	}
	var lat, lon float64
	var tagsLit string
	if err := rows.Scan(&lat, &lon, &tagsLit); err != nil {
		return Node{}, false, newError(StoreError, "scan get_node", err)
	}
	tags, err := DecodeTags(tagsLit)
	if err != nil {
		return Node{}, false, newError(MalformedData, "decode node tags", err)
	}
	return Node{ID: id, Lat: lat, Lon: lon, Tags: tags}, true, nil
}

func (s *Store) GetNodeList(ctx context.Context, ids []int64) ([]NodeCoord, error) {
	rows, err := s.nodes.ExecPrepared(ctx, "get_node_list", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeCoord
	for rows.Next() {
		var c NodeCoord
		if err := rows.Scan(&c.ID, &c.Lat, &c.Lon); err != nil {
			return nil, newError(StoreError, "scan get_node_list", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	if err := s.nodes.EndCopy(); err != nil {
		return err
	}
	rows, err := s.nodes.ExecPrepared(ctx, "delete_node", id)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

// --- Ways ---

func (s *Store) InsertWay(ctx context.Context, w Way) error {
	streaming := s.ways.mode == modeStreaming
	nds := EncodeIDs(w.Nodes)
	tags := EncodeTags(w.Tags, streaming)
	if streaming {
		return s.ways.CopyRow([]any{w.ID, nds, tags})
	}
	rows, err := s.ways.ExecPrepared(ctx, "insert_way", w.ID, nds, tags)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) GetWay(ctx context.Context, id int64) (Way, bool, error) {
	rows, err := s.ways.ExecPrepared(ctx, "get_way", id)
	if err != nil {
		return Way{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return Way{}, false, rows.Err()
	}
	var ndsLit, tagsLit string
	var count int
	if err := rows.Scan(&ndsLit, &tagsLit, &count); err != nil {
		return Way{}, false, newError(StoreError, "scan get_way", err)
	}
	nds, err := DecodeIDs(ndsLit)
	if err != nil {
		return Way{}, false, newError(MalformedData, "decode way nodes", err)
	}
	tags, err := DecodeTags(tagsLit)
	if err != nil {
		return Way{}, false, newError(MalformedData, "decode way tags", err)
	}
	return Way{ID: id, Nodes: nds, Tags: tags}, true, nil
}

// GetWayList issues one batched get_way_list and returns every matched row.
// Callers that need id-ordered results perform the O(n·m) scan spec.md 9
// explicitly permits (|ids| is bounded by upstream connectivity batching).
func (s *Store) GetWayList(ctx context.Context, ids []int64) ([]Way, error) {
	rows, err := s.ways.ExecPrepared(ctx, "get_way_list", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Way
	for rows.Next() {
		var id int64
		var ndsLit, tagsLit string
		var count int
		if err := rows.Scan(&id, &ndsLit, &tagsLit, &count); err != nil {
			return nil, newError(StoreError, "scan get_way_list", err)
		}
		nds, err := DecodeIDs(ndsLit)
		if err != nil {
			return nil, newError(MalformedData, "decode way nodes", err)
		}
		tags, err := DecodeTags(tagsLit)
		if err != nil {
			return nil, newError(MalformedData, "decode way tags", err)
		}
		out = append(out, Way{ID: id, Nodes: nds, Tags: tags})
	}
	return out, rows.Err()
}

func (s *Store) DeleteWay(ctx context.Context, id int64) error {
	if err := s.ways.EndCopy(); err != nil {
		return err
	}
	rows, err := s.ways.ExecPrepared(ctx, "delete_way", id)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) MarkWaysByNode(ctx context.Context, id int64) ([]int64, error) {
	if err := s.ways.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.ways, "mark_ways_by_node", id)
}

func (s *Store) MarkWaysByRel(ctx context.Context, id int64) ([]int64, error) {
	if err := s.ways.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.ways, "mark_ways_by_rel", id)
}

// --- Relations ---

func (s *Store) InsertRelation(ctx context.Context, r Relation) error {
	parts, wayOff, relOff := partitionMembers(r.Members)
	roleOrder := orderMembersByPartition(r.Members)

	streaming := s.rels.mode == modeStreaming
	partsLit := EncodeIDs(parts)
	membersLit := encodeMemberRoles(roleOrder, streaming)
	tagsLit := EncodeTags(r.Tags, streaming)

	if streaming {
		return s.rels.CopyRow([]any{r.ID, int16(wayOff), int16(relOff), partsLit, membersLit, tagsLit})
	}
	rows, err := s.rels.ExecPrepared(ctx, "insert_rel", r.ID, int16(wayOff), int16(relOff), partsLit, membersLit, tagsLit)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) GetRelation(ctx context.Context, id int64) (Relation, bool, error) {
	rows, err := s.rels.ExecPrepared(ctx, "get_rel", id)
	if err != nil {
		return Relation{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return Relation{}, false, rows.Err()
	}
	var membersLit, tagsLit string
	var count int
	if err := rows.Scan(&membersLit, &tagsLit, &count); err != nil {
		return Relation{}, false, newError(StoreError, "scan get_rel", err)
	}
	members, err := decodeMemberRoles(membersLit)
	if err != nil {
		return Relation{}, false, newError(MalformedData, "decode relation members", err)
	}
	tags, err := DecodeTags(tagsLit)
	if err != nil {
		return Relation{}, false, newError(MalformedData, "decode relation tags", err)
	}
	return Relation{ID: id, Members: members, Tags: tags}, true, nil
}

func (s *Store) DeleteRelation(ctx context.Context, id int64) error {
	if err := s.rels.EndCopy(); err != nil {
		return err
	}
	rows, err := s.rels.ExecPrepared(ctx, "delete_rel", id)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (s *Store) RelsUsingWay(ctx context.Context, id int64) ([]int64, error) {
	if err := s.rels.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.rels, "rels_using_way", id)
}

func (s *Store) MarkRelsByNode(ctx context.Context, id int64) ([]int64, error) {
	if err := s.rels.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.rels, "mark_rels_by_node", id)
}

func (s *Store) MarkRelsByWay(ctx context.Context, id int64) ([]int64, error) {
	if err := s.rels.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.rels, "mark_rels_by_way", id)
}

func (s *Store) MarkRels(ctx context.Context, id int64) ([]int64, error) {
	if err := s.rels.EndCopy(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, s.rels, "mark_rels", id)
}

func (s *Store) queryIDs(ctx context.Context, t *tableConn, stmt string, id int64) ([]int64, error) {
	rows, err := t.ExecPrepared(ctx, stmt, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, newError(StoreError, fmt.Sprintf("scan %s", stmt), err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ Backend = (*Store)(nil)
