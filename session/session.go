// Package session owns one review session: the sheets of an upload, their
// column mappings and every transition between review states. All state
// changes go through Session methods; each one recomputes the derived
// sheet status before it returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ridoystarlord/sheetmatch/config"
	"github.com/ridoystarlord/sheetmatch/infer"
	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/normalize"
	"github.com/ridoystarlord/sheetmatch/policy"
	"github.com/ridoystarlord/sheetmatch/propose"
	"github.com/ridoystarlord/sheetmatch/schema"
	"github.com/ridoystarlord/sheetmatch/similarity"
)

var (
	ErrNoSheets       = errors.New("no sheets to map")
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrMatchInFlight  = errors.New("a matching pass is already running for this sheet")
	ErrNotMatched     = errors.New("sheet has not been matched yet")
	ErrUnknownTarget  = errors.New("unknown mapping target")
	ErrPassDiscarded  = errors.New("matching pass discarded")
	ErrUnresolved     = errors.New("sheet still has unresolved mappings")
)

type Option func(*Session)

func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithIDFunc replaces the sheet ID generator (uuid by default).
func WithIDFunc(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCache shares a candidate cache between sessions over the same catalog.
func WithCache(c *mapping.CandidateCache) Option {
	return func(s *Session) {
		if c != nil {
			s.cache = c
		}
	}
}

type Session struct {
	mu sync.Mutex

	catalog *schema.Catalog
	cfg     *config.Config
	log     zerolog.Logger
	newID   func() string
	cache   *mapping.CandidateCache

	inferrer  *infer.Inferrer
	generator *mapping.Generator
	policy    *policy.Policy
	builder   *propose.Builder

	order    []string
	sheets   map[string]*mapping.SheetMapping
	matched  map[string]bool
	pinned   map[string]bool
	inflight map[string]*pass
	gen      map[string]uint64

	// beforeCommit runs between ranking and commit of a pass; tests only.
	beforeCommit func(id string)
}

type pass struct {
	cancel context.CancelFunc
	gen    uint64
}

// New starts a session against a catalog snapshot. A nil catalog means the
// catalog could not be read at all; an empty one is valid.
func New(catalog *schema.Catalog, opts ...Option) (*Session, error) {
	if catalog == nil {
		return nil, schema.ErrCatalogUnavailable
	}
	s := &Session{
		catalog:  catalog,
		cfg:      config.Default(),
		log:      zerolog.Nop(),
		newID:    uuid.NewString,
		sheets:   make(map[string]*mapping.SheetMapping),
		matched:  make(map[string]bool),
		pinned:   make(map[string]bool),
		inflight: make(map[string]*pass),
		gen:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = mapping.NewCandidateCache()
	}
	if err := s.cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	t := s.cfg.Thresholds
	s.inferrer = infer.New(infer.Options{Majority: t.Majority, IDConvention: schema.DataType(s.cfg.IDConvention)})
	tables := similarity.New(normalize.New(s.cfg.TablePrefix), t.SubstringScore)
	columns := similarity.New(normalize.Default, t.SubstringScore)
	s.generator = mapping.NewGenerator(tables, columns, infer.NewChecker(t.Lenient), t)
	s.policy = policy.New(t)
	s.builder = propose.NewBuilder(s.cfg.TablePrefix)
	return s, nil
}

// Load adds parsed sheets to the session and returns their IDs in order.
// A sheet without headers is kept but skipped, with an issue recorded.
func (s *Session) Load(raw []mapping.RawSheet) ([]string, error) {
	if len(raw) == 0 {
		return nil, ErrNoSheets
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id := s.newID()
		if _, dup := s.sheets[id]; dup {
			return ids, fmt.Errorf("duplicate sheet id %q", id)
		}
		sheet := mapping.NewSheetMapping(id, r, s.inferrer, s.cfg.SampleSize)
		if len(sheet.Columns) == 0 {
			sheet.Skip = true
			sheet.Issue = "sheet has no header row"
		}
		s.sheets[id] = &sheet
		s.order = append(s.order, id)
		s.recompute(&sheet)
		ids = append(ids, id)
		s.log.Debug().Str("sheet", id).Str("name", r.SheetName).Int("columns", len(sheet.Columns)).Msg("sheet loaded")
	}
	return ids, nil
}

// MatchSheet runs one matching pass for a sheet. Ranking columns happens
// outside the session lock; the result is committed only if the sheet was
// not skipped or retargeted in the meantime. Approved sheets are left alone.
func (s *Session) MatchSheet(ctx context.Context, id string) error {
	s.mu.Lock()
	sheet, ok := s.sheets[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSheetNotFound, id)
	}
	if sheet.Skip || sheet.Approved {
		s.mu.Unlock()
		return nil
	}
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMatchInFlight, id)
	}

	s.gen[id]++
	gen := s.gen[id]
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.inflight[id] = &pass{cancel: cancel, gen: gen}

	var tables []mapping.MatchCandidate
	var decision policy.Decision
	target := ""
	if s.pinned[id] {
		if !sheet.IsNewTable {
			target = sheet.MappedName
		}
	} else {
		tables = s.generator.RankTables(sheet.OriginalName, s.catalog.Tables)
		decision = s.policy.DecideTable(tables)
		if decision.Candidate != nil {
			target = decision.Candidate.TargetName
		}
	}
	fields := s.targetFields(id, target)
	columns := sheet.Clone().Columns
	s.mu.Unlock()

	s.log.Debug().Str("sheet", id).Str("table", target).Uint64("pass", gen).Msg("matching columns")
	ranked, err := s.rankColumns(pctx, id, target, columns, fields)
	if s.beforeCommit != nil {
		s.beforeCommit(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.inflight[id]; ok && p.gen == gen {
		delete(s.inflight, id)
	}
	if err != nil || pctx.Err() != nil || s.gen[id] != gen || sheet.Skip {
		s.log.Debug().Str("sheet", id).Uint64("pass", gen).Msg("matching pass discarded")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s", ErrPassDiscarded, id)
	}

	// another sheet may have staged fields for the same table while we ranked
	if current := s.targetFields(id, target); mapping.Fingerprint(current) != mapping.Fingerprint(fields) {
		ranked = s.rankColumnsLocked(id, target, sheet.Columns, current)
	}

	if !s.pinned[id] {
		s.applyTableDecision(sheet, tables, decision)
	}
	s.applyColumns(sheet, ranked)
	s.matched[id] = true
	s.recompute(sheet)
	s.log.Debug().Str("sheet", id).Str("status", string(sheet.Status)).Bool("needs_review", sheet.NeedsReview).Msg("sheet matched")
	return nil
}

// Step matches the next sheet that has not been matched yet. It reports
// done once no such sheet remains.
func (s *Session) Step(ctx context.Context) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		id, ok := s.nextPending()
		if !ok {
			return true, nil
		}
		err := s.MatchSheet(ctx, id)
		if errors.Is(err, ErrPassDiscarded) {
			continue
		}
		if err != nil {
			return false, err
		}
		_, more := s.nextPending()
		return !more, nil
	}
}

// MatchAll steps through every pending sheet. progress receives a
// monotonically increasing percentage.
func (s *Session) MatchAll(ctx context.Context, progress mapping.ProgressFunc) error {
	total := s.pendingCount()
	doneCount, last := 0, -1
	emit := func(p int) {
		if progress != nil && p > last {
			last = p
			progress(p)
		}
	}
	for {
		done, err := s.Step(ctx)
		if err != nil {
			return err
		}
		doneCount++
		if total > 0 && doneCount <= total {
			emit(doneCount * 100 / total)
		}
		if done {
			emit(100)
			return nil
		}
	}
}

func (s *Session) nextPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		sheet := s.sheets[id]
		if sheet.Skip || sheet.Approved || s.matched[id] {
			continue
		}
		if _, busy := s.inflight[id]; busy {
			continue
		}
		return id, true
	}
	return "", false
}

func (s *Session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.order {
		sheet := s.sheets[id]
		if !sheet.Skip && !sheet.Approved && !s.matched[id] {
			n++
		}
	}
	return n
}

// rankColumns ranks columns against fields, serving cache hits and
// computing the rest.
func (s *Session) rankColumns(ctx context.Context, id, table string, columns []mapping.ColumnMapping, fields []schema.FieldInfo) (map[int][]mapping.MatchCandidate, error) {
	fp := mapping.Fingerprint(fields)
	out := make(map[int][]mapping.MatchCandidate, len(columns))
	var misses []mapping.ColumnMapping
	for _, col := range columns {
		if col.Skip {
			continue
		}
		if cached, ok := s.cache.Get(id, col, table, fp); ok {
			out[col.OriginalIndex] = cached
			continue
		}
		misses = append(misses, col)
	}
	if len(misses) == 0 {
		return out, nil
	}

	computed, err := s.generator.GenerateColumnMappings(ctx, misses, fields, nil)
	if err != nil {
		return nil, err
	}
	for _, col := range misses {
		c := computed[col.OriginalIndex]
		s.cache.Put(id, col, table, fp, c)
		out[col.OriginalIndex] = c
	}
	return out, nil
}

func (s *Session) rankColumnsLocked(id, table string, columns []mapping.ColumnMapping, fields []schema.FieldInfo) map[int][]mapping.MatchCandidate {
	ranked, _ := s.rankColumns(context.Background(), id, table, columns, fields)
	return ranked
}

// cancelPass aborts the sheet's in-flight pass, if any. Callers hold s.mu.
func (s *Session) cancelPass(id string) {
	s.gen[id]++
	if p, ok := s.inflight[id]; ok {
		p.cancel()
		delete(s.inflight, id)
		s.log.Debug().Str("sheet", id).Uint64("pass", p.gen).Msg("matching pass cancelled")
	}
}
