package stakingd

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/observability"
)

const (
	defaultStreamBuffer = 64
	defaultPageLimit    = 100
	maxStreamBacklog    = 1000

	journalMeterName = "nftstake/stakingd"
)

var (
	// ErrChainBroken reports a journal entry whose hash does not match its
	// contents or predecessor.
	ErrChainBroken = errors.New("journal: hash chain broken")
	// ErrBacklogTooLarge rejects stream subscriptions that would replay more
	// than maxStreamBacklog entries; clients should page through List first.
	ErrBacklogTooLarge = errors.New("journal: backlog too large")
)

// JournalEntry is one committed ledger event.
type JournalEntry struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}

// JournalOptions tunes a Journal.
type JournalOptions struct {
	StreamBuffer int
	PageLimit    int
	Logger       *slog.Logger
	Now          func() time.Time
	// Meter records journal faults. Defaults to the global meter provider.
	Meter metric.Meter
}

// journalMetrics counts journal faults on the OpenTelemetry pipeline.
type journalMetrics struct {
	appendFailures  metric.Int64Counter
	subscriberDrops metric.Int64Counter
}

func newJournalMetrics(meter metric.Meter) *journalMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(journalMeterName)
	}
	fallback := noop.NewMeterProvider().Meter(journalMeterName)
	failures, err := meter.Int64Counter("nftstake.journal.append_failures",
		metric.WithDescription("Committed events the journal failed to persist."))
	if err != nil {
		failures, _ = fallback.Int64Counter("nftstake.journal.append_failures")
	}
	drops, err := meter.Int64Counter("nftstake.journal.subscriber_drops",
		metric.WithDescription("Stream subscribers dropped for falling behind."))
	if err != nil {
		drops, _ = fallback.Int64Counter("nftstake.journal.subscriber_drops")
	}
	return &journalMetrics{appendFailures: failures, subscriberDrops: drops}
}

func (m *journalMetrics) recordAppendFailure(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.appendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *journalMetrics) recordSubscriberDrop(ctx context.Context) {
	if m == nil {
		return
	}
	m.subscriberDrops.Add(ctx, 1)
}

// Journal persists committed events in sqlite, chaining each entry to its
// predecessor with blake3, and fans them out to stream subscribers.
type Journal struct {
	db        *sql.DB
	logger    *slog.Logger
	now       func() time.Time
	buffer    int
	pageLimit int
	metrics   *journalMetrics

	mu       sync.Mutex
	lastSeq  int64
	lastHash [32]byte
	subs     map[uint64]chan JournalEntry
	nextSub  uint64
}

// OpenJournal opens (creating when needed) the journal at path.
func OpenJournal(path string, opts JournalOptions) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Appends are serialised by the journal; a single connection also keeps
	// ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	j := &Journal{
		db:        db,
		logger:    opts.Logger,
		now:       opts.Now,
		buffer:    opts.StreamBuffer,
		pageLimit: opts.PageLimit,
		metrics:   newJournalMetrics(opts.Meter),
		subs:      make(map[uint64]chan JournalEntry),
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.buffer <= 0 {
		j.buffer = defaultStreamBuffer
	}
	if j.pageLimit <= 0 {
		j.pageLimit = defaultPageLimit
	}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := `CREATE TABLE IF NOT EXISTS events (
            seq INTEGER PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            type TEXT NOT NULL,
            attributes TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            prev_hash TEXT NOT NULL,
            hash TEXT NOT NULL
        );`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	var (
		seq  int64
		hash string
	)
	err := j.db.QueryRow(`SELECT seq, hash FROM events ORDER BY seq DESC LIMIT 1`).Scan(&seq, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("journal head: %w", err)
	}
	head, err := decodeHash(hash)
	if err != nil {
		return err
	}
	j.lastSeq = seq
	j.lastHash = head
	return nil
}

// PageLimit is the maximum number of entries List returns.
func (j *Journal) PageLimit() int { return j.pageLimit }

// Head returns the latest sequence number.
func (j *Journal) Head() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// Emit implements events.Emitter. Failures are logged; committed ledger state
// is never rolled back because the journal is unavailable.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	var payload *types.Event
	if p, ok := evt.(events.Payload); ok {
		payload = p.Event()
	}
	if payload == nil {
		payload = &types.Event{Type: evt.EventType()}
	}
	ctx := context.Background()
	if _, err := j.Append(ctx, payload); err != nil {
		observability.Events().RecordFailure()
		j.metrics.recordAppendFailure(ctx, payload.Type)
		j.logger.Error("journal append failed", slog.String("type", payload.Type), slog.Any("error", err))
	}
}

// Append writes evt as the next entry and publishes it to subscribers.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (JournalEntry, error) {
	if evt == nil {
		return JournalEntry{}, fmt.Errorf("journal: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JournalEntry{
		Seq:        j.lastSeq + 1,
		ID:         uuid.NewString(),
		Type:       evt.Type,
		Attributes: copyAttributes(attrs),
		CreatedAt:  j.now().UTC().Truncate(time.Microsecond),
		PrevHash:   hex.EncodeToString(j.lastHash[:]),
	}
	digest := chainHash(j.lastHash, entry, encoded)
	entry.Hash = hex.EncodeToString(digest[:])

	_, err = j.db.ExecContext(ctx, `INSERT INTO events (seq, id, type, attributes, created_at, prev_hash, hash) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.ID, entry.Type, string(encoded), entry.CreatedAt.UnixMicro(), entry.PrevHash, entry.Hash)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("journal: insert: %w", err)
	}
	j.lastSeq = entry.Seq
	j.lastHash = digest
	observability.Events().RecordEvent(entry.Type)
	j.publishLocked(entry)
	return entry, nil
}

// publishLocked hands entry to every subscriber. A subscriber whose buffer is
// full is dropped; it can resume from its last sequence number.
func (j *Journal) publishLocked(entry JournalEntry) {
	for id, ch := range j.subs {
		select {
		case ch <- entry:
		default:
			close(ch)
			delete(j.subs, id)
			observability.Events().Subscribed(-1)
			j.metrics.recordSubscriberDrop(context.Background())
			j.logger.Warn("journal subscriber dropped", slog.Uint64("subscriber", id), slog.Int64("seq", entry.Seq))
		}
	}
}

// List returns up to limit entries with seq > after, oldest first.
func (j *Journal) List(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > j.pageLimit {
		limit = j.pageLimit
	}
	return j.query(ctx, after, limit)
}

func (j *Journal) query(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT seq, id, type, attributes, created_at, prev_hash, hash FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		entry, _, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Verify walks the whole journal and recomputes the hash chain.
func (j *Journal) Verify(ctx context.Context) error {
	rows, err := j.db.QueryContext(ctx, `SELECT seq, id, type, attributes, created_at, prev_hash, hash FROM events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("journal: verify: %w", err)
	}
	defer rows.Close()
	var (
		prev     [32]byte
		expected int64 = 1
	)
	for rows.Next() {
		entry, raw, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if entry.Seq != expected {
			return fmt.Errorf("%w: gap at seq %d", ErrChainBroken, expected)
		}
		if entry.PrevHash != hex.EncodeToString(prev[:]) {
			return fmt.Errorf("%w: seq %d prev hash mismatch", ErrChainBroken, entry.Seq)
		}
		digest := chainHash(prev, entry, raw)
		if entry.Hash != hex.EncodeToString(digest[:]) {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrChainBroken, entry.Seq)
		}
		prev = digest
		expected++
	}
	return rows.Err()
}

// Subscribe registers a live listener and returns the entries after `after`
// committed before registration. No entry is skipped or duplicated between
// the backlog and the channel.
func (j *Journal) Subscribe(ctx context.Context, after int64) ([]JournalEntry, <-chan JournalEntry, func(), error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if after < 0 {
		after = 0
	}
	if j.lastSeq-after > maxStreamBacklog {
		return nil, nil, nil, fmt.Errorf("%w: %d entries", ErrBacklogTooLarge, j.lastSeq-after)
	}
	backlog, err := j.query(ctx, after, maxStreamBacklog)
	if err != nil {
		return nil, nil, nil, err
	}
	id := j.nextSub
	j.nextSub++
	ch := make(chan JournalEntry, j.buffer)
	j.subs[id] = ch
	observability.Events().Subscribed(1)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if existing, ok := j.subs[id]; ok {
				close(existing)
				delete(j.subs, id)
				observability.Events().Subscribed(-1)
			}
		})
	}
	return backlog, ch, cancel, nil
}

// Close drops subscribers and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	for id, ch := range j.subs {
		close(ch)
		delete(j.subs, id)
		observability.Events().Subscribed(-1)
	}
	j.mu.Unlock()
	return j.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (JournalEntry, []byte, error) {
	var (
		entry   JournalEntry
		attrs   string
		created int64
	)
	if err := row.Scan(&entry.Seq, &entry.ID, &entry.Type, &attrs, &created, &entry.PrevHash, &entry.Hash); err != nil {
		return JournalEntry{}, nil, fmt.Errorf("journal: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &entry.Attributes); err != nil {
		return JournalEntry{}, nil, fmt.Errorf("journal: decode seq %d: %w", entry.Seq, err)
	}
	entry.CreatedAt = time.UnixMicro(created).UTC()
	return entry, []byte(attrs), nil
}

// chainHash commits to the predecessor hash and the entry's canonical form.
// Attribute JSON is canonical because encoding/json sorts map keys.
func chainHash(prev [32]byte, entry JournalEntry, attrs []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write(prev[:])
	h.Write([]byte(strconv.FormatInt(entry.Seq, 10)))
	h.Write([]byte{0})
	h.Write([]byte(entry.ID))
	h.Write([]byte{0})
	h.Write([]byte(entry.Type))
	h.Write([]byte{0})
	h.Write(attrs)
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(entry.CreatedAt.UnixMicro(), 10)))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func decodeHash(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("journal: malformed hash %q", raw)
	}
	copy(out[:], decoded)
	return out, nil
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
