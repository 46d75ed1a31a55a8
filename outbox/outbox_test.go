package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

type recordingTx struct {
	pgx.Tx
	execs     []execCall
	execErr   error
	committed bool
	rolled    bool
}

func (r *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.execs = append(r.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), r.execErr
}

func (r *recordingTx) Commit(context.Context) error {
	r.committed = true
	return nil
}

func (r *recordingTx) Rollback(context.Context) error {
	if !r.committed {
		r.rolled = true
	}
	return nil
}

type beginner struct {
	txs []*recordingTx
}

func (b *beginner) Begin(context.Context) (pgx.Tx, error) {
	tx := &recordingTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWriter_Enqueue(t *testing.T) {
	tx := &recordingTx{}
	w := NewWriter()

	err := w.Enqueue(context.Background(), tx, " trade.listing.created ", map[string]any{"listingId": "l-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(tx.execs) != 1 {
		t.Fatalf("expected one insert, got %d", len(tx.execs))
	}
	call := tx.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO outbox") {
		t.Fatalf("unexpected sql %q", call.sql)
	}
	if call.args[0] != "trade.listing.created" {
		t.Fatalf("topic not trimmed: %v", call.args[0])
	}
	var body map[string]string
	if err := json.Unmarshal(call.args[1].([]byte), &body); err != nil || body["listingId"] != "l-1" {
		t.Fatalf("unexpected payload %s (%v)", call.args[1], err)
	}
}

func TestWriter_EnqueueErrors(t *testing.T) {
	w := NewWriter()
	if err := w.Enqueue(context.Background(), &recordingTx{}, "  ", nil); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
	if err := w.Enqueue(context.Background(), &recordingTx{}, "t", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	boom := errors.New("connection reset")
	if err := w.Enqueue(context.Background(), &recordingTx{execErr: boom}, "t", 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped exec error, got %v", err)
	}
}

type memRepo struct {
	pending   []Message
	processed []string
	failed    map[string]bool
	limit     int
}

func (m *memRepo) ClaimPending(_ context.Context, _ pgx.Tx, limit int) ([]Message, error) {
	m.limit = limit
	if len(m.pending) > limit {
		return append([]Message(nil), m.pending[:limit]...), nil
	}
	return append([]Message(nil), m.pending...), nil
}

func (m *memRepo) MarkProcessed(_ context.Context, _ pgx.Tx, id string) error {
	m.processed = append(m.processed, id)
	m.remove(id)
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, _ pgx.Tx, id string, dead bool) error {
	if m.failed == nil {
		m.failed = map[string]bool{}
	}
	m.failed[id] = dead
	if dead {
		m.remove(id)
	}
	return nil
}

func (m *memRepo) remove(id string) {
	for i, msg := range m.pending {
		if msg.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

type stubPublisher struct {
	failTopic string
	sent      []string
}

func (s *stubPublisher) Publish(_ context.Context, m Message) error {
	if m.Topic == s.failTopic {
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, m.ID)
	return nil
}

func TestRelay_ProcessBatch(t *testing.T) {
	repo := &memRepo{pending: []Message{
		{ID: "1", Topic: "trade.listing.created", Payload: json.RawMessage(`{}`)},
		{ID: "2", Topic: "trade.listing.rewarded", Payload: json.RawMessage(`{}`), Attempts: 0},
		{ID: "3", Topic: "trade.listing.rewarded", Payload: json.RawMessage(`{}`), Attempts: 2},
		{ID: "4", Topic: "trade.request.created", Payload: json.RawMessage(`{}`)},
	}}
	pub := &stubPublisher{failTopic: "trade.listing.rewarded"}
	pool := &beginner{}
	relay := NewRelay(pool, repo, pub).WithLimits(10, 3)

	n, err := relay.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 delivered, got %d", n)
	}
	if strings.Join(pub.sent, ",") != "1,4" {
		t.Fatalf("unexpected deliveries %v", pub.sent)
	}
	if dead, ok := repo.failed["2"]; !ok || dead {
		t.Fatalf("first failure should stay pending, got %v", repo.failed)
	}
	if dead := repo.failed["3"]; !dead {
		t.Fatal("third failure should be marked dead")
	}
	if repo.limit != 10 {
		t.Fatalf("expected batch size 10, got %d", repo.limit)
	}
	if len(pool.txs) != 1 || !pool.txs[0].committed {
		t.Fatal("batch transaction should commit")
	}
}

type failingRepo struct{ memRepo }

func (f *failingRepo) ClaimPending(context.Context, pgx.Tx, int) ([]Message, error) {
	return nil, errors.New("relation outbox does not exist")
}

func TestRelay_ClaimFailureRollsBack(t *testing.T) {
	pool := &beginner{}
	relay := NewRelay(pool, &failingRepo{}, &stubPublisher{})
	if _, err := relay.ProcessBatch(context.Background()); err == nil {
		t.Fatal("expected claim error")
	}
	if !pool.txs[0].rolled {
		t.Fatal("expected rollback")
	}
}

func TestPGRepository_MarkFailed(t *testing.T) {
	tx := &recordingTx{}
	repo := NewRepository()
	if err := repo.MarkFailed(context.Background(), tx, "id-1", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(context.Background(), tx, "id-2", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if tx.execs[0].args[1] != "dead" || tx.execs[1].args[1] != "pending" {
		t.Fatalf("unexpected statuses %v / %v", tx.execs[0].args, tx.execs[1].args)
	}
	if err := repo.MarkProcessed(context.Background(), tx, "id-3"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !strings.Contains(tx.execs[2].sql, "'processed'") {
		t.Fatalf("unexpected sql %q", tx.execs[2].sql)
	}
}
