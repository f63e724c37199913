package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/audit"
	"github.com/travelgo/chat-engine/pkg/lexicon"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/sql"
)

// mockGenerator records calls and returns canned output.
type mockGenerator struct {
	mu sync.Mutex

	proposals   []sql.CandidateQuery
	proposeFunc func(message string) []sql.CandidateQuery
	answer      string
	thematic    string

	proposeCalls  int
	answerCalls   int
	thematicCalls int
	lastHints     []string
	lastTables    []string
	lastChunks    []string
}

func (m *mockGenerator) ProposeQueries(ctx context.Context, message string, allowedTables, hints []string) []sql.CandidateQuery {
	m.mu.Lock()
	m.proposeCalls++
	m.lastHints = hints
	m.lastTables = allowedTables
	fn := m.proposeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(message)
	}
	return m.proposals
}

func (m *mockGenerator) Answer(ctx context.Context, message string, chunks []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answerCalls++
	m.lastChunks = chunks
	return m.answer
}

func (m *mockGenerator) AnswerThematic(ctx context.Context, message string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thematicCalls++
	return m.thematic
}

var _ QueryGenerator = (*mockGenerator)(nil)

// mockExecutor serves existence probes from a set and queries from a map
// keyed by SQL text. Unknown queries return no rows.
type mockExecutor struct {
	datasource.QueryExecutor

	mu        sync.Mutex
	existing  map[string]bool
	existsErr error
	results   map[string]*datasource.QueryExecutionResult
	queryErrs map[string]error
	delays    map[string]time.Duration

	probes  []string
	queries []string
	limits  []int
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		existing:  make(map[string]bool),
		results:   make(map[string]*datasource.QueryExecutionResult),
		queryErrs: make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func probeKey(table, column string, value any) string {
	return fmt.Sprintf("%s.%s=%v", table, column, value)
}

func (m *mockExecutor) addExisting(table, column string, value any) {
	m.existing[probeKey(table, column, value)] = true
}

func (m *mockExecutor) Exists(ctx context.Context, table, column string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := probeKey(table, column, value)
	m.probes = append(m.probes, key)
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.existing[key], nil
}

func (m *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sqlQuery)
	m.limits = append(m.limits, limit)
	delay := m.delays[sqlQuery]
	err := m.queryErrs[sqlQuery]
	result, ok := m.results[sqlQuery]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &datasource.QueryExecutionResult{}, nil
	}
	return result, nil
}

func (m *mockExecutor) DialectName() string { return "PostgreSQL" }

// mockBookingRepository holds bookings by code.
type mockBookingRepository struct {
	mu       sync.Mutex
	bookings []models.BookingSummary
	err      error

	getCalls  int
	listCalls int
}

func (m *mockBookingRepository) ListRecentByEmail(ctx context.Context, email string, limit int) ([]models.BookingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	var out []models.BookingSummary
	for _, b := range m.bookings {
		if b.CustomerEmail == email && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBookingRepository) GetByCode(ctx context.Context, code, email string) (*models.BookingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, b := range m.bookings {
		if b.BookingCode == code && (email == "" || b.CustomerEmail == email) {
			found := b
			return &found, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// rowsResult builds a query result with columns in the given order.
func rowsResult(columns []string, rows ...[]any) *datasource.QueryExecutionResult {
	result := &datasource.QueryExecutionResult{}
	for _, c := range columns {
		result.Columns = append(result.Columns, datasource.ColumnInfo{Name: c})
	}
	for _, values := range rows {
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	result.RowCount = len(result.Rows)
	return result
}

func sampleBooking() models.BookingSummary {
	return models.BookingSummary{
		ID:            7,
		BookingCode:   "TG-ABC123",
		TripID:        3,
		TripName:      "Bali Escape",
		CustomerName:  "Rina",
		CustomerEmail: "rina@example.com",
		DepartureDate: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		Participants:  2,
		TotalAmount:   3000000,
		Status:        "confirmed",
		PaymentStatus: "paid",
	}
}

func testUser() *models.User {
	return &models.User{ID: 42, Name: "Rina", Email: "rina@example.com"}
}

type testHarness struct {
	executor  *mockExecutor
	bookings  *mockBookingRepository
	generator *mockGenerator
	gates     *GatePipeline
	service   *ChatService
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	return newTestHarnessWithLogger(t, zap.NewNop())
}

func newTestHarnessWithLogger(t *testing.T, logger *zap.Logger) *testHarness {
	t.Helper()

	h := &testHarness{
		executor:  newMockExecutor(),
		bookings:  &mockBookingRepository{bookings: []models.BookingSummary{sampleBooking()}},
		generator: &mockGenerator{answer: "Jawaban dari konteks.", thematic: "Jawaban umum seputar travel."},
	}

	auditor := audit.NewSecurityAuditor(logger)
	validator := sql.NewQueryValidator(sql.DefaultAllowedTables)

	h.gates = NewGatePipeline(lexicon.Default(), h.executor, h.bookings, auditor, time.Second, logger)
	aggregator := NewAggregator(h.executor, h.bookings, validator, auditor, DefaultAggregatorConfig(), logger)
	composer := NewComposer(h.generator, logger)
	h.service = NewChatService(h.gates, h.generator, aggregator, composer, auditor, validator.AllowedTables(), logger)
	return h
}
