package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
	"github.com/travelgo/chat-engine/pkg/audit"
	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/metrics"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/repositories"
	"github.com/travelgo/chat-engine/pkg/sql"
	"github.com/travelgo/chat-engine/pkg/workpool"
)

// Audit keys contributed by the booking paths.
const (
	keyBookingDetail     = "bookings.code.detail"
	recentBookingsPrefix = "bookings.mine.latest"
)

// AggregatorConfig bounds query execution.
type AggregatorConfig struct {
	MaxRows          int           // Row cap per validated query
	QueryTimeout     time.Duration // Per-query deadline
	QueryConcurrency int           // Queries run at once
	RecentBookings   int           // Bookings listed for authenticated callers
	StoreTimeout     time.Duration // Deadline for booking lookups
}

// DefaultAggregatorConfig returns sensible defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MaxRows:          50,
		QueryTimeout:     5 * time.Second,
		QueryConcurrency: 4,
		RecentBookings:   10,
		StoreTimeout:     3 * time.Second,
	}
}

// AggregateRequest is the input of one aggregation.
type AggregateRequest struct {
	Message    models.Message
	Intent     models.Intent
	Candidates []sql.CandidateQuery
	// BookingCode is a code the gates confirmed to exist, or "".
	BookingCode string
}

// Aggregator validates and runs generated queries and folds their rows into
// typed collections and narrative chunks.
type Aggregator struct {
	executor  datasource.QueryExecutor
	bookings  repositories.BookingRepository
	validator *sql.QueryValidator
	auditor   *audit.SecurityAuditor
	pool      *workpool.Pool
	config    AggregatorConfig
	logger    *zap.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(
	executor datasource.QueryExecutor,
	bookings repositories.BookingRepository,
	validator *sql.QueryValidator,
	auditor *audit.SecurityAuditor,
	config AggregatorConfig,
	logger *zap.Logger,
) *Aggregator {
	logger = logger.Named("aggregator")
	return &Aggregator{
		executor:  executor,
		bookings:  bookings,
		validator: validator,
		auditor:   auditor,
		pool: workpool.New(workpool.Config{
			MaxConcurrent: config.QueryConcurrency,
			ItemTimeout:   config.QueryTimeout,
		}, logger),
		config: config,
		logger: logger,
	}
}

// Aggregate never fails: rejected candidates and failing queries are skipped
// and the remaining results are kept. Results are folded in candidate order.
func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) *models.AggregateResult {
	logger := logging.ForRequest(ctx, a.logger)
	res := models.NewAggregateResult()

	queries := a.validate(ctx, req.Candidates)
	items := make([]workpool.Item[*datasource.QueryExecutionResult], len(queries))
	for i, q := range queries {
		items[i] = workpool.Item[*datasource.QueryExecutionResult]{
			ID:      fmt.Sprintf("%s#%d", q.Table(), i),
			Execute: a.runQuery(q),
		}
	}

	for i, r := range workpool.Process(ctx, a.pool, items) {
		q := queries[i]
		if r.Err != nil {
			logger.Warn("Generated query failed",
				zap.String("table", q.Table()),
				zap.String("sql", logging.SanitizeQuery(q.SQL())),
				zap.String("error", logging.SanitizeError(r.Err)))
			metrics.QueryExecutions.WithLabelValues(q.Table(), metrics.ResultError).Inc()
			continue
		}

		res.GeneratedQueries = append(res.GeneratedQueries, q.SQL())
		if r.Result == nil || len(r.Result.Rows) == 0 {
			metrics.QueryExecutions.WithLabelValues(q.Table(), metrics.ResultEmpty).Inc()
			continue
		}
		metrics.QueryExecutions.WithLabelValues(q.Table(), metrics.ResultSuccess).Inc()
		a.fold(res, q.Table(), r.Result)
	}

	if req.Intent == models.IntentPrivate && req.Message.User != nil {
		a.addRecentBookings(ctx, res, req.Message.User)
	}
	if req.Intent == models.IntentPrivate && req.BookingCode != "" {
		a.addBookingDetail(ctx, res, req.BookingCode, req.Message.User)
	}

	res.Chunks = dedupe(res.Chunks)
	res.UsedKeys = dedupe(res.UsedKeys)
	return res
}

// validate keeps the candidates that pass every rule, in order. Rejections
// are audited and never reach the caller.
func (a *Aggregator) validate(ctx context.Context, candidates []sql.CandidateQuery) []sql.ValidatedQuery {
	var out []sql.ValidatedQuery
	for _, c := range candidates {
		q, err := a.validator.Validate(c)
		if err != nil {
			rule := "unknown"
			var rejection *sql.RejectionError
			if errors.As(err, &rejection) {
				rule = string(rejection.Rule)
			}
			a.auditor.LogQueryRejected(ctx, audit.RejectionDetails{
				Rule:         rule,
				Reason:       err.Error(),
				ClaimedTable: c.Table,
				SQL:          c.SQL,
			})
			metrics.CandidateQueries.WithLabelValues(metrics.ResultRejected).Inc()
			continue
		}
		metrics.CandidateQueries.WithLabelValues(metrics.ResultAccepted).Inc()
		out = append(out, q)
	}
	return out
}

func (a *Aggregator) runQuery(q sql.ValidatedQuery) func(context.Context) (*datasource.QueryExecutionResult, error) {
	return func(ctx context.Context) (*datasource.QueryExecutionResult, error) {
		start := time.Now()
		result, err := a.executor.Query(ctx, q.SQL(), a.config.MaxRows)
		metrics.QueryDuration.WithLabelValues(q.Table()).Observe(time.Since(start).Seconds())
		return result, err
	}
}

// fold adds the rows of one query to the result under its main table.
func (a *Aggregator) fold(res *models.AggregateResult, table string, result *datasource.QueryExecutionResult) {
	res.RelatedCollections[table] = append(res.RelatedCollections[table], result.Rows...)

	switch table {
	case "promos":
		for _, row := range result.Rows {
			if promo, ok := promoFromRow(row); ok {
				res.RelatedPromos = append(res.RelatedPromos, promo)
			}
			res.Chunks = append(res.Chunks, promoChunk(row))
		}
	case "trips":
		for _, row := range result.Rows {
			if trip, ok := tripFromRow(row); ok {
				res.RelatedTrips = append(res.RelatedTrips, trip)
			}
			res.Chunks = append(res.Chunks, tripChunk(row))
		}
	default:
		columns := result.ColumnNames()
		for _, row := range result.Rows {
			res.Chunks = append(res.Chunks, genericChunk(columns, row))
		}
	}
	res.UsedKeys = append(res.UsedKeys, table+".ai")
}

func (a *Aggregator) addRecentBookings(ctx context.Context, res *models.AggregateResult, user *models.User) {
	storeCtx, cancel := withTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	bookings, err := a.bookings.ListRecentByEmail(storeCtx, user.Email, a.config.RecentBookings)
	if err != nil {
		logging.ForRequest(ctx, a.logger).Warn("Failed to load recent bookings",
			zap.Int64("user_id", user.ID),
			zap.String("error", logging.SanitizeError(err)))
		return
	}

	for _, b := range bookings {
		res.Chunks = append(res.Chunks, fmt.Sprintf("Booking %s: trip %s, tgl %s, peserta %d, total %s, status %s/%s",
			b.BookingCode, tripNameOrDash(b), formatDate(b.DepartureDate), b.Participants,
			datasource.ToString(b.TotalAmount), b.Status, b.PaymentStatus))
		res.UserBookings = appendBooking(res.UserBookings, b)
	}
	if len(bookings) > 0 {
		res.UsedKeys = append(res.UsedKeys, recentBookingsPrefix+strconv.Itoa(a.config.RecentBookings))
	}
}

func (a *Aggregator) addBookingDetail(ctx context.Context, res *models.AggregateResult, code string, user *models.User) {
	email := ""
	if user != nil {
		email = user.Email
	}

	storeCtx, cancel := withTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	b, err := a.bookings.GetByCode(storeCtx, code, email)
	if err != nil {
		logging.ForRequest(ctx, a.logger).Warn("Failed to load booking detail",
			zap.String("error", logging.SanitizeError(err)))
		return
	}

	res.Chunks = append(res.Chunks, fmt.Sprintf(
		"Detail Booking %s: trip %s, keberangkatan %s, peserta %d, total %s, status %s, pembayaran %s",
		b.BookingCode, tripNameOrDash(*b), formatDate(b.DepartureDate), b.Participants,
		datasource.ToString(b.TotalAmount), b.Status, b.PaymentStatus))
	res.UserBookings = appendBooking(res.UserBookings, *b)
	res.UsedKeys = append(res.UsedKeys, keyBookingDetail)
}

func promoChunk(row map[string]any) string {
	chunk := "Promo: " + datasource.ToString(row["name"])
	if code, ok := row["promo_code"].(string); ok && code != "" {
		chunk += " (kode " + code + ")"
	}
	return chunk
}

func tripChunk(row map[string]any) string {
	return fmt.Sprintf("Trip: %s (%s), harga %s",
		datasource.ToString(row["name"]),
		datasource.ToString(row["location"]),
		datasource.ToString(row["price"]))
}

// genericChunk renders "column:value" pairs in select-list order.
func genericChunk(columns []string, row map[string]any) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, col+":"+datasource.ToString(row[col]))
	}
	return strings.Join(parts, " | ")
}

// promoFromRow requires a name, both period dates and the active flag.
func promoFromRow(row map[string]any) (models.PromoSummary, bool) {
	name, ok := row["name"].(string)
	if !ok || name == "" {
		return models.PromoSummary{}, false
	}
	start, ok := datasource.ToTime(row["start_date"])
	if !ok {
		return models.PromoSummary{}, false
	}
	end, ok := datasource.ToTime(row["end_date"])
	if !ok {
		return models.PromoSummary{}, false
	}
	active, ok := datasource.ToInt(row["is_active"])
	if !ok {
		return models.PromoSummary{}, false
	}

	promo := models.PromoSummary{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		IsActive:  int(active),
	}
	if code, ok := row["promo_code"].(string); ok {
		promo.PromoCode = code
	}
	if dtype, ok := row["discount_type"].(string); ok {
		promo.DiscountType = dtype
	}
	if value, ok := datasource.ToFloat(row["discount_value"]); ok {
		promo.DiscountValue = &value
	}
	return promo, true
}

// tripFromRow requires an id, a name, a location and a price.
func tripFromRow(row map[string]any) (models.TripSummary, bool) {
	id, ok := datasource.ToInt(row["id"])
	if !ok {
		return models.TripSummary{}, false
	}
	name, ok := row["name"].(string)
	if !ok || name == "" {
		return models.TripSummary{}, false
	}
	location, ok := row["location"].(string)
	if !ok {
		return models.TripSummary{}, false
	}
	price, ok := datasource.ToFloat(row["price"])
	if !ok {
		return models.TripSummary{}, false
	}

	trip := models.TripSummary{
		ID:       id,
		Name:     name,
		Location: location,
		Price:    price,
	}
	trip.Slug, _ = row["slug"].(string)
	trip.Duration, _ = row["duration"].(string)
	trip.Status, _ = row["status"].(string)
	if active, ok := datasource.ToInt(row["is_active"]); ok {
		trip.IsActive = int(active)
	}
	return trip, true
}

func tripNameOrDash(b models.BookingSummary) string {
	if b.TripName == "" {
		return "-"
	}
	return b.TripName
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// appendBooking adds b unless a booking with the same code is present.
func appendBooking(list []models.BookingSummary, b models.BookingSummary) []models.BookingSummary {
	for _, existing := range list {
		if existing.BookingCode == b.BookingCode {
			return list
		}
	}
	return append(list, b)
}

// dedupe removes repeated strings, keeping the first occurrence.
func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
