package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/models"
)

const bookingColumns = `
		SELECT b.id, b.booking_code, b.trip_id, t.name AS trip_name,
		       b.customer_name, b.customer_email, b.departure_date, b.participants,
		       b.total_amount, b.status, b.payment_status, b.created_at
		FROM bookings b
		LEFT JOIN trips t ON t.id = b.trip_id`

// BookingRepository reads bookings. Bookings are never reachable through
// generated queries, only through these scoped lookups.
type BookingRepository interface {
	// ListRecentByEmail returns the newest bookings made with email. Rows
	// that cannot be decoded are skipped.
	ListRecentByEmail(ctx context.Context, email string, limit int) ([]models.BookingSummary, error)
	// GetByCode returns the booking with the given code. When email is
	// non-empty the lookup is restricted to that customer's bookings.
	// Returns apperrors.ErrNotFound when no booking matches.
	GetByCode(ctx context.Context, code, email string) (*models.BookingSummary, error)
}

type bookingRepository struct {
	executor datasource.QueryExecutor
	logger   *zap.Logger
}

// NewBookingRepository creates a booking repository over executor.
func NewBookingRepository(executor datasource.QueryExecutor, logger *zap.Logger) BookingRepository {
	return &bookingRepository{executor: executor, logger: logger.Named("bookings")}
}

func (r *bookingRepository) ListRecentByEmail(ctx context.Context, email string, limit int) ([]models.BookingSummary, error) {
	query := bookingColumns + `
		WHERE b.customer_email = $1
		ORDER BY b.created_at DESC`

	result, err := r.executor.QueryWithParams(ctx, query, []any{email}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]models.BookingSummary, 0, len(result.Rows))
	for _, row := range result.Rows {
		b, err := bookingFromRow(row)
		if err != nil {
			logging.ForRequest(ctx, r.logger).Warn("Skipping malformed booking row",
				zap.String("error", err.Error()))
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func (r *bookingRepository) GetByCode(ctx context.Context, code, email string) (*models.BookingSummary, error) {
	query := bookingColumns + `
		WHERE b.booking_code = $1`
	params := []any{code}
	if email != "" {
		query += ` AND b.customer_email = $2`
		params = append(params, email)
	}

	result, err := r.executor.QueryWithParams(ctx, query, params, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, apperrors.ErrNotFound
	}

	b, err := bookingFromRow(result.Rows[0])
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func bookingFromRow(row map[string]any) (models.BookingSummary, error) {
	id, ok := datasource.ToInt(row["id"])
	if !ok {
		return models.BookingSummary{}, fmt.Errorf("booking row has no id")
	}
	code, _ := row["booking_code"].(string)
	if code == "" {
		return models.BookingSummary{}, fmt.Errorf("booking %d has no booking_code", id)
	}

	b := models.BookingSummary{
		ID:            id,
		BookingCode:   code,
		CustomerName:  datasource.ToString(row["customer_name"]),
		CustomerEmail: datasource.ToString(row["customer_email"]),
		Status:        datasource.ToString(row["status"]),
		PaymentStatus: datasource.ToString(row["payment_status"]),
	}
	if row["trip_name"] != nil {
		b.TripName = datasource.ToString(row["trip_name"])
	}
	b.TripID, _ = datasource.ToInt(row["trip_id"])
	if n, ok := datasource.ToInt(row["participants"]); ok {
		b.Participants = int(n)
	}
	b.TotalAmount, _ = datasource.ToFloat(row["total_amount"])
	b.DepartureDate, _ = datasource.ToTime(row["departure_date"])
	b.CreatedAt, _ = datasource.ToTime(row["created_at"])
	return b, nil
}
