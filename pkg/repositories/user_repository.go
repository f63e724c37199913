package repositories

import (
	"context"
	"fmt"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/models"
)

// UserRepository resolves authenticated callers.
type UserRepository interface {
	// GetByID returns apperrors.ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type userRepository struct {
	executor datasource.QueryExecutor
}

// NewUserRepository creates a user repository over executor.
func NewUserRepository(executor datasource.QueryExecutor) UserRepository {
	return &userRepository{executor: executor}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, name, email FROM users WHERE id = $1`

	result, err := r.executor.QueryWithParams(ctx, query, []any{id}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, apperrors.ErrNotFound
	}

	row := result.Rows[0]
	userID, _ := datasource.ToInt(row["id"])
	return &models.User{
		ID:    userID,
		Name:  datasource.ToString(row["name"]),
		Email: datasource.ToString(row["email"]),
	}, nil
}
