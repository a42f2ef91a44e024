package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
)

const maxIdempotencyKeyLength = 255

var ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key was already used for a different request", utils.ErrValidation)

// idempotentRequest is a create request that carried an Idempotency-Key.
// A nil *idempotentRequest means the caller sent no key; its methods are no-ops.
type idempotentRequest struct {
	scope string
	key   string
	hash  string
}

func newIdempotentRequest(ctx context.Context, scope string, request any) (*idempotentRequest, error) {
	key, ok := utils.GetIdempotencyKeyFromContext(ctx)
	if !ok {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxIdempotencyKeyLength {
		return nil, fmt.Errorf("%w: idempotency key must be 1-%d characters", utils.ErrInvalidArgument, maxIdempotencyKeyLength)
	}
	hash, err := models.RequestHash(request)
	if err != nil {
		return nil, err
	}
	return &idempotentRequest{scope: scope, key: key, hash: hash}, nil
}

// replay reports the resource created by an earlier request with the same
// key. It must run inside the unit of work, after the product locks.
func (r *idempotentRequest) replay(ctx context.Context, tx models.StoreTx) (int, bool, error) {
	if r == nil {
		return 0, false, nil
	}
	existing, err := tx.FindIdempotencyKey(ctx, r.scope, r.key)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	if existing.RequestHash != r.hash {
		return 0, false, ErrIdempotencyMismatch
	}
	return existing.ResourceId, true, nil
}

func (r *idempotentRequest) remember(ctx context.Context, tx models.StoreTx, resourceId int) error {
	if r == nil {
		return nil
	}
	return tx.CreateIdempotencyKey(ctx, &models.IdempotencyKey{
		Scope:       r.scope,
		Key:         r.key,
		RequestHash: r.hash,
		ResourceId:  resourceId,
	})
}
