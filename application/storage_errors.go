package application

import (
	"context"
	"errors"
	"fmt"
	"net"

	"metering/domain/entities"

	"github.com/jackc/pgx/v5/pgconn"
)

// mapStorageError classifies connectivity failures as ErrStorageUnavailable
// so callers can trigger the offline fallback path. Business-logic failures
// pass through unchanged.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", entities.ErrStorageUnavailable, err)
	}

	return err
}
