package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

// classify marks throttling responses with chain.ErrRateLimited so the
// deposit monitor can abort its pass.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", chain.ErrRateLimited, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "too many requests") {
		return fmt.Errorf("%w: %v", chain.ErrRateLimited, err)
	}
	return err
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
