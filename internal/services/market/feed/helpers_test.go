package feed

import (
	"time"

	"github.com/vadiminshakov/pvsra/pkg/retrier"
)

func fastRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithMaxRetries(retrier.Unlimited),
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithMaxInterval(5*time.Millisecond),
	)
}
