package market

import "errors"

var (
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrBufferNotWarmed     = errors.New("buffer not warmed")
	ErrMismatchedClose     = errors.New("mismatched close")

	ErrMaxPositions = errors.New("max positions reached")
	ErrStaleCandle  = errors.New("stale candle")
)
