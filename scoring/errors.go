package scoring

import "errors"

var ErrMalformedScore = errors.New("malformed score")
