package presence

import "errors"

var ErrInvalidStatus = errors.New("invalid presence status")
