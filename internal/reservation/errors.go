package reservation

import "errors"

var errReplyShape = errors.New("reservation script returned an unexpected reply shape")
