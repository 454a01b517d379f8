package operation

import "errors"

// ErrNothingToReinvoke is returned by Reinvoke when no operation is bound.
var ErrNothingToReinvoke = errors.New("operation: no operation bound for re-invocation")
