package poolconfig

import "errors"

// ErrInvalid is the configuration error of spec §7: raised at build time
// for any invalid builder input, terminating construction.
var ErrInvalid = errors.New("poolconfig: invalid configuration")
