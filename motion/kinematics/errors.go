package kinematics

import "errors"

// ErrOutOfTravel is returned by CheckLimits when a target falls outside an
// axis's configured travel range.
var ErrOutOfTravel = errors.New("kinematics: target out of travel range")
