package cpu

import "intuitionengine/guest"

var divErrSentinel = guest.NewError(guest.DivideError, "divide by zero or quotient overflow")
