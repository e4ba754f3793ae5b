package broker

import (
	"errors"
	"fmt"
)

// BusinessError is a vendor business rejection: the HTTP exchange
// succeeded but rt_cd was non-zero. It is fatal for the one attempt it
// belongs to and is never retried.
type BusinessError struct {
	TrID  string
	MsgCd string
	Msg   string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("kis rejected %s: %s (%s)", e.TrID, e.Msg, e.MsgCd)
}

// IsBusiness reports whether err is (or wraps) a vendor business rejection,
// as opposed to a transport failure.
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// PaginationOverrunError means a continuation query never reported a
// terminal status within the page cap. It guards against a malformed or
// never-terminating vendor response.
type PaginationOverrunError struct {
	Pages int
}

func (e *PaginationOverrunError) Error() string {
	return fmt.Sprintf("history pagination exceeded %d pages without a terminal status", e.Pages)
}
