package errno

import "errors"

// Errno defines the error code logic
// 值类型可比较，包装后仍可以用 errors.Is 判断
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, err.Error()
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, err.Error()
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrConfigInvalid    = Errno{Code: 10005, Message: "Invalid configuration"}
	ErrServiceUnhealthy = Errno{Code: 10006, Message: "Sweeper unhealthy"}
)

// Sweep Errors (30000+)
var (
	ErrAddressNotFound   = Errno{Code: 30101, Message: "Deposit address not found"}
	ErrDepositNotFound   = Errno{Code: 30102, Message: "Deposit record not found"}
	ErrUnsupportedToken  = Errno{Code: 30103, Message: "Token not configured"}
	ErrCycleInProgress   = Errno{Code: 30201, Message: "Sweep cycle already running"}
	ErrInsufficientGas   = Errno{Code: 30301, Message: "Insufficient gas on deposit address"}
	ErrTxReverted        = Errno{Code: 30302, Message: "Transaction reverted"}
	ErrConfirmTimeout    = Errno{Code: 30303, Message: "Transaction confirmation timeout"}
	ErrMasterKeyMismatch = Errno{Code: 30401, Message: "Derived master address does not match configuration"}
)
