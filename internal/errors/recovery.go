package errors

import "fmt"

// CapturePanic converts a panic in the calling goroutine into an unknown
// AppError stored in *errp. It must be deferred directly:
//
//	defer errors.CapturePanic(&err)
func CapturePanic(errp *error) {
	r := recover()
	if r == nil {
		return
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}

	if errp != nil {
		*errp = NewUnknownError(fmt.Sprintf("panic recovered: %v", r), cause)
	}
}
