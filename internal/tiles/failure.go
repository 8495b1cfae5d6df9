package tiles

import (
	"errors"
	"fmt"
)

// Reason stage a tile failed in
type Reason string

const (
	ReasonFetch   Reason = "fetch"
	ReasonRender  Reason = "render"
	ReasonEncode  Reason = "encode"
	ReasonStorage Reason = "storage"
	ReasonCrash   Reason = "crash"
)

// Failure a tile that was skipped. The batch carries on.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(reason Reason, err error) error {
	return &Failure{Reason: reason, Err: err}
}

// ReasonOf stage of a failed tile, ReasonCrash for errors that are not a Failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonCrash
}
