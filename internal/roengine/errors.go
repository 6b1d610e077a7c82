package roengine

import stderrors "errors"

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return stderrors.Join(errs...)
}
