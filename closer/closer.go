// Package closer keeps hold of errors from deferred Close calls.
package closer

import "io"

// ErrorHandler closes c and stores the close error in err, unless err already
// holds one. It is meant to be deferred so a failed Close on rows, files or
// providers is not silently dropped.
//
//	defer closer.ErrorHandler(rows, &err)
func ErrorHandler(c io.Closer, err *error) {
	closeErr := c.Close()
	if *err == nil {
		*err = closeErr
	}
}
