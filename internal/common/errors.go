// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Error codes surfaced by the virtual filesystem layer.
// Every error returned to callers is tagged with one of these.
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EISDIR  = syscall.EISDIR  // Is a directory
	EEXIST  = syscall.EEXIST  // File exists
	EPERM   = syscall.EPERM   // Operation not permitted
	ENOTSUP = syscall.ENOTSUP // Operation not supported
	EINVAL  = syscall.EINVAL  // Invalid argument
)

var codeNames = map[syscall.Errno]string{
	syscall.ENOENT:  "ENOENT",
	syscall.ENOTDIR: "ENOTDIR",
	syscall.EISDIR:  "EISDIR",
	syscall.EEXIST:  "EEXIST",
	syscall.EPERM:   "EPERM",
	syscall.ENOTSUP: "ENOTSUP",
	syscall.EINVAL:  "EINVAL",
}

// Error is an error tagged with a code from the closed vocabulary above.
// It renders as "<CODE>: <message>" so the tag is machine-checkable even
// after the error has been flattened to a string.
type Error struct {
	Code    syscall.Errno
	Message string
	Err     error // optional underlying cause
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Code.Error()
	}
	return CodeName(e.Code) + ": " + msg
}

// Unwrap exposes both the code and the cause, so errors.Is(err, syscall.ENOENT)
// and errors.Is(err, cause) both hold.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Code, e.Err}
	}
	return []error{e.Code}
}

// CodeName returns the mnemonic for a code, e.g. "ENOENT".
func CodeName(code syscall.Errno) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("E%d", int(code))
}

// Errorf returns a tagged error.
func Errorf(code syscall.Errno, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with code, keeping err as the cause.
func Wrap(code syscall.Errno, err error, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Code returns the vocabulary code carried by err, if any.
func Code(err error) (syscall.Errno, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if _, known := codeNames[errno]; known {
			return errno, true
		}
	}
	return 0, false
}

// HasCode reports whether err carries code.
func HasCode(err error, code syscall.Errno) bool {
	got, ok := Code(err)
	return ok && got == code
}

// FromOS normalizes low-level filesystem errors (*fs.PathError,
// *os.LinkError, syscall.Errno) into the closed vocabulary.
// Errors that do not map are returned unchanged.
func FromOS(err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}

	msg := err.Error()
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	switch {
	case errors.As(err, &pathErr):
		msg = pathErr.Op + " " + pathErr.Path + ": " + pathErr.Err.Error()
	case errors.As(err, &linkErr):
		msg = linkErr.Op + " " + linkErr.Old + " " + linkErr.New + ": " + linkErr.Err.Error()
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		// Sentinels from io/fs carry no errno
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return &Error{Code: ENOENT, Message: msg, Err: err}
		case errors.Is(err, fs.ErrExist):
			return &Error{Code: EEXIST, Message: msg, Err: err}
		case errors.Is(err, fs.ErrPermission):
			return &Error{Code: EPERM, Message: msg, Err: err}
		}
		return err
	}
	switch errno {
	case syscall.ENOTEMPTY:
		// A non-empty directory at the destination is a collision
		return &Error{Code: EEXIST, Message: msg, Err: err}
	case syscall.EACCES:
		return &Error{Code: EPERM, Message: msg, Err: err}
	}
	if _, known := codeNames[errno]; known {
		return &Error{Code: errno, Message: msg, Err: err}
	}
	return err
}
