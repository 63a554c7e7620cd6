// Package source resolves message body and attachment references to
// readers. A reference is either a local path or an object in storage
// written as s3://bucket/key.
package source

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/smtpmail/storage"
)

// ObjectScheme prefixes references that live in object storage.
const ObjectScheme = "s3://"

var (
	ErrNoObjectStorage = errors.New("object storage is not configured")
	ErrBadObjectRef    = errors.New("object reference must be s3://bucket/key")
	ErrNotFound        = errors.WithMessage(os.ErrNotExist, "source does not exist")
)

// Opener opens a reference for reading.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, ref string) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return f(ctx, ref)
}

// Checker reports whether a reference exists without reading it.
type Checker interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// Files opens references as local filesystem paths.
type Files struct{}

func (Files) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	return os.Open(ref)
}

// Exists reports whether ref is an existing regular file.
func (Files) Exists(_ context.Context, ref string) (bool, error) {
	fi, err := os.Stat(ref)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

// Objects opens s3://bucket/key references from a storage.Storage.
type Objects struct {
	Storage storage.Storage
}

func (o Objects) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if o.Storage == nil {
		return nil, ErrNoObjectStorage
	}
	bucket, key, err := SplitObjectRef(ref)
	if err != nil {
		return nil, err
	}
	rc, _, err := o.Storage.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (o Objects) Exists(ctx context.Context, ref string) (bool, error) {
	if o.Storage == nil {
		return false, ErrNoObjectStorage
	}
	bucket, key, err := SplitObjectRef(ref)
	if err != nil {
		return false, err
	}
	return o.Storage.Exists(ctx, bucket, key)
}

// Router dispatches s3:// references to Objects and everything else to Files.
type Router struct {
	Files   Opener
	Objects Opener
}

// NewRouter returns a Router over the local filesystem and, when st is not
// nil, object storage.
func NewRouter(st storage.Storage) *Router {
	r := &Router{Files: Files{}}
	if st != nil {
		r.Objects = Objects{Storage: st}
	}
	return r
}

func (r *Router) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if IsObjectRef(ref) {
		if r.Objects == nil {
			return nil, ErrNoObjectStorage
		}
		return r.Objects.Open(ctx, ref)
	}
	if r.Files == nil {
		return Files{}.Open(ctx, ref)
	}
	return r.Files.Open(ctx, ref)
}

// Exists checks ref through whichever backend would open it. A backend
// that cannot check is assumed to hold the reference.
func (r *Router) Exists(ctx context.Context, ref string) (bool, error) {
	var o Opener = Files{}
	switch {
	case IsObjectRef(ref):
		if r.Objects == nil {
			return false, ErrNoObjectStorage
		}
		o = r.Objects
	case r.Files != nil:
		o = r.Files
	}
	c, ok := o.(Checker)
	if !ok {
		return true, nil
	}
	return c.Exists(ctx, ref)
}

// Check returns ErrNotFound when ref does not exist. Openers that are not
// Checkers pass every ref.
func Check(ctx context.Context, o Opener, ref string) error {
	c, ok := o.(Checker)
	if !ok {
		return nil
	}
	ok, err := c.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
