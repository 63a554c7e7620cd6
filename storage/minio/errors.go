package minio

import (
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/pure-golang/smtpmail/storage"
)

// toStorageError converts minio errors to storage errors.
func toStorageError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)

	code := storage.CodeInternalError
	switch {
	case resp.Code == "NoSuchBucket":
		code = storage.CodeBucketNotFound
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		code = storage.CodeNotFound
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		code = storage.CodeAccessDenied
	}

	return &storage.StorageError{
		Code:   code,
		Err:    err,
		Bucket: bucket,
		Key:    key,
	}
}
