package models

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound = status.Errorf(codes.NotFound, "not found")

	// ErrDecode marks a payload that could not be decoded. Decode failures
	// are fatal only for identity fields (cid, message id, user id);
	// extra-data decode failures fall back to the minimal known subset.
	ErrDecode = status.Errorf(codes.InvalidArgument, "malformed payload")
)
