package google

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "backend down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"internal", status.Error(codes.Internal, "oops"), true},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad credentials"), false},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), false},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad config"), false},
		{"plain error", errors.New("not a status"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
