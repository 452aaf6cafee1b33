package mirror

import (
	"errors"
	"os"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"permission denied for /data/output", ErrPermissionDenied},
		{"open /tmp/file: EACCES", ErrPermissionDenied},
		{"write /data/output: no space left on device", ErrDiskFull},
		{"quota exceeded for user", ErrDiskFull},
		{"no such file or directory", ErrNotFound},
		{"NoSuchKey: The specified key does not exist", ErrNotFound},
		{"SlowDown: please reduce request rate", ErrThrottled},
		{"received status 429", ErrThrottled},
		{"NoCredentialProviders: no valid credential providers", ErrAuth},
		{"ExpiredToken: the security token has expired", ErrAuth},
		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},
		{"something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "opaque" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError_TypedTimeout(t *testing.T) {
	if got := classifyError(timeoutErr{}); got != ErrTimeout {
		t.Errorf("classifyError = %v, want ErrTimeout", got)
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestWrapWriteError(t *testing.T) {
	if WrapWriteError(nil, "p") != nil {
		t.Error("WrapWriteError(nil) should be nil")
	}

	cause := &os.PathError{Op: "open", Path: "/x", Err: errors.New("no space left on device")}
	err := WrapWriteError(cause, "datasets/x")

	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("expected ErrDiskFull, got %v", err)
	}
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Error("underlying *os.PathError not reachable")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "write" || se.Path != "datasets/x" {
		t.Errorf("StorageError = %+v", se)
	}
}
