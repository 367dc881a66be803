// ABOUTME: Tests for the backend error taxonomy: kind matching and message text
// ABOUTME: RPC errors without a message fall back to the code's description

package backend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mauromedda/openagent-go/internal/jsonrpc"
)

func TestError_Text(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"not started", ErrNotStarted, "backend not started"},
		{"process died", processDied(errors.New("exit status 3")), "backend process died"},
		{"rpc", rpcError(jsonrpc.CodeMethodNotFound, "Method not found: x", nil), "rpc error -32601: Method not found: x"},
		{"rpc without message", rpcError(jsonrpc.CodeBudgetExceeded, "", nil), "rpc error -32003: token budget exceeded"},
		{"io", ioError("writing request", errors.New("broken pipe")), "io error: writing request: broken pipe"},
		{"parse", parseError("encoding params", errors.New("invalid raw JSON")), "parse error: encoding params: invalid raw JSON"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("calling: %w", processDied(errors.New("timeout")))
	if !errors.Is(err, ErrProcessDied) {
		t.Error("wrapped process-died error should match ErrProcessDied")
	}
	if errors.Is(err, ErrNotStarted) {
		t.Error("process-died error must not match ErrNotStarted")
	}
	if KindOf(err) != KindProcessDied {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain) should be 0")
	}
}
