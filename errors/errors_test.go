package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_Maps_Wrapped_Errors(t *testing.T) {
	req := require.New(t)

	req.Equal("AuthError", KindOf(fmt.Errorf("%w: token expired", ErrAuth)))
	req.Equal("Busy", KindOf(ErrBusy))
	req.Equal("CalleeOffline", KindOf(fmt.Errorf("%w: bob", ErrCalleeOffline)))
	req.Equal("AlreadyHandled", KindOf(ErrAlreadyHandled))
	req.Equal("Unauthorized", KindOf(ErrUnauthorized))
	req.Equal("Timeout", KindOf(ErrRingTimeout))
	req.Equal("Degraded", KindOf(ErrDegraded))
	req.Equal("InvalidState", KindOf(ErrInvalidState))
	req.Equal("InvalidState", KindOf(ErrUnknownCall))
	req.Equal("InvalidState", KindOf(ErrInvalidStatus))
	req.Equal("Internal", KindOf(fmt.Errorf("disk on fire")))
}
