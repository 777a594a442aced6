package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestCombineContextCarriesTabValues(t *testing.T) {
	tabCtx := context.WithValue(context.Background(), ctxKey{}, "target-1")

	combined, cancel := combineContext(tabCtx, context.Background())
	defer cancel()

	assert.Equal(t, "target-1", combined.Value(ctxKey{}))
}

func TestCombineContextCanceledByOp(t *testing.T) {
	opCtx, opCancel := context.WithCancel(context.Background())

	combined, cancel := combineContext(context.Background(), opCtx)
	defer cancel()

	opCancel()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not canceled when the op context was")
	}
}

func TestCombineContextCanceledByTab(t *testing.T) {
	tabCtx, tabCancel := context.WithCancel(context.Background())

	combined, cancel := combineContext(tabCtx, context.Background())
	defer cancel()

	tabCancel()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not canceled when the tab context was")
	}

	require.Error(t, combined.Err())
}
