package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LazyInitRetries(t *testing.T) {
	defer Reset()

	attempts := 0
	Configure(func() (*Service, error) {
		attempts++
		if attempts == 1 {
			return nil, fmt.Errorf("model download failed")
		}
		return NewService(NewMockProvider(16), NewMockReranker()), nil
	})

	_, err := Get()
	require.Error(t, err)

	svc, err := Get()
	require.NoError(t, err)
	assert.Equal(t, 16, svc.Dimension())

	// Subsequent calls reuse the cached instance.
	again, err := Get()
	require.NoError(t, err)
	assert.Same(t, svc, again)
	assert.Equal(t, 2, attempts)
}

func TestService_RerankWithoutReranker(t *testing.T) {
	svc := NewService(NewMockProvider(8), nil)
	assert.False(t, svc.HasReranker())

	_, err := svc.Rerank(context.Background(), "q", []string{"d"}, 0)
	assert.Error(t, err)
}
