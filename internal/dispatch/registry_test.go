package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R-N/wa-bot/internal/domain"
)

type scriptedHandler struct {
	name    string
	handled bool
	err     error
	calls   *[]string
}

func (s *scriptedHandler) Handle(context.Context, domain.Message) (bool, error) {
	*s.calls = append(*s.calls, s.name)
	return s.handled, s.err
}

func TestDispatch_HigherPriorityRunsFirst(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("low", 0, &scriptedHandler{name: "low", handled: true, calls: &calls})
	reg.Register("high", 10, &scriptedHandler{name: "high", calls: &calls})

	handled := reg.Dispatch(context.Background(), domain.Message{Text: "hi"})

	require.True(t, handled)
	require.Equal(t, []string{"high", "low"}, calls)
}

func TestDispatch_ShortCircuitsOnHandled(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("first", 5, &scriptedHandler{name: "first", handled: true, calls: &calls})
	reg.Register("second", 0, &scriptedHandler{name: "second", handled: true, calls: &calls})

	require.True(t, reg.Dispatch(context.Background(), domain.Message{Text: "hi"}))
	require.Equal(t, []string{"first"}, calls)
}

func TestDispatch_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("a", 1, &scriptedHandler{name: "a", calls: &calls})
	reg.Register("b", 1, &scriptedHandler{name: "b", calls: &calls})
	reg.Register("c", 1, &scriptedHandler{name: "c", calls: &calls})

	require.False(t, reg.Dispatch(context.Background(), domain.Message{Text: "hi"}))
	require.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestDispatch_HandlerErrorContinuesChain(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("broken", 5, &scriptedHandler{name: "broken", err: errors.New("boom"), calls: &calls})
	reg.Register("fallback", 0, &scriptedHandler{name: "fallback", handled: true, calls: &calls})

	require.True(t, reg.Dispatch(context.Background(), domain.Message{Text: "hi"}))
	require.Equal(t, []string{"broken", "fallback"}, calls)
}

func TestDispatch_NoneHandled(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("quiet", 0, &scriptedHandler{name: "quiet", calls: &calls})

	require.False(t, reg.Dispatch(context.Background(), domain.Message{Text: "hi"}))
}
