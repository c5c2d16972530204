package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlSignalIsNone(t *testing.T) {
	var sig controlSignal
	require.True(t, sig.IsNone(), "zero-value controlSignal should report no break/continue/return in flight")

	sig = controlSignal{kind: signalReturn}
	require.False(t, sig.IsNone(), "a return signal must not report as none")

	sig = controlSignal{kind: signalBreak}
	require.False(t, sig.IsNone(), "a break signal must not report as none")

	sig = controlSignal{kind: signalContinue}
	require.False(t, sig.IsNone(), "a continue signal must not report as none")
}
