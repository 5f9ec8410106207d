package capabilities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func dl(l DangerLevel) *DangerLevel { return &l }

func TestResolveDangerLevelPrecedence(t *testing.T) {
	require.Equal(t, DangerApproval, ResolveDangerLevel(dl(DangerApproval), dl(DangerSilent), false))
	require.Equal(t, DangerNotification, ResolveDangerLevel(nil, dl(DangerNotification), false))
	require.Equal(t, DangerNotification, ResolveDangerLevel(nil, nil, true))
	require.Equal(t, DangerSilent, ResolveDangerLevel(nil, nil, false))
}

func TestAnnotationsForEmission(t *testing.T) {
	notif := AnnotationsForEmission(DangerNotification, ToolAnnotationHints{})
	require.True(t, notif.DestructiveHint)
	require.False(t, notif.ReadOnlyHint)

	silent := AnnotationsForEmission(DangerSilent, ToolAnnotationHints{DestructiveHint: true})
	require.False(t, silent.DestructiveHint)
	require.True(t, silent.ReadOnlyHint)
}
