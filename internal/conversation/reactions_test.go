// ABOUTME: Tests for reaction toggling and failure handling
// ABOUTME: Verifies one transport call per action and server-authoritative maps

package conversation

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/chat"
)

func TestIntentFor(t *testing.T) {
	assert.Equal(t, ReactionAdd, intentFor("", "👍"))
	assert.Equal(t, ReactionRemove, intentFor("👍", "👍"))
	assert.Equal(t, ReactionReplace, intentFor("👍", "❤️"))
}

func newReactionEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	te := newTestEngine(t, opts...)
	te.transport.history[peerP] = []chat.Message{peerMsg("m1", 0)}
	require.NoError(t, te.Select(t.Context(), peerP))
	return te
}

func TestEngine_SetReaction_Toggle(t *testing.T) {
	te := newReactionEngine(t)

	intent, err := te.SetReaction(t.Context(), "m1", "👍")
	require.NoError(t, err)
	assert.Equal(t, ReactionAdd, intent)
	m, _ := te.Message("m1")
	assert.Equal(t, "👍", m.Reactions[selfID])

	intent, err = te.SetReaction(t.Context(), "m1", "👍")
	require.NoError(t, err)
	assert.Equal(t, ReactionRemove, intent)
	m, _ = te.Message("m1")
	_, has := m.Reactions[selfID]
	assert.False(t, has, "choosing the same emoji again removes it")

	assert.Equal(t, []string{"m1:👍", "m1:👍"}, te.transport.reactionCalls(), "one call per action")
}

func TestEngine_SetReaction_Replace(t *testing.T) {
	te := newReactionEngine(t)

	_, err := te.SetReaction(t.Context(), "m1", "👍")
	require.NoError(t, err)
	intent, err := te.SetReaction(t.Context(), "m1", "❤️")
	require.NoError(t, err)
	assert.Equal(t, ReactionReplace, intent)

	m, _ := te.Message("m1")
	assert.Equal(t, map[string]string{selfID: "❤️"}, m.Reactions)
}

func TestEngine_SetReaction_ServerMapIsAuthoritative(t *testing.T) {
	te := newReactionEngine(t)
	te.transport.reactions["m1"] = map[string]string{peerP: "😂"}

	_, err := te.SetReaction(t.Context(), "m1", "🔥")
	require.NoError(t, err)

	m, _ := te.Message("m1")
	assert.Equal(t, map[string]string{peerP: "😂", selfID: "🔥"}, m.Reactions)
}

func TestEngine_SetReaction_FailureLeavesMapUntouched(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	te := newReactionEngine(t, func(_ *Config, d *Deps) { d.Metrics = metrics })

	_, err = te.SetReaction(t.Context(), "m1", "👍")
	require.NoError(t, err)

	te.transport.mu.Lock()
	te.transport.reactionErr = errors.New("timeout")
	te.transport.mu.Unlock()

	intent, err := te.SetReaction(t.Context(), "m1", "❤️")
	assert.Equal(t, ReactionReplace, intent)
	var terr *chat.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "set reaction", terr.Op)

	m, _ := te.Message("m1")
	assert.Equal(t, map[string]string{selfID: "👍"}, m.Reactions)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reactions.WithLabelValues(string(ReactionReplace), resultFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.pending))
}

func TestEngine_RemoveReaction(t *testing.T) {
	te := newReactionEngine(t)

	intent, err := te.RemoveReaction(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, ReactionNone, intent)
	assert.Empty(t, te.transport.reactionCalls(), "nothing to remove means no network call")

	_, err = te.SetReaction(t.Context(), "m1", "🎉")
	require.NoError(t, err)
	intent, err = te.RemoveReaction(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, ReactionRemove, intent)

	m, _ := te.Message("m1")
	assert.Empty(t, m.Reactions)

	// An empty emoji behaves like RemoveReaction.
	intent, err = te.SetReaction(t.Context(), "m1", " ")
	require.NoError(t, err)
	assert.Equal(t, ReactionNone, intent)
}

func TestEngine_SetReaction_Validation(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.SetReaction(t.Context(), "m1", "👍")
	assert.ErrorIs(t, err, chat.ErrNoActiveConversation)

	require.NoError(t, te.Select(t.Context(), peerP))
	_, err = te.SetReaction(t.Context(), "missing", "👍")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)

	g := te.transport.gateSend()
	go func() { _, _ = te.Send(t.Context(), chat.Draft{Text: "pending"}) }()
	<-g.entered
	_, err = te.SetReaction(t.Context(), "temp-1", "👍")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
	close(g.release)

	assert.Empty(t, te.transport.reactionCalls())
}
