package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/testutils"
)

func TestConversation_CarriesInputList(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Text("Hi Sam."), testutils.Text("Your name is Sam."))
	a := newAgent(t, llm)
	conv := NewConversation()

	_, err := conv.Send(context.Background(), a, "my name is Sam")
	require.NoError(t, err)
	group := conv.GroupID()
	require.NotEmpty(t, group)

	result, err := conv.Send(context.Background(), a, "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Your name is Sam.", result.FinalOutput)
	assert.Equal(t, group, conv.GroupID())
	assert.Equal(t, 2, conv.Turns())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	second := reqs[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "my name is Sam", second[0].Content)
	assert.Equal(t, "Hi Sam.", second[1].Content)
	assert.Equal(t, "what is my name?", second[2].Content)
	assert.Len(t, conv.Messages(), 4)
}

func TestConversation_Reset(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Text("one"), testutils.Text("two"))
	a := newAgent(t, llm)
	conv := NewConversation()

	_, err := conv.Send(context.Background(), a, "first")
	require.NoError(t, err)
	before := conv.GroupID()

	conv.Reset()
	assert.NotEqual(t, before, conv.GroupID())
	assert.Zero(t, conv.Turns())
	assert.Empty(t, conv.Messages())

	_, err = conv.Send(context.Background(), a, "again")
	require.NoError(t, err)
	reqs := llm.Requests()
	assert.Len(t, reqs[1].Messages, 1)
}

func TestConversation_FailedSendKeepsState(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Text("ok"))
	a := newAgent(t, llm)
	conv := NewConversation()

	_, err := conv.Send(context.Background(), a, "first")
	require.NoError(t, err)

	llm.FailNext(errors.New("unavailable"))
	_, err = conv.Send(context.Background(), a, "second")
	require.Error(t, err)

	assert.Equal(t, 1, conv.Turns())
	assert.Len(t, conv.Messages(), 2)
}

func TestConversation_Restore(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Text("welcome back"))
	a := newAgent(t, llm)
	conv := NewConversation()

	conv.Restore([]model.Message{model.UserMessage("earlier"), model.AssistantMessage("reply")}, 1)
	assert.Equal(t, 1, conv.Turns())

	_, err := conv.Send(context.Background(), a, "hello")
	require.NoError(t, err)
	assert.Len(t, llm.Requests()[0].Messages, 3)

	conv.Restore(nil, 5)
	assert.Zero(t, conv.Turns())
	assert.Empty(t, conv.Messages())
}
