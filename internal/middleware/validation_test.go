package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/model"
)

func TestValidateStruct_CreateConversation(t *testing.T) {
	require.NoError(t, ValidateStruct(&model.CreateConversationRequest{
		Type:      model.ConversationDirect,
		MemberIDs: []string{"alice", "bob"},
	}))

	err := ValidateStruct(&model.CreateConversationRequest{
		Type:      "CHANNEL",
		MemberIDs: []string{"alice"},
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = ValidateStruct(&model.CreateConversationRequest{
		Type: model.ConversationDirect,
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateStruct_SendMessage(t *testing.T) {
	require.NoError(t, ValidateStruct(&model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: "hello",
	}))

	err := ValidateStruct(&model.SendMessageRequest{
		Kind:    model.MessageText,
		Content: strings.Repeat("a", model.MaxContentLength+1),
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = ValidateStruct(&model.SendMessageRequest{
		Kind:             model.MessageText,
		Content:          "hello",
		ReplyToMessageID: "not-a-uuid",
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("conversation_id", uuid.NewString()))
	require.Error(t, ValidateID("conversation_id", "abc"))
	require.Error(t, ValidateID("conversation_id", ""))
}

func TestValidateUserID(t *testing.T) {
	require.NoError(t, ValidateUserID("alice"))
	require.Error(t, ValidateUserID(""))
	require.Error(t, ValidateUserID(strings.Repeat("x", 65)))
}
