package server_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	server "github.com/apia-framework/a2a/server"
	types "github.com/apia-framework/a2a/types"
)

func fileMessage(file types.FileContent) types.Message {
	return types.Message{
		Role:  types.RoleUser,
		Parts: []types.Part{types.CreateFilePart(file)},
	}
}

func TestProcessFilePart(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("payload"))
	uri := "https://example.com/file.bin"
	malformed := "not-base64!!!"

	tests := []struct {
		name      string
		file      types.FileContent
		wantBytes string
		wantErr   error
		errText   string
	}{
		{
			name:      "inline bytes decoded",
			file:      types.FileContent{Bytes: &encoded},
			wantBytes: "payload",
		},
		{
			name:    "uri only is not implemented",
			file:    types.FileContent{URI: &uri},
			wantErr: server.ErrURIFetchNotImplemented,
		},
		{
			name:    "malformed base64",
			file:    types.FileContent{Bytes: &malformed},
			errText: "failed to decode",
		},
		{
			name:    "neither bytes nor uri",
			file:    types.FileContent{},
			errText: "neither bytes nor uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, router, _ := newTestManager(t)

			var gotBytes []byte
			var gotErr error
			router.RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
				files := tc.FileParts()
				require.Len(t, files, 1)
				gotBytes, gotErr = tc.ProcessFilePart(files[0])
				return server.NewCompletedResult(nil), nil
			})

			_, err := manager.OnSendTask(context.Background(), types.TaskSendParams{
				ID:      "task-1",
				Message: fileMessage(tt.file),
			})
			require.NoError(t, err)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, gotErr, tt.wantErr)
			case tt.errText != "":
				require.Error(t, gotErr)
				assert.Contains(t, gotErr.Error(), tt.errText)
			default:
				require.NoError(t, gotErr)
				assert.Equal(t, tt.wantBytes, string(gotBytes))
			}
		})
	}
}

func TestTaskContextSnapshot(t *testing.T) {
	manager, router, _ := newTestManager(t)

	sessionID := "session-7"
	var seenTaskID string
	var seenSession *string
	var seenTexts []string
	var seenSkill any

	router.Register(echoSkill("inspect"), func(tc *server.TaskContext) (*server.TaskResult, error) {
		seenTaskID = tc.TaskID()
		seenSession = tc.SessionID()
		seenTexts = tc.TextParts()
		seenSkill = tc.Metadata()["skill_id"]
		return server.NewCompletedResult(nil), nil
	})

	params := types.TaskSendParams{
		ID:        "task-9",
		SessionID: &sessionID,
		Message:   types.NewSkillMessage("inspect", []types.Part{types.CreateTextPart("look")}),
	}
	_, err := manager.OnSendTask(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, "task-9", seenTaskID)
	require.NotNil(t, seenSession)
	assert.Equal(t, "session-7", *seenSession)
	assert.Equal(t, []string{"look"}, seenTexts)
	assert.Equal(t, "inspect", seenSkill)
}
