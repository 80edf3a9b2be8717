package chat

import (
	"encoding/json"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameJSON(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"type":"send","channel":"conversation:c1","ref":"r1","payload":{"content":"hi","attachmentUrl":"u"},"extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, VerbSend, f.Type)
	assert.Equal(t, "conversation:c1", f.Channel)
	assert.Equal(t, "r1", f.Ref)

	p, err := DecodeSendPayload(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, "hi", p.Content)
	assert.Equal(t, "u", p.AttachmentURL)

	_, err = ParseFrameJSON([]byte(`not json`))
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	_, err = ParseFrameJSON([]byte(`{"channel":"x"}`))
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestFrameCredential(t *testing.T) {
	assert.Equal(t, "abc", (&Frame{Token: " abc "}).Credential())
	assert.Equal(t, "xyz", (&Frame{Headers: map[string]string{"authorization": "Bearer xyz"}}).Credential())
	assert.Equal(t, "abc", (&Frame{Token: "abc", Headers: map[string]string{"Authorization": "Bearer xyz"}}).Credential())
	assert.Empty(t, (&Frame{Headers: map[string]string{"Authorization": "Basic xyz"}}).Credential())
}

func TestBuildError(t *testing.T) {
	f := BuildError(errs.ErrAuthorizationDenied.WrapMsg("not authorized for channel"), "r9")
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, errs.AuthorizationDenied, f.Code)
	assert.Equal(t, "not authorized for channel", f.Message)
	assert.Equal(t, "r9", f.Ref)

	f = BuildError(assert.AnError, "")
	assert.Equal(t, errs.ServerInternalError, f.Code)
	assert.Equal(t, "ServerInternalError", f.Message)

	var out map[string]any
	require.NoError(t, json.Unmarshal(BuildMessage("post:1:likes", []byte(`{"n":1}`)).Encode(), &out))
	assert.Equal(t, "MESSAGE", out["type"])
	assert.Equal(t, map[string]any{"n": float64(1)}, out["payload"])
}
