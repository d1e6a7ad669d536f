package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecByName(t *testing.T) {
	t.Parallel()

	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName(" MsgPack ")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	_, err = CodecByName("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown codec "xml"`)
}

func TestDecodeMessage_RejectsEmptyHandle(t *testing.T) {
	t.Parallel()

	for _, c := range []Codec{JSON, MsgPack} {
		frame, err := c.Marshal(&Message{Args: []byte("1")})
		require.NoError(t, err)

		_, err = DecodeMessage(c, frame)
		assert.ErrorIs(t, err, ErrEmptyHandle, c.Name())
	}

	_, err := EncodeMessage(JSON, "", nil)
	assert.ErrorIs(t, err, ErrEmptyHandle)
}

func TestDecodeMessage_Garbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeMessage(JSON, []byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode message")
}

func TestMsgPack_UsesJSONFieldNames(t *testing.T) {
	t.Parallel()

	type payload struct {
		Text string `json:"text"`
	}
	raw, err := MsgPack.Marshal(payload{Text: "hi"})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, MsgPack.Unmarshal(raw, &generic))
	assert.Equal(t, "hi", generic["text"])
}

func TestJSON_DoesNotEscapeHTML(t *testing.T) {
	t.Parallel()

	raw, err := JSON.Marshal("<b>")
	require.NoError(t, err)
	assert.Equal(t, `"<b>"`, string(raw))
}

func TestReplyFrame(t *testing.T) {
	t.Parallel()

	frame, err := EncodeReply(MsgPack, StatusNoResponder, nil)
	require.NoError(t, err)

	reply, err := DecodeReply(MsgPack, frame)
	require.NoError(t, err)
	assert.Equal(t, StatusNoResponder, reply.Status)
	assert.Empty(t, reply.Result)
}
