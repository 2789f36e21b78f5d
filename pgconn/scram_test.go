package pgconn

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/pgproto"
)

func TestScramRequiresSHA256Mechanism(t *testing.T) {
	_, err := newScramClient([]string{"SCRAM-SHA-1"}, "secret")
	require.Error(t, err)

	_, err = newScramClient([]string{"SCRAM-SHA-256-PLUS", "SCRAM-SHA-256"}, "secret")
	require.NoError(t, err)
}

func TestScramClientFirstMessage(t *testing.T) {
	sc, err := newScramClient([]string{"SCRAM-SHA-256"}, "secret")
	require.NoError(t, err)

	msg := string(sc.clientFirstMessage())
	require.True(t, strings.HasPrefix(msg, "n,,n=,r="))

	nonce := strings.TrimPrefix(msg, "n,,n=,r=")
	decoded, err := base64.StdEncoding.DecodeString(nonce)
	require.NoError(t, err)
	require.Len(t, decoded, clientNonceLen)
}

func TestScramServerFirstMessageParsing(t *testing.T) {
	newClient := func() *scramClient {
		sc, err := newScramClient([]string{"SCRAM-SHA-256"}, "pencil")
		require.NoError(t, err)
		sc.clientFirstMessage()
		return sc
	}
	clientNonce := func(sc *scramClient) string {
		return base64.StdEncoding.EncodeToString(sc.clientNonce)
	}

	t.Run("valid", func(t *testing.T) {
		sc := newClient()
		serverFirst := "r=" + clientNonce(sc) + "serverbits,s=c2FsdHNhbHQ=,i=4096"
		require.NoError(t, sc.recvServerFirstMessage([]byte(serverFirst)))
		require.Equal(t, []byte("saltsalt"), sc.salt)
		require.Equal(t, 4096, sc.iterations)
	})

	t.Run("missing server nonce", func(t *testing.T) {
		sc := newClient()
		serverFirst := "r=" + clientNonce(sc) + ",s=c2FsdHNhbHQ=,i=4096"
		require.Error(t, sc.recvServerFirstMessage([]byte(serverFirst)))
	})

	t.Run("nonce does not extend client nonce", func(t *testing.T) {
		sc := newClient()
		serverFirst := "r=somethingelse,s=c2FsdHNhbHQ=,i=4096"
		require.Error(t, sc.recvServerFirstMessage([]byte(serverFirst)))
	})

	t.Run("bad iteration count", func(t *testing.T) {
		sc := newClient()
		serverFirst := "r=" + clientNonce(sc) + "serverbits,s=c2FsdHNhbHQ=,i=banana"
		require.Error(t, sc.recvServerFirstMessage([]byte(serverFirst)))
	})

	t.Run("missing fields", func(t *testing.T) {
		sc := newClient()
		require.Error(t, sc.recvServerFirstMessage([]byte("s=c2FsdHNhbHQ=,i=4096")))
	})
}

func TestScramFinalMessageVerification(t *testing.T) {
	sc, err := newScramClient([]string{"SCRAM-SHA-256"}, "pencil")
	require.NoError(t, err)
	sc.clientFirstMessage()

	serverFirst := "r=" + base64.StdEncoding.EncodeToString(sc.clientNonce) + "serverbits,s=c2FsdHNhbHQ=,i=4096"
	require.NoError(t, sc.recvServerFirstMessage([]byte(serverFirst)))

	final := sc.clientFinalMessage()
	require.True(t, strings.HasPrefix(final, "c=biws,r="))
	require.Contains(t, final, ",p=")

	// A signature computed over the same authorization state must verify,
	// anything else must not.
	valid := "v=" + computeServerSignature(sc.saltedPassword, sc.authMessage)
	require.NoError(t, sc.recvServerFinalMessage([]byte(valid)))

	require.Error(t, sc.recvServerFinalMessage([]byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")))
	require.Error(t, sc.recvServerFinalMessage([]byte("e=invalid-proof")))
}

func TestNegotiationSCRAMExchange(t *testing.T) {
	config := &Config{User: "jack", Password: "pencil"}
	neg := newNegotiation(config)

	replies, err := neg.step(&pgproto.Authentication{
		Type:           pgproto.AuthTypeSASL,
		SASLMechanisms: []string{"SCRAM-SHA-256"},
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)

	initial, ok := replies[0].(*pgproto.SASLInitialResponse)
	require.True(t, ok)
	require.Equal(t, "SCRAM-SHA-256", initial.AuthMechanism)
	require.True(t, strings.HasPrefix(string(initial.Data), "n,,n=,r="))

	clientNonce := strings.TrimPrefix(string(initial.Data), "n,,n=,r=")
	serverFirst := "r=" + clientNonce + "serverbits,s=c2FsdHNhbHQ=,i=4096"

	replies, err = neg.step(&pgproto.Authentication{
		Type:     pgproto.AuthTypeSASLContinue,
		SASLData: []byte(serverFirst),
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)

	response, ok := replies[0].(*pgproto.SASLResponse)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(string(response.Data), "c=biws,r="+clientNonce))

	valid := "v=" + computeServerSignature(neg.scram.saltedPassword, neg.scram.authMessage)
	replies, err = neg.step(&pgproto.Authentication{
		Type:     pgproto.AuthTypeSASLFinal,
		SASLData: []byte(valid),
	})
	require.NoError(t, err)
	require.Empty(t, replies)

	_, err = neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeOk})
	require.NoError(t, err)
	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)
	require.True(t, neg.complete())
}
