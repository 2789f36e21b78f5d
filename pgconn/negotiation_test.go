package pgconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkit/pgsql/pgproto"
)

func testNegotiationConfig() *Config {
	return &Config{
		User:     "jack",
		Password: "secret",
		Database: "mydb",
	}
}

func TestNegotiationStartupMessage(t *testing.T) {
	config := testNegotiationConfig()
	config.RuntimeParams = map[string]string{"application_name": "pgsqltest"}
	neg := newNegotiation(config)

	msg := neg.startupMessage()
	assert.EqualValues(t, pgproto.ProtocolVersionNumber, msg.ProtocolVersion)
	assert.Equal(t, "jack", msg.Parameters["user"])
	assert.Equal(t, "mydb", msg.Parameters["database"])
	assert.Equal(t, "pgsqltest", msg.Parameters["application_name"])
}

func TestNegotiationTrust(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	replies, err := neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeOk})
	require.NoError(t, err)
	require.Empty(t, replies)
	require.False(t, neg.complete())

	_, err = neg.step(&pgproto.BackendKeyData{ProcessID: 42, SecretKey: 4242})
	require.NoError(t, err)

	_, err = neg.step(&pgproto.ParameterStatus{Name: "server_version", Value: "13.3"})
	require.NoError(t, err)

	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)

	require.True(t, neg.complete())
	assert.EqualValues(t, 42, neg.pid)
	assert.EqualValues(t, 4242, neg.secretKey)
	assert.EqualValues(t, 'I', neg.txStatus)
}

func TestNegotiationCleartextPassword(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	replies, err := neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeCleartextPassword})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, &pgproto.PasswordMessage{Password: "secret"}, replies[0])
}

func TestNegotiationMD5Password(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	replies, err := neg.step(&pgproto.Authentication{
		Type: pgproto.AuthTypeMD5Password,
		Salt: [4]byte{0x01, 0x02, 0x03, 0x04},
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)

	expected := "md5" + hexMD5(hexMD5("secretjack")+string([]byte{0x01, 0x02, 0x03, 0x04}))
	require.Equal(t, &pgproto.PasswordMessage{Password: expected}, replies[0])

	// Success verdict and session setup may then arrive in any order before
	// ReadyForQuery.
	_, err = neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeOk})
	require.NoError(t, err)
	_, err = neg.step(&pgproto.BackendKeyData{ProcessID: 1, SecretKey: 2})
	require.NoError(t, err)
	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)
	require.True(t, neg.complete())
}

func TestNegotiationCryptPassword(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	salt := [2]byte{'a', 'b'}
	replies, err := neg.step(&pgproto.Authentication{
		Type:      pgproto.AuthTypeCryptPassword,
		CryptSalt: salt,
	})
	require.NoError(t, err)
	require.Len(t, replies, 1)

	pm, ok := replies[0].(*pgproto.PasswordMessage)
	require.True(t, ok)
	require.Equal(t, crypt("secret", salt), pm.Password)
	require.Len(t, pm.Password, 13)
	require.Equal(t, "ab", pm.Password[:2])
}

func TestNegotiationErrorResponse(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	_, err := neg.step(&pgproto.ErrorResponse{
		Severity: "FATAL",
		Code:     "28P01",
		Message:  `password authentication failed for user "jack"`,
	})
	require.Error(t, err)

	pgErr, ok := err.(*PgError)
	require.True(t, ok)
	assert.Equal(t, "28P01", pgErr.Code)

	// The handshake is dead. No further message may be consumed.
	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.Error(t, err)
	require.False(t, neg.complete())
}

func TestNegotiationRejectsQueryPhaseMessages(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	_, err := neg.step(&pgproto.DataRow{})
	require.Error(t, err)
	require.False(t, neg.complete())
}

func TestNegotiationIgnoresUnknownMessages(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	replies, err := neg.step(&pgproto.UnknownMessage{Tag: '@', Body: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.Empty(t, replies)

	_, err = neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeOk})
	require.NoError(t, err)
	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)
	require.True(t, neg.complete())
}

func TestNegotiationUnknownAuthType(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	_, err := neg.step(&pgproto.Authentication{Type: 99})
	require.Error(t, err)
	require.False(t, neg.complete())
}

func TestNegotiationSASLContinueWithoutExchange(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	_, err := neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeSASLContinue, SASLData: []byte("r=x,s=eA==,i=4096")})
	require.Error(t, err)
}

func TestNegotiationStepAfterComplete(t *testing.T) {
	neg := newNegotiation(testNegotiationConfig())

	_, err := neg.step(&pgproto.Authentication{Type: pgproto.AuthTypeOk})
	require.NoError(t, err)
	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.NoError(t, err)

	_, err = neg.step(&pgproto.ReadyForQuery{TxStatus: 'I'})
	require.Error(t, err)
}
