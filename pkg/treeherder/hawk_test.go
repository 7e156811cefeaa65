package treeherder

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Credentials and request from the Hawk protocol documentation.
var hawkDocCreds = Credentials{
	ClientID: "dh37fgj492je",
	Secret:   "werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn",
}

func TestHawkPayloadHash_DocumentedVector(t *testing.T) {
	got := hawkPayloadHash("text/plain", []byte("Thank you for flying Hawk"))
	assert.Equal(t, "Yi9LfIIFRtBEPt74PVmbTF/xVAwPn7ub15ePICfgnuY=", got)

	// Parameters are not part of the hashed media type.
	assert.Equal(t, got, hawkPayloadHash("text/plain; charset=utf-8", []byte("Thank you for flying Hawk")))
}

func TestHawkHeader_DocumentedVector(t *testing.T) {
	u, err := url.Parse("http://example.com:8000/resource/1?b=1&a=2")
	require.NoError(t, err)

	header := hawkHeader(hawkDocCreds, hawkRequest{
		Method:      "POST",
		URL:         u,
		ContentType: "text/plain",
		Payload:     []byte("Thank you for flying Hawk"),
		Timestamp:   time.Unix(1353832234, 0),
		Nonce:       "j4h3g2",
		Ext:         "some-app-ext-data",
	})

	assert.Equal(t,
		`Hawk id="dh37fgj492je", ts="1353832234", nonce="j4h3g2", `+
			`hash="Yi9LfIIFRtBEPt74PVmbTF/xVAwPn7ub15ePICfgnuY=", ext="some-app-ext-data", `+
			`mac="aSe1DERmZuRl3pI36/9BdZmnErTw3sNzOOAUlfeKjVw="`,
		header)
}

func TestHawkHostPort(t *testing.T) {
	tests := []struct {
		raw      string
		wantHost string
		wantPort string
	}{
		{raw: "https://treeherder.example/api/", wantHost: "treeherder.example", wantPort: "443"},
		{raw: "http://treeherder.example/api/", wantHost: "treeherder.example", wantPort: "80"},
		{raw: "http://localhost:8000/api/", wantHost: "localhost", wantPort: "8000"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			host, port := hawkHostPort(u)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}
