package treeherder

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Credentials are the Hawk credentials issued by Treeherder.
type Credentials struct {
	ClientID string
	Secret   string
}

// Validate checks that both halves of the credentials are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.Secret) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// hawkRequest holds the request facts covered by the Hawk MAC.
type hawkRequest struct {
	Method      string
	URL         *url.URL
	ContentType string
	Payload     []byte
	Timestamp   time.Time
	Nonce       string
	Ext         string
}

// hawkHeader builds the Authorization header value for a request.
//
// The header covers the payload hash, so the body must not change after
// signing.
func hawkHeader(creds Credentials, req hawkRequest) string {
	ts := strconv.FormatInt(req.Timestamp.Unix(), 10)
	hash := hawkPayloadHash(req.ContentType, req.Payload)

	host, port := hawkHostPort(req.URL)
	resource := req.URL.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if req.URL.RawQuery != "" {
		resource += "?" + req.URL.RawQuery
	}

	normalized := strings.Join([]string{
		"hawk.1.header",
		ts,
		req.Nonce,
		strings.ToUpper(req.Method),
		resource,
		strings.ToLower(host),
		port,
		hash,
		req.Ext,
	}, "\n") + "\n"

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	_, _ = mac.Write([]byte(normalized))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if req.Ext != "" {
		return fmt.Sprintf(`Hawk id="%s", ts="%s", nonce="%s", hash="%s", ext="%s", mac="%s"`,
			creds.ClientID, ts, req.Nonce, hash, req.Ext, sig)
	}
	return fmt.Sprintf(`Hawk id="%s", ts="%s", nonce="%s", hash="%s", mac="%s"`,
		creds.ClientID, ts, req.Nonce, hash, sig)
}

func hawkPayloadHash(contentType string, payload []byte) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	h := sha256.New()
	_, _ = h.Write([]byte("hawk.1.payload\n"))
	_, _ = h.Write([]byte(mediaType + "\n"))
	_, _ = h.Write(payload)
	_, _ = h.Write([]byte("\n"))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func hawkHostPort(u *url.URL) (string, string) {
	host := u.Host
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	if u.Scheme == "https" {
		return host, "443"
	}
	return host, "80"
}

func newNonce() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
