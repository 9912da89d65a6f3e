package cli

import (
	"bytes"
	"errors"
	"testing"

	"tld/pkg/oauth"

	"github.com/stretchr/testify/assert"
)

func challenge() *oauth.DeviceChallenge {
	return &oauth.DeviceChallenge{
		VerificationURI:         "https://idp.example/device",
		VerificationURIComplete: "https://idp.example/device?user_code=ABCD-EFGH",
		UserCode:                "ABCD-EFGH",
		ExpiresIn:               600,
		Interval:                5,
	}
}

func TestDevicePresenter_ShowsChallenge(t *testing.T) {
	var buf bytes.Buffer
	p := NewDevicePresenter(&buf, true)

	p.ShowChallenge(challenge())
	p.ChallengeDone(nil)

	out := buf.String()
	assert.Contains(t, out, "https://idp.example/device?user_code=ABCD-EFGH")
	assert.Contains(t, out, "ABCD-EFGH")
	assert.Contains(t, out, "▀", "QR code rendered with half blocks")
	assert.Contains(t, out, "Authenticated")
}

func TestDevicePresenter_WithoutQRCode(t *testing.T) {
	var buf bytes.Buffer
	p := NewDevicePresenter(&buf, false)

	p.ShowChallenge(challenge())
	p.ChallengeDone(errors.New("expired"))

	out := buf.String()
	assert.NotContains(t, out, "▀")
	assert.Contains(t, out, "Authentication failed")
}

func TestAssumeYes(t *testing.T) {
	ok, err := AssumeYes{}.Confirm("Revoke all keys")
	assert.NoError(t, err)
	assert.True(t, ok)

	_, err = AssumeYes{}.Secret("Secret key")
	assert.ErrorContains(t, err, "secret key must be provided")
}
