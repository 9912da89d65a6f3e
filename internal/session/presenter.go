package session

import (
	"log/slog"

	"tld/pkg/oauth"
)

// Presenter shows a device challenge to the user while the manager polls.
type Presenter interface {
	// ShowChallenge is called once the challenge has been obtained.
	ShowChallenge(challenge *oauth.DeviceChallenge)

	// ChallengeDone is called when polling ends, with nil on approval.
	ChallengeDone(err error)
}

// LogPresenter writes the verification URI to a logger.
type LogPresenter struct {
	Logger *slog.Logger
}

// ShowChallenge implements Presenter.
func (p LogPresenter) ShowChallenge(challenge *oauth.DeviceChallenge) {
	p.logger().Info("Open the following URL in your browser to grant access",
		"url", challenge.URI(),
		"user_code", challenge.UserCode,
		"expires_in", challenge.ExpiresInDuration(),
	)
}

// ChallengeDone implements Presenter.
func (p LogPresenter) ChallengeDone(err error) {
	if err != nil {
		p.logger().Warn("Device authorization failed", "error", err)
		return
	}
	p.logger().Info("Device authorization approved")
}

func (p LogPresenter) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
