package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"tld/pkg/oauth"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mdp/qrterminal/v3"
)

// DevicePresenter shows the device authorization challenge on a terminal:
// the verification URI, a QR code for phones and a spinner while polling.
type DevicePresenter struct {
	out     io.Writer
	showQR  bool
	spinner *spinner.Spinner
}

// NewDevicePresenter writes to out. QR codes are skipped when showQR is false.
func NewDevicePresenter(out io.Writer, showQR bool) *DevicePresenter {
	return &DevicePresenter{out: out, showQR: showQR}
}

// ShowChallenge prints the challenge and starts the spinner.
func (p *DevicePresenter) ShowChallenge(challenge *oauth.DeviceChallenge) {
	uri := challenge.URI()
	fmt.Fprintf(p.out, "\nTo authenticate, open this link in a browser:\n\n  %s\n\n", text.FgHiCyan.Sprint(uri))
	if challenge.UserCode != "" {
		fmt.Fprintf(p.out, "and confirm the code %s\n\n", text.Bold.Sprint(challenge.UserCode))
	}
	if p.showQR {
		qrterminal.GenerateHalfBlock(uri, qrterminal.L, p.out)
		fmt.Fprintln(p.out)
	}

	opt := spinner.WithWriter(p.out)
	if f, ok := p.out.(*os.File); ok {
		opt = spinner.WithWriterFile(f)
	}
	p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, opt)
	p.spinner.Suffix = fmt.Sprintf(" Waiting for approval (link valid %s)...", challenge.ExpiresInDuration())
	p.spinner.Start()
}

// ChallengeDone stops the spinner and reports the outcome. The spinner does
// not run when out is not a terminal, so the outcome is printed directly.
func (p *DevicePresenter) ChallengeDone(err error) {
	msg := text.FgGreen.Sprint("Authenticated") + "\n"
	if err != nil {
		msg = text.FgRed.Sprint("Authentication failed") + "\n"
	}

	if p.spinner != nil && p.spinner.Active() {
		p.spinner.FinalMSG = msg
		p.spinner.Stop()
	} else {
		fmt.Fprint(p.out, msg)
	}
	p.spinner = nil
}
