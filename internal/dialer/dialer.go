// Package dialer provides the opaque dialer-launch capability.
//
// The session controller only knows how to ask for a call to be placed;
// whether that opens the device dialer through the platform shell or
// bridges through Twilio is a wiring decision.
package dialer

import "context"

// Launcher places a call to a phone number. An error means the dial
// could not even be initiated; the caller rolls back its obligation.
type Launcher interface {
	OpenDialer(ctx context.Context, phoneNumber string) error
}

// LauncherFunc adapts a plain function (for example a bridge into the
// platform shell's tel: handler) into a Launcher.
type LauncherFunc func(ctx context.Context, phoneNumber string) error

func (f LauncherFunc) OpenDialer(ctx context.Context, phoneNumber string) error {
	return f(ctx, phoneNumber)
}
