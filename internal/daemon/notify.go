package daemon

import (
	sddaemon "github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports lifecycle state to the service manager.
type Notifier interface {
	Notify(state string) error
}

// systemdNotifier talks to $NOTIFY_SOCKET; it is a no-op outside systemd.
type systemdNotifier struct{}

func (systemdNotifier) Notify(state string) error {
	_, err := sddaemon.SdNotify(false, state)
	return err
}

const (
	notifyReady    = sddaemon.SdNotifyReady
	notifyStopping = sddaemon.SdNotifyStopping
	notifyWatchdog = sddaemon.SdNotifyWatchdog
)
