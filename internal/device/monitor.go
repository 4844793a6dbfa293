package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pilebones/go-udev/netlink"

	"discrescue/internal/logging"
)

// WaitForDisc blocks until udev reports disc media in the given drive, then
// polls the tray until the disc spins up. It returns immediately when a disc
// is already loaded, so starting a recover run with the tray closed needs no
// insertion event.
func WaitForDisc(ctx context.Context, logger *slog.Logger, devicePath string) error {
	logger = logging.NewComponentLogger(logger, "disc-monitor")

	if status, err := CheckDriveStatus(devicePath); err == nil && status == DriveStatusDiscOK {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect to udev netlink socket: %w", err)
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, discInsertionMatcher())
	defer close(monitorQuit)

	logger.Info("waiting for disc insertion",
		logging.String(logging.FieldDevice, devicePath),
		logging.String(logging.FieldEventType, "disc_wait_started"),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case uevent := <-queue:
			devname := eventDeviceName(uevent)
			if devname == "" || devname != devicePath {
				logger.Debug("ignoring event for non-configured device",
					logging.String(logging.FieldDevice, devname),
				)
				continue
			}
			logger.Info("disc media detected",
				logging.String(logging.FieldDevice, devname),
				logging.String("action", string(uevent.Action)),
				logging.String(logging.FieldEventType, "disc_detected"),
			)
			if _, err := WaitForReady(ctx, devicePath); err != nil {
				return err
			}
			return nil
		case err := <-errs:
			logger.Warn("udev monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "disc_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		}
	}
}

// discInsertionMatcher matches SUBSYSTEM=block, ID_CDROM=1, ID_CDROM_MEDIA=1,
// ACTION=change|add.
func discInsertionMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})
	return rules
}

// eventDeviceName gets the device path from a uevent.
func eventDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
