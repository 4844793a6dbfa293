// Package device reads sectors from physical media and block devices.
//
// It owns the SectorReader contract the recovery stages consume: one read
// outstanding at a time, failures reported at a specific sector offset so a
// failing run stays attributable, and per-read timeouts treated as failures
// at the point of the stall. Drive status polling, eject helpers, and the
// udev wait-for-disc monitor live here to keep device quirks out of the
// recovery logic.
package device
