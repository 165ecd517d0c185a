// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"fmt"

	"github.com/netascode/go-confapi/cfgtype"
)

// PCIOID returns the OID of PCI device addr (e.g. "0000:01:00.0") on ta
func PCIOID(ta, addr string) string {
	return fmt.Sprintf("/agent:%s/hardware:/pci:/device:%s", ta, addr)
}

// PCIDevice describes a PCI function
type PCIDevice struct {
	Addr     string
	VendorID int
	DeviceID int
	Driver   string
	Net      []string
}

// PCIDevices returns the addresses of the PCI functions of ta
func (t *Helper) PCIDevices(ctx context.Context, ta string) ([]string, error) {
	return t.names(ctx, "/agent:%s/hardware:/pci:/device:*", ta)
}

// PCIDeviceInfo reads the description of one PCI function
func (t *Helper) PCIDeviceInfo(ctx context.Context, ta, addr string) (PCIDevice, error) {
	d := PCIDevice{Addr: addr}
	base := PCIOID(ta, addr)
	var err error
	if d.VendorID, err = t.getInt(ctx, "%s/vendor_id:", base); err != nil {
		return d, err
	}
	if d.DeviceID, err = t.getInt(ctx, "%s/device_id:", base); err != nil {
		return d, err
	}
	if d.Driver, err = t.getString(ctx, "%s/driver:", base); err != nil {
		return d, err
	}
	d.Net, err = t.names(ctx, "%s/net:*", base)
	return d, err
}

// PCIDevicesByID returns the addresses of the PCI functions of ta with
// the given vendor and device identifiers
func (t *Helper) PCIDevicesByID(ctx context.Context, ta string, vendor, device int) ([]string, error) {
	addrs, err := t.PCIDevices(ctx, ta)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, addr := range addrs {
		v, err := t.getInt(ctx, "%s/vendor_id:", PCIOID(ta, addr))
		if err != nil {
			return nil, err
		}
		d, err := t.getInt(ctx, "%s/device_id:", PCIOID(ta, addr))
		if err != nil {
			return nil, err
		}
		if v == vendor && d == device {
			out = append(out, addr)
		}
	}
	return out, nil
}

// PCIDriver returns the driver bound to a PCI function
func (t *Helper) PCIDriver(ctx context.Context, ta, addr string) (string, error) {
	return t.getString(ctx, "%s/driver:", PCIOID(ta, addr))
}

// SetPCIDriver binds a PCI function to driver; "" unbinds it
func (t *Helper) SetPCIDriver(ctx context.Context, ta, addr, driver string) error {
	return t.setf(ctx, cfgtype.Str(driver), "%s/driver:", PCIOID(ta, addr))
}

// PCINetInterfaces returns the network interfaces of a PCI function
func (t *Helper) PCINetInterfaces(ctx context.Context, ta, addr string) ([]string, error) {
	return t.names(ctx, "%s/net:*", PCIOID(ta, addr))
}
