// Package usbdongle opens the physical rtstepper dongle over USB and
// adapts it to the usbstream.BulkWriter/StatusReader interfaces, the same
// gousb open/claim/endpoint sequence the teacher's usbtmc package uses for
// its bulk-transfer device.
package usbdongle

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/gousb"
)

// Endpoint addresses on the rtstepper dongle's default interface: bulk-out
// carries step/direction bytes, the status word is read back over a
// vendor control transfer rather than a bulk-in endpoint.
const (
	bulkOutAddr            = 1
	statusRequestType      = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
	statusRequest     byte = 0x01
)

// Dongle is a USBDevice wrapper satisfying usbstream.BulkWriter and
// usbstream.StatusReader.
type Dongle struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
	out    *gousb.OutEndpoint
}

// Open claims the default interface of the dongle at vid:pid and returns a
// Dongle ready to hand to usbstream.New.
func Open(vid, pid uint16) (*Dongle, error) {
	d := &Dongle{ctx: gousb.NewContext()}
	dev, err := d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if dev == nil {
		d.ctx.Close()
		return nil, errNoDevice{vid: vid, pid: pid}
	}
	d.device = dev
	if err := d.device.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	iface, closer, err := d.device.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.iface = iface
	d.closer = closer
	out, err := d.iface.OutEndpoint(bulkOutAddr)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.out = out
	return d, nil
}

// Write sends buf over the bulk-out endpoint, satisfying usbstream.BulkWriter.
func (d *Dongle) Write(buf []byte) (int, error) {
	return d.out.Write(buf)
}

// ReadStatus fetches the dongle's status word over a control transfer,
// satisfying usbstream.StatusReader. Only the leading 16-bit state-bits
// field is returned; the icount period that follows it is not decoded.
func (d *Dongle) ReadStatus(ctx context.Context) (uint32, error) {
	buf := make([]byte, 4)
	_, err := d.device.Control(statusRequestType, statusRequest, 0, 0, buf)
	if err != nil {
		return 0, err
	}
	return uint32(binary.LittleEndian.Uint16(buf)), nil
}

// Close releases the interface and device handles.
func (d *Dongle) Close() {
	if d.closer != nil {
		d.closer()
	}
	if d.device != nil {
		d.device.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
}

type errNoDevice struct{ vid, pid uint16 }

func (e errNoDevice) Error() string {
	return fmt.Sprintf("usbdongle: no device found at vid=%#04x pid=%#04x", e.vid, e.pid)
}
