package onramp

import (
	"net/url"

	"github.com/skip2/go-qrcode"
	"moff.io/wallet-bridge/pkg/errors"
)

const defaultQRSize = 256

// QRCode renders link as a PNG so a host without popups can still present it.
// A non-positive size uses 256 pixels.
func QRCode(link *url.URL, size int) ([]byte, error) {
	if link == nil {
		return nil, errors.New("nil on-ramp link")
	}
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(link.String(), qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode on-ramp qr code")
	}
	return png, nil
}
